package domain

// Source ties a business to its identifier on one platform: a Place ID,
// a Yelp business alias, a TripAdvisor URL or a list of subreddits.
type Source struct {
	BusinessID   string
	BusinessName string
	Platform     Platform
	ExternalID   string
	Options      map[string]string
}

func (s Source) Option(k string) string {
	if s.Options == nil {
		return ""
	}
	return s.Options[k]
}

// Credentials are the process-level secrets for one provider.
type Credentials struct {
	APIKey      string
	AccessToken string
}

// FetchResult is everything an adapter returns for one sync. Warning is
// user-facing and set when the provider truncated what we could see.
type FetchResult struct {
	Reviews []RawReview
	Warning string
}
