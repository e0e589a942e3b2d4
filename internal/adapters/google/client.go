// Package google fetches reviews for a place. The Business Profile API pages
// through every review but needs an OAuth token and a location name; the
// Places details endpoint only needs an API key and returns at most five.
package google

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/rs/zerolog/log"
	"github.com/tidwall/gjson"

	"reviewpulse/internal/adapters/provider"
	"reviewpulse/internal/domain"
)

const (
	DefaultPlacesBase   = "https://maps.googleapis.com/maps/api/place"
	DefaultBusinessBase = "https://mybusiness.googleapis.com/v4"

	// OptionLocation holds "accounts/{a}/locations/{l}" in business_sources.options.
	OptionLocation = "location"

	placesCap = 5
)

type Config struct {
	PlacesBase   string
	BusinessBase string
	MaxPages     int
	PageSize     int
}

type Adapter struct {
	c   *provider.Client
	cfg Config
}

func New(c *provider.Client, cfg Config) *Adapter {
	if cfg.PlacesBase == "" {
		cfg.PlacesBase = DefaultPlacesBase
	}
	if cfg.BusinessBase == "" {
		cfg.BusinessBase = DefaultBusinessBase
	}
	if cfg.MaxPages <= 0 {
		cfg.MaxPages = 10
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = 50
	}
	return &Adapter{c: c, cfg: cfg}
}

func (a *Adapter) Platform() domain.Platform { return domain.PlatformGoogle }

func (a *Adapter) Validate(creds domain.Credentials, src domain.Source) error {
	if src.ExternalID == "" {
		return &domain.ConfigError{Platform: domain.PlatformGoogle, Field: "place_id", Reason: "business has no Google Place ID"}
	}
	if creds.APIKey == "" && !paginated(creds, src) {
		return &domain.ConfigError{Platform: domain.PlatformGoogle, Field: "api_key", Reason: "GOOGLE_PLACES_API_KEY is not set"}
	}
	return nil
}

func paginated(creds domain.Credentials, src domain.Source) bool {
	return creds.AccessToken != "" && src.Option(OptionLocation) != ""
}

func (a *Adapter) Fetch(ctx context.Context, creds domain.Credentials, src domain.Source) (domain.FetchResult, error) {
	if err := a.Validate(creds, src); err != nil {
		return domain.FetchResult{}, err
	}

	fellBack := false
	if paginated(creds, src) {
		res, err := a.fetchBusinessProfile(ctx, creds.AccessToken, src.Option(OptionLocation))
		switch {
		case err == nil:
			return res, nil
		case !provider.Unavailable(err) || creds.APIKey == "":
			return domain.FetchResult{}, provider.Wrap(domain.PlatformGoogle, "business profile reviews", err)
		}
		log.Warn().Err(err).Str("business_id", src.BusinessID).Msg("google business profile unavailable, using places details")
		fellBack = true
	}

	reviews, err := a.fetchPlaceDetails(ctx, creds.APIKey, src.ExternalID)
	if err != nil {
		return domain.FetchResult{}, provider.Wrap(domain.PlatformGoogle, "place details", err)
	}
	res := domain.FetchResult{Reviews: reviews}
	switch {
	case fellBack:
		res.Warning = fmt.Sprintf("Google Business Profile is unavailable; only the %d most recent reviews were imported", placesCap)
	case len(reviews) >= placesCap:
		res.Warning = fmt.Sprintf("Google only returned the %d most recent reviews; connect Google Business Profile to import full history", placesCap)
	}
	return res, nil
}

func (a *Adapter) fetchBusinessProfile(ctx context.Context, token, location string) (domain.FetchResult, error) {
	hdr := http.Header{}
	hdr.Set("Authorization", "Bearer "+token)

	var out domain.FetchResult
	pageToken := ""
	for page := 0; ; page++ {
		if page == a.cfg.MaxPages {
			out.Warning = fmt.Sprintf("stopped after %d pages of Google reviews; older reviews were not imported", a.cfg.MaxPages)
			return out, nil
		}
		q := url.Values{}
		q.Set("pageSize", strconv.Itoa(a.cfg.PageSize))
		if pageToken != "" {
			q.Set("pageToken", pageToken)
		}
		body, err := a.c.Get(ctx, "business_reviews", a.cfg.BusinessBase+"/"+location+"/reviews?"+q.Encode(), hdr)
		if err != nil {
			return domain.FetchResult{}, err
		}
		doc, err := provider.ParseBody(body)
		if err != nil {
			return domain.FetchResult{}, err
		}
		doc.Get("reviews").ForEach(func(_, r gjson.Result) bool {
			out.Reviews = append(out.Reviews, mapBusinessReview(r))
			return true
		})
		pageToken = doc.Get("nextPageToken").String()
		if pageToken == "" {
			return out, nil
		}
	}
}

func mapBusinessReview(r gjson.Result) domain.RawReview {
	published, _ := provider.ParseTime(provider.FirstString(r, "createTime", "updateTime"))
	raw := domain.RawReview{
		ExternalID:      provider.FirstString(r, "reviewId", "name"),
		AuthorName:      provider.FirstString(r, "reviewer.displayName"),
		AuthorAvatarURL: provider.OptString(r, "reviewer.profilePhotoUrl"),
		RatingRaw:       provider.RawNumber(r, "starRating"),
		BodyText:        provider.FirstString(r, "comment"),
		PublishedAt:     published,
		ReplyText:       provider.OptString(r, "reviewReply.comment"),
	}
	raw.RepliedAt = provider.OptTime(provider.ParseTime(provider.FirstString(r, "reviewReply.updateTime")))
	return raw
}

func (a *Adapter) fetchPlaceDetails(ctx context.Context, key, placeID string) ([]domain.RawReview, error) {
	q := url.Values{}
	q.Set("place_id", placeID)
	q.Set("fields", "url,reviews")
	q.Set("reviews_sort", "newest")
	q.Set("key", key)
	body, err := a.c.Get(ctx, "place_details", a.cfg.PlacesBase+"/details/json?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}
	doc, err := provider.ParseBody(body)
	if err != nil {
		return nil, err
	}
	switch status := doc.Get("status").String(); status {
	case "OK", "ZERO_RESULTS", "":
	case "REQUEST_DENIED":
		return nil, fmt.Errorf("%w: %s", provider.ErrUnauthorized, doc.Get("error_message").String())
	case "NOT_FOUND", "INVALID_REQUEST":
		return nil, fmt.Errorf("%w: place %s: %s", provider.ErrNotFound, placeID, status)
	default:
		return nil, fmt.Errorf("places status %s: %s", status, doc.Get("error_message").String())
	}

	placeURL := provider.OptString(doc, "result.url")
	var out []domain.RawReview
	doc.Get("result.reviews").ForEach(func(_, r gjson.Result) bool {
		out = append(out, mapPlaceReview(r, placeURL))
		return true
	})
	return out, nil
}

// Places reviews carry no id; author + timestamp is stable across fetches.
func mapPlaceReview(r gjson.Result, placeURL *string) domain.RawReview {
	author := provider.FirstString(r, "author_name")
	ts := r.Get("time")
	published, _ := provider.UnixTime(ts)
	return domain.RawReview{
		ExternalID:      "places:" + provider.SyntheticID(author, ts.Raw),
		AuthorName:      author,
		AuthorAvatarURL: provider.OptString(r, "profile_photo_url"),
		RatingRaw:       provider.RawNumber(r, "rating"),
		BodyText:        provider.FirstString(r, "text"),
		SourceURL:       placeURL,
		PublishedAt:     published,
	}
}
