// Package reddit searches subreddit listings for posts mentioning a business.
// Posts carry no star rating; they are stored with the neutral rating.
package reddit

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"

	"reviewpulse/internal/adapters/provider"
	"reviewpulse/internal/domain"
)

const (
	DefaultBase = "https://www.reddit.com"

	// OptionQuery overrides the business name as the search phrase.
	OptionQuery = "query"

	neutralRating = "3"
)

type Config struct {
	Base     string
	PageSize int
	MaxPages int
}

type Adapter struct {
	c   *provider.Client
	cfg Config
}

func New(c *provider.Client, cfg Config) *Adapter {
	if cfg.Base == "" {
		cfg.Base = DefaultBase
	}
	if cfg.PageSize <= 0 || cfg.PageSize > 100 {
		cfg.PageSize = 100
	}
	if cfg.MaxPages <= 0 {
		cfg.MaxPages = 10
	}
	return &Adapter{c: c, cfg: cfg}
}

func (a *Adapter) Platform() domain.Platform { return domain.PlatformReddit }

// Validate needs only a search phrase; the public listing takes no key.
func (a *Adapter) Validate(_ domain.Credentials, src domain.Source) error {
	if query(src) == "" {
		return &domain.ConfigError{Platform: domain.PlatformReddit, Field: "query", Reason: "no search phrase or business name"}
	}
	return nil
}

func query(src domain.Source) string {
	if q := strings.TrimSpace(src.Option(OptionQuery)); q != "" {
		return q
	}
	return strings.TrimSpace(src.BusinessName)
}

// subreddits parses the comma-separated external id. Empty means site-wide.
func subreddits(src domain.Source) []string {
	var out []string
	for _, s := range strings.Split(src.ExternalID, ",") {
		s = strings.TrimPrefix(strings.TrimSpace(s), "r/")
		if s != "" {
			out = append(out, s)
		}
	}
	if len(out) == 0 {
		return []string{""}
	}
	return out
}

func (a *Adapter) Fetch(ctx context.Context, creds domain.Credentials, src domain.Source) (domain.FetchResult, error) {
	if err := a.Validate(creds, src); err != nil {
		return domain.FetchResult{}, err
	}
	q := query(src)

	var (
		out     domain.FetchResult
		skipped []string
		capped  []string
	)
	seen := map[string]struct{}{}
	for _, sub := range subreddits(src) {
		posts, more, err := a.search(ctx, sub, q)
		if err != nil {
			if sub != "" && provider.Unavailable(err) {
				skipped = append(skipped, "r/"+sub)
				continue
			}
			return domain.FetchResult{}, provider.Wrap(domain.PlatformReddit, "search "+label(sub), err)
		}
		if more {
			capped = append(capped, label(sub))
		}
		for _, p := range posts {
			if _, dup := seen[p.ExternalID]; dup {
				continue
			}
			seen[p.ExternalID] = struct{}{}
			out.Reviews = append(out.Reviews, p)
		}
	}

	var warn []string
	if len(skipped) > 0 {
		warn = append(warn, "skipped unavailable subreddits: "+strings.Join(skipped, ", "))
	}
	if len(capped) > 0 {
		warn = append(warn, fmt.Sprintf("stopped after %d pages in %s", a.cfg.MaxPages, strings.Join(capped, ", ")))
	}
	out.Warning = strings.Join(warn, "; ")
	return out, nil
}

func label(sub string) string {
	if sub == "" {
		return "all of reddit"
	}
	return "r/" + sub
}

// search pages through one listing. more reports the page cap was hit.
func (a *Adapter) search(ctx context.Context, sub, phrase string) ([]domain.RawReview, bool, error) {
	path := "/search.json"
	if sub != "" {
		path = "/r/" + url.PathEscape(sub) + "/search.json"
	}

	var out []domain.RawReview
	after := ""
	for page := 0; page < a.cfg.MaxPages; page++ {
		q := url.Values{}
		q.Set("q", phrase)
		q.Set("sort", "new")
		q.Set("limit", strconv.Itoa(a.cfg.PageSize))
		q.Set("raw_json", "1")
		if sub != "" {
			q.Set("restrict_sr", "1")
		}
		if after != "" {
			q.Set("after", after)
		}
		body, err := a.c.Get(ctx, "search", a.cfg.Base+path+"?"+q.Encode(), nil)
		if err != nil {
			return nil, false, err
		}
		doc, err := provider.ParseBody(body)
		if err != nil {
			return nil, false, err
		}
		doc.Get("data.children.#.data").ForEach(func(_, d gjson.Result) bool {
			out = append(out, a.mapPost(d))
			return true
		})
		after = doc.Get("data.after").String()
		if after == "" {
			return out, false, nil
		}
	}
	return out, true, nil
}

func (a *Adapter) mapPost(d gjson.Result) domain.RawReview {
	text := strings.TrimSpace(strings.Join([]string{
		provider.FirstString(d, "title"),
		provider.FirstString(d, "selftext", "body"),
	}, "\n\n"))

	var link *string
	if p := provider.FirstString(d, "permalink"); p != "" {
		s := a.cfg.Base + p
		link = &s
	}
	author := provider.FirstString(d, "author")
	if author == "[deleted]" {
		author = ""
	}
	published, _ := provider.UnixTime(d.Get("created_utc"))
	return domain.RawReview{
		ExternalID:  provider.FirstString(d, "name", "id"),
		AuthorName:  author,
		RatingRaw:   neutralRating,
		BodyText:    text,
		SourceURL:   link,
		PublishedAt: published,
	}
}
