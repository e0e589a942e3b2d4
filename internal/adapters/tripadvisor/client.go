// Package tripadvisor reads location reviews from the Tripadvisor Content API.
package tripadvisor

import (
	"context"
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"

	"reviewpulse/internal/adapters/provider"
	"reviewpulse/internal/domain"
)

const DefaultBase = "https://api.content.tripadvisor.com/api/v1"

var (
	// ".../Restaurant_Review-g60763-d1234567-Reviews-Joes.html" carries the id after -d.
	urlID     = regexp.MustCompile(`-d(\d+)-`)
	numericID = regexp.MustCompile(`^\d+$`)
)

const dateOnly = "2006-01-02"

type Config struct {
	Base     string
	Language string
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
	if cfg.Language == "" {
		cfg.Language = "en"
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = 20
	}
	if cfg.MaxPages <= 0 {
		cfg.MaxPages = 10
	}
	return &Adapter{c: c, cfg: cfg}
}

func (a *Adapter) Platform() domain.Platform { return domain.PlatformTripAdvisor }

// LocationID accepts a bare numeric id or a tripadvisor.com listing URL.
func LocationID(ref string) (string, bool) {
	ref = strings.TrimSpace(ref)
	if numericID.MatchString(ref) {
		return ref, true
	}
	if m := urlID.FindStringSubmatch(ref); m != nil {
		return m[1], true
	}
	return "", false
}

func (a *Adapter) Validate(creds domain.Credentials, src domain.Source) error {
	if _, ok := LocationID(src.ExternalID); !ok {
		return &domain.ConfigError{Platform: domain.PlatformTripAdvisor, Field: "location_id", Reason: "no Tripadvisor location id or listing URL"}
	}
	if creds.APIKey == "" {
		return &domain.ConfigError{Platform: domain.PlatformTripAdvisor, Field: "api_key", Reason: "TRIPADVISOR_API_KEY is not set"}
	}
	return nil
}

func (a *Adapter) Fetch(ctx context.Context, creds domain.Credentials, src domain.Source) (domain.FetchResult, error) {
	if err := a.Validate(creds, src); err != nil {
		return domain.FetchResult{}, err
	}
	id, _ := LocationID(src.ExternalID)

	var out domain.FetchResult
	for page := 0; ; page++ {
		if page == a.cfg.MaxPages {
			out.Warning = fmt.Sprintf("stopped after %d pages of Tripadvisor reviews; older reviews were not imported", a.cfg.MaxPages)
			return out, nil
		}
		q := url.Values{}
		q.Set("key", creds.APIKey)
		q.Set("language", a.cfg.Language)
		q.Set("limit", strconv.Itoa(a.cfg.PageSize))
		q.Set("offset", strconv.Itoa(len(out.Reviews)))

		body, err := a.c.Get(ctx, "location_reviews", a.cfg.Base+"/location/"+id+"/reviews?"+q.Encode(), nil)
		if err != nil {
			return domain.FetchResult{}, provider.Wrap(domain.PlatformTripAdvisor, "location reviews", err)
		}
		doc, err := provider.ParseBody(body)
		if err != nil {
			return domain.FetchResult{}, provider.Wrap(domain.PlatformTripAdvisor, "location reviews", err)
		}
		if msg := doc.Get("error.message").String(); msg != "" {
			return domain.FetchResult{}, provider.Wrap(domain.PlatformTripAdvisor, "location reviews", fmt.Errorf("api error: %s", msg))
		}

		items := doc.Get("data").Array()
		for _, r := range items {
			out.Reviews = append(out.Reviews, mapReview(r))
		}
		if len(items) < a.cfg.PageSize {
			return out, nil
		}
	}
}

func mapReview(r gjson.Result) domain.RawReview {
	body := provider.FirstString(r, "text")
	if title := provider.FirstString(r, "title"); title != "" && body != "" {
		body = title + "\n\n" + body
	} else if body == "" {
		body = title
	}
	published, _ := provider.ParseTime(provider.FirstString(r, "published_date", "travel_date"), dateOnly)
	raw := domain.RawReview{
		ExternalID:      provider.RawNumber(r, "id"),
		AuthorName:      provider.FirstString(r, "user.username"),
		AuthorAvatarURL: provider.OptString(r, "user.avatar.small", "user.avatar.thumbnail"),
		RatingRaw:       provider.RawNumber(r, "rating"),
		BodyText:        body,
		SourceURL:       provider.OptString(r, "url"),
		PublishedAt:     published,
		ReplyText:       provider.OptString(r, "owner_response.text"),
	}
	raw.RepliedAt = provider.OptTime(provider.ParseTime(provider.FirstString(r, "owner_response.published_date"), dateOnly))
	return raw
}
