// Package yelp reads business reviews from the Yelp Fusion API.
package yelp

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/tidwall/gjson"

	"reviewpulse/internal/adapters/provider"
	"reviewpulse/internal/domain"
)

const DefaultBase = "https://api.yelp.com/v3"

// Yelp reports created times in the business' local wall clock.
const timeLayout = "2006-01-02 15:04:05"

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
	if cfg.PageSize <= 0 {
		cfg.PageSize = 50
	}
	if cfg.MaxPages <= 0 {
		cfg.MaxPages = 10
	}
	return &Adapter{c: c, cfg: cfg}
}

func (a *Adapter) Platform() domain.Platform { return domain.PlatformYelp }

func (a *Adapter) Validate(creds domain.Credentials, src domain.Source) error {
	if src.ExternalID == "" {
		return &domain.ConfigError{Platform: domain.PlatformYelp, Field: "business_id", Reason: "business has no Yelp business id"}
	}
	if creds.APIKey == "" {
		return &domain.ConfigError{Platform: domain.PlatformYelp, Field: "api_key", Reason: "YELP_API_KEY is not set"}
	}
	return nil
}

func (a *Adapter) Fetch(ctx context.Context, creds domain.Credentials, src domain.Source) (domain.FetchResult, error) {
	if err := a.Validate(creds, src); err != nil {
		return domain.FetchResult{}, err
	}
	hdr := http.Header{}
	hdr.Set("Authorization", "Bearer "+creds.APIKey)

	var (
		out   domain.FetchResult
		total int64
	)
	offset := 0
	for page := 0; page < a.cfg.MaxPages; page++ {
		q := url.Values{}
		q.Set("limit", strconv.Itoa(a.cfg.PageSize))
		q.Set("offset", strconv.Itoa(offset))
		q.Set("sort_by", "newest")
		endpoint := a.cfg.Base + "/businesses/" + url.PathEscape(src.ExternalID) + "/reviews?" + q.Encode()

		body, err := a.c.Get(ctx, "business_reviews", endpoint, hdr)
		if err != nil {
			return domain.FetchResult{}, provider.Wrap(domain.PlatformYelp, "business reviews", err)
		}
		doc, err := provider.ParseBody(body)
		if err != nil {
			return domain.FetchResult{}, provider.Wrap(domain.PlatformYelp, "business reviews", err)
		}
		total = doc.Get("total").Int()

		items := doc.Get("reviews").Array()
		for _, r := range items {
			out.Reviews = append(out.Reviews, mapReview(r))
		}
		offset += len(items)
		if len(items) == 0 || int64(offset) >= total {
			break
		}
	}
	if total > int64(len(out.Reviews)) {
		out.Warning = fmt.Sprintf("Yelp returned %d of %d reviews; the rest are not available through the API", len(out.Reviews), total)
	}
	return out, nil
}

func mapReview(r gjson.Result) domain.RawReview {
	published, _ := provider.ParseTime(r.Get("time_created").String(), timeLayout)
	return domain.RawReview{
		ExternalID:      provider.FirstString(r, "id"),
		AuthorName:      provider.FirstString(r, "user.name"),
		AuthorAvatarURL: provider.OptString(r, "user.image_url"),
		RatingRaw:       provider.RawNumber(r, "rating"),
		BodyText:        provider.FirstString(r, "text"),
		SourceURL:       provider.OptString(r, "url"),
		PublishedAt:     published,
	}
}
