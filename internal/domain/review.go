package domain

import "time"

type Platform string

const (
	PlatformGoogle      Platform = "google"
	PlatformYelp        Platform = "yelp"
	PlatformReddit      Platform = "reddit"
	PlatformTripAdvisor Platform = "tripadvisor"
)

var platforms = []Platform{PlatformGoogle, PlatformYelp, PlatformReddit, PlatformTripAdvisor}

// AllPlatforms returns every supported review source.
func AllPlatforms() []Platform { return append([]Platform(nil), platforms...) }

func ParsePlatform(s string) (Platform, bool) {
	for _, p := range platforms {
		if string(p) == s {
			return p, true
		}
	}
	return "", false
}

type Sentiment string

const (
	SentimentPositive Sentiment = "positive"
	SentimentNeutral  Sentiment = "neutral"
	SentimentNegative Sentiment = "negative"
)

// RawReview is what an adapter extracts from one provider item before
// normalization. It never outlives a fetch.
type RawReview struct {
	ExternalID      string
	AuthorName      string
	AuthorAvatarURL *string
	RatingRaw       string // "4.6", "THREE", ...
	BodyText        string
	SourceURL       *string
	PublishedAt     time.Time
	ReplyText       *string
	RepliedAt       *time.Time
}

// Review is the canonical, storage-ready record. (Platform, PlatformReviewID)
// is its identity across syncs.
type Review struct {
	ID               string     `json:"id"`
	BusinessID       string     `json:"businessId"`
	Platform         Platform   `json:"platform"`
	PlatformReviewID string     `json:"platformReviewId"`
	AuthorName       string     `json:"authorName"`
	AuthorAvatarURL  *string    `json:"authorAvatarUrl"`
	Rating           int        `json:"rating"` // 1..5
	BodyText         string     `json:"bodyText"`
	SourceURL        *string    `json:"sourceUrl"`
	PublishedAt      time.Time  `json:"publishedAt"`
	HasResponse      bool       `json:"hasResponse"`
	ResponseText     *string    `json:"responseText"`
	RespondedAt      *time.Time `json:"respondedAt"`

	// nil until the review has been analyzed
	Enrichment *Enrichment `json:"enrichment"`
}

type Enrichment struct {
	Sentiment      Sentiment `json:"sentiment"`
	SentimentScore float64   `json:"sentimentScore"` // [-1, 1]
	Keywords       []string  `json:"keywords"`
	Categories     []string  `json:"categories"`
	Language       string    `json:"language"`
	IsSpam         bool      `json:"isSpam"`
	AnalyzedAt     time.Time `json:"analyzedAt"`
}
