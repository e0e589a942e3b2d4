package provider

import (
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"reviewpulse/internal/domain"
)

var starEnum = map[string]int{"ONE": 1, "TWO": 2, "THREE": 3, "FOUR": 4, "FIVE": 5}

// NormalizeRating maps a provider rating onto the 1..5 integer scale.
// Accepts numbers ("4", "4.6", "4,6") and the star enum ONE..FIVE.
// Fractions round half up; out-of-range values are clamped.
func NormalizeRating(raw string) (int, error) {
	s := strings.ToUpper(strings.TrimSpace(raw))
	if s == "" {
		return 0, errors.New("rating missing")
	}
	if n, ok := starEnum[s]; ok {
		return n, nil
	}
	f, err := strconv.ParseFloat(strings.ReplaceAll(s, ",", "."), 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("rating %q is neither numeric nor a star enum", raw)
	}
	n := int(math.Floor(f + 0.5))
	if n < 1 {
		n = 1
	}
	if n > 5 {
		n = 5
	}
	return n, nil
}

// Normalize validates one raw review and produces the canonical record.
// Items without identity or with an unreadable rating are rejected; optional
// fields default to nil. now stamps a reply whose time the provider omitted.
func Normalize(businessID string, p domain.Platform, raw domain.RawReview, now time.Time) (domain.Review, error) {
	id := strings.TrimSpace(raw.ExternalID)
	if id == "" {
		return domain.Review{}, errors.New("missing external id")
	}
	rating, err := NormalizeRating(raw.RatingRaw)
	if err != nil {
		return domain.Review{}, err
	}
	published := raw.PublishedAt
	if published.IsZero() {
		published = now
	}

	r := domain.Review{
		ID:               uuid.NewString(),
		BusinessID:       businessID,
		Platform:         p,
		PlatformReviewID: id,
		AuthorName:       strings.TrimSpace(raw.AuthorName),
		AuthorAvatarURL:  nonEmpty(raw.AuthorAvatarURL),
		Rating:           rating,
		BodyText:         strings.TrimSpace(raw.BodyText),
		SourceURL:        nonEmpty(raw.SourceURL),
		PublishedAt:      published.UTC(),
	}
	if r.AuthorName == "" {
		r.AuthorName = "Anonymous"
	}

	// reply text and time are stored as a pair
	if reply := nonEmpty(raw.ReplyText); reply != nil {
		at := now
		if raw.RepliedAt != nil && !raw.RepliedAt.IsZero() {
			at = *raw.RepliedAt
		}
		at = at.UTC()
		r.HasResponse = true
		r.ResponseText = reply
		r.RespondedAt = &at
	}
	return r, nil
}

func nonEmpty(p *string) *string {
	if p == nil {
		return nil
	}
	s := strings.TrimSpace(*p)
	if s == "" {
		return nil
	}
	return &s
}

// SyntheticID derives a stable identifier for providers that do not expose
// one, from fields that do not change between fetches.
func SyntheticID(parts ...string) string {
	sum := sha1.Sum([]byte(strings.Join(parts, "|")))
	return hex.EncodeToString(sum[:])
}
