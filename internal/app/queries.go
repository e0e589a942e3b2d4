package app

import (
	"context"
	"fmt"
	"slices"
	"time"

	"reviewpulse/internal/domain"
)

const (
	DefaultReviewLimit = 50
	MaxReviewLimit     = 200
)

// ReviewPage is the cached shape of a review listing.
type ReviewPage struct {
	BusinessID string          `json:"businessId"`
	Items      []domain.Review `json:"items"`
}

type QueryService struct {
	repo     domain.ReviewRepository
	cache    domain.Cache
	cacheTTL time.Duration
}

func NewQueryService(r domain.ReviewRepository, c domain.Cache, ttl time.Duration) *QueryService {
	return &QueryService{repo: r, cache: c, cacheTTL: ttl}
}

func reviewsKey(businessID string, limit int) string {
	return fmt.Sprintf("reviews:%s:%d", businessID, limit)
}

// the limits the API and dashboard actually request
var cachedLimits = []int{DefaultReviewLimit, 100, MaxReviewLimit}

func invalidateReviews(ctx context.Context, c domain.Cache, businessID string) {
	for _, lim := range cachedLimits {
		_ = c.Del(ctx, reviewsKey(businessID, lim))
	}
}

func (s *SyncService) invalidateReviews(ctx context.Context, businessID string) {
	if s.d.Cache != nil {
		invalidateReviews(ctx, s.d.Cache, businessID)
	}
}

// ListReviews returns the newest reviews of a business. Only the common
// page sizes are cached, since only those are invalidated.
func (s *QueryService) ListReviews(ctx context.Context, businessID string, limit int) (ReviewPage, error) {
	if limit <= 0 {
		limit = DefaultReviewLimit
	}
	limit = min(limit, MaxReviewLimit)

	key := reviewsKey(businessID, limit)
	cacheable := s.cache != nil && slices.Contains(cachedLimits, limit)
	var out ReviewPage
	if cacheable {
		if ok, _ := s.cache.Get(ctx, key, &out); ok {
			return out, nil
		}
	}

	rs, err := s.repo.ListReviews(ctx, businessID, limit)
	if err != nil {
		return ReviewPage{}, asStorageError("list reviews", err)
	}
	// copy so the cached value does not alias the repo's slice
	out = ReviewPage{BusinessID: businessID, Items: append([]domain.Review{}, rs...)}
	if cacheable {
		_ = s.cache.Set(ctx, key, out, int(s.cacheTTL.Seconds()))
	}
	return out, nil
}
