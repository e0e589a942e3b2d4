package app

import (
	"context"

	"github.com/rs/zerolog/log"

	"reviewpulse/internal/domain"
	"reviewpulse/internal/enrich"
)

const (
	DefaultAnalyzeLimit = 50
	MaxAnalyzeLimit     = 500
)

// AnalysisService is the deferred-retry path: it re-runs enrichment for
// reviews whose earlier analysis failed or never happened.
type AnalysisService struct {
	repo   domain.ReviewRepository
	engine *enrich.Engine
	cache  domain.Cache
}

func NewAnalysisService(r domain.ReviewRepository, e *enrich.Engine, c domain.Cache) *AnalysisService {
	return &AnalysisService{repo: r, engine: e, cache: c}
}

// AnalyzeMissing enriches up to limit unanalyzed reviews of a business and
// returns how many succeeded.
func (s *AnalysisService) AnalyzeMissing(ctx context.Context, businessID string, limit int) (int, error) {
	if limit <= 0 {
		limit = DefaultAnalyzeLimit
	}
	limit = min(limit, MaxAnalyzeLimit)

	pending, err := s.repo.ListUnanalyzed(ctx, businessID, limit)
	if err != nil {
		return 0, asStorageError("list unanalyzed", err)
	}
	if len(pending) == 0 {
		return 0, nil
	}
	rep := s.engine.Enrich(ctx, pending)
	log.Info().
		Str("business", businessID).
		Int("pending", len(pending)).
		Int("analyzed", rep.Enriched).
		Int("failed", len(rep.Failures)).
		Msg("analyze missing finished")
	if rep.Enriched > 0 && s.cache != nil {
		invalidateReviews(ctx, s.cache, businessID)
	}
	return rep.Enriched, nil
}
