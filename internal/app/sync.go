package app

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"reviewpulse/internal/adapters/observability"
	"reviewpulse/internal/adapters/provider"
	"reviewpulse/internal/domain"
	"reviewpulse/internal/enrich"
	"reviewpulse/internal/ratelimit"
)

// ProviderLookup resolves the adapter for a platform.
type ProviderLookup interface {
	Get(p domain.Platform) (domain.ReviewProvider, bool)
}

// Cooldowns gives the rate window per platform; zero disables it.
type Cooldowns interface {
	Cooldown(p domain.Platform) time.Duration
}

type SyncDeps struct {
	Providers ProviderLookup
	Creds     domain.CredentialStore
	Cooldowns Cooldowns
	Repo      domain.ReviewRepository
	Limiter   *ratelimit.Limiter
	Engine    *enrich.Engine
	Cache     domain.Cache         // optional
	Events    domain.EventPublisher // optional

	// AsyncEnrichment returns after UPSERTING and enriches new reviews in
	// the background.
	AsyncEnrichment bool
}

// SyncService runs one (business, platform) pipeline per call. Calls for
// different platforms share nothing but the injected collaborators.
type SyncService struct {
	d   SyncDeps
	now func() time.Time
	bg  sync.WaitGroup

	// one pipeline per (business, platform) at a time in this process;
	// concurrent callers share its run
	inflight singleflight.Group
}

func NewSyncService(d SyncDeps) *SyncService {
	return &SyncService{d: d, now: time.Now}
}

// Wait blocks until background enrichment started by Sync has finished.
func (s *SyncService) Wait() { s.bg.Wait() }

// Sync walks RATE_CHECK -> FETCHING -> UPSERTING -> ENRICHING -> DONE.
// The returned run is always populated; err is non-nil for every terminal
// state except DONE and is one of the typed domain errors.
func (s *SyncService) Sync(ctx context.Context, businessID string, p domain.Platform) (domain.SyncRun, error) {
	v, err, shared := s.inflight.Do(businessID+"/"+string(p), func() (any, error) {
		return s.pipeline(ctx, businessID, p)
	})
	run := v.(domain.SyncRun)
	if shared {
		run.Failures = slices.Clone(run.Failures)
	}
	return run, err
}

func (s *SyncService) pipeline(ctx context.Context, businessID string, p domain.Platform) (domain.SyncRun, error) {
	run := domain.SyncRun{
		ID:         uuid.NewString(),
		BusinessID: businessID,
		Platform:   p,
		State:      domain.StateIdle,
		StartedAt:  s.now().UTC(),
		Failures:   []domain.ItemFailure{},
	}
	l := log.With().Str("run", run.ID).Str("business", businessID).Str("platform", string(p)).Logger()
	l.Info().Msg("sync started")

	err := s.run(ctx, &run, l)
	s.finish(ctx, &run, err, l)
	return run, err
}

func (s *SyncService) run(ctx context.Context, run *domain.SyncRun, l zerolog.Logger) error {
	p := run.Platform

	adapter, ok := s.d.Providers.Get(p)
	if !ok {
		run.State = domain.StateConfigFailed
		return &domain.ConfigError{Platform: p, Field: "platform", Reason: "no adapter registered"}
	}
	src, err := s.d.Repo.GetSource(ctx, run.BusinessID, p)
	if err != nil {
		run.State = domain.StateConfigFailed
		if errors.Is(err, domain.ErrNotFound) {
			return &domain.ConfigError{Platform: p, Field: "external_id", Reason: "business has no " + string(p) + " source"}
		}
		return asStorageError("get source", err)
	}
	creds := s.d.Creds.Credentials(p)
	if err := adapter.Validate(creds, src); err != nil {
		run.State = domain.StateConfigFailed
		return err
	}

	run.State = domain.StateRateCheck
	dec, err := s.d.Limiter.Check(ctx, run.BusinessID, p, s.d.Cooldowns.Cooldown(p))
	if err != nil {
		// nothing fetched yet; the caller retries like any fetch failure
		run.State = domain.StateFetchFailed
		return asStorageError("read sync window", err)
	}
	if !dec.Allowed {
		run.State = domain.StateRateLimited
		next := dec.NextAvailableAt.UTC()
		run.NextAvailableAt = &next
		return &domain.RateLimitedError{Platform: p, NextAvailableAt: next}
	}

	run.State = domain.StateFetching
	res, err := adapter.Fetch(ctx, creds, src)
	if err != nil {
		var ce *domain.ConfigError
		if errors.As(err, &ce) {
			run.State = domain.StateConfigFailed
			return err
		}
		run.State = domain.StateFetchFailed
		return provider.Wrap(p, "fetch", err)
	}
	run.Warning = res.Warning
	run.FetchedCount = len(res.Reviews)

	now := s.now()
	reviews := make([]domain.Review, 0, len(res.Reviews))
	for i, raw := range res.Reviews {
		rv, err := provider.Normalize(run.BusinessID, p, raw, now)
		if err != nil {
			ref := raw.ExternalID
			if ref == "" {
				ref = fmt.Sprintf("%s#%d", p, i)
			}
			run.Failures = append(run.Failures, domain.ItemFailure{ItemRef: ref, Reason: err.Error()})
			observability.ObserveSyncReviews(string(p), "rejected", 1)
			continue
		}
		reviews = append(reviews, rv)
	}

	run.State = domain.StateUpserting
	up, err := s.d.Repo.Upsert(ctx, reviews)
	if err != nil {
		run.State = domain.StateUpsertFailed
		return asStorageError("upsert reviews", err)
	}
	run.NewCount = len(up.InsertedIDs)
	run.UpdatedCount = len(up.UpdatedIDs)

	// The window is consumed only once the fetch is safely stored.
	if _, err := s.d.Limiter.Commit(ctx, run.BusinessID, p); err != nil {
		l.Warn().Err(err).Msg("sync window not recorded")
	}
	s.invalidateReviews(ctx, run.BusinessID)

	fresh := newReviews(reviews, up.InsertedIDs)
	run.State = domain.StateEnriching
	switch {
	case len(fresh) == 0:
	case s.d.AsyncEnrichment:
		run.EnrichmentPending = true
		bgCtx := context.WithoutCancel(ctx)
		s.bg.Add(1)
		go func() {
			defer s.bg.Done()
			rep := s.d.Engine.Enrich(bgCtx, fresh)
			s.invalidateReviews(bgCtx, run.BusinessID)
			l.Info().Int("enriched", rep.Enriched).Int("failed", len(rep.Failures)).Msg("background enrichment finished")
		}()
	default:
		rep := s.d.Engine.Enrich(ctx, fresh)
		run.EnrichedCount = rep.Enriched
		run.Failures = append(run.Failures, rep.Failures...)
		s.invalidateReviews(ctx, run.BusinessID)
	}

	run.State = domain.StateDone
	return nil
}

func (s *SyncService) finish(ctx context.Context, run *domain.SyncRun, err error, l zerolog.Logger) {
	run.FinishedAt = s.now().UTC()
	if err != nil {
		run.Error = err.Error()
	}
	p := string(run.Platform)
	observability.ObserveSync(p, string(run.State), run.FinishedAt.Sub(run.StartedAt))
	observability.ObserveSyncReviews(p, "fetched", run.FetchedCount)
	observability.ObserveSyncReviews(p, "inserted", run.NewCount)
	observability.ObserveSyncReviews(p, "updated", run.UpdatedCount)

	var ev *zerolog.Event
	switch run.State {
	case domain.StateDone:
		ev = l.Info()
	case domain.StateRateLimited:
		ev = l.Info().Time("next_available_at", *run.NextAvailableAt)
	default:
		ev = l.Warn().Err(err)
	}
	ev.Str("state", string(run.State)).
		Int("fetched", run.FetchedCount).
		Int("new", run.NewCount).
		Int("updated", run.UpdatedCount).
		Int("enriched", run.EnrichedCount).
		Int("failures", len(run.Failures)).
		Str("warning", run.Warning).
		Msg("sync finished")

	if s.d.Events != nil {
		if perr := s.d.Events.PublishSyncRun(context.WithoutCancel(ctx), *run); perr != nil {
			l.Warn().Err(perr).Msg("publish sync event failed")
		}
	}
}

// newReviews picks the batch entries the store just created.
func newReviews(batch []domain.Review, inserted []string) []domain.Review {
	if len(inserted) == 0 {
		return nil
	}
	ids := make(map[string]struct{}, len(inserted))
	for _, id := range inserted {
		ids[id] = struct{}{}
	}
	out := make([]domain.Review, 0, len(inserted))
	for _, rv := range batch {
		if _, ok := ids[rv.ID]; ok {
			out = append(out, rv)
			delete(ids, rv.ID)
		}
	}
	return out
}

func asStorageError(op string, err error) error {
	var se *domain.StorageError
	if errors.As(err, &se) {
		return se
	}
	return &domain.StorageError{Op: op, Err: err}
}

// PlatformResult is one entry of a SyncAll answer.
type PlatformResult struct {
	Platform domain.Platform `json:"platform"`
	Run      domain.SyncRun  `json:"run"`
	Err      error           `json:"-"`
}

// SyncAll syncs the given platforms concurrently, or every configured
// source of the business when platforms is empty. One platform failing
// does not stop the others.
func (s *SyncService) SyncAll(ctx context.Context, businessID string, platforms []domain.Platform) ([]PlatformResult, error) {
	if len(platforms) == 0 {
		srcs, err := s.d.Repo.ListSources(ctx, businessID)
		if err != nil {
			return nil, asStorageError("list sources", err)
		}
		for _, src := range srcs {
			platforms = append(platforms, src.Platform)
		}
	}

	out := make([]PlatformResult, len(platforms))
	var g errgroup.Group
	for i, p := range platforms {
		i, p := i, p
		g.Go(func() error {
			run, err := s.Sync(ctx, businessID, p)
			out[i] = PlatformResult{Platform: p, Run: run, Err: err}
			return nil
		})
	}
	_ = g.Wait()
	return out, nil
}
