package domain

import (
	"context"
	"time"
)

// ReviewProvider is one external review source.
type ReviewProvider interface {
	Platform() Platform
	// Validate reports a *ConfigError when creds or src lack what Fetch needs.
	Validate(creds Credentials, src Source) error
	Fetch(ctx context.Context, creds Credentials, src Source) (FetchResult, error)
}

type ReviewRepository interface {
	// Write paths
	Upsert(ctx context.Context, rs []Review) (UpsertResult, error)
	ApplyAnalysis(ctx context.Context, reviewID string, res AnalysisResult) error

	// Read paths
	ListUnanalyzed(ctx context.Context, businessID string, limit int) ([]Review, error)
	ListReviews(ctx context.Context, businessID string, limit int) ([]Review, error)
	GetSource(ctx context.Context, businessID string, p Platform) (Source, error)
	// ListSources lists one business' sources, or all when businessID is empty.
	ListSources(ctx context.Context, businessID string) ([]Source, error)
}

// AnalysisWriter is the slice of the repository the enrichment engine needs.
type AnalysisWriter interface {
	ApplyAnalysis(ctx context.Context, reviewID string, res AnalysisResult) error
}

type Classifier interface {
	Classify(ctx context.Context, in AnalysisInput) (AnalysisResult, error)
}

// WindowStore keeps the durable last-successful-sync time per
// (business, platform).
type WindowStore interface {
	LastSynced(ctx context.Context, businessID string, p Platform) (time.Time, bool, error)
	// MarkSynced must never move the stored time backwards.
	MarkSynced(ctx context.Context, businessID string, p Platform, at time.Time) error
}

type CredentialStore interface {
	Credentials(p Platform) Credentials
}

type Cache interface {
	Get(ctx context.Context, key string, dst any) (bool, error)
	Set(ctx context.Context, key string, v any, ttlSec int) error
	Del(ctx context.Context, key string) error
}

type EventPublisher interface {
	PublishSyncRun(ctx context.Context, run SyncRun) error
}
