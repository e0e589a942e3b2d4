package domain

import "time"

type SyncState string

const (
	StateIdle         SyncState = "IDLE"
	StateRateCheck    SyncState = "RATE_CHECK"
	StateFetching     SyncState = "FETCHING"
	StateUpserting    SyncState = "UPSERTING"
	StateEnriching    SyncState = "ENRICHING"
	StateDone         SyncState = "DONE"
	StateRateLimited  SyncState = "RATE_LIMITED"
	StateConfigFailed SyncState = "CONFIG_FAILED"
	StateFetchFailed  SyncState = "FETCH_FAILED"
	StateUpsertFailed SyncState = "UPSERT_FAILED"
)

// Terminal reports whether no further transition can happen from s.
func (s SyncState) Terminal() bool {
	switch s {
	case StateDone, StateRateLimited, StateConfigFailed, StateFetchFailed, StateUpsertFailed:
		return true
	}
	return false
}

type ItemFailure struct {
	ItemRef string `json:"itemRef"`
	Reason  string `json:"reason"`
}

// SyncRun is the record of one (business, platform) sync. It is returned to
// the caller and published as an event; it is not persisted.
type SyncRun struct {
	ID                string        `json:"id"`
	BusinessID        string        `json:"businessId"`
	Platform          Platform      `json:"platform"`
	State             SyncState     `json:"state"`
	StartedAt         time.Time     `json:"startedAt"`
	FinishedAt        time.Time     `json:"finishedAt"`
	FetchedCount      int           `json:"fetchedCount"`
	NewCount          int           `json:"newCount"`
	UpdatedCount      int           `json:"updatedCount"`
	EnrichedCount     int           `json:"enrichedCount"`
	EnrichmentPending bool          `json:"enrichmentPending,omitempty"`
	Warning           string        `json:"warning,omitempty"`
	NextAvailableAt   *time.Time    `json:"nextAvailableAt,omitempty"`
	Error             string        `json:"error,omitempty"`
	Failures          []ItemFailure `json:"failures"`
}

type UpsertResult struct {
	InsertedIDs []string
	UpdatedIDs  []string
}

type AnalysisInput struct {
	Text   string
	Rating int
}

type AnalysisResult struct {
	Sentiment      Sentiment
	SentimentScore float64
	Keywords       []string
	Categories     []string
	Language       string
	IsSpam         bool
	// set when the review text already embeds a reply from the business
	DetectedResponse *string
}

// EnrichReport summarizes one enrichment pass.
type EnrichReport struct {
	Enriched int
	Failures []ItemFailure
}
