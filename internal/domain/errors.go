package domain

import (
	"errors"
	"fmt"
	"time"
)

var ErrNotFound = errors.New("not found")

// ConfigError: a required external identifier or API key is missing.
// Not retried.
type ConfigError struct {
	Platform Platform
	Field    string
	Reason   string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("%s: missing configuration %s: %s", e.Platform, e.Field, e.Reason)
}

// ProviderError wraps network, auth and quota failures from a review source.
type ProviderError struct {
	Provider  Platform
	Op        string
	Retryable bool
	Err       error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("%s provider: %s: %v", e.Provider, e.Op, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// StorageError is a failed write or read against the review store.
// Constraint names the violated constraint when one is known.
type StorageError struct {
	Op         string
	Constraint string
	Err        error
}

func (e *StorageError) Error() string {
	if e.Constraint != "" {
		return fmt.Sprintf("storage %s: constraint %s: %v", e.Op, e.Constraint, e.Err)
	}
	return fmt.Sprintf("storage %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// EnrichmentItemError is the failure to analyze or persist one review.
// It never leaves the enrichment engine except as an ItemFailure.
type EnrichmentItemError struct {
	ItemRef string
	Err     error
}

func (e *EnrichmentItemError) Error() string {
	return fmt.Sprintf("enrich %s: %v", e.ItemRef, e.Err)
}

func (e *EnrichmentItemError) Unwrap() error { return e.Err }

// RateLimitedError is the RATE_LIMITED terminal state, not a failure.
type RateLimitedError struct {
	Platform        Platform
	NextAvailableAt time.Time
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("%s sync rate limited until %s", e.Platform, e.NextAvailableAt.UTC().Format(time.RFC3339))
}
