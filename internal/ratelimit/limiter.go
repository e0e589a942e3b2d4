// Package ratelimit enforces the per (business, platform) sync cooldown.
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"reviewpulse/internal/domain"
)

type Decision struct {
	Allowed         bool
	NextAvailableAt time.Time
}

type Limiter struct {
	store domain.WindowStore
	now   func() time.Time
}

func New(store domain.WindowStore) *Limiter {
	return &Limiter{store: store, now: time.Now}
}

// WithClock replaces the time source.
func (l *Limiter) WithClock(now func() time.Time) *Limiter {
	l.now = now
	return l
}

// Check allows a sync when there is no record or the window has elapsed.
// A zero window always allows.
func (l *Limiter) Check(ctx context.Context, businessID string, p domain.Platform, window time.Duration) (Decision, error) {
	if window <= 0 {
		return Decision{Allowed: true}, nil
	}
	last, ok, err := l.store.LastSynced(ctx, businessID, p)
	if err != nil {
		return Decision{}, fmt.Errorf("read sync window: %w", err)
	}
	if !ok {
		return Decision{Allowed: true}, nil
	}
	next := last.Add(window)
	if l.now().Before(next) {
		return Decision{Allowed: false, NextAvailableAt: next}, nil
	}
	return Decision{Allowed: true}, nil
}

// Commit records a successful sync at the current time and returns it.
func (l *Limiter) Commit(ctx context.Context, businessID string, p domain.Platform) (time.Time, error) {
	at := l.now().UTC()
	if err := l.store.MarkSynced(ctx, businessID, p, at); err != nil {
		return time.Time{}, fmt.Errorf("commit sync window: %w", err)
	}
	return at, nil
}
