package sqlrepo

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"reviewpulse/internal/domain"
)

// LastSynced implements domain.WindowStore.
func (r *Repo) LastSynced(ctx context.Context, businessID string, p domain.Platform) (time.Time, bool, error) {
	var ms int64
	err := r.db.QueryRowContext(ctx, lastSyncedSQL, businessID, string(p)).Scan(&ms)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, mapErr("read sync window", err)
	}
	return time.UnixMilli(ms).UTC(), true, nil
}

// MarkSynced never moves the stored time backwards.
func (r *Repo) MarkSynced(ctx context.Context, businessID string, p domain.Platform, at time.Time) error {
	_, err := r.db.ExecContext(ctx, r.d.markSyncedSQL(), businessID, string(p), at.UnixMilli())
	return mapErr("mark synced", err)
}
