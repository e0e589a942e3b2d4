package sqlrepo

import (
	"database/sql"
	"fmt"
	"net/url"
	"strings"

	_ "modernc.org/sqlite" // pure Go, CGO-free
)

// sqliteSchema mirrors migrations/mysql/001_init.sql.
const sqliteSchema = `
CREATE TABLE IF NOT EXISTS businesses (
    id         TEXT PRIMARY KEY,
    name       TEXT NOT NULL,
    created_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS business_sources (
    business_id TEXT NOT NULL REFERENCES businesses(id) ON DELETE CASCADE,
    platform    TEXT NOT NULL,
    external_id TEXT NOT NULL,
    options     TEXT,
    PRIMARY KEY (business_id, platform)
);

CREATE TABLE IF NOT EXISTS reviews (
    id                 TEXT PRIMARY KEY,
    business_id        TEXT NOT NULL REFERENCES businesses(id) ON DELETE CASCADE,
    platform           TEXT NOT NULL,
    platform_review_id TEXT NOT NULL,
    author_name        TEXT NOT NULL,
    author_avatar_url  TEXT,
    rating             INTEGER NOT NULL CHECK (rating BETWEEN 1 AND 5),
    body_text          TEXT NOT NULL,
    source_url         TEXT,
    published_at       DATETIME NOT NULL,
    has_response       INTEGER NOT NULL DEFAULT 0,
    response_text      TEXT,
    responded_at       DATETIME,
    sentiment          TEXT,
    sentiment_score    REAL,
    keywords           TEXT,
    categories         TEXT,
    language           TEXT,
    is_spam            INTEGER,
    analyzed_at        DATETIME,
    created_at         DATETIME NOT NULL,
    updated_at         DATETIME NOT NULL,
    UNIQUE (platform, platform_review_id)
);
CREATE INDEX IF NOT EXISTS idx_reviews_business_published ON reviews(business_id, published_at);
CREATE INDEX IF NOT EXISTS idx_reviews_unanalyzed ON reviews(business_id, sentiment);

CREATE TABLE IF NOT EXISTS sync_windows (
    business_id    TEXT NOT NULL,
    platform       TEXT NOT NULL,
    last_synced_at INTEGER NOT NULL,
    PRIMARY KEY (business_id, platform)
);
`

// OpenSQLite opens (creating if needed) a SQLite database file with foreign
// keys and WAL enabled, and applies the schema.
func OpenSQLite(path string) (*sql.DB, error) {
	dsn := path
	if !strings.HasPrefix(dsn, "file:") {
		dsn = "file:" + dsn
	}
	q := url.Values{}
	q.Add("_pragma", "foreign_keys(1)")
	q.Add("_pragma", "journal_mode(WAL)")
	q.Add("_pragma", "busy_timeout(5000)")
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	db, err := sql.Open("sqlite", dsn+sep+q.Encode())
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// one writer; transactions must not wait on a second connection
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return db, nil
}
