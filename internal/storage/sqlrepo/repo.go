// Package sqlrepo stores businesses, their review sources, canonical reviews
// and sync windows in MySQL or SQLite.
package sqlrepo

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"reviewpulse/internal/domain"
)

// upsertChunk bounds rows per INSERT to stay under placeholder limits.
const upsertChunk = 200

func valStr(p *string) any {
	if p == nil {
		return nil
	}
	return *p
}

func valTime(p *time.Time) any {
	if p == nil {
		return nil
	}
	return p.UTC()
}

func valJSON(v []string) any {
	if v == nil {
		v = []string{}
	}
	b, _ := json.Marshal(v)
	return string(b)
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

type Repo struct {
	db  *sql.DB
	d   Dialect
	now func() time.Time
}

func New(db *sql.DB, d Dialect) *Repo {
	return &Repo{db: db, d: d, now: time.Now}
}

func (r *Repo) DB() *sql.DB { return r.db }

type reviewKey struct {
	platform domain.Platform
	id       string
}

// Upsert writes the batch in one transaction. Rows are matched on
// (platform, platform_review_id); a row that already existed keeps its id
// and is reported as updated, everything else as inserted. An unknown
// business aborts the whole batch.
func (r *Repo) Upsert(ctx context.Context, rs []domain.Review) (domain.UpsertResult, error) {
	var res domain.UpsertResult
	if len(rs) == 0 {
		return res, nil
	}

	// last occurrence of a key wins
	byKey := make(map[reviewKey]int, len(rs))
	batch := make([]domain.Review, 0, len(rs))
	for _, rv := range rs {
		if rv.ID == "" {
			rv.ID = uuid.NewString()
		}
		k := reviewKey{rv.Platform, rv.PlatformReviewID}
		if i, ok := byKey[k]; ok {
			batch[i] = rv
			continue
		}
		byKey[k] = len(batch)
		batch = append(batch, rv)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return res, &domain.StorageError{Op: "upsert reviews", Err: err}
	}
	defer tx.Rollback()

	if err := r.checkBusinesses(ctx, tx, batch); err != nil {
		return res, err
	}
	before, err := storedIDs(ctx, tx, batch)
	if err != nil {
		return res, err
	}

	now := r.now().UTC()
	for start := 0; start < len(batch); start += upsertChunk {
		chunk := batch[start:min(start+upsertChunk, len(batch))]
		values := make([]string, 0, len(chunk))
		args := make([]any, 0, len(chunk)*15)
		for _, rv := range chunk {
			values = append(values, reviewPlaceholders)
			args = append(args,
				rv.ID,
				rv.BusinessID,
				string(rv.Platform),
				rv.PlatformReviewID,
				rv.AuthorName,
				valStr(rv.AuthorAvatarURL),
				rv.Rating,
				rv.BodyText,
				valStr(rv.SourceURL),
				rv.PublishedAt.UTC(),
				boolInt(rv.HasResponse),
				valStr(rv.ResponseText),
				valTime(rv.RespondedAt),
				now,
				now,
			)
		}
		q := insertReviewsPrefix + strings.Join(values, ",") + r.d.reviewUpsertTail()
		if _, err := tx.ExecContext(ctx, q, args...); err != nil {
			return res, mapErr("upsert reviews", err)
		}
	}

	// Inserted means absent before the write and now holding our id; a
	// concurrent writer that won the race makes it an update.
	after, err := storedIDs(ctx, tx, batch)
	if err != nil {
		return res, err
	}
	for _, rv := range batch {
		k := reviewKey{rv.Platform, rv.PlatformReviewID}
		id, ok := after[k]
		_, existed := before[k]
		switch {
		case !ok:
			return domain.UpsertResult{}, &domain.StorageError{Op: "upsert reviews", Err: fmt.Errorf("row %s/%s missing after write", rv.Platform, rv.PlatformReviewID)}
		case !existed && id == rv.ID:
			res.InsertedIDs = append(res.InsertedIDs, id)
		default:
			res.UpdatedIDs = append(res.UpdatedIDs, id)
		}
	}

	if err := tx.Commit(); err != nil {
		return domain.UpsertResult{}, mapErr("upsert reviews", err)
	}
	return res, nil
}

func (r *Repo) checkBusinesses(ctx context.Context, tx *sql.Tx, batch []domain.Review) error {
	seen := map[string]bool{}
	for _, rv := range batch {
		if seen[rv.BusinessID] {
			continue
		}
		seen[rv.BusinessID] = true
		var n int
		if err := tx.QueryRowContext(ctx, businessExistsSQL, rv.BusinessID).Scan(&n); err != nil {
			return mapErr("upsert reviews", err)
		}
		if n == 0 {
			return &domain.StorageError{
				Op:         "upsert reviews",
				Constraint: ConstraintReviewBusiness,
				Err:        fmt.Errorf("business %q does not exist", rv.BusinessID),
			}
		}
	}
	return nil
}

func storedIDs(ctx context.Context, tx *sql.Tx, batch []domain.Review) (map[reviewKey]string, error) {
	byPlatform := map[domain.Platform][]string{}
	for _, rv := range batch {
		byPlatform[rv.Platform] = append(byPlatform[rv.Platform], rv.PlatformReviewID)
	}
	out := make(map[reviewKey]string, len(batch))
	for p, keys := range byPlatform {
		for start := 0; start < len(keys); start += upsertChunk {
			chunk := keys[start:min(start+upsertChunk, len(keys))]
			args := make([]any, 0, len(chunk)+1)
			args = append(args, string(p))
			for _, k := range chunk {
				args = append(args, k)
			}
			rows, err := tx.QueryContext(ctx, keysQuery(len(chunk)), args...)
			if err != nil {
				return nil, mapErr("upsert reviews", err)
			}
			for rows.Next() {
				var id, key string
				if err := rows.Scan(&id, &key); err != nil {
					rows.Close()
					return nil, mapErr("upsert reviews", err)
				}
				out[reviewKey{p, key}] = id
			}
			err = rows.Err()
			rows.Close()
			if err != nil {
				return nil, mapErr("upsert reviews", err)
			}
		}
	}
	return out, nil
}

// ApplyAnalysis sets the whole enrichment block at once. A reply the
// classifier found inside the text only fills an empty response.
func (r *Repo) ApplyAnalysis(ctx context.Context, reviewID string, a domain.AnalysisResult) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return &domain.StorageError{Op: "apply analysis", Err: err}
	}
	defer tx.Rollback()

	now := r.now().UTC()
	out, err := tx.ExecContext(ctx, applyAnalysisSQL,
		string(a.Sentiment),
		a.SentimentScore,
		valJSON(a.Keywords),
		valJSON(a.Categories),
		a.Language,
		boolInt(a.IsSpam),
		now,
		now,
		reviewID,
	)
	if err != nil {
		return mapErr("apply analysis", err)
	}
	if n, err := out.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("review %s: %w", reviewID, domain.ErrNotFound)
	}
	if a.DetectedResponse != nil {
		if _, err := tx.ExecContext(ctx, backfillResponseSQL, *a.DetectedResponse, now, reviewID); err != nil {
			return mapErr("apply analysis", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return mapErr("apply analysis", err)
	}
	return nil
}

func (r *Repo) ListReviews(ctx context.Context, businessID string, limit int) ([]domain.Review, error) {
	return r.queryReviews(ctx, "list reviews", listReviewsSQL, businessID, limit)
}

// ListUnanalyzed returns reviews whose enrichment never succeeded.
func (r *Repo) ListUnanalyzed(ctx context.Context, businessID string, limit int) ([]domain.Review, error) {
	return r.queryReviews(ctx, "list unanalyzed", listUnanalyzedSQL, businessID, limit)
}

func (r *Repo) GetByKey(ctx context.Context, p domain.Platform, platformReviewID string) (domain.Review, error) {
	rv, err := scanReview(r.db.QueryRowContext(ctx, getByKeySQL, string(p), platformReviewID))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Review{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.Review{}, mapErr("get review", err)
	}
	return rv, nil
}

func (r *Repo) queryReviews(ctx context.Context, op, q string, args ...any) ([]domain.Review, error) {
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, mapErr(op, err)
	}
	defer rows.Close()

	var out []domain.Review
	for rows.Next() {
		rv, err := scanReview(rows)
		if err != nil {
			return nil, mapErr(op, err)
		}
		out = append(out, rv)
	}
	if err := rows.Err(); err != nil {
		return nil, mapErr(op, err)
	}
	return out, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanReview(s scanner) (domain.Review, error) {
	var (
		rv                       domain.Review
		platform                 string
		avatar, srcURL, respText sql.NullString
		published                dbTime
		respondedAt, analyzedAt  dbTime
		hasResponse              int
		sentiment, language      sql.NullString
		score                    sql.NullFloat64
		keywords, categories     sql.NullString
		spam                     sql.NullInt64
	)
	if err := s.Scan(
		&rv.ID, &rv.BusinessID, &platform, &rv.PlatformReviewID, &rv.AuthorName, &avatar, &rv.Rating,
		&rv.BodyText, &srcURL, &published, &hasResponse, &respText, &respondedAt,
		&sentiment, &score, &keywords, &categories, &language, &spam, &analyzedAt,
	); err != nil {
		return domain.Review{}, err
	}
	rv.Platform = domain.Platform(platform)
	rv.PublishedAt = published.Time
	rv.HasResponse = hasResponse != 0
	if avatar.Valid {
		s := avatar.String
		rv.AuthorAvatarURL = &s
	}
	if srcURL.Valid {
		s := srcURL.String
		rv.SourceURL = &s
	}
	if respText.Valid {
		s := respText.String
		rv.ResponseText = &s
	}
	if respondedAt.Valid {
		t := respondedAt.Time
		rv.RespondedAt = &t
	}
	if sentiment.Valid {
		e := &domain.Enrichment{
			Sentiment:      domain.Sentiment(sentiment.String),
			SentimentScore: score.Float64,
			Language:       language.String,
			IsSpam:         spam.Int64 != 0,
			AnalyzedAt:     analyzedAt.Time,
		}
		if err := decodeList(keywords, &e.Keywords); err != nil {
			return domain.Review{}, fmt.Errorf("review %s keywords: %w", rv.ID, err)
		}
		if err := decodeList(categories, &e.Categories); err != nil {
			return domain.Review{}, fmt.Errorf("review %s categories: %w", rv.ID, err)
		}
		rv.Enrichment = e
	}
	return rv, nil
}

func decodeList(col sql.NullString, dst *[]string) error {
	if !col.Valid || col.String == "" {
		return nil
	}
	return json.Unmarshal([]byte(col.String), dst)
}
