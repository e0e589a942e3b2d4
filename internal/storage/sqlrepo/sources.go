package sqlrepo

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"reviewpulse/internal/domain"
)

func (r *Repo) SaveBusiness(ctx context.Context, id, name string) error {
	_, err := r.db.ExecContext(ctx, r.d.upsertBusinessSQL(), id, name)
	return mapErr("save business", err)
}

// SaveSource links a business to its identifier on one platform.
func (r *Repo) SaveSource(ctx context.Context, s domain.Source) error {
	var opts any
	if len(s.Options) > 0 {
		b, err := json.Marshal(s.Options)
		if err != nil {
			return fmt.Errorf("encode source options: %w", err)
		}
		opts = string(b)
	}
	_, err := r.db.ExecContext(ctx, r.d.upsertSourceSQL(), s.BusinessID, string(s.Platform), s.ExternalID, opts)
	return mapErr("save source", err)
}

func (r *Repo) GetSource(ctx context.Context, businessID string, p domain.Platform) (domain.Source, error) {
	s, err := scanSource(r.db.QueryRowContext(ctx, getSourceSQL, businessID, string(p)))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Source{}, fmt.Errorf("%s source for business %s: %w", p, businessID, domain.ErrNotFound)
	}
	if err != nil {
		return domain.Source{}, mapErr("get source", err)
	}
	return s, nil
}

// ListSources returns the configured sources of one business, or of every
// business when businessID is empty.
func (r *Repo) ListSources(ctx context.Context, businessID string) ([]domain.Source, error) {
	var (
		rows *sql.Rows
		err  error
	)
	if businessID == "" {
		rows, err = r.db.QueryContext(ctx, listSourcesSQL)
	} else {
		rows, err = r.db.QueryContext(ctx, listBusinessSourcesSQL, businessID)
	}
	if err != nil {
		return nil, mapErr("list sources", err)
	}
	defer rows.Close()

	var out []domain.Source
	for rows.Next() {
		s, err := scanSource(rows)
		if err != nil {
			return nil, mapErr("list sources", err)
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, mapErr("list sources", err)
	}
	return out, nil
}

func scanSource(s scanner) (domain.Source, error) {
	var (
		src      domain.Source
		platform string
		opts     sql.NullString
	)
	if err := s.Scan(&src.BusinessID, &src.BusinessName, &platform, &src.ExternalID, &opts); err != nil {
		return domain.Source{}, err
	}
	src.Platform = domain.Platform(platform)
	if opts.Valid && opts.String != "" {
		if err := json.Unmarshal([]byte(opts.String), &src.Options); err != nil {
			return domain.Source{}, fmt.Errorf("decode options for %s/%s: %w", src.BusinessID, platform, err)
		}
	}
	return src, nil
}
