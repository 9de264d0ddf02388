package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"venuescout/internal/querycache"
)

// GetEntry returns the cache entry for a query hash, with a found flag.
func (s *Store) GetEntry(ctx context.Context, hash string) (querycache.Entry, bool, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT query_hash, normalized_query, original_query, executed_at, results_count, expires_at
		FROM query_cache
		WHERE query_hash = ?`, hash)

	var e querycache.Entry
	err := row.Scan(&e.QueryHash, &e.NormalizedQuery, &e.OriginalQuery,
		&e.ExecutedAt, &e.ResultsCount, &e.ExpiresAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return querycache.Entry{}, false, nil
		}
		return querycache.Entry{}, false, persistErr("GetEntry", err)
	}
	return e, true, nil
}

// UpsertEntry inserts or replaces a cache entry keyed by query hash.
func (s *Store) UpsertEntry(ctx context.Context, e querycache.Entry) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO query_cache
			(query_hash, normalized_query, original_query, executed_at, results_count, expires_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(query_hash) DO UPDATE SET
			original_query = excluded.original_query,
			executed_at = excluded.executed_at,
			results_count = excluded.results_count,
			expires_at = excluded.expires_at`,
		e.QueryHash, e.NormalizedQuery, e.OriginalQuery, e.ExecutedAt, e.ResultsCount, e.ExpiresAt)
	if err != nil {
		return persistErr("UpsertEntry", err)
	}
	return nil
}

// DeleteExpired batch-deletes entries past their expiry.
func (s *Store) DeleteExpired(ctx context.Context, now time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM query_cache WHERE expires_at <= ?`, now)
	if err != nil {
		return 0, persistErr("DeleteExpired", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, persistErr("DeleteExpired", err)
	}
	return int(n), nil
}
