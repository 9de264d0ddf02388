package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"venuescout/internal/ledger"
	"venuescout/internal/logging"
)

const strategyColumns = `id, platform, country, query_template, success_rate, total_uses, tags, deprecated_at, created_at`

// GetStrategy returns a strategy by id, with a found flag.
func (s *Store) GetStrategy(ctx context.Context, id string) (ledger.Strategy, bool, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+strategyColumns+`
		FROM strategies
		WHERE id = ?`, id)

	strat, err := scanStrategy(row.Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ledger.Strategy{}, false, nil
		}
		return ledger.Strategy{}, false, persistErr("GetStrategy", err)
	}
	return strat, true, nil
}

// CreateStrategy inserts a new strategy.
func (s *Store) CreateStrategy(ctx context.Context, strat ledger.Strategy) error {
	if strat.CreatedAt.IsZero() {
		strat.CreatedAt = time.Now()
	}
	tags, err := json.Marshal(strat.Tags)
	if err != nil {
		return persistErr("CreateStrategy", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO strategies (`+strategyColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		strat.ID, strat.Platform, strat.Country, strat.QueryTemplate,
		strat.SuccessRate, strat.TotalUses, string(tags), strat.DeprecatedAt, strat.CreatedAt)
	if err != nil {
		return persistErr("CreateStrategy", err)
	}
	logging.Store("strategy created: id=%s platform=%s country=%s", strat.ID, strat.Platform, strat.Country)
	return nil
}

// UpdateRate persists a blended success rate and bumps total uses.
func (s *Store) UpdateRate(ctx context.Context, id string, rate float64, usesDelta int) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE strategies
		SET success_rate = ?, total_uses = total_uses + ?
		WHERE id = ?`, rate, usesDelta, id)
	if err != nil {
		return persistErr("UpdateRate", err)
	}
	return nil
}

// Deprecate stamps a strategy as terminally out of rotation.
func (s *Store) Deprecate(ctx context.Context, id string, at time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE strategies
		SET deprecated_at = ?
		WHERE id = ? AND deprecated_at IS NULL`, at, id)
	if err != nil {
		return persistErr("Deprecate", err)
	}
	return nil
}

// ListHighYield returns non-deprecated strategies meeting the replay bar,
// best success rate first.
func (s *Store) ListHighYield(ctx context.Context, minUses int, minRate float64) ([]ledger.Strategy, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+strategyColumns+`
		FROM strategies
		WHERE deprecated_at IS NULL AND total_uses >= ? AND success_rate >= ?
		ORDER BY success_rate DESC, total_uses DESC, id`, minUses, minRate)
	if err != nil {
		return nil, persistErr("ListHighYield", err)
	}
	defer rows.Close()

	var out []ledger.Strategy
	for rows.Next() {
		strat, err := scanStrategy(rows.Scan)
		if err != nil {
			return nil, persistErr("ListHighYield", err)
		}
		out = append(out, strat)
	}
	if err := rows.Err(); err != nil {
		return nil, persistErr("ListHighYield", err)
	}
	return out, nil
}

// HasStrategyFor reports whether any live strategy covers a platform/country.
func (s *Store) HasStrategyFor(ctx context.Context, platform, country string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*)
		FROM strategies
		WHERE platform = ? AND country = ? AND deprecated_at IS NULL`, platform, country).Scan(&n)
	if err != nil {
		return false, persistErr("HasStrategyFor", err)
	}
	return n > 0, nil
}

// EnsureSeedStrategies inserts baseline strategies once. Existing ids are
// left untouched, so re-running startup never clobbers learned rates.
func (s *Store) EnsureSeedStrategies(ctx context.Context, seeds []ledger.Strategy) error {
	inserted := 0
	for _, seed := range seeds {
		tags, err := json.Marshal(seed.Tags)
		if err != nil {
			return persistErr("EnsureSeedStrategies", err)
		}
		if seed.CreatedAt.IsZero() {
			seed.CreatedAt = time.Now()
		}
		res, err := s.db.ExecContext(ctx, `
			INSERT INTO strategies (`+strategyColumns+`)
			VALUES (?, ?, ?, ?, ?, ?, ?, NULL, ?)
			ON CONFLICT(id) DO NOTHING`,
			seed.ID, seed.Platform, seed.Country, seed.QueryTemplate,
			seed.SuccessRate, seed.TotalUses, string(tags), seed.CreatedAt)
		if err != nil {
			return persistErr("EnsureSeedStrategies", err)
		}
		if n, _ := res.RowsAffected(); n > 0 {
			inserted++
		}
	}
	if inserted > 0 {
		logging.Store("seeded %d strategies", inserted)
	}
	return nil
}

// scanStrategy reads one strategy row via the given scan func.
func scanStrategy(scan func(dest ...interface{}) error) (ledger.Strategy, error) {
	var strat ledger.Strategy
	var tags string
	var deprecatedAt, createdAt sql.NullTime

	err := scan(&strat.ID, &strat.Platform, &strat.Country, &strat.QueryTemplate,
		&strat.SuccessRate, &strat.TotalUses, &tags, &deprecatedAt, &createdAt)
	if err != nil {
		return ledger.Strategy{}, err
	}
	if tags != "" {
		if err := json.Unmarshal([]byte(tags), &strat.Tags); err != nil {
			logging.Get(logging.CategoryStore).Warn("bad tags on strategy %s: %v", strat.ID, err)
		}
	}
	if deprecatedAt.Valid {
		t := deprecatedAt.Time
		strat.DeprecatedAt = &t
	}
	if createdAt.Valid {
		strat.CreatedAt = createdAt.Time
	}
	return strat, nil
}
