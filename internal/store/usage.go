package store

import (
	"context"
	"database/sql"
	"errors"

	"venuescout/internal/quota"
)

// EnsureUsage creates a zeroed usage row for a credential if none exists.
func (s *Store) EnsureUsage(ctx context.Context, credentialID, date string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO credential_usage (credential_id, used_today, last_reset_date)
		VALUES (?, 0, ?)
		ON CONFLICT(credential_id) DO NOTHING`, credentialID, date)
	if err != nil {
		return persistErr("EnsureUsage", err)
	}
	return nil
}

// GetUsage returns a credential's usage row, with a found flag.
func (s *Store) GetUsage(ctx context.Context, credentialID string) (quota.Usage, bool, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT credential_id, used_today, last_reset_date, total_all_time, disabled, disabled_reason
		FROM credential_usage
		WHERE credential_id = ?`, credentialID)

	var u quota.Usage
	err := row.Scan(&u.CredentialID, &u.UsedToday, &u.LastResetDate,
		&u.TotalAllTime, &u.Disabled, &u.DisabledReason)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return quota.Usage{}, false, nil
		}
		return quota.Usage{}, false, persistErr("GetUsage", err)
	}
	return u, true, nil
}

// ResetUsage zeroes a credential's daily counter and stamps the reset date.
func (s *Store) ResetUsage(ctx context.Context, credentialID, date string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE credential_usage
		SET used_today = 0, last_reset_date = ?
		WHERE credential_id = ?`, date, credentialID)
	if err != nil {
		return persistErr("ResetUsage", err)
	}
	return nil
}

// IncrementFree bumps a credential's daily and all-time counters in one
// conditional statement. Reports false without touching the row when the
// daily counter is already at the limit, so concurrent recorders can never
// push past it.
func (s *Store) IncrementFree(ctx context.Context, credentialID string, limit int) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE credential_usage
		SET used_today = used_today + 1, total_all_time = total_all_time + 1
		WHERE credential_id = ? AND used_today < ?`, credentialID, limit)
	if err != nil {
		return false, persistErr("IncrementFree", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, persistErr("IncrementFree", err)
	}
	return n > 0, nil
}

// ForceExhausted pins a credential's daily counter at its limit.
func (s *Store) ForceExhausted(ctx context.Context, credentialID string, limit int) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE credential_usage
		SET used_today = ?
		WHERE credential_id = ?`, limit, credentialID)
	if err != nil {
		return persistErr("ForceExhausted", err)
	}
	return nil
}

// SetDisabled toggles a credential's disabled flag.
func (s *Store) SetDisabled(ctx context.Context, credentialID string, disabled bool, reason string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE credential_usage
		SET disabled = ?, disabled_reason = ?
		WHERE credential_id = ?`, disabled, reason, credentialID)
	if err != nil {
		return persistErr("SetDisabled", err)
	}
	return nil
}

// ListUsage returns all usage rows.
func (s *Store) ListUsage(ctx context.Context) ([]quota.Usage, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT credential_id, used_today, last_reset_date, total_all_time, disabled, disabled_reason
		FROM credential_usage
		ORDER BY credential_id`)
	if err != nil {
		return nil, persistErr("ListUsage", err)
	}
	defer rows.Close()

	var out []quota.Usage
	for rows.Next() {
		var u quota.Usage
		if err := rows.Scan(&u.CredentialID, &u.UsedToday, &u.LastResetDate,
			&u.TotalAllTime, &u.Disabled, &u.DisabledReason); err != nil {
			return nil, persistErr("ListUsage", err)
		}
		out = append(out, u)
	}
	if err := rows.Err(); err != nil {
		return nil, persistErr("ListUsage", err)
	}
	return out, nil
}

// IncrementPaid bumps the shared paid counter for a date.
func (s *Store) IncrementPaid(ctx context.Context, date string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO paid_usage (date, queries_used)
		VALUES (?, 1)
		ON CONFLICT(date) DO UPDATE SET queries_used = queries_used + 1`, date)
	if err != nil {
		return persistErr("IncrementPaid", err)
	}
	return nil
}

// PaidUsed returns the paid counter for a date (zero when absent).
func (s *Store) PaidUsed(ctx context.Context, date string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(queries_used), 0)
		FROM paid_usage
		WHERE date = ?`, date).Scan(&n)
	if err != nil {
		return 0, persistErr("PaidUsed", err)
	}
	return n, nil
}
