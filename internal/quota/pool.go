// Package quota implements the rotating credential pool that meters every
// outbound search query against a per-credential daily free allowance, with
// an optional shared paid counter once all free quota is spent.
package quota

import (
	"context"
	"fmt"
	"time"

	"venuescout/internal/logging"
)

const dateLayout = "2006-01-02"

// UsageStore persists credential usage counters and the paid counter.
// Implemented by internal/store; tests supply an in-memory fake.
//
// IncrementFree must be a single conditional update: it increments the
// credential's counters only while used_today < limit and reports whether
// the increment was applied. This is the one place where two concurrent
// callers could otherwise both observe capacity for the same unit of quota.
type UsageStore interface {
	EnsureUsage(ctx context.Context, credentialID, date string) error
	GetUsage(ctx context.Context, credentialID string) (Usage, bool, error)
	ResetUsage(ctx context.Context, credentialID, date string) error
	IncrementFree(ctx context.Context, credentialID string, limit int) (bool, error)
	ForceExhausted(ctx context.Context, credentialID string, limit int) error
	SetDisabled(ctx context.Context, credentialID string, disabled bool, reason string) error
	ListUsage(ctx context.Context) ([]Usage, error)
	IncrementPaid(ctx context.Context, date string) error
	PaidUsed(ctx context.Context, date string) (int, error)
}

// Pool owns the configured credentials and decides which one funds the next
// query. Scan order is configuration order; the first credential with free
// capacity wins.
type Pool struct {
	creds        []Credential
	store        UsageStore
	paidFallback bool
	costPerPaid  float64
	now          func() time.Time
}

// Option configures a Pool.
type Option func(*Pool)

// WithClock injects a clock. Tests use this to roll the date.
func WithClock(now func() time.Time) Option {
	return func(p *Pool) { p.now = now }
}

// NewPool creates a credential pool. The credential slice must be non-empty;
// config validation guarantees that before the pool is ever constructed.
func NewPool(creds []Credential, store UsageStore, paidFallback bool, costPerPaid float64, opts ...Option) *Pool {
	p := &Pool{
		creds:        creds,
		store:        store,
		paidFallback: paidFallback,
		costPerPaid:  costPerPaid,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *Pool) today() string { return p.now().Format(dateLayout) }

// Initialize ensures a usage record exists for every configured credential
// and resets stale-dated counters. Idempotent; safe to call repeatedly.
func (p *Pool) Initialize(ctx context.Context) error {
	today := p.today()
	for _, cred := range p.creds {
		if err := p.store.EnsureUsage(ctx, cred.ID, today); err != nil {
			return fmt.Errorf("ensure usage for %s: %w", cred.ID, err)
		}
		usage, ok, err := p.store.GetUsage(ctx, cred.ID)
		if err != nil {
			return fmt.Errorf("load usage for %s: %w", cred.ID, err)
		}
		if ok && usage.LastResetDate != today {
			if err := p.store.ResetUsage(ctx, cred.ID, today); err != nil {
				return fmt.Errorf("reset usage for %s: %w", cred.ID, err)
			}
			logging.Quota("daily reset: credential=%s (was %d used on %s)",
				cred.ID, usage.UsedToday, usage.LastResetDate)
		}
	}
	logging.QuotaDebug("pool initialized: %d credentials", len(p.creds))
	return nil
}

// Acquire returns a mode-tagged lease for the next query.
//
// Credentials are scanned in configured order; disabled ones are skipped and
// stale-dated usage rows are logically reset on the spot. The first
// credential with used_today < daily_limit yields a free lease. If none
// qualifies and the paid fallback is enabled, the first non-disabled
// credential yields a paid lease. Otherwise QuotaExhaustedError.
func (p *Pool) Acquire(ctx context.Context) (Lease, error) {
	today := p.today()
	var fallback *Credential

	for i := range p.creds {
		cred := p.creds[i]
		usage, ok, err := p.store.GetUsage(ctx, cred.ID)
		if err != nil {
			return Lease{}, fmt.Errorf("load usage for %s: %w", cred.ID, err)
		}
		if !ok {
			// Initialize was skipped for this credential; create the row now.
			if err := p.store.EnsureUsage(ctx, cred.ID, today); err != nil {
				return Lease{}, fmt.Errorf("ensure usage for %s: %w", cred.ID, err)
			}
			usage = Usage{CredentialID: cred.ID, LastResetDate: today}
		}
		if usage.Disabled {
			continue
		}
		if fallback == nil {
			fallback = &p.creds[i]
		}
		if usage.LastResetDate != today {
			if err := p.store.ResetUsage(ctx, cred.ID, today); err != nil {
				return Lease{}, fmt.Errorf("reset usage for %s: %w", cred.ID, err)
			}
			logging.Quota("daily reset on acquire: credential=%s", cred.ID)
			return Lease{Credential: cred, Mode: ModeFree}, nil
		}
		if usage.UsedToday < cred.DailyLimit {
			logging.QuotaDebug("acquired free lease: credential=%s (%d/%d)",
				cred.ID, usage.UsedToday, cred.DailyLimit)
			return Lease{Credential: cred, Mode: ModeFree}, nil
		}
	}

	if fallback != nil && p.paidFallback {
		logging.Quota("free quota exhausted, acquired paid lease: credential=%s", fallback.ID)
		return Lease{Credential: *fallback, Mode: ModePaid}, nil
	}
	if fallback != nil {
		return Lease{}, ErrQuotaExhausted("all %d credentials exhausted for %s and paid fallback is disabled",
			len(p.creds), today)
	}
	return Lease{}, ErrQuotaExhausted("no enabled credentials available")
}

// RecordUsage bills one executed query to the lease's bucket. Only called
// for queries that actually reached the provider.
func (p *Pool) RecordUsage(ctx context.Context, lease Lease) error {
	if lease.Mode == ModePaid {
		if err := p.store.IncrementPaid(ctx, p.today()); err != nil {
			return fmt.Errorf("record paid usage: %w", err)
		}
		logging.QuotaDebug("recorded paid query")
		return nil
	}

	applied, err := p.store.IncrementFree(ctx, lease.Credential.ID, lease.Credential.DailyLimit)
	if err != nil {
		return fmt.Errorf("record usage for %s: %w", lease.Credential.ID, err)
	}
	if !applied {
		// The credential filled up between acquire and record. The counter
		// was not pushed past the limit; the caller must re-acquire.
		return ErrQuotaExhausted("credential %s reached its daily limit before usage was recorded",
			lease.Credential.ID)
	}
	return nil
}

// MarkExhausted forces a credential's counter to its daily limit. Used
// after the provider answers 429 before our own accounting caught up.
func (p *Pool) MarkExhausted(ctx context.Context, credentialID string) error {
	cred, ok := p.credential(credentialID)
	if !ok {
		return fmt.Errorf("unknown credential %s", credentialID)
	}
	if err := p.store.ForceExhausted(ctx, credentialID, cred.DailyLimit); err != nil {
		return fmt.Errorf("mark exhausted %s: %w", credentialID, err)
	}
	logging.Quota("credential %s marked exhausted (provider rate limit)", credentialID)
	return nil
}

// DisableCredential takes a credential out of rotation.
func (p *Pool) DisableCredential(ctx context.Context, credentialID, reason string) error {
	if _, ok := p.credential(credentialID); !ok {
		return fmt.Errorf("unknown credential %s", credentialID)
	}
	if err := p.store.SetDisabled(ctx, credentialID, true, reason); err != nil {
		return fmt.Errorf("disable %s: %w", credentialID, err)
	}
	logging.Quota("credential %s disabled: %s", credentialID, reason)
	return nil
}

// EnableCredential returns a credential to rotation.
func (p *Pool) EnableCredential(ctx context.Context, credentialID string) error {
	if _, ok := p.credential(credentialID); !ok {
		return fmt.Errorf("unknown credential %s", credentialID)
	}
	if err := p.store.SetDisabled(ctx, credentialID, false, ""); err != nil {
		return fmt.Errorf("enable %s: %w", credentialID, err)
	}
	logging.Quota("credential %s enabled", credentialID)
	return nil
}

// Stats returns a snapshot of free and paid usage across the pool.
// Stale-dated counters contribute zero to FreeUsed since they reset on
// next acquire.
func (p *Pool) Stats(ctx context.Context) (Stats, error) {
	today := p.today()

	usages, err := p.store.ListUsage(ctx)
	if err != nil {
		return Stats{}, fmt.Errorf("list usage: %w", err)
	}
	byID := make(map[string]Usage, len(usages))
	for _, u := range usages {
		byID[u.CredentialID] = u
	}

	var s Stats
	for _, cred := range p.creds {
		u := byID[cred.ID]
		if u.Disabled {
			s.DisabledCount++
			continue
		}
		s.ActiveCount++
		s.FreeTotal += cred.DailyLimit
		if u.LastResetDate == today {
			s.FreeUsed += u.UsedToday
		}
	}

	paid, err := p.store.PaidUsed(ctx, today)
	if err != nil {
		return Stats{}, fmt.Errorf("load paid counter: %w", err)
	}
	s.PaidUsed = paid
	s.EstimatedCost = float64(paid) * p.costPerPaid
	if s.ActiveCount > 0 && s.FreeUsed >= s.FreeTotal {
		s.Mode = ModePaid
	}
	return s, nil
}

// CredentialStats returns one row per configured credential in scan order.
// Stale-dated counters are reported as zero used, same as Stats.
func (p *Pool) CredentialStats(ctx context.Context) ([]CredentialStatus, error) {
	today := p.today()

	usages, err := p.store.ListUsage(ctx)
	if err != nil {
		return nil, fmt.Errorf("list usage: %w", err)
	}
	byID := make(map[string]Usage, len(usages))
	for _, u := range usages {
		byID[u.CredentialID] = u
	}

	out := make([]CredentialStatus, 0, len(p.creds))
	for _, cred := range p.creds {
		u := byID[cred.ID]
		used := 0
		if u.LastResetDate == today {
			used = u.UsedToday
		}
		out = append(out, CredentialStatus{
			ID:             cred.ID,
			UsedToday:      used,
			DailyLimit:     cred.DailyLimit,
			TotalAllTime:   u.TotalAllTime,
			Disabled:       u.Disabled,
			DisabledReason: u.DisabledReason,
		})
	}
	return out, nil
}

func (p *Pool) credential(id string) (Credential, bool) {
	for _, c := range p.creds {
		if c.ID == id {
			return c, true
		}
	}
	return Credential{}, false
}
