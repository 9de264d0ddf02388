// Package ledger blends batched outcome feedback into each strategy's
// running success-rate estimate and decides whether the strategy should be
// boosted, penalized, or deprecated.
package ledger

import (
	"context"
	"fmt"
	"math"
	"time"

	"venuescout/internal/logging"
)

// StrategyStore persists strategies. Implemented by internal/store.
type StrategyStore interface {
	GetStrategy(ctx context.Context, id string) (Strategy, bool, error)
	CreateStrategy(ctx context.Context, s Strategy) error
	UpdateRate(ctx context.Context, id string, rate float64, usesDelta int) error
	Deprecate(ctx context.Context, id string, at time.Time) error
}

// Config holds the blending tunables.
type Config struct {
	// A strategy whose blended rate falls below this is deprecated.
	AutoDeprecateBelow float64
	// historicalWeight = min(totalUses/Divisor, Cap). The cap keeps a
	// well-used strategy from becoming completely deaf to new evidence.
	HistoricalWeightDivisor float64
	HistoricalWeightCap     float64
}

// Ledger adjusts strategy trust from review outcomes.
type Ledger struct {
	store StrategyStore
	cfg   Config
	now   func() time.Time
}

// Option configures a Ledger.
type Option func(*Ledger)

// WithClock injects a clock for tests.
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) { l.now = now }
}

// New creates a strategy ledger.
func New(store StrategyStore, cfg Config, opts ...Option) *Ledger {
	l := &Ledger{store: store, cfg: cfg, now: time.Now}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// RecordFeedbackBatch blends one feedback batch into a strategy's success
// rate. An empty batch is a no-op. Returns the decision made, or nil for
// no-ops and skipped strategies.
func (l *Ledger) RecordFeedbackBatch(ctx context.Context, batch FeedbackBatch) (*Decision, error) {
	if batch.Approvals+batch.Rejections+batch.Partials == 0 {
		return nil, nil
	}

	strategy, ok, err := l.store.GetStrategy(ctx, batch.StrategyID)
	if err != nil {
		return nil, fmt.Errorf("load strategy %s: %w", batch.StrategyID, err)
	}
	if !ok {
		logging.Get(logging.CategoryLedger).Warn("feedback for unknown strategy %s skipped", batch.StrategyID)
		return nil, nil
	}
	if strategy.Deprecated() {
		logging.Get(logging.CategoryLedger).Warn("feedback for deprecated strategy %s ignored", batch.StrategyID)
		return nil, nil
	}

	successWeight := float64(batch.Approvals) + 0.5*float64(batch.Partials)
	failureWeight := float64(batch.Rejections)
	denom := successWeight + failureWeight
	if denom == 0 {
		// Possible with partials == 0 and nothing else; guarded above, but a
		// batch of zero-weight outcomes still lands here.
		logging.Get(logging.CategoryLedger).Warn("zero-weight feedback batch for strategy %s skipped", batch.StrategyID)
		return nil, nil
	}
	batchRate := 100 * successWeight / denom

	historicalWeight := math.Min(float64(strategy.TotalUses)/l.cfg.HistoricalWeightDivisor, l.cfg.HistoricalWeightCap)
	newRate := math.Round(strategy.SuccessRate*historicalWeight + batchRate*(1-historicalWeight))
	newRate = math.Max(0, math.Min(100, newRate))

	if err := l.store.UpdateRate(ctx, strategy.ID, newRate, 1); err != nil {
		return nil, fmt.Errorf("update strategy %s: %w", strategy.ID, err)
	}

	decision := &Decision{
		StrategyID: strategy.ID,
		OldRate:    strategy.SuccessRate,
		BatchRate:  batchRate,
		NewRate:    newRate,
	}
	switch {
	case newRate < l.cfg.AutoDeprecateBelow:
		if err := l.store.Deprecate(ctx, strategy.ID, l.now()); err != nil {
			return nil, fmt.Errorf("deprecate strategy %s: %w", strategy.ID, err)
		}
		decision.Action = ActionDeprecate
		logging.Ledger("strategy %s deprecated: rate %.0f -> %.0f (below %.0f)",
			strategy.ID, strategy.SuccessRate, newRate, l.cfg.AutoDeprecateBelow)
	case newRate > strategy.SuccessRate:
		decision.Action = ActionBoost
		logging.LedgerDebug("strategy %s boosted: %.0f -> %.0f (batch %.1f)",
			strategy.ID, strategy.SuccessRate, newRate, batchRate)
	case newRate < strategy.SuccessRate:
		decision.Action = ActionPenalize
		logging.LedgerDebug("strategy %s penalized: %.0f -> %.0f (batch %.1f)",
			strategy.ID, strategy.SuccessRate, newRate, batchRate)
	default:
		decision.Action = ActionHold
	}
	return decision, nil
}

// RecordFeedbackBatches applies a slice of batches with partial-failure
// isolation: a persistence error aborts (quota accounting must never run on
// a store that is failing), while unknown strategies are logged and skipped.
func (l *Ledger) RecordFeedbackBatches(ctx context.Context, batches []FeedbackBatch) ([]Decision, error) {
	var decisions []Decision
	for _, batch := range batches {
		d, err := l.RecordFeedbackBatch(ctx, batch)
		if err != nil {
			return decisions, err
		}
		if d != nil {
			decisions = append(decisions, *d)
		}
	}
	return decisions, nil
}
