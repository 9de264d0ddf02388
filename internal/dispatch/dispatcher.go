// Package dispatch runs a query plan to completion: for each planned query
// it consults the cache, acquires a credential lease, hands execution to the
// search client, and records cache, usage, and strategy outcomes. A small
// bounded worker pool is enough because the limiting resource is the
// external quota, not local compute.
package dispatch

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"venuescout/internal/budget"
	"venuescout/internal/ledger"
	"venuescout/internal/logging"
	"venuescout/internal/quota"
	"venuescout/internal/querycache"
	"venuescout/internal/search"
)

// SearchClient executes one query under a credential and returns the result
// count. Implemented by internal/search; tests use fakes.
type SearchClient interface {
	Execute(ctx context.Context, query string, cred quota.Credential) (int, error)
}

// StrategyRecorder lets the dispatcher register a dynamic strategy when a
// chain query succeeds in a country that has none yet. Optional.
type StrategyRecorder interface {
	HasStrategyFor(ctx context.Context, platform, country string) (bool, error)
	CreateStrategy(ctx context.Context, s ledger.Strategy) error
}

// Config holds the dispatch tunables.
type Config struct {
	Workers       int
	QueryTimeout  time.Duration
	MaxRetries    int
	RetryBackoff  time.Duration
	QueriesPerSec float64
}

// Dispatcher executes query plans.
type Dispatcher struct {
	pool       *quota.Pool
	cache      *querycache.Cache
	client     SearchClient
	strategies StrategyRecorder // may be nil
	cfg        Config
	limiter    *rate.Limiter
}

// New creates a dispatcher. strategies may be nil to disable dynamic
// strategy creation.
func New(pool *quota.Pool, cache *querycache.Cache, client SearchClient, strategies StrategyRecorder, cfg Config) *Dispatcher {
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	limit := rate.Inf
	if cfg.QueriesPerSec > 0 {
		limit = rate.Limit(cfg.QueriesPerSec)
	}
	return &Dispatcher{
		pool:       pool,
		cache:      cache,
		client:     client,
		strategies: strategies,
		cfg:        cfg,
		limiter:    rate.NewLimiter(limit, 1),
	}
}

// Run executes the plan. Queries are fed to workers in the plan's
// deterministic order. Once the pool reports quota exhaustion, no further
// queries are dispatched; the remainder is counted, not retried. Returns
// the run summary alongside any abort error; persistence failures abort
// because continuing would corrupt quota accounting.
func (d *Dispatcher) Run(ctx context.Context, plan *budget.Plan) (*RunSummary, error) {
	summary := newRunSummary(plan)
	logging.Dispatch("run %s starting: %d queries, %d workers",
		plan.RunID, len(plan.Queries()), d.cfg.Workers)

	var exhausted atomic.Bool
	jobs := make(chan budget.Query)

	g, runCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer close(jobs)
		for _, q := range plan.Queries() {
			select {
			case jobs <- q:
			case <-runCtx.Done():
				return runCtx.Err()
			}
		}
		return nil
	})

	for i := 0; i < d.cfg.Workers; i++ {
		g.Go(func() error {
			for q := range jobs {
				select {
				case <-runCtx.Done():
					return runCtx.Err()
				default:
				}
				if exhausted.Load() {
					summary.countExhausted()
					continue
				}
				if err := d.executeOne(runCtx, q, summary, &exhausted); err != nil {
					return err
				}
			}
			return nil
		})
	}

	err := g.Wait()
	summary.finish()
	logging.Dispatch("run %s finished: executed=%d skipped=%d failed=%d exhausted=%d",
		plan.RunID, summary.Executed, summary.Skipped, summary.Failed, summary.QuotaExhausted)
	return summary, err
}

// executeOne runs a single planned query through cache, lease, execution,
// and recording. Per-query failures are counted, not returned; only errors
// that must abort the run propagate.
func (d *Dispatcher) executeOne(ctx context.Context, q budget.Query, summary *RunSummary, exhausted *atomic.Bool) error {
	skip, err := d.cache.ShouldSkip(ctx, q.Text)
	if err != nil {
		return err
	}
	if skip {
		summary.countSkipped(q.Tier)
		return nil
	}

	attempts := 0
	for {
		lease, err := d.pool.Acquire(ctx)
		if err != nil {
			var qe *quota.QuotaExhaustedError
			if errors.As(err, &qe) {
				logging.Dispatch("quota exhausted, stopping dispatch: %v", qe)
				exhausted.Store(true)
				summary.countExhausted()
				return nil
			}
			return err
		}

		if err := d.limiter.Wait(ctx); err != nil {
			return err
		}

		callCtx, cancel := context.WithTimeout(ctx, d.cfg.QueryTimeout)
		count, err := d.client.Execute(callCtx, q.Text, lease.Credential)
		cancel()

		if err == nil {
			if err := d.pool.RecordUsage(ctx, lease); err != nil {
				if isQuotaExhausted(err) {
					// Lost the capacity race between acquire and record.
					summary.countFailed(q.Tier)
					return nil
				}
				return err
			}
			if err := d.cache.Record(ctx, q.Text, count); err != nil {
				return err
			}
			summary.countExecuted(q.Tier, lease.Mode)
			d.maybeRecordStrategy(ctx, q, count)
			return nil
		}

		var rl *search.RateLimitError
		if errors.As(err, &rl) {
			// Upstream already refused this credential for the day; sync
			// our accounting and try the next one.
			if merr := d.pool.MarkExhausted(ctx, lease.Credential.ID); merr != nil {
				return merr
			}
			continue
		}

		var te *search.TransientError
		if errors.As(err, &te) {
			if te.Reached() {
				if rerr := d.pool.RecordUsage(ctx, lease); rerr != nil && !isQuotaExhausted(rerr) {
					return rerr
				}
			}
			attempts++
			if attempts > d.cfg.MaxRetries {
				logging.Get(logging.CategoryDispatch).Warn("query %q failed after %d attempts: %v", q.Text, attempts, te)
				summary.countFailed(q.Tier)
				return nil
			}
			if err := sleepCtx(ctx, backoff(d.cfg.RetryBackoff, attempts)); err != nil {
				return err
			}
			continue
		}

		if ctx.Err() != nil {
			return ctx.Err()
		}

		// Permanent rejection. The call reached the provider, so it is billed.
		if rerr := d.pool.RecordUsage(ctx, lease); rerr != nil && !isQuotaExhausted(rerr) {
			return rerr
		}
		logging.Get(logging.CategoryDispatch).Warn("query %q rejected: %v", q.Text, err)
		summary.countFailed(q.Tier)
		return nil
	}
}

// maybeRecordStrategy turns a successful chain-tier query into a replayable
// strategy for its platform/country, if none exists yet.
func (d *Dispatcher) maybeRecordStrategy(ctx context.Context, q budget.Query, count int) {
	if d.strategies == nil || q.Tier != budget.TierChain || count < 1 || q.City == "" {
		return
	}
	has, err := d.strategies.HasStrategyFor(ctx, q.Platform, q.Country)
	if err != nil || has {
		return
	}
	s := ledger.Strategy{
		ID:            uuid.New().String(),
		Platform:      q.Platform,
		Country:       q.Country,
		QueryTemplate: strings.ReplaceAll(q.Text, q.City, "{city}"),
		SuccessRate:   50, // neutral prior until feedback arrives
		Tags:          []string{"dynamic", "chain"},
		CreatedAt:     time.Now(),
	}
	if err := d.strategies.CreateStrategy(ctx, s); err != nil {
		logging.Get(logging.CategoryDispatch).Warn("dynamic strategy not recorded: %v", err)
		return
	}
	logging.Dispatch("dynamic strategy %s recorded for %s/%s", s.ID, q.Platform, q.Country)
}

func isQuotaExhausted(err error) bool {
	var qe *quota.QuotaExhaustedError
	return errors.As(err, &qe)
}

// backoff returns the exponential delay for the given attempt (1-based).
func backoff(base time.Duration, attempt int) time.Duration {
	d := base
	for i := 1; i < attempt; i++ {
		d *= 2
	}
	return d
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
