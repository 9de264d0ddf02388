// Package querycache deduplicates search queries so reworded or recased
// duplicates never double-spend quota. Entries carry an asymmetric TTL:
// queries that found results go cold after a day (listings change), while
// zero-result queries are kept for a week (re-running them wastes quota
// with low expected value).
package querycache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
	"time"

	"venuescout/internal/logging"
)

// Entry is one cached query execution.
type Entry struct {
	QueryHash       string
	NormalizedQuery string
	OriginalQuery   string
	ExecutedAt      time.Time
	ResultsCount    int
	ExpiresAt       time.Time
}

// Store persists cache entries keyed by query hash.
// Implemented by internal/store.
type Store interface {
	GetEntry(ctx context.Context, hash string) (Entry, bool, error)
	UpsertEntry(ctx context.Context, entry Entry) error
	DeleteExpired(ctx context.Context, now time.Time) (int, error)
}

// Cache decides whether a query was already run recently enough to skip.
type Cache struct {
	store   Store
	hitTTL  time.Duration
	missTTL time.Duration
	now     func() time.Time
}

// Option configures a Cache.
type Option func(*Cache)

// WithClock injects a clock for tests.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) { c.now = now }
}

// New creates a query cache. hitTTL applies to queries with results,
// missTTL to zero-result queries.
func New(store Store, hitTTL, missTTL time.Duration, opts ...Option) *Cache {
	c := &Cache{
		store:   store,
		hitTTL:  hitTTL,
		missTTL: missTTL,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Normalize lowercases, trims, and rejoins the query's whitespace-separated
// tokens in lexicographic order, so queries differing only in case or word
// order collapse to the same key.
func Normalize(query string) string {
	tokens := strings.Fields(strings.ToLower(strings.TrimSpace(query)))
	sort.Strings(tokens)
	return strings.Join(tokens, " ")
}

// Hash returns the cache key for a query: hex sha256 of its normal form.
func Hash(query string) string {
	sum := sha256.Sum256([]byte(Normalize(query)))
	return hex.EncodeToString(sum[:])
}

// ShouldSkip reports whether an unexpired entry exists for the query.
func (c *Cache) ShouldSkip(ctx context.Context, query string) (bool, error) {
	entry, ok, err := c.store.GetEntry(ctx, Hash(query))
	if err != nil {
		return false, fmt.Errorf("cache lookup: %w", err)
	}
	if !ok {
		return false, nil
	}
	if !c.now().Before(entry.ExpiresAt) {
		return false, nil
	}
	logging.CacheDebug("skip cached query %q (expires %s, results=%d)",
		query, entry.ExpiresAt.Format(time.RFC3339), entry.ResultsCount)
	return true, nil
}

// Record upserts an entry for the executed query with the TTL picked by
// its result count.
func (c *Cache) Record(ctx context.Context, query string, resultsCount int) error {
	now := c.now()
	ttl := c.missTTL
	if resultsCount >= 1 {
		ttl = c.hitTTL
	}

	entry := Entry{
		QueryHash:       Hash(query),
		NormalizedQuery: Normalize(query),
		OriginalQuery:   query,
		ExecutedAt:      now,
		ResultsCount:    resultsCount,
		ExpiresAt:       now.Add(ttl),
	}
	if err := c.store.UpsertEntry(ctx, entry); err != nil {
		return fmt.Errorf("cache record: %w", err)
	}
	logging.CacheDebug("recorded query %q (results=%d, ttl=%v)", query, resultsCount, ttl)
	return nil
}

// CleanupExpired batch-deletes entries past their expiry and returns how
// many were removed.
func (c *Cache) CleanupExpired(ctx context.Context) (int, error) {
	n, err := c.store.DeleteExpired(ctx, c.now())
	if err != nil {
		return 0, fmt.Errorf("cache cleanup: %w", err)
	}
	if n > 0 {
		logging.Cache("cleaned up %d expired cache entries", n)
	}
	return n, nil
}
