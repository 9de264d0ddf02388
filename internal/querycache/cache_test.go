package querycache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStore struct {
	entries map[string]Entry
}

func newFakeStore() *fakeStore {
	return &fakeStore{entries: make(map[string]Entry)}
}

func (f *fakeStore) GetEntry(_ context.Context, hash string) (Entry, bool, error) {
	e, ok := f.entries[hash]
	return e, ok, nil
}

func (f *fakeStore) UpsertEntry(_ context.Context, entry Entry) error {
	f.entries[entry.QueryHash] = entry
	return nil
}

func (f *fakeStore) DeleteExpired(_ context.Context, now time.Time) (int, error) {
	var n int
	for hash, e := range f.entries {
		if !now.Before(e.ExpiresAt) {
			delete(f.entries, hash)
			n++
		}
	}
	return n, nil
}

func TestNormalize(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{"lowercases", "Padel Madrid", "madrid padel"},
		{"sorts tokens", "madrid padel courts", "courts madrid padel"},
		{"collapses whitespace", "  padel \t madrid  ", "madrid padel"},
		{"empty", "   ", ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Normalize(tc.in))
		})
	}
}

func TestHash_WordOrderAndCaseInsensitive(t *testing.T) {
	// Reworded and recased variants of the same query collapse to one key.
	assert.Equal(t, Hash("Padel courts Madrid"), Hash("madrid PADEL courts"))
	assert.NotEqual(t, Hash("padel madrid"), Hash("padel barcelona"))
	assert.Len(t, Hash("anything"), 64)
}

func TestCache_AsymmetricTTL(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	base := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	now := base
	cache := New(store, 24*time.Hour, 168*time.Hour, WithClock(func() time.Time { return now }))

	require.NoError(t, cache.Record(ctx, "padel madrid", 7))
	require.NoError(t, cache.Record(ctx, "padel smallville", 0))

	t.Run("both fresh entries skip", func(t *testing.T) {
		skip, err := cache.ShouldSkip(ctx, "padel madrid")
		require.NoError(t, err)
		assert.True(t, skip)
		skip, err = cache.ShouldSkip(ctx, "padel smallville")
		require.NoError(t, err)
		assert.True(t, skip)
	})

	t.Run("hit expires after a day, miss survives", func(t *testing.T) {
		now = base.Add(25 * time.Hour)
		skip, err := cache.ShouldSkip(ctx, "padel madrid")
		require.NoError(t, err)
		assert.False(t, skip)
		skip, err = cache.ShouldSkip(ctx, "padel smallville")
		require.NoError(t, err)
		assert.True(t, skip)
	})

	t.Run("miss expires after a week", func(t *testing.T) {
		now = base.Add(169 * time.Hour)
		skip, err := cache.ShouldSkip(ctx, "padel smallville")
		require.NoError(t, err)
		assert.False(t, skip)
	})
}

func TestCache_RecordRefreshesEntry(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	base := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	now := base
	cache := New(store, 24*time.Hour, 168*time.Hour, WithClock(func() time.Time { return now }))

	// A zero-result entry re-recorded with results flips to the short TTL.
	require.NoError(t, cache.Record(ctx, "padel lisbon", 0))
	now = base.Add(time.Hour)
	require.NoError(t, cache.Record(ctx, "Lisbon padel", 3))

	require.Len(t, store.entries, 1, "variants share one entry")
	e := store.entries[Hash("padel lisbon")]
	assert.Equal(t, 3, e.ResultsCount)
	assert.Equal(t, now.Add(24*time.Hour), e.ExpiresAt)
}

func TestCache_CleanupExpired(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	base := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	now := base
	cache := New(store, 24*time.Hour, 168*time.Hour, WithClock(func() time.Time { return now }))

	require.NoError(t, cache.Record(ctx, "q one", 1))
	require.NoError(t, cache.Record(ctx, "q two", 0))

	n, err := cache.CleanupExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	now = base.Add(48 * time.Hour)
	n, err = cache.CleanupExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n, "only the day-old hit entry is expired")
	n, err = cache.CleanupExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}
