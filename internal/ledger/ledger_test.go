package ledger

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStrategyStore struct {
	strategies map[string]*Strategy
	updateErr  error
}

func newFakeStrategyStore(strategies ...Strategy) *fakeStrategyStore {
	f := &fakeStrategyStore{strategies: make(map[string]*Strategy)}
	for i := range strategies {
		s := strategies[i]
		f.strategies[s.ID] = &s
	}
	return f
}

func (f *fakeStrategyStore) GetStrategy(_ context.Context, id string) (Strategy, bool, error) {
	s, ok := f.strategies[id]
	if !ok {
		return Strategy{}, false, nil
	}
	return *s, true, nil
}

func (f *fakeStrategyStore) CreateStrategy(_ context.Context, s Strategy) error {
	cp := s
	f.strategies[s.ID] = &cp
	return nil
}

func (f *fakeStrategyStore) UpdateRate(_ context.Context, id string, rate float64, usesDelta int) error {
	if f.updateErr != nil {
		return f.updateErr
	}
	s := f.strategies[id]
	s.SuccessRate = rate
	s.TotalUses += usesDelta
	return nil
}

func (f *fakeStrategyStore) Deprecate(_ context.Context, id string, at time.Time) error {
	f.strategies[id].DeprecatedAt = &at
	return nil
}

func testConfig() Config {
	return Config{
		AutoDeprecateBelow:      20,
		HistoricalWeightDivisor: 10,
		HistoricalWeightCap:     0.8,
	}
}

func TestLedger_NewStrategyFollowsBatch(t *testing.T) {
	// With zero prior uses the historical weight is zero: the blended rate
	// is exactly the batch rate.
	ctx := context.Background()
	store := newFakeStrategyStore(Strategy{ID: "s1", SuccessRate: 50, TotalUses: 0})
	l := New(store, testConfig())

	d, err := l.RecordFeedbackBatch(ctx, FeedbackBatch{StrategyID: "s1", Approvals: 3, Rejections: 1})
	require.NoError(t, err)
	require.NotNil(t, d)

	assert.Equal(t, 75.0, d.BatchRate)
	assert.Equal(t, 75.0, d.NewRate)
	assert.Equal(t, ActionBoost, d.Action)
	assert.Equal(t, 75.0, store.strategies["s1"].SuccessRate)
	assert.Equal(t, 1, store.strategies["s1"].TotalUses)
}

func TestLedger_PartialsCountHalf(t *testing.T) {
	ctx := context.Background()
	store := newFakeStrategyStore(Strategy{ID: "s1", SuccessRate: 50, TotalUses: 0})
	l := New(store, testConfig())

	// successWeight = 1 + 0.5*2 = 2, failureWeight = 2: batch rate 50.
	d, err := l.RecordFeedbackBatch(ctx, FeedbackBatch{StrategyID: "s1", Approvals: 1, Rejections: 2, Partials: 2})
	require.NoError(t, err)
	require.NotNil(t, d)
	assert.Equal(t, 50.0, d.BatchRate)
	assert.Equal(t, ActionHold, d.Action)
}

func TestLedger_HistoricalWeightDampsMovement(t *testing.T) {
	ctx := context.Background()

	t.Run("well-used strategy moves at most a fifth of the gap", func(t *testing.T) {
		// 80+ uses hits the 0.8 cap: new = 0.8*old + 0.2*batch.
		store := newFakeStrategyStore(Strategy{ID: "s1", SuccessRate: 80, TotalUses: 100})
		l := New(store, testConfig())

		d, err := l.RecordFeedbackBatch(ctx, FeedbackBatch{StrategyID: "s1", Rejections: 5})
		require.NoError(t, err)
		require.NotNil(t, d)
		assert.Equal(t, 0.0, d.BatchRate)
		assert.Equal(t, 64.0, d.NewRate) // 0.8*80 + 0.2*0
		assert.Equal(t, ActionPenalize, d.Action)
	})

	t.Run("moderately used strategy blends proportionally", func(t *testing.T) {
		// 5 uses: weight 0.5, new = round(0.5*40 + 0.5*100) = 70.
		store := newFakeStrategyStore(Strategy{ID: "s1", SuccessRate: 40, TotalUses: 5})
		l := New(store, testConfig())

		d, err := l.RecordFeedbackBatch(ctx, FeedbackBatch{StrategyID: "s1", Approvals: 4})
		require.NoError(t, err)
		require.NotNil(t, d)
		assert.Equal(t, 70.0, d.NewRate)
		assert.Equal(t, ActionBoost, d.Action)
	})
}

func TestLedger_AutoDeprecate(t *testing.T) {
	ctx := context.Background()
	at := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	store := newFakeStrategyStore(Strategy{ID: "s1", SuccessRate: 22, TotalUses: 100})
	l := New(store, testConfig(), WithClock(func() time.Time { return at }))

	// 0.8*22 + 0.2*0 = 17.6, rounded 18, below the threshold.
	d, err := l.RecordFeedbackBatch(ctx, FeedbackBatch{StrategyID: "s1", Rejections: 3})
	require.NoError(t, err)
	require.NotNil(t, d)
	assert.Equal(t, ActionDeprecate, d.Action)
	assert.Equal(t, 18.0, d.NewRate)
	require.NotNil(t, store.strategies["s1"].DeprecatedAt)
	assert.Equal(t, at, *store.strategies["s1"].DeprecatedAt)

	t.Run("deprecation is terminal", func(t *testing.T) {
		d, err := l.RecordFeedbackBatch(ctx, FeedbackBatch{StrategyID: "s1", Approvals: 10})
		require.NoError(t, err)
		assert.Nil(t, d, "feedback for a deprecated strategy is ignored")
		assert.Equal(t, 18.0, store.strategies["s1"].SuccessRate)
	})
}

func TestLedger_SkipsAndNoOps(t *testing.T) {
	ctx := context.Background()
	store := newFakeStrategyStore(Strategy{ID: "s1", SuccessRate: 50})
	l := New(store, testConfig())

	t.Run("empty batch", func(t *testing.T) {
		d, err := l.RecordFeedbackBatch(ctx, FeedbackBatch{StrategyID: "s1"})
		require.NoError(t, err)
		assert.Nil(t, d)
	})

	t.Run("unknown strategy", func(t *testing.T) {
		d, err := l.RecordFeedbackBatch(ctx, FeedbackBatch{StrategyID: "ghost", Approvals: 1})
		require.NoError(t, err)
		assert.Nil(t, d)
	})
}

func TestLedger_BatchesAbortOnPersistenceError(t *testing.T) {
	ctx := context.Background()
	store := newFakeStrategyStore(
		Strategy{ID: "s1", SuccessRate: 50},
		Strategy{ID: "s2", SuccessRate: 50},
	)
	l := New(store, testConfig())

	boom := errors.New("db locked")
	batches := []FeedbackBatch{
		{StrategyID: "s1", Approvals: 2},
		{StrategyID: "s2", Approvals: 2},
	}

	decisions, err := l.RecordFeedbackBatches(ctx, batches)
	require.NoError(t, err)
	assert.Len(t, decisions, 2)

	store.updateErr = boom
	decisions, err = l.RecordFeedbackBatches(ctx, batches)
	require.ErrorIs(t, err, boom)
	assert.Empty(t, decisions, "first failing batch aborts the rest")
}

func TestLedger_RateClamped(t *testing.T) {
	ctx := context.Background()
	store := newFakeStrategyStore(Strategy{ID: "s1", SuccessRate: 100, TotalUses: 0})
	l := New(store, testConfig())

	d, err := l.RecordFeedbackBatch(ctx, FeedbackBatch{StrategyID: "s1", Approvals: 10})
	require.NoError(t, err)
	require.NotNil(t, d)
	assert.Equal(t, 100.0, d.NewRate)
	assert.Equal(t, ActionHold, d.Action)
}
