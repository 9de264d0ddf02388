package ledger

import "time"

// Strategy is a parameterized query template bound to a platform/country,
// carrying the historical success rate used to prioritize future replays.
// Created at seed time or dynamically; mutated only by the Ledger.
type Strategy struct {
	ID            string
	Platform      string
	Country       string
	QueryTemplate string // may contain a {city} placeholder
	SuccessRate   float64 // 0..100
	TotalUses     int
	Tags          []string
	DeprecatedAt  *time.Time // set is terminal
	CreatedAt     time.Time
}

// Deprecated reports whether the strategy has been taken out of rotation.
func (s *Strategy) Deprecated() bool { return s.DeprecatedAt != nil }

// Action is the ledger's verdict after blending a feedback batch.
type Action string

const (
	ActionBoost     Action = "boost"
	ActionPenalize  Action = "penalize"
	ActionDeprecate Action = "deprecate"
	ActionHold      Action = "hold" // rate unchanged after rounding
)

// Decision records what a feedback batch did to one strategy.
type Decision struct {
	StrategyID string
	Action     Action
	OldRate    float64
	BatchRate  float64
	NewRate    float64
}

// FeedbackBatch is one batch of venue-review outcomes for a strategy:
// how many discovered venues were approved, rejected, or partially
// approved by the downstream review step.
type FeedbackBatch struct {
	StrategyID string
	Approvals  int
	Rejections int
	Partials   int
}
