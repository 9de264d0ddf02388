package dispatch

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"venuescout/internal/budget"
	"venuescout/internal/quota"
)

// TierOutcome counts what happened to one tier's queries during a run.
type TierOutcome struct {
	Executed int
	Skipped  int
	Failed   int
}

// RunSummary is the operator-facing report for one run.
type RunSummary struct {
	mu sync.Mutex

	RunID    string
	Started  time.Time
	Finished time.Time

	Executed       int
	Skipped        int // already cached
	Failed         int
	QuotaExhausted int // never dispatched: pool was dry
	PaidQueries    int

	Reports  map[budget.Tier]budget.TierReport
	Outcomes map[budget.Tier]*TierOutcome
}

func newRunSummary(plan *budget.Plan) *RunSummary {
	s := &RunSummary{
		RunID:    plan.RunID,
		Started:  time.Now(),
		Reports:  plan.Reports,
		Outcomes: make(map[budget.Tier]*TierOutcome, len(budget.Tiers)),
	}
	for _, tier := range budget.Tiers {
		s.Outcomes[tier] = &TierOutcome{}
	}
	return s
}

func (s *RunSummary) countExecuted(tier budget.Tier, mode quota.Mode) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Executed++
	if mode == quota.ModePaid {
		s.PaidQueries++
	}
	if o := s.Outcomes[tier]; o != nil {
		o.Executed++
	}
}

func (s *RunSummary) countSkipped(tier budget.Tier) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Skipped++
	if o := s.Outcomes[tier]; o != nil {
		o.Skipped++
	}
}

func (s *RunSummary) countFailed(tier budget.Tier) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Failed++
	if o := s.Outcomes[tier]; o != nil {
		o.Failed++
	}
}

func (s *RunSummary) countExhausted() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.QuotaExhausted++
}

func (s *RunSummary) finish() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Finished = time.Now()
}

// String renders the summary so an operator can see under-fulfilled tiers
// at a glance.
func (s *RunSummary) String() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	var b strings.Builder
	fmt.Fprintf(&b, "run %s (%s)\n", s.RunID, s.Finished.Sub(s.Started).Round(time.Millisecond))
	fmt.Fprintf(&b, "  executed=%d skipped=%d failed=%d quota-exhausted=%d paid=%d\n",
		s.Executed, s.Skipped, s.Failed, s.QuotaExhausted, s.PaidQueries)
	for _, tier := range budget.Tiers {
		r := s.Reports[tier]
		o := s.Outcomes[tier]
		fmt.Fprintf(&b, "  %-18s allocated=%-4d actual=%-4d executed=%-4d skipped=%-4d failed=%d\n",
			tier, r.Allocated, r.Actual, o.Executed, o.Skipped, o.Failed)
	}
	return b.String()
}
