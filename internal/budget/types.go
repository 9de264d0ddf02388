package budget

import (
	"fmt"
	"strings"
	"time"
)

// Tier is one of the four fixed-percentage partitions of a run's budget.
type Tier string

const (
	TierChain        Tier = "chain_enumeration"
	TierHighYield    Tier = "high_yield"
	TierCity         Tier = "city_exploration"
	TierExperimental Tier = "experimental"
)

// Tiers lists all tiers in plan order.
var Tiers = []Tier{TierChain, TierHighYield, TierCity, TierExperimental}

// Query is one planned search query with its provenance.
type Query struct {
	Text       string
	Tier       Tier
	Country    string
	City       string
	Platform   string
	Chain      string
	StrategyID string
}

// Group is a coherent batch of queries accepted as a unit during tier fill
// (one chain, one strategy replay, one city).
type Group struct {
	Tier    Tier
	Label   string
	Queries []Query
}

// TierReport is the allocated-vs-actual accounting for one tier.
// Actual never exceeds Allocated; it is smaller when the tier ran out of
// candidates before exhausting its sub-budget.
type TierReport struct {
	Allocated int
	Actual    int
}

// Plan is the tier-tagged execution plan for one run. Generated once,
// immutable afterward; a report artifact, not a mutable entity.
type Plan struct {
	RunID       string
	CreatedAt   time.Time
	TotalBudget int
	Groups      []Group
	Reports     map[Tier]TierReport
}

// Queries returns the plan's queries flattened in execution order:
// tiers in plan order, groups in priority order within each tier.
func (p *Plan) Queries() []Query {
	var out []Query
	for _, g := range p.Groups {
		out = append(out, g.Queries...)
	}
	return out
}

// TotalActual returns the number of queries actually planned. Can be less
// than TotalBudget; unused sub-budget is never redistributed across tiers.
func (p *Plan) TotalActual() int {
	var n int
	for _, r := range p.Reports {
		n += r.Actual
	}
	return n
}

// Summary renders the operator-facing plan breakdown.
func (p *Plan) Summary() string {
	var b strings.Builder
	fmt.Fprintf(&b, "query plan %s: %d/%d queries planned\n", p.RunID, p.TotalActual(), p.TotalBudget)
	for _, tier := range Tiers {
		r := p.Reports[tier]
		fmt.Fprintf(&b, "  %-18s allocated=%-4d actual=%-4d", tier, r.Allocated, r.Actual)
		if r.Actual < r.Allocated {
			fmt.Fprintf(&b, " (under-fulfilled by %d)", r.Allocated-r.Actual)
		}
		b.WriteString("\n")
	}
	for _, g := range p.Groups {
		fmt.Fprintf(&b, "  - [%s] %s: %d queries\n", g.Tier, g.Label, len(g.Queries))
	}
	return b.String()
}
