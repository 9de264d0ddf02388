package main

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"venuescout/internal/budget"
	"venuescout/internal/dispatch"
	"venuescout/internal/quota"
)

var (
	titleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#8BC34A")).
			Bold(true)

	labelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#2196F3"))

	mutedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#808080"))

	warnStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFC107")).
			Bold(true)

	errStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#e53935")).
			Bold(true)
)

var tierLabels = map[budget.Tier]string{
	budget.TierChain:        "Chain enumeration",
	budget.TierHighYield:    "High-yield replay",
	budget.TierCity:         "City exploration",
	budget.TierExperimental: "Experimental",
}

func renderPlan(p *budget.Plan) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s\n", titleStyle.Render("Query plan"), mutedStyle.Render(p.RunID))
	fmt.Fprintf(&b, "  budget %d, planned %d\n\n", p.TotalBudget, p.TotalActual())

	for _, tier := range budget.Tiers {
		r := p.Reports[tier]
		line := fmt.Sprintf("  %-20s %3d / %-3d", tierLabels[tier], r.Actual, r.Allocated)
		if r.Actual < r.Allocated {
			line += " " + warnStyle.Render(fmt.Sprintf("(-%d)", r.Allocated-r.Actual))
		}
		b.WriteString(line + "\n")
	}

	b.WriteString("\n")
	for _, g := range p.Groups {
		fmt.Fprintf(&b, "  %s %s %s\n",
			labelStyle.Render(string(g.Tier)),
			g.Label,
			mutedStyle.Render(fmt.Sprintf("(%d queries)", len(g.Queries))))
	}
	return b.String()
}

func renderSummary(s *dispatch.RunSummary) string {
	var b strings.Builder
	fmt.Fprintf(&b, "\n%s %s\n", titleStyle.Render("Run complete"), mutedStyle.Render(s.RunID))
	fmt.Fprintf(&b, "  duration  %s\n", s.Finished.Sub(s.Started).Round(100*time.Millisecond))
	fmt.Fprintf(&b, "  executed  %d\n", s.Executed)
	fmt.Fprintf(&b, "  skipped   %d %s\n", s.Skipped, mutedStyle.Render("(cache hits)"))
	if s.Failed > 0 {
		fmt.Fprintf(&b, "  failed    %s\n", errStyle.Render(fmt.Sprintf("%d", s.Failed)))
	}
	if s.QuotaExhausted > 0 {
		fmt.Fprintf(&b, "  dropped   %s\n", warnStyle.Render(fmt.Sprintf("%d (quota exhausted)", s.QuotaExhausted)))
	}
	if s.PaidQueries > 0 {
		fmt.Fprintf(&b, "  paid      %s\n", warnStyle.Render(fmt.Sprintf("%d", s.PaidQueries)))
	}

	tiers := make([]budget.Tier, 0, len(s.Outcomes))
	for tier := range s.Outcomes {
		tiers = append(tiers, tier)
	}
	sort.Slice(tiers, func(i, j int) bool { return tierOrder(tiers[i]) < tierOrder(tiers[j]) })

	b.WriteString("\n")
	for _, tier := range tiers {
		o := s.Outcomes[tier]
		fmt.Fprintf(&b, "  %-20s executed=%-3d skipped=%-3d failed=%d\n",
			tierLabels[tier], o.Executed, o.Skipped, o.Failed)
	}
	return b.String()
}

func tierOrder(t budget.Tier) int {
	for i, tier := range budget.Tiers {
		if tier == t {
			return i
		}
	}
	return len(budget.Tiers)
}

func renderStats(s quota.Stats, rows []quota.CredentialStatus) string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("Quota status") + "\n")
	fmt.Fprintf(&b, "  credentials  %d active, %d disabled\n", s.ActiveCount, s.DisabledCount)
	fmt.Fprintf(&b, "  free quota   %d / %d used today\n", s.FreeUsed, s.FreeTotal)
	if s.PaidUsed > 0 {
		fmt.Fprintf(&b, "  paid today   %s\n", warnStyle.Render(fmt.Sprintf("%d ($%.2f)", s.PaidUsed, s.EstimatedCost)))
	}
	mode := s.Mode.String()
	if s.Mode == quota.ModePaid {
		mode = warnStyle.Render(mode)
	}
	fmt.Fprintf(&b, "  mode         %s\n\n", mode)

	for _, r := range rows {
		line := fmt.Sprintf("  %-12s %3d / %-3d  (all-time %d)", r.ID, r.UsedToday, r.DailyLimit, r.TotalAllTime)
		if r.Disabled {
			line += " " + errStyle.Render("disabled: "+r.DisabledReason)
		} else if r.UsedToday >= r.DailyLimit {
			line += " " + warnStyle.Render("exhausted")
		}
		b.WriteString(line + "\n")
	}
	return b.String()
}
