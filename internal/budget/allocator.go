// Package budget partitions a run's query budget into four fixed-percentage
// tiers and fills each tier greedily from its own candidate source. A tier
// that runs out of candidates simply under-fulfills; leftover sub-budget is
// never handed to another tier, so the per-tier spend stays predictable
// across runs.
package budget

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"venuescout/internal/config"
	"venuescout/internal/ledger"
	"venuescout/internal/logging"
)

// CoverageReader supplies read-side discovery counts. Implemented by
// internal/store; never mutated from this package.
type CoverageReader interface {
	// ChainVenueCount returns how many venues are already discovered for
	// the chain across all countries.
	ChainVenueCount(ctx context.Context, chain string) (int, error)
	// CityVenueCounts returns discovered venue counts per city for a country.
	// Cities with zero venues may be absent from the map.
	CityVenueCounts(ctx context.Context, country string) (map[string]int, error)
}

// StrategyReader supplies replay candidates for the high-yield tier.
type StrategyReader interface {
	// ListHighYield returns non-deprecated strategies with
	// totalUses >= minUses and successRate >= minRate.
	ListHighYield(ctx context.Context, minUses int, minRate float64) ([]ledger.Strategy, error)
}

// Allocator builds tier-tagged query plans.
type Allocator struct {
	cfg        config.BudgetConfig
	countries  map[string][]string // country -> cities, best first
	platforms  []string
	chains     []config.ChainConfig
	expQueries []string
	coverage   CoverageReader
	strategies StrategyReader
	now        func() time.Time
}

// Option configures an Allocator.
type Option func(*Allocator)

// WithClock injects a clock for tests.
func WithClock(now func() time.Time) Option {
	return func(a *Allocator) { a.now = now }
}

// New creates an allocator from the validated configuration.
func New(cfg *config.Config, coverage CoverageReader, strategies StrategyReader, opts ...Option) *Allocator {
	a := &Allocator{
		cfg:        cfg.Budget,
		countries:  cfg.Countries,
		platforms:  cfg.Platforms,
		chains:     cfg.Chains,
		expQueries: cfg.ExperimentalQueries,
		coverage:   coverage,
		strategies: strategies,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Allocate partitions totalBudget across the four tiers and fills each one.
// The resulting plan is deterministic for fixed inputs.
func (a *Allocator) Allocate(ctx context.Context, totalBudget int) (*Plan, error) {
	timer := logging.StartTimer(logging.CategoryBudget, "Allocate")
	defer timer.Stop()

	if totalBudget < 0 {
		return nil, config.ErrConfiguration("total budget must be non-negative, got %d", totalBudget)
	}

	plan := &Plan{
		RunID:       uuid.New().String(),
		CreatedAt:   a.now(),
		TotalBudget: totalBudget,
		Reports:     make(map[Tier]TierReport, len(Tiers)),
	}
	budgets := map[Tier]int{
		TierChain:        totalBudget * a.cfg.ChainPercent / 100,
		TierHighYield:    totalBudget * a.cfg.HighYieldPercent / 100,
		TierCity:         totalBudget * a.cfg.CityPercent / 100,
		TierExperimental: totalBudget * a.cfg.ExperimentalPercent / 100,
	}

	fills := []struct {
		tier Tier
		fill func(ctx context.Context, budget int) ([]Group, error)
	}{
		{TierChain, a.fillChainTier},
		{TierHighYield, a.fillHighYieldTier},
		{TierCity, a.fillCityTier},
		{TierExperimental, a.fillExperimentalTier},
	}

	for _, f := range fills {
		allocated := budgets[f.tier]
		groups, err := f.fill(ctx, allocated)
		if err != nil {
			return nil, fmt.Errorf("fill %s tier: %w", f.tier, err)
		}
		actual := 0
		for _, g := range groups {
			actual += len(g.Queries)
		}
		plan.Groups = append(plan.Groups, groups...)
		plan.Reports[f.tier] = TierReport{Allocated: allocated, Actual: actual}
		logging.BudgetDebug("%s tier: allocated=%d actual=%d groups=%d",
			f.tier, allocated, actual, len(groups))
	}

	logging.Budget("plan %s: %d/%d queries across %d groups",
		plan.RunID, plan.TotalActual(), totalBudget, len(plan.Groups))
	return plan, nil
}

// chainCandidate is a chain below the coverage threshold, with its priority
// score and pre-computed query cost.
type chainCandidate struct {
	chain    config.ChainConfig
	coverage float64
	score    float64
	cost     int
}

// fillChainTier enumerates under-covered chains. Candidates are ranked by a
// score combining country breadth, estimated size, and inverse coverage;
// each accepted chain contributes platforms x topCities queries per country
// it operates in.
func (a *Allocator) fillChainTier(ctx context.Context, budget int) ([]Group, error) {
	var candidates []chainCandidate
	for _, chain := range a.chains {
		discovered, err := a.coverage.ChainVenueCount(ctx, chain.Name)
		if err != nil {
			return nil, fmt.Errorf("chain coverage for %s: %w", chain.Name, err)
		}
		est := chain.EstimatedLocations
		if est < 1 {
			est = 1
		}
		cov := math.Min(float64(discovered)/float64(est), 1)
		if cov >= a.cfg.ChainCoverageThreshold {
			continue
		}
		candidates = append(candidates, chainCandidate{
			chain:    chain,
			coverage: cov,
			score:    a.chainScore(chain, cov),
			cost:     a.chainCost(chain),
		})
	}

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].score != candidates[j].score {
			return candidates[i].score > candidates[j].score
		}
		return candidates[i].chain.Name < candidates[j].chain.Name
	})

	var groups []Group
	remaining := budget
	for _, cand := range candidates {
		if remaining <= 0 {
			break
		}
		if cand.cost > remaining || cand.cost == 0 {
			continue
		}
		groups = append(groups, Group{
			Tier:    TierChain,
			Label:   cand.chain.Name,
			Queries: a.chainQueries(cand.chain),
		})
		remaining -= cand.cost
	}
	return groups, nil
}

// chainScore ranks chain candidates: wide-reach, large, poorly covered
// chains first.
func (a *Allocator) chainScore(chain config.ChainConfig, coverage float64) float64 {
	breadth := float64(len(chain.Countries)) * 10
	size := math.Log1p(float64(chain.EstimatedLocations))
	gap := (1 - coverage) * 100
	return gap + breadth + size
}

func (a *Allocator) chainCost(chain config.ChainConfig) int {
	cost := 0
	for _, country := range chain.Countries {
		cities := a.topCities(country, a.cfg.TopCitiesPerChain)
		cost += len(a.platforms) * len(cities)
	}
	return cost
}

func (a *Allocator) chainQueries(chain config.ChainConfig) []Query {
	var out []Query
	for _, country := range chain.Countries {
		for _, city := range a.topCities(country, a.cfg.TopCitiesPerChain) {
			for _, platform := range a.platforms {
				out = append(out, Query{
					Text:     fmt.Sprintf("%s %s %s", chain.Name, city, platform),
					Tier:     TierChain,
					Country:  country,
					City:     city,
					Platform: platform,
					Chain:    chain.Name,
				})
			}
		}
	}
	return out
}

// fillHighYieldTier replays proven strategies, best success rate first.
// Each strategy contributes one query per city, capped at citiesPerStrategy.
func (a *Allocator) fillHighYieldTier(ctx context.Context, budget int) ([]Group, error) {
	strategies, err := a.strategies.ListHighYield(ctx, a.cfg.HighYieldMinUses, a.cfg.HighYieldMinRate)
	if err != nil {
		return nil, fmt.Errorf("list high-yield strategies: %w", err)
	}
	sort.Slice(strategies, func(i, j int) bool {
		if strategies[i].SuccessRate != strategies[j].SuccessRate {
			return strategies[i].SuccessRate > strategies[j].SuccessRate
		}
		return strategies[i].ID < strategies[j].ID
	})

	var groups []Group
	remaining := budget
	for _, s := range strategies {
		if remaining <= 0 {
			break
		}
		cities := a.topCities(s.Country, a.cfg.CitiesPerStrategy)
		if len(cities) == 0 || len(cities) > remaining {
			continue
		}
		queries := make([]Query, 0, len(cities))
		for _, city := range cities {
			queries = append(queries, Query{
				Text:       renderTemplate(s.QueryTemplate, city, s.Platform),
				Tier:       TierHighYield,
				Country:    s.Country,
				City:       city,
				Platform:   s.Platform,
				StrategyID: s.ID,
			})
		}
		groups = append(groups, Group{Tier: TierHighYield, Label: s.ID, Queries: queries})
		remaining -= len(queries)
	}
	return groups, nil
}

// cityCandidate is an under-covered city awaiting exploration.
type cityCandidate struct {
	country string
	city    string
	venues  int
}

// fillCityTier explores cities with few discovered venues, least-covered
// first; each accepted city contributes a fixed number of search angles.
func (a *Allocator) fillCityTier(ctx context.Context, budget int) ([]Group, error) {
	countries := make([]string, 0, len(a.countries))
	for country := range a.countries {
		countries = append(countries, country)
	}
	sort.Strings(countries)

	var candidates []cityCandidate
	for _, country := range countries {
		counts, err := a.coverage.CityVenueCounts(ctx, country)
		if err != nil {
			return nil, fmt.Errorf("city coverage for %s: %w", country, err)
		}
		for _, city := range a.countries[country] {
			if n := counts[city]; n < a.cfg.CityVenueThreshold {
				candidates = append(candidates, cityCandidate{country: country, city: city, venues: n})
			}
		}
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].venues != candidates[j].venues {
			return candidates[i].venues < candidates[j].venues
		}
		if candidates[i].country != candidates[j].country {
			return candidates[i].country < candidates[j].country
		}
		return candidates[i].city < candidates[j].city
	})

	var groups []Group
	remaining := budget
	for _, cand := range candidates {
		if a.cfg.QueriesPerCity > remaining {
			break
		}
		groups = append(groups, Group{
			Tier:    TierCity,
			Label:   fmt.Sprintf("%s/%s", cand.country, cand.city),
			Queries: a.cityQueries(cand.country, cand.city),
		})
		remaining -= a.cfg.QueriesPerCity
	}
	return groups, nil
}

// cityAngles are the search angles tried per explored city.
var cityAngles = []string{
	"%s restaurants delivery",
	"%s food delivery order online",
	"best takeaway %s",
	"%s restaurant chains",
	"new restaurants %s",
}

func (a *Allocator) cityQueries(country, city string) []Query {
	n := a.cfg.QueriesPerCity
	if n > len(cityAngles) {
		n = len(cityAngles)
	}
	out := make([]Query, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, Query{
			Text:    fmt.Sprintf(cityAngles[i], city),
			Tier:    TierCity,
			Country: country,
			City:    city,
		})
	}
	return out
}

// fillExperimentalTier slices the static experimental list to the
// sub-budget. No ranking needed.
func (a *Allocator) fillExperimentalTier(_ context.Context, budget int) ([]Group, error) {
	queries := a.expQueries
	if len(queries) > budget {
		queries = queries[:budget]
	}
	if len(queries) == 0 {
		return nil, nil
	}
	group := Group{Tier: TierExperimental, Label: "experimental"}
	for _, q := range queries {
		group.Queries = append(group.Queries, Query{Text: q, Tier: TierExperimental})
	}
	return []Group{group}, nil
}

// topCities returns up to n cities for a country, best first per config
// order. Unknown countries yield nil.
func (a *Allocator) topCities(country string, n int) []string {
	cities := a.countries[country]
	if len(cities) > n {
		cities = cities[:n]
	}
	return cities
}

// renderTemplate substitutes strategy template placeholders.
func renderTemplate(template, city, platform string) string {
	out := strings.ReplaceAll(template, "{city}", city)
	out = strings.ReplaceAll(out, "{platform}", platform)
	return out
}
