package config

import "fmt"

// ConfigurationError indicates the scheduler cannot run with the given
// configuration. Fatal at startup, never retried.
type ConfigurationError struct {
	Message string
}

func (e *ConfigurationError) Error() string { return e.Message }

// ErrConfiguration creates a ConfigurationError with a formatted message.
func ErrConfiguration(format string, args ...interface{}) *ConfigurationError {
	return &ConfigurationError{Message: fmt.Sprintf(format, args...)}
}

// Validate checks the configuration once at startup. Type coercion and
// range checks happen here, not at call time.
func (c *Config) Validate() error {
	if len(c.Credentials) == 0 {
		return ErrConfiguration("no search credentials configured")
	}

	seen := make(map[string]bool, len(c.Credentials))
	for i := range c.Credentials {
		cred := &c.Credentials[i]
		if cred.ID == "" {
			return ErrConfiguration("credential %d has no id", i)
		}
		if seen[cred.ID] {
			return ErrConfiguration("duplicate credential id %q", cred.ID)
		}
		seen[cred.ID] = true
		if cred.APIKey == "" {
			return ErrConfiguration("credential %q has no api key", cred.ID)
		}
		if cred.DailyLimit < 0 {
			return ErrConfiguration("credential %q has negative daily limit", cred.ID)
		}
		if cred.DailyLimit == 0 {
			cred.DailyLimit = c.Quota.DefaultDailyLimit
		}
	}

	b := c.Budget
	if sum := b.ChainPercent + b.HighYieldPercent + b.CityPercent + b.ExperimentalPercent; sum != 100 {
		return ErrConfiguration("tier percentages sum to %d, want 100", sum)
	}
	if b.ChainCoverageThreshold <= 0 || b.ChainCoverageThreshold > 1 {
		return ErrConfiguration("chain_coverage_threshold %v out of (0,1]", b.ChainCoverageThreshold)
	}
	if b.QueriesPerCity <= 0 {
		return ErrConfiguration("queries_per_city must be positive")
	}
	if b.TopCitiesPerChain <= 0 {
		return ErrConfiguration("top_cities_per_chain must be positive")
	}
	if b.CitiesPerStrategy <= 0 {
		return ErrConfiguration("cities_per_strategy must be positive")
	}

	l := c.Ledger
	if l.AutoDeprecateBelow < 0 || l.AutoDeprecateBelow > 100 {
		return ErrConfiguration("auto_deprecate_below %v out of [0,100]", l.AutoDeprecateBelow)
	}
	if l.HistoricalWeightDivisor <= 0 {
		return ErrConfiguration("historical_weight_divisor must be positive")
	}
	if l.HistoricalWeightCap < 0 || l.HistoricalWeightCap >= 1 {
		return ErrConfiguration("historical_weight_cap %v out of [0,1)", l.HistoricalWeightCap)
	}

	if c.Dispatch.Workers <= 0 {
		c.Dispatch.Workers = 1
	}
	if c.Dispatch.Workers > 3 {
		// The limiting resource is the external quota, not local compute.
		return ErrConfiguration("dispatch workers %d exceeds maximum of 3", c.Dispatch.Workers)
	}

	for country, cities := range c.Countries {
		if len(cities) == 0 {
			return ErrConfiguration("country %q has no cities", country)
		}
	}
	return nil
}
