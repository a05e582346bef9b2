package config

import (
	"errors"
	"fmt"
)

// Validate rejects malformed configuration at load time. Profile override
// shape is checked here so bad weights never reach the scoring engine.
func (c *Config) Validate() error {
	if c.Venue.ID == "" {
		return errors.New("venue.id is required")
	}
	if c.Scan.Interval <= 0 {
		return errors.New("scan.interval must be positive")
	}
	if c.Scan.Concurrency < 1 {
		return errors.New("scan.concurrency must be >= 1")
	}
	if c.Scan.TopN < 1 {
		return errors.New("scan.top_n must be >= 1")
	}
	if c.Filters.MinQuoteVolumeUSDT < 0 {
		return errors.New("filters.min_quote_volume_usdt must be >= 0")
	}
	if c.Filters.MaxSpreadBPS <= 0 {
		return errors.New("filters.max_spread_bps must be positive")
	}
	if c.Filters.TestNotionalUSDT <= 0 {
		return errors.New("filters.test_notional_usdt must be positive")
	}
	if c.Gateway.FailureThreshold < 1 {
		return errors.New("gateway.failure_threshold must be >= 1")
	}
	if c.Gateway.Cooldown <= 0 {
		return errors.New("gateway.cooldown must be positive")
	}
	if c.Gateway.CooldownMaxMult < 1 {
		return errors.New("gateway.cooldown_max_mult must be >= 1")
	}
	if c.Gateway.MaxRetries < 1 {
		return errors.New("gateway.max_retries must be >= 1")
	}

	for name, sections := range c.Profiles {
		if name == "" {
			return errors.New("profiles: empty profile name")
		}
		for section, weights := range sections {
			if !validProfileSection(section) {
				return fmt.Errorf("profiles.%s: unknown section %q", name, section)
			}
			for key := range weights {
				if key == "" {
					return fmt.Errorf("profiles.%s.%s: empty weight key", name, section)
				}
			}
		}
	}
	return nil
}

func validProfileSection(s string) bool {
	switch s {
	case "liq", "vol", "mom", "cost", "carry", "structure", "edges":
		return true
	}
	return false
}
