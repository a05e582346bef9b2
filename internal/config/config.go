// Package config loads and validates the scanner runtime configuration.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the full runtime configuration, sourced from a YAML file.
type Config struct {
	Venue    VenueConfig    `yaml:"venue"`
	Scan     ScanConfig     `yaml:"scan"`
	Filters  FilterConfig   `yaml:"filters"`
	Gateway  GatewayConfig  `yaml:"gateway"`
	Redis    RedisConfig    `yaml:"redis"`
	Postgres PostgresConfig `yaml:"postgres"`
	HTTP     HTTPConfig     `yaml:"http"`
	Manip    ManipConfig    `yaml:"manip"`
	Profiles ProfilesConfig `yaml:"profiles"`
	LogLevel string         `yaml:"log_level"`
}

// VenueConfig identifies the upstream exchange and the symbol universe.
type VenueConfig struct {
	ID               string        `yaml:"id"`
	QuoteAsset       string        `yaml:"quote_asset"`
	UniverseCacheTTL time.Duration `yaml:"universe_cache_ttl"`
	ExplicitUniverse []string      `yaml:"explicit_universe"`
	TopByQuoteVolume int           `yaml:"top_by_quote_volume"`
}

// ScanConfig drives the orchestrator loop. IncludeCarry is a pointer so an
// omitted key defaults to carry on; only an explicit false disables it.
type ScanConfig struct {
	Interval       time.Duration `yaml:"interval"`
	Concurrency    int           `yaml:"concurrency"`
	CycleDeadline  time.Duration `yaml:"cycle_deadline"`
	TopN           int           `yaml:"top_n"`
	DefaultProfile string        `yaml:"default_profile"`
	IncludeCarry   *bool         `yaml:"include_carry"`
	BarInterval    string        `yaml:"bar_interval"`
	BarLimit       int           `yaml:"bar_limit"`
	BookDepth      int           `yaml:"book_depth"`
}

// CarryEnabled reports whether funding/basis carry feeds the score.
func (s ScanConfig) CarryEnabled() bool {
	return s.IncludeCarry == nil || *s.IncludeCarry
}

// FilterConfig holds the hard filters rejecting symbols outright.
type FilterConfig struct {
	MinQuoteVolumeUSDT float64 `yaml:"min_quote_volume_usdt"`
	MaxSpreadBPS       float64 `yaml:"max_spread_bps"`
	TestNotionalUSDT   float64 `yaml:"test_notional_usdt"`
}

// GatewayConfig tunes per-call behavior and the venue circuit breaker.
// Breaker thresholds are deliberately configuration, not constants.
type GatewayConfig struct {
	CallTimeout      time.Duration `yaml:"call_timeout"`
	MaxRetries       int           `yaml:"max_retries"`
	RetryBackoff     time.Duration `yaml:"retry_backoff"`
	RetryBackoffMax  time.Duration `yaml:"retry_backoff_max"`
	FailureThreshold int           `yaml:"failure_threshold"`
	FailureWindow    time.Duration `yaml:"failure_window"`
	Cooldown         time.Duration `yaml:"cooldown"`
	CooldownMaxMult  int           `yaml:"cooldown_max_mult"`
	RateLimitPerSec  float64       `yaml:"rate_limit_per_sec"`
	RateLimitBurst   int           `yaml:"rate_limit_burst"`
}

// RedisConfig configures the hot cache sink.
type RedisConfig struct {
	Addr         string        `yaml:"addr"`
	Password     string        `yaml:"password"`
	DB           int           `yaml:"db"`
	RankingsTTL  time.Duration `yaml:"rankings_ttl"`
	SnapshotsTTL time.Duration `yaml:"snapshots_ttl"`
}

// PostgresConfig configures the durable store sink. An empty URL disables it.
type PostgresConfig struct {
	URL          string        `yaml:"url"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	MaxOpenConns int           `yaml:"max_open_conns"`
}

// HTTPConfig configures the health/metrics listener.
type HTTPConfig struct {
	Addr string `yaml:"addr"`
}

// ManipConfig exposes the detector rule thresholds.
type ManipConfig struct {
	DepthSkewThreshold   float64 `yaml:"depth_skew_threshold"`
	WallRatioThreshold   float64 `yaml:"wall_ratio_threshold"`
	VacuumDepthMult      float64 `yaml:"vacuum_depth_mult"`
	WickATRMult          float64 `yaml:"wick_atr_mult"`
	OIDeltaThreshold     float64 `yaml:"oi_delta_threshold"`
	OIPriceDropThreshold float64 `yaml:"oi_price_drop_threshold"`
	FundingMomentumGate  float64 `yaml:"funding_momentum_gate"`
	SurgeVolumeZ         float64 `yaml:"surge_volume_z"`
	WashVolumeZ          float64 `yaml:"wash_volume_z"`
}

// ProfilesConfig allows YAML weight overrides merged onto the built-in
// presets. Keys are profile names; values are section→weight maps.
type ProfilesConfig map[string]map[string]map[string]float64

// Load reads, defaults, and validates a config file.
func Load(path string) (*Config, error) {
	var cfg Config
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}
