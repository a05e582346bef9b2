package config

import "time"

// Defaults for optional fields. Filter and breaker values follow the
// production tuning of the scanner this service replaces.
const (
	DefaultVenueID          = "binance"
	DefaultQuoteAsset       = "USDT"
	DefaultUniverseCacheTTL = 10 * time.Minute
	DefaultTopByQuoteVolume = 60

	DefaultScanInterval = 15 * time.Second
	DefaultConcurrency  = 12
	DefaultTopN         = 12
	DefaultProfile      = "scalp"
	DefaultIncludeCarry = true
	DefaultBarInterval  = "1m"
	DefaultBarLimit     = 200
	DefaultBookDepth    = 50

	DefaultMinQuoteVolume = 20_000_000.0
	DefaultMaxSpreadBPS   = 8.0
	DefaultTestNotional   = 5_000.0

	DefaultCallTimeout      = 8 * time.Second
	DefaultMaxRetries       = 3
	DefaultRetryBackoff     = 500 * time.Millisecond
	DefaultRetryBackoffMax  = 4 * time.Second
	DefaultFailureThreshold = 5
	DefaultFailureWindow    = 60 * time.Second
	DefaultCooldown         = 30 * time.Second
	DefaultCooldownMaxMult  = 8
	DefaultRateLimitPerSec  = 20.0
	DefaultRateLimitBurst   = 40

	DefaultRedisAddr    = "localhost:6379"
	DefaultRankingsTTL  = 60 * time.Second
	DefaultSnapshotsTTL = 90 * time.Second

	DefaultPGWriteTimeout = 5 * time.Second
	DefaultPGMaxOpenConns = 8

	DefaultHTTPAddr = ":8087"
	DefaultLogLevel = "info"
)

func (c *Config) applyDefaults() {
	if c.Venue.ID == "" {
		c.Venue.ID = DefaultVenueID
	}
	if c.Venue.QuoteAsset == "" {
		c.Venue.QuoteAsset = DefaultQuoteAsset
	}
	if c.Venue.UniverseCacheTTL == 0 {
		c.Venue.UniverseCacheTTL = DefaultUniverseCacheTTL
	}
	if c.Venue.TopByQuoteVolume == 0 {
		c.Venue.TopByQuoteVolume = DefaultTopByQuoteVolume
	}

	if c.Scan.Interval == 0 {
		c.Scan.Interval = DefaultScanInterval
	}
	if c.Scan.Concurrency == 0 {
		c.Scan.Concurrency = DefaultConcurrency
	}
	if c.Scan.CycleDeadline == 0 {
		c.Scan.CycleDeadline = c.Scan.Interval
	}
	if c.Scan.TopN == 0 {
		c.Scan.TopN = DefaultTopN
	}
	if c.Scan.DefaultProfile == "" {
		c.Scan.DefaultProfile = DefaultProfile
	}
	if c.Scan.IncludeCarry == nil {
		carry := DefaultIncludeCarry
		c.Scan.IncludeCarry = &carry
	}
	if c.Scan.BarInterval == "" {
		c.Scan.BarInterval = DefaultBarInterval
	}
	if c.Scan.BarLimit == 0 {
		c.Scan.BarLimit = DefaultBarLimit
	}
	if c.Scan.BookDepth == 0 {
		c.Scan.BookDepth = DefaultBookDepth
	}

	if c.Filters.MinQuoteVolumeUSDT == 0 {
		c.Filters.MinQuoteVolumeUSDT = DefaultMinQuoteVolume
	}
	if c.Filters.MaxSpreadBPS == 0 {
		c.Filters.MaxSpreadBPS = DefaultMaxSpreadBPS
	}
	if c.Filters.TestNotionalUSDT == 0 {
		c.Filters.TestNotionalUSDT = DefaultTestNotional
	}

	if c.Gateway.CallTimeout == 0 {
		c.Gateway.CallTimeout = DefaultCallTimeout
	}
	if c.Gateway.MaxRetries == 0 {
		c.Gateway.MaxRetries = DefaultMaxRetries
	}
	if c.Gateway.RetryBackoff == 0 {
		c.Gateway.RetryBackoff = DefaultRetryBackoff
	}
	if c.Gateway.RetryBackoffMax == 0 {
		c.Gateway.RetryBackoffMax = DefaultRetryBackoffMax
	}
	if c.Gateway.FailureThreshold == 0 {
		c.Gateway.FailureThreshold = DefaultFailureThreshold
	}
	if c.Gateway.FailureWindow == 0 {
		c.Gateway.FailureWindow = DefaultFailureWindow
	}
	if c.Gateway.Cooldown == 0 {
		c.Gateway.Cooldown = DefaultCooldown
	}
	if c.Gateway.CooldownMaxMult == 0 {
		c.Gateway.CooldownMaxMult = DefaultCooldownMaxMult
	}
	if c.Gateway.RateLimitPerSec == 0 {
		c.Gateway.RateLimitPerSec = DefaultRateLimitPerSec
	}
	if c.Gateway.RateLimitBurst == 0 {
		c.Gateway.RateLimitBurst = DefaultRateLimitBurst
	}

	if c.Redis.Addr == "" {
		c.Redis.Addr = DefaultRedisAddr
	}
	if c.Redis.RankingsTTL == 0 {
		c.Redis.RankingsTTL = DefaultRankingsTTL
	}
	if c.Redis.SnapshotsTTL == 0 {
		c.Redis.SnapshotsTTL = DefaultSnapshotsTTL
	}

	if c.Postgres.WriteTimeout == 0 {
		c.Postgres.WriteTimeout = DefaultPGWriteTimeout
	}
	if c.Postgres.MaxOpenConns == 0 {
		c.Postgres.MaxOpenConns = DefaultPGMaxOpenConns
	}

	if c.HTTP.Addr == "" {
		c.HTTP.Addr = DefaultHTTPAddr
	}
	if c.LogLevel == "" {
		c.LogLevel = DefaultLogLevel
	}

	c.Manip.applyDefaults()
}

func (m *ManipConfig) applyDefaults() {
	if m.DepthSkewThreshold == 0 {
		m.DepthSkewThreshold = 0.65
	}
	if m.WallRatioThreshold == 0 {
		m.WallRatioThreshold = 0.55
	}
	if m.VacuumDepthMult == 0 {
		m.VacuumDepthMult = 1.5
	}
	if m.WickATRMult == 0 {
		m.WickATRMult = 3.0
	}
	if m.OIDeltaThreshold == 0 {
		m.OIDeltaThreshold = 0.05
	}
	if m.OIPriceDropThreshold == 0 {
		m.OIPriceDropThreshold = 0.8
	}
	if m.FundingMomentumGate == 0 {
		m.FundingMomentumGate = 0.25
	}
	if m.SurgeVolumeZ == 0 {
		m.SurgeVolumeZ = 2.5
	}
	if m.WashVolumeZ == 0 {
		m.WashVolumeZ = 3.0
	}
}
