package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "perpscan.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoad_EmptyPathUsesDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, DefaultVenueID, cfg.Venue.ID)
	assert.Equal(t, DefaultScanInterval, cfg.Scan.Interval)
	assert.Equal(t, DefaultConcurrency, cfg.Scan.Concurrency)
	assert.Equal(t, DefaultMinQuoteVolume, cfg.Filters.MinQuoteVolumeUSDT)
	assert.Equal(t, DefaultMaxSpreadBPS, cfg.Filters.MaxSpreadBPS)
	assert.Equal(t, DefaultFailureThreshold, cfg.Gateway.FailureThreshold)
	assert.Equal(t, DefaultCooldown, cfg.Gateway.Cooldown)
	assert.Equal(t, DefaultRankingsTTL, cfg.Redis.RankingsTTL)
	assert.Equal(t, DefaultProfile, cfg.Scan.DefaultProfile)
	assert.True(t, cfg.Scan.CarryEnabled())
}

func TestLoad_CarryDefaultsOnAndExplicitFalseWins(t *testing.T) {
	cfg, err := Load(writeConfig(t, "scan:\n  interval: 10s\n"))
	require.NoError(t, err)
	assert.True(t, cfg.Scan.CarryEnabled(), "omitted include_carry keeps carry on")

	cfg, err = Load(writeConfig(t, "scan:\n  include_carry: false\n"))
	require.NoError(t, err)
	assert.False(t, cfg.Scan.CarryEnabled())
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
venue:
  id: binance
  quote_asset: USDT
  top_by_quote_volume: 30
scan:
  interval: 5s
  concurrency: 4
  top_n: 8
filters:
  min_quote_volume_usdt: 1000000
gateway:
  cooldown: 10s
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 30, cfg.Venue.TopByQuoteVolume)
	assert.Equal(t, 5*time.Second, cfg.Scan.Interval)
	assert.Equal(t, 4, cfg.Scan.Concurrency)
	assert.Equal(t, 8, cfg.Scan.TopN)
	assert.Equal(t, 1_000_000.0, cfg.Filters.MinQuoteVolumeUSDT)
	assert.Equal(t, 10*time.Second, cfg.Gateway.Cooldown)
	// Untouched keys still default.
	assert.Equal(t, DefaultMaxSpreadBPS, cfg.Filters.MaxSpreadBPS)
	assert.Equal(t, DefaultFailureThreshold, cfg.Gateway.FailureThreshold)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestLoad_MalformedYAML(t *testing.T) {
	path := writeConfig(t, "scan: [not a map")
	_, err := Load(path)
	assert.Error(t, err)
}

func TestValidate_RejectsBadValues(t *testing.T) {
	cases := []struct {
		name string
		body string
	}{
		{"negative min qvol", "filters:\n  min_quote_volume_usdt: -1\n"},
		{"zero spread cap", "filters:\n  max_spread_bps: -2\n"},
		{"bad profile section", "profiles:\n  scalp:\n    bogus:\n      x: 1\n"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			path := writeConfig(t, tc.body)
			_, err := Load(path)
			assert.Error(t, err)
		})
	}
}

func TestLoad_ProfileOverridesAccepted(t *testing.T) {
	path := writeConfig(t, `
profiles:
  swing:
    mom:
      ret_15: 3.0
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 3.0, cfg.Profiles["swing"]["mom"]["ret_15"])
}
