package main

import (
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/sawpanic/perpscan/internal/config"
)

const (
	appName = "perpscan"
	version = "v1.2.0"
)

// defaultHealthAddr points at the default listener so the probe and the
// server cannot drift apart.
var defaultHealthAddr = "http://localhost" + config.DefaultHTTPAddr

func main() {
	zerolog.TimeFieldFormat = time.RFC3339
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})

	rootCmd := &cobra.Command{
		Use:     appName,
		Short:   "Perpetual swap market scanner",
		Version: version,
		Long: `perpscan continuously scans a perpetual futures venue, ranks the
universe by liquidity, volatility, momentum and cost, and flags symbols
showing signs of manipulation. Rankings are published to Redis and
optionally persisted to Postgres.`,
	}

	scanCmd := &cobra.Command{
		Use:   "scan",
		Short: "Run the scan loop",
		Long:  "Fetch, score, and rank the perp universe on a fixed interval, publishing each cycle's ranking.",
		RunE:  runScan,
	}
	scanCmd.Flags().String("config", "config/perpscan.yaml", "Path to the YAML config file")
	scanCmd.Flags().Bool("once", false, "Run a single cycle, print the ranking, and exit")
	scanCmd.Flags().String("profile", "", "Scoring profile override (scalp|swing|news)")

	healthCmd := &cobra.Command{
		Use:   "health",
		Short: "Query a running scanner's health endpoint",
		RunE:  runHealth,
	}
	healthCmd.Flags().String("addr", defaultHealthAddr, "Base URL of the running scanner")

	profilesCmd := &cobra.Command{
		Use:   "profiles",
		Short: "List the built-in scoring profiles",
		RunE:  runProfiles,
	}

	rootCmd.AddCommand(scanCmd, healthCmd, profilesCmd)

	if err := rootCmd.Execute(); err != nil {
		log.Error().Err(err).Msg("command failed")
		os.Exit(1)
	}
}
