package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/sawpanic/perpscan/internal/config"
	"github.com/sawpanic/perpscan/internal/gateway"
	"github.com/sawpanic/perpscan/internal/gateway/binance"
	"github.com/sawpanic/perpscan/internal/health"
	"github.com/sawpanic/perpscan/internal/manip"
	"github.com/sawpanic/perpscan/internal/scan"
	"github.com/sawpanic/perpscan/internal/scoring"
	"github.com/sawpanic/perpscan/internal/store/postgres"
	"github.com/sawpanic/perpscan/internal/store/rediscache"
)

func runScan(cmd *cobra.Command, _ []string) error {
	configPath, _ := cmd.Flags().GetString("config")
	once, _ := cmd.Flags().GetBool("once")
	profileFlag, _ := cmd.Flags().GetString("profile")

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	applyLogLevel(cfg.LogLevel)

	profileName := cfg.Scan.DefaultProfile
	if profileFlag != "" {
		profileName = profileFlag
	}
	profile, err := scoring.ResolveProfile(profileName, cfg.Profiles[profileName])
	if err != nil {
		return err
	}

	client := binance.New(cfg.Venue.QuoteAsset, cfg.Venue.TopByQuoteVolume,
		cfg.Scan.BarInterval, cfg.Scan.BarLimit, cfg.Scan.BookDepth)
	gw := gateway.New(client, cfg.Gateway, cfg.Venue.UniverseCacheTTL)

	cache := rediscache.New(cfg.Redis)

	var store scan.DurableSink
	if cfg.Postgres.URL != "" {
		pg, err := postgres.New(cfg.Postgres)
		if err != nil {
			return fmt.Errorf("open durable store: %w", err)
		}
		defer pg.Close()
		store = pg
	} else {
		log.Info().Msg("durable store disabled, no postgres url configured")
	}

	detector := manip.NewDetector(cfg.Manip, cfg.Filters.TestNotionalUSDT)
	engine := scoring.NewEngine(cfg.Filters, cfg.Scan.CarryEnabled())
	orch := scan.New(*cfg, gw, detector, engine, profile, cache, store)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if once {
		stats := orch.RunCycle(ctx)
		if ranking, ok := orch.LastRanking(); ok {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			if err := enc.Encode(ranking); err != nil {
				return err
			}
		}
		if stats.Skipped {
			return fmt.Errorf("cycle skipped, venue unavailable")
		}
		return nil
	}

	srv := health.NewServer(cfg.HTTP.Addr, gw, orch)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return orch.Run(gctx) })
	g.Go(srv.Start)
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	log.Info().Str("venue", cfg.Venue.ID).Str("profile", profileName).
		Dur("interval", cfg.Scan.Interval).Msg("scanner started")
	if err := g.Wait(); err != nil && err != context.Canceled {
		return err
	}
	return nil
}

func applyLogLevel(level string) {
	parsed, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		parsed = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(parsed)
}
