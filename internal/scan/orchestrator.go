// Package scan drives the periodic scan cycle: fetch the universe under
// bounded concurrency, build and enrich snapshots, run the manipulation
// detector, score and rank, then publish to the sinks.
package scan

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/sawpanic/perpscan/internal/config"
	"github.com/sawpanic/perpscan/internal/domain"
	"github.com/sawpanic/perpscan/internal/factors"
	"github.com/sawpanic/perpscan/internal/manip"
	"github.com/sawpanic/perpscan/internal/metrics"
	"github.com/sawpanic/perpscan/internal/scoring"
	"github.com/sawpanic/perpscan/internal/telemetry"
)

// Fetcher is the venue-facing surface the orchestrator consumes. The
// gateway implements it.
type Fetcher interface {
	Venue() string
	Universe(ctx context.Context) ([]string, error)
	FetchSymbolState(ctx context.Context, symbol string) (domain.SymbolState, error)
	CircuitOpen() bool
	Health() domain.VenueHealth
}

// CacheSink receives the hot-path cycle output.
type CacheSink interface {
	PublishRanking(ctx context.Context, ranking domain.Ranking) error
	PublishSnapshots(ctx context.Context, snaps []domain.SymbolSnapshot) error
}

// DurableSink receives the append-only cycle output. Optional.
type DurableSink interface {
	InsertMinuteAggs(ctx context.Context, snaps []domain.SymbolSnapshot) error
	InsertRankings(ctx context.Context, ranking domain.Ranking) error
}

// Phase is the orchestrator's current position in the cycle state machine.
type Phase string

const (
	PhaseIdle        Phase = "idle"
	PhaseFetching    Phase = "fetching"
	PhaseAggregating Phase = "aggregating"
	PhasePublishing  Phase = "publishing"
	PhaseBackoff     Phase = "backoff"
)

// Orchestrator runs scan cycles for one venue. Cycles are serialized;
// Run never starts a cycle before the previous one has finished.
type Orchestrator struct {
	cfg      config.Config
	fetcher  Fetcher
	detector *manip.Detector
	engine   *scoring.Engine
	profile  scoring.Profile
	cache    CacheSink
	store    DurableSink

	mu          sync.Mutex
	phase       Phase
	lastRanking *domain.Ranking
	lastStats   domain.CycleStats
}

// New wires an orchestrator. store may be nil when the durable sink is
// disabled.
func New(cfg config.Config, fetcher Fetcher, detector *manip.Detector, engine *scoring.Engine, profile scoring.Profile, cache CacheSink, store DurableSink) *Orchestrator {
	return &Orchestrator{
		cfg:      cfg,
		fetcher:  fetcher,
		detector: detector,
		engine:   engine,
		profile:  profile,
		cache:    cache,
		store:    store,
		phase:    PhaseIdle,
	}
}

// Run drives cycles on the configured interval until ctx is cancelled. The
// first cycle fires immediately.
func (o *Orchestrator) Run(ctx context.Context) error {
	ticker := time.NewTicker(o.cfg.Scan.Interval)
	defer ticker.Stop()

	o.RunCycle(ctx)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			o.RunCycle(ctx)
		}
	}
}

// RunCycle executes one full cycle and reports its stats. A cycle whose
// venue breaker is open is skipped entirely; no partial ranking is ever
// published.
func (o *Orchestrator) RunCycle(ctx context.Context) domain.CycleStats {
	venue := o.fetcher.Venue()
	stats := domain.CycleStats{Venue: venue, StartedAt: time.Now()}

	defer func() {
		stats.Duration = time.Since(stats.StartedAt)
		o.finishCycle(stats)
	}()

	if o.fetcher.CircuitOpen() {
		o.setPhase(PhaseBackoff)
		stats.Skipped = true
		log.Warn().Str("venue", venue).Msg("circuit open, skipping cycle")
		return stats
	}

	cycleCtx, cancel := context.WithTimeout(ctx, o.cfg.Scan.CycleDeadline)
	defer cancel()

	o.setPhase(PhaseFetching)
	universe, err := o.universe(cycleCtx)
	if err != nil {
		stats.Skipped = true
		log.Error().Str("venue", venue).Err(err).Msg("universe unavailable, skipping cycle")
		return stats
	}
	stats.Attempted = len(universe)

	states := o.fetchAll(cycleCtx, universe, &stats)

	o.setPhase(PhaseAggregating)
	snaps, pairs := o.buildSnapshots(states, &stats)
	stats.Degraded = factors.EnrichCrossSectional(snaps)
	if stats.Degraded {
		log.Warn().Str("venue", venue).Int("snapshots", len(snaps)).
			Msg("cross-sectional edges degraded, too few symbols")
	}
	for i := range snaps {
		assessment := o.detector.Assess(snaps[i], pairs[i].Book, lastBar(pairs[i].Bars))
		snaps[i].ManipScore = assessment.Score
		snaps[i].ManipFlags = assessment.Flags
		if assessment.Flagged() {
			stats.Flagged++
		}
	}

	entries, filtered := o.engine.Rank(snaps, o.profile, o.cfg.Scan.TopN)
	stats.Filtered = filtered
	stats.Ranked = len(entries)
	ranking := domain.Ranking{
		Venue:   venue,
		Profile: o.profile.Name,
		TS:      stats.StartedAt.UTC(),
		Entries: entries,
	}

	o.setPhase(PhasePublishing)
	o.publish(ctx, ranking, snaps)

	o.mu.Lock()
	o.lastRanking = &ranking
	o.mu.Unlock()
	return stats
}

func (o *Orchestrator) universe(ctx context.Context) ([]string, error) {
	if explicit := o.cfg.Venue.ExplicitUniverse; len(explicit) > 0 {
		out := append([]string(nil), explicit...)
		sort.Strings(out)
		return out, nil
	}
	return o.fetcher.Universe(ctx)
}

type fetched struct {
	domain.SymbolState
	ok bool
}

func (o *Orchestrator) fetchAll(ctx context.Context, universe []string, stats *domain.CycleStats) []fetched {
	results := make([]fetched, len(universe))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.cfg.Scan.Concurrency)
	for i, symbol := range universe {
		i, symbol := i, symbol
		g.Go(func() error {
			state, err := o.fetcher.FetchSymbolState(gctx, symbol)
			if err != nil {
				log.Debug().Str("venue", o.fetcher.Venue()).Str("symbol", symbol).
					Err(err).Msg("symbol fetch failed")
				return nil
			}
			results[i] = fetched{SymbolState: state, ok: true}
			return nil
		})
	}
	g.Wait()

	for _, r := range results {
		if r.ok {
			stats.Succeeded++
		} else {
			stats.Failed++
		}
	}
	return results
}

// buildSnapshots converts fetched states to snapshots, dropping any symbol
// whose state is missing a mandatory field. The returned pairs slice is
// index-aligned with snaps and carries the raw state the detector needs.
func (o *Orchestrator) buildSnapshots(states []fetched, stats *domain.CycleStats) ([]domain.SymbolSnapshot, []domain.SymbolState) {
	snaps := make([]domain.SymbolSnapshot, 0, len(states))
	pairs := make([]domain.SymbolState, 0, len(states))
	for _, st := range states {
		if !st.ok {
			continue
		}
		snap, err := metrics.BuildSnapshot(st.SymbolState, o.cfg.Filters.TestNotionalUSDT)
		if err != nil {
			stats.Succeeded--
			stats.Failed++
			log.Debug().Str("venue", st.Venue).Str("symbol", st.Symbol).
				Err(err).Msg("snapshot incomplete, dropping symbol")
			continue
		}
		snaps = append(snaps, snap)
		pairs = append(pairs, st.SymbolState)
	}
	return snaps, pairs
}

// publish writes the cycle output to the sinks. Sink failures are logged
// and dropped; the in-memory ranking stays valid regardless.
func (o *Orchestrator) publish(ctx context.Context, ranking domain.Ranking, snaps []domain.SymbolSnapshot) {
	if err := o.cache.PublishSnapshots(ctx, snaps); err != nil {
		log.Error().Str("venue", ranking.Venue).Err(err).Msg("snapshot cache write failed")
	}
	if err := o.cache.PublishRanking(ctx, ranking); err != nil {
		log.Error().Str("venue", ranking.Venue).Err(err).Msg("ranking cache write failed")
	}
	if o.store == nil {
		return
	}
	if err := o.store.InsertMinuteAggs(ctx, snaps); err != nil {
		log.Error().Str("venue", ranking.Venue).Err(err).Msg("minute aggregate write failed")
	}
	if err := o.store.InsertRankings(ctx, ranking); err != nil {
		log.Error().Str("venue", ranking.Venue).Err(err).Msg("ranking store write failed")
	}
}

func (o *Orchestrator) finishCycle(stats domain.CycleStats) {
	o.setPhase(PhaseIdle)
	o.mu.Lock()
	o.lastStats = stats
	o.mu.Unlock()

	health := o.fetcher.Health()
	telemetry.ObserveCycle(stats)
	telemetry.SetCircuitState(health.Venue, health.Circuit)

	log.Info().
		Str("venue", stats.Venue).
		Dur("duration", stats.Duration).
		Int("attempted", stats.Attempted).
		Int("succeeded", stats.Succeeded).
		Int("failed", stats.Failed).
		Int("filtered", stats.Filtered).
		Int("flagged", stats.Flagged).
		Int("ranked", stats.Ranked).
		Bool("degraded", stats.Degraded).
		Bool("skipped", stats.Skipped).
		Msg("scan cycle complete")
}

func (o *Orchestrator) setPhase(p Phase) {
	o.mu.Lock()
	o.phase = p
	o.mu.Unlock()
}

// Phase reports where the orchestrator currently is in the cycle.
func (o *Orchestrator) Phase() Phase {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.phase
}

// LastStats returns the most recently completed cycle's stats.
func (o *Orchestrator) LastStats() domain.CycleStats {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.lastStats
}

// LastRanking returns the most recent in-memory ranking, if any cycle has
// published one.
func (o *Orchestrator) LastRanking() (domain.Ranking, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.lastRanking == nil {
		return domain.Ranking{}, false
	}
	return *o.lastRanking, true
}

func lastBar(bars []domain.Bar) domain.Bar {
	if len(bars) == 0 {
		return domain.Bar{}
	}
	return bars[len(bars)-1]
}
