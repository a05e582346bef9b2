// Package postgres is the append-only durable sink for per-minute aggregates
// and per-cycle rankings. Writes are asynchronous relative to cache
// publication; an outage here never blocks the pipeline.
package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker"

	"github.com/sawpanic/perpscan/internal/config"
	"github.com/sawpanic/perpscan/internal/domain"
	"github.com/sawpanic/perpscan/internal/telemetry"
)

// Store persists cycle output. A circuit breaker sheds writes while the
// database is down so a persistence outage costs one failed call per
// interval instead of piling up timeouts.
type Store struct {
	db      *sqlx.DB
	timeout time.Duration
	breaker *gobreaker.CircuitBreaker
}

// New opens the durable store and ensures the schema exists.
func New(cfg config.PostgresConfig) (*Store, error) {
	db, err := sqlx.Open("postgres", cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)

	st := gobreaker.Settings{Name: "postgres"}
	st.Timeout = 30 * time.Second
	st.ReadyToTrip = func(counts gobreaker.Counts) bool {
		return counts.ConsecutiveFailures >= 3
	}
	st.OnStateChange = func(name string, from, to gobreaker.State) {
		log.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).
			Msg("durable store breaker state change")
	}

	store := &Store{
		db:      db,
		timeout: cfg.WriteTimeout,
		breaker: gobreaker.NewCircuitBreaker(st),
	}
	if err := store.ensureSchema(context.Background()); err != nil {
		return nil, err
	}
	return store, nil
}

const schema = `
CREATE TABLE IF NOT EXISTS bars_1m (
	symbol        TEXT NOT NULL,
	venue         TEXT NOT NULL,
	ts            TIMESTAMPTZ NOT NULL,
	close         DOUBLE PRECISION NOT NULL,
	atr_pct       DOUBLE PRECISION,
	spread_bps    DOUBLE PRECISION,
	depth_usdt    DOUBLE PRECISION,
	mom_1m        DOUBLE PRECISION,
	mom_15m       DOUBLE PRECISION,
	funding_pct   DOUBLE PRECISION,
	open_interest DOUBLE PRECISION,
	basis_bps     DOUBLE PRECISION,
	manip_score   DOUBLE PRECISION,
	manip_flags   JSONB,
	PRIMARY KEY (symbol, venue, ts)
);

CREATE TABLE IF NOT EXISTS rankings (
	symbol      TEXT NOT NULL,
	venue       TEXT NOT NULL,
	ts          TIMESTAMPTZ NOT NULL,
	profile     TEXT NOT NULL,
	score       DOUBLE PRECISION NOT NULL,
	manip_score DOUBLE PRECISION,
	manip_flags JSONB,
	inputs_json JSONB NOT NULL,
	PRIMARY KEY (symbol, venue, ts, profile)
);`

func (s *Store) ensureSchema(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

// InsertMinuteAggs upserts one bars_1m row per snapshot.
func (s *Store) InsertMinuteAggs(ctx context.Context, snaps []domain.SymbolSnapshot) error {
	if len(snaps) == 0 {
		return nil
	}
	return s.write(ctx, "minute_aggs", func(ctx context.Context, tx *sqlx.Tx) error {
		stmt, err := tx.PreparexContext(ctx, `
			INSERT INTO bars_1m (symbol, venue, ts, close, atr_pct, spread_bps, depth_usdt,
				mom_1m, mom_15m, funding_pct, open_interest, basis_bps, manip_score, manip_flags)
			VALUES ($1, $2, date_trunc('minute', $3::timestamptz), $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
			ON CONFLICT (symbol, venue, ts) DO UPDATE SET
				close = EXCLUDED.close, atr_pct = EXCLUDED.atr_pct,
				spread_bps = EXCLUDED.spread_bps, depth_usdt = EXCLUDED.depth_usdt,
				mom_1m = EXCLUDED.mom_1m, mom_15m = EXCLUDED.mom_15m,
				funding_pct = EXCLUDED.funding_pct, open_interest = EXCLUDED.open_interest,
				basis_bps = EXCLUDED.basis_bps, manip_score = EXCLUDED.manip_score,
				manip_flags = EXCLUDED.manip_flags`)
		if err != nil {
			return err
		}
		defer stmt.Close()

		for _, snap := range snaps {
			flags, err := json.Marshal(snap.ManipFlags)
			if err != nil {
				return err
			}
			if _, err := stmt.ExecContext(ctx,
				snap.Symbol, snap.Venue, snap.TS, snap.Close, snap.ATRPct, snap.SpreadBPS,
				snap.Top5DepthUSDT, snap.Ret1, snap.Ret15, snap.Funding8hPct,
				snap.OpenInterest, snap.BasisBPS, snap.ManipScore, flags,
			); err != nil {
				return err
			}
		}
		return nil
	})
}

// InsertRankings appends the cycle's ranking rows.
func (s *Store) InsertRankings(ctx context.Context, ranking domain.Ranking) error {
	if len(ranking.Entries) == 0 {
		return nil
	}
	return s.write(ctx, "rankings", func(ctx context.Context, tx *sqlx.Tx) error {
		stmt, err := tx.PreparexContext(ctx, `
			INSERT INTO rankings (symbol, venue, ts, profile, score, manip_score, manip_flags, inputs_json)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			ON CONFLICT (symbol, venue, ts, profile) DO NOTHING`)
		if err != nil {
			return err
		}
		defer stmt.Close()

		for _, entry := range ranking.Entries {
			flags, err := json.Marshal(entry.Snapshot.ManipFlags)
			if err != nil {
				return err
			}
			inputs, err := json.Marshal(entry)
			if err != nil {
				return err
			}
			if _, err := stmt.ExecContext(ctx,
				entry.Symbol, ranking.Venue, ranking.TS, ranking.Profile,
				entry.Score, entry.Snapshot.ManipScore, flags, inputs,
			); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *Store) write(ctx context.Context, what string, fn func(ctx context.Context, tx *sqlx.Tx) error) error {
	_, err := s.breaker.Execute(func() (any, error) {
		ctx, cancel := context.WithTimeout(ctx, s.timeout)
		defer cancel()

		tx, err := s.db.BeginTxx(ctx, nil)
		if err != nil {
			return nil, err
		}
		defer tx.Rollback()

		if err := fn(ctx, tx); err != nil {
			return nil, err
		}
		return nil, tx.Commit()
	})
	if err != nil {
		telemetry.SinkWrites.WithLabelValues("postgres", "error").Inc()
		return fmt.Errorf("%w: %s: %v", domain.ErrSinkWrite, what, err)
	}
	telemetry.SinkWrites.WithLabelValues("postgres", "ok").Inc()
	return nil
}

// Close releases the connection pool.
func (s *Store) Close() error { return s.db.Close() }
