// Package rediscache is the hot hand-off point between the scan loop and
// read-side consumers. The orchestrator is the only writer; readers treat a
// miss as "no fresh data", not an error.
package rediscache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/sawpanic/perpscan/internal/config"
	"github.com/sawpanic/perpscan/internal/domain"
	"github.com/sawpanic/perpscan/internal/telemetry"
)

// Cache writes rankings and snapshots with short TTLs.
type Cache struct {
	client       redis.Cmdable
	rankingsTTL  time.Duration
	snapshotsTTL time.Duration
}

// New connects a cache to Redis.
func New(cfg config.RedisConfig) *Cache {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     10,
		MinIdleConns: 2,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})
	return NewWithClient(client, cfg.RankingsTTL, cfg.SnapshotsTTL)
}

// NewWithClient wires an existing client. Used by tests with redismock.
func NewWithClient(client redis.Cmdable, rankingsTTL, snapshotsTTL time.Duration) *Cache {
	return &Cache{client: client, rankingsTTL: rankingsTTL, snapshotsTTL: snapshotsTTL}
}

func rankingKey(venue string) string { return fmt.Sprintf("perpscan:%s:latest_ranking", venue) }

func snapshotKey(venue, symbol string) string {
	return fmt.Sprintf("perpscan:%s:%s:latest_snapshot", venue, symbol)
}

// PublishRanking stores the cycle's ordered ranking.
func (c *Cache) PublishRanking(ctx context.Context, ranking domain.Ranking) error {
	payload, err := json.Marshal(ranking)
	if err != nil {
		return fmt.Errorf("%w: marshal ranking: %v", domain.ErrSinkWrite, err)
	}
	if err := c.client.Set(ctx, rankingKey(ranking.Venue), payload, c.rankingsTTL).Err(); err != nil {
		telemetry.SinkWrites.WithLabelValues("redis", "error").Inc()
		return fmt.Errorf("%w: ranking: %v", domain.ErrSinkWrite, err)
	}
	telemetry.SinkWrites.WithLabelValues("redis", "ok").Inc()
	return nil
}

// PublishSnapshots stores each snapshot under its own key. Failures after
// the first abort the batch; the cycle does not block on the remainder.
func (c *Cache) PublishSnapshots(ctx context.Context, snaps []domain.SymbolSnapshot) error {
	pipe := c.client.Pipeline()
	for _, snap := range snaps {
		payload, err := json.Marshal(snap)
		if err != nil {
			return fmt.Errorf("%w: marshal snapshot %s: %v", domain.ErrSinkWrite, snap.Symbol, err)
		}
		pipe.Set(ctx, snapshotKey(snap.Venue, snap.Symbol), payload, c.snapshotsTTL)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		telemetry.SinkWrites.WithLabelValues("redis", "error").Inc()
		return fmt.Errorf("%w: snapshots: %v", domain.ErrSinkWrite, err)
	}
	telemetry.SinkWrites.WithLabelValues("redis", "ok").Inc()
	return nil
}

// GetRanking reads the latest ranking for a venue. ok=false is a cache miss.
func (c *Cache) GetRanking(ctx context.Context, venue string) (domain.Ranking, bool, error) {
	raw, err := c.client.Get(ctx, rankingKey(venue)).Result()
	if err == redis.Nil {
		return domain.Ranking{}, false, nil
	}
	if err != nil {
		return domain.Ranking{}, false, fmt.Errorf("get ranking: %w", err)
	}
	var ranking domain.Ranking
	if err := json.Unmarshal([]byte(raw), &ranking); err != nil {
		return domain.Ranking{}, false, fmt.Errorf("decode ranking: %w", err)
	}
	return ranking, true, nil
}

// GetSnapshot reads one symbol's latest snapshot. ok=false is a cache miss.
func (c *Cache) GetSnapshot(ctx context.Context, venue, symbol string) (domain.SymbolSnapshot, bool, error) {
	raw, err := c.client.Get(ctx, snapshotKey(venue, symbol)).Result()
	if err == redis.Nil {
		return domain.SymbolSnapshot{}, false, nil
	}
	if err != nil {
		return domain.SymbolSnapshot{}, false, fmt.Errorf("get snapshot: %w", err)
	}
	var snap domain.SymbolSnapshot
	if err := json.Unmarshal([]byte(raw), &snap); err != nil {
		return domain.SymbolSnapshot{}, false, fmt.Errorf("decode snapshot: %w", err)
	}
	return snap, true, nil
}
