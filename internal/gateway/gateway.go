// Package gateway wraps a venue's market-data client with timeouts, retries,
// rate limiting, and a circuit breaker, and owns the venue's health state.
package gateway

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/sawpanic/perpscan/internal/config"
	"github.com/sawpanic/perpscan/internal/domain"
	"github.com/sawpanic/perpscan/internal/net/circuit"
	"github.com/sawpanic/perpscan/internal/net/ratelimit"
	"github.com/sawpanic/perpscan/internal/telemetry"
)

// VenueClient is the raw upstream client implemented per exchange.
// Implementations mark permanent upstream rejections with MarkRejected so
// the gateway can classify them.
type VenueClient interface {
	Venue() string
	// ListPerpSymbols returns the tradable linear perp universe.
	ListPerpSymbols(ctx context.Context) ([]string, error)
	// FetchSymbolState fetches ticker, book, bars, funding, and open
	// interest for one symbol. Funding/OI are optional and may be nil.
	FetchSymbolState(ctx context.Context, symbol string) (domain.SymbolState, error)
}

type rejectionError struct{ err error }

func (e *rejectionError) Error() string { return e.err.Error() }
func (e *rejectionError) Unwrap() error { return e.err }

// MarkRejected tags an upstream error as a venue-side rejection (bad symbol,
// auth, request refused) rather than a transport fault.
func MarkRejected(err error) error {
	if err == nil {
		return nil
	}
	return &rejectionError{err: err}
}

// Gateway is the failure-isolating front of one venue.
type Gateway struct {
	client  VenueClient
	cfg     config.GatewayConfig
	breaker *circuit.Breaker
	limiter *ratelimit.Limiter

	mu          sync.Mutex
	lastLatency time.Duration
	lastError   string
	lastSuccess time.Time

	universeMu  sync.Mutex
	universe    []string
	universeExp time.Time
	universeTTL time.Duration
}

// New builds a gateway around a venue client.
func New(client VenueClient, cfg config.GatewayConfig, universeTTL time.Duration) *Gateway {
	return &Gateway{
		client: client,
		cfg:    cfg,
		breaker: circuit.NewBreaker(circuit.Config{
			FailureThreshold: cfg.FailureThreshold,
			FailureWindow:    cfg.FailureWindow,
			Cooldown:         cfg.Cooldown,
			CooldownMaxMult:  cfg.CooldownMaxMult,
		}),
		limiter:     ratelimit.NewLimiter(cfg.RateLimitPerSec, cfg.RateLimitBurst),
		universeTTL: universeTTL,
	}
}

// Venue returns the venue identifier.
func (g *Gateway) Venue() string { return g.client.Venue() }

// FetchSymbolState fetches one symbol's state under the breaker, retry, and
// timeout policy. Failures surface as *domain.AdapterError.
func (g *Gateway) FetchSymbolState(ctx context.Context, symbol string) (domain.SymbolState, error) {
	var state domain.SymbolState
	err := g.call(ctx, symbol, func(callCtx context.Context) error {
		var err error
		state, err = g.client.FetchSymbolState(callCtx, symbol)
		return err
	})
	if err != nil {
		return domain.SymbolState{}, err
	}
	return state, nil
}

// Universe returns the venue's perp symbol list, cached with its own TTL so
// exchange-info calls do not run every cycle.
func (g *Gateway) Universe(ctx context.Context) ([]string, error) {
	g.universeMu.Lock()
	defer g.universeMu.Unlock()
	if len(g.universe) > 0 && time.Now().Before(g.universeExp) {
		return g.universe, nil
	}

	var symbols []string
	err := g.call(ctx, "", func(callCtx context.Context) error {
		var err error
		symbols, err = g.client.ListPerpSymbols(callCtx)
		return err
	})
	if err != nil {
		// Serve the stale universe if we have one; stale symbols beat an
		// empty cycle.
		if len(g.universe) > 0 {
			log.Warn().Str("venue", g.Venue()).Err(err).Msg("universe refresh failed, serving stale list")
			return g.universe, nil
		}
		return nil, err
	}
	g.universe = symbols
	g.universeExp = time.Now().Add(g.universeTTL)
	return symbols, nil
}

func (g *Gateway) call(ctx context.Context, symbol string, fn func(ctx context.Context) error) error {
	venue := g.Venue()
	if !g.breaker.Allow() {
		telemetry.FetchErrors.WithLabelValues(venue, string(domain.ErrKindCircuitOpen)).Inc()
		return &domain.AdapterError{
			Kind: domain.ErrKindCircuitOpen, Venue: venue, Symbol: symbol, Err: circuit.ErrOpen,
		}
	}

	backoff := g.cfg.RetryBackoff
	var lastErr error
	for attempt := 0; attempt < g.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
			}
			backoff *= 2
			if backoff > g.cfg.RetryBackoffMax {
				backoff = g.cfg.RetryBackoffMax
			}
		}
		if ctx.Err() != nil {
			lastErr = ctx.Err()
			break
		}

		if err := g.limiter.Wait(ctx, venue); err != nil {
			lastErr = err
			break
		}

		callCtx, cancel := context.WithTimeout(ctx, g.cfg.CallTimeout)
		started := time.Now()
		err := fn(callCtx)
		latency := time.Since(started)
		cancel()

		if err == nil {
			g.breaker.RecordSuccess()
			g.recordSuccess(latency)
			telemetry.FetchLatency.WithLabelValues(venue).Observe(latency.Seconds())
			return nil
		}
		lastErr = err
		// Rejections are permanent for this request; retrying burns budget
		// for the same answer.
		if isRejected(err) {
			break
		}
	}

	kind := classify(lastErr)
	g.breaker.RecordFailure()
	g.recordFailure(lastErr)
	telemetry.FetchErrors.WithLabelValues(venue, string(kind)).Inc()
	return &domain.AdapterError{Kind: kind, Venue: venue, Symbol: symbol, Err: lastErr}
}

func (g *Gateway) recordSuccess(latency time.Duration) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.lastLatency = latency
	g.lastError = ""
	g.lastSuccess = time.Now()
}

func (g *Gateway) recordFailure(err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err != nil {
		g.lastError = err.Error()
	}
}

// Health snapshots the venue's externally visible health.
func (g *Gateway) Health() domain.VenueHealth {
	g.mu.Lock()
	defer g.mu.Unlock()
	return domain.VenueHealth{
		Venue:               g.Venue(),
		Circuit:             domain.CircuitState(g.breaker.State().String()),
		ConsecutiveFailures: g.breaker.ConsecutiveFailures(),
		CooldownRemaining:   g.breaker.CooldownRemaining().Seconds(),
		LastLatencyMS:       float64(g.lastLatency.Microseconds()) / 1000,
		LastError:           g.lastError,
		LastSuccess:         g.lastSuccess,
	}
}

// CircuitOpen reports whether the venue is currently failing fast.
func (g *Gateway) CircuitOpen() bool {
	return g.breaker.State() == circuit.StateOpen
}

func isRejected(err error) bool {
	var re *rejectionError
	return errors.As(err, &re)
}

func classify(err error) domain.AdapterErrorKind {
	switch {
	case err == nil:
		return domain.ErrKindTransport
	case errors.Is(err, context.DeadlineExceeded):
		return domain.ErrKindTimeout
	case isRejected(err):
		return domain.ErrKindRejected
	default:
		return domain.ErrKindTransport
	}
}
