// Package telemetry registers the scanner's Prometheus series. Package-level
// promauto collectors keep call sites one-liners; the default registry is
// served by the health HTTP listener.
package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/sawpanic/perpscan/internal/domain"
)

var (
	CycleDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "perpscan_cycle_duration_seconds",
			Help:    "Wall-clock duration of one scan cycle",
			Buckets: []float64{0.5, 1, 2.5, 5, 10, 15, 30, 60},
		},
		[]string{"venue"},
	)

	CycleSymbols = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "perpscan_cycle_symbols",
			Help: "Per-cycle symbol counts by outcome",
		},
		[]string{"venue", "outcome"}, // attempted|succeeded|failed|filtered|flagged|ranked
	)

	CyclesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "perpscan_cycles_total",
			Help: "Completed scan cycles by result",
		},
		[]string{"venue", "result"}, // ok|skipped|degraded
	)

	FetchLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "perpscan_fetch_duration_seconds",
			Help:    "Upstream fetch latency per venue",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"venue"},
	)

	FetchErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "perpscan_fetch_errors_total",
			Help: "Adapter errors by kind",
		},
		[]string{"venue", "kind"},
	)

	SinkWrites = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "perpscan_sink_writes_total",
			Help: "Sink write attempts by sink and result",
		},
		[]string{"sink", "result"}, // result: ok|error
	)

	CircuitState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "perpscan_circuit_state",
			Help: "Venue circuit state (0 closed, 1 half-open, 2 open)",
		},
		[]string{"venue"},
	)
)

// ObserveCycle publishes one cycle's stats.
func ObserveCycle(stats domain.CycleStats) {
	venue := stats.Venue
	CycleDuration.WithLabelValues(venue).Observe(stats.Duration.Seconds())
	CycleSymbols.WithLabelValues(venue, "attempted").Set(float64(stats.Attempted))
	CycleSymbols.WithLabelValues(venue, "succeeded").Set(float64(stats.Succeeded))
	CycleSymbols.WithLabelValues(venue, "failed").Set(float64(stats.Failed))
	CycleSymbols.WithLabelValues(venue, "filtered").Set(float64(stats.Filtered))
	CycleSymbols.WithLabelValues(venue, "flagged").Set(float64(stats.Flagged))
	CycleSymbols.WithLabelValues(venue, "ranked").Set(float64(stats.Ranked))

	switch {
	case stats.Skipped:
		CyclesTotal.WithLabelValues(venue, "skipped").Inc()
	case stats.Degraded:
		CyclesTotal.WithLabelValues(venue, "degraded").Inc()
	default:
		CyclesTotal.WithLabelValues(venue, "ok").Inc()
	}
}

// SetCircuitState publishes the venue breaker state as a gauge.
func SetCircuitState(venue string, state domain.CircuitState) {
	v := 0.0
	switch state {
	case domain.CircuitHalfOpen:
		v = 1
	case domain.CircuitOpen:
		v = 2
	}
	CircuitState.WithLabelValues(venue).Set(v)
}
