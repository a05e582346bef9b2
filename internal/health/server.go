// Package health exposes the operational surface: venue health as JSON and
// Prometheus metrics.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/sawpanic/perpscan/internal/domain"
)

// HealthSource reports the current venue health and cycle position.
type HealthSource interface {
	Health() domain.VenueHealth
}

// CycleSource reports the last completed cycle.
type CycleSource interface {
	LastStats() domain.CycleStats
}

// Server is the thin health/metrics listener.
type Server struct {
	http *http.Server
}

type healthResponse struct {
	Status string             `json:"status"`
	Venue  domain.VenueHealth `json:"venue"`
	Cycle  domain.CycleStats  `json:"last_cycle"`
}

// NewServer builds the listener. It does not start serving.
func NewServer(addr string, venue HealthSource, cycles CycleSource) *Server {
	r := mux.NewRouter()
	r.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		vh := venue.Health()
		resp := healthResponse{Status: "ok", Venue: vh, Cycle: cycles.LastStats()}
		code := http.StatusOK
		if vh.Circuit == domain.CircuitOpen {
			resp.Status = "degraded"
			code = http.StatusServiceUnavailable
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		if err := json.NewEncoder(w).Encode(resp); err != nil {
			log.Error().Err(err).Msg("healthz encode failed")
		}
	}).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	return &Server{
		http: &http.Server{
			Addr:              addr,
			Handler:           r,
			ReadHeaderTimeout: 5 * time.Second,
		},
	}
}

// Start serves until the listener fails or Shutdown is called.
func (s *Server) Start() error {
	log.Info().Str("addr", s.http.Addr).Msg("health listener starting")
	if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}
