package health

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sawpanic/perpscan/internal/domain"
)

type staticHealth struct{ h domain.VenueHealth }

func (s staticHealth) Health() domain.VenueHealth { return s.h }

type staticCycles struct{ s domain.CycleStats }

func (c staticCycles) LastStats() domain.CycleStats { return c.s }

func TestHealthz_OK(t *testing.T) {
	srv := NewServer(":0",
		staticHealth{h: domain.VenueHealth{Venue: "binance", Circuit: domain.CircuitClosed}},
		staticCycles{s: domain.CycleStats{Venue: "binance", Ranked: 12}},
	)

	rec := httptest.NewRecorder()
	srv.http.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var resp healthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, "binance", resp.Venue.Venue)
	assert.Equal(t, 12, resp.Cycle.Ranked)
}

func TestHealthz_DegradedWhenCircuitOpen(t *testing.T) {
	srv := NewServer(":0",
		staticHealth{h: domain.VenueHealth{Venue: "binance", Circuit: domain.CircuitOpen}},
		staticCycles{},
	)

	rec := httptest.NewRecorder()
	srv.http.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	var resp healthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "degraded", resp.Status)
}

func TestMetricsEndpointServes(t *testing.T) {
	srv := NewServer(":0", staticHealth{}, staticCycles{})

	rec := httptest.NewRecorder()
	srv.http.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}
