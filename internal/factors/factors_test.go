package factors

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/sawpanic/perpscan/internal/domain"
)

func snap(symbol string, depth, volume, spread, slip, ret1, ret15 float64) domain.SymbolSnapshot {
	return domain.SymbolSnapshot{
		Symbol:          symbol,
		Venue:           "binance",
		Top5DepthUSDT:   depth,
		QuoteVolumeUSDT: volume,
		SpreadBPS:       spread,
		SlipBPS:         slip,
		Ret1:            ret1,
		Ret15:           ret15,
		ATRPct:          1.0,
	}
}

func TestEnrichCrossSectional_TooFewSymbolsIsDegraded(t *testing.T) {
	assert.True(t, EnrichCrossSectional(nil))

	one := []domain.SymbolSnapshot{snap("BTCUSDT", 1e6, 1e8, 1, 2, 0.1, 0.5)}
	assert.True(t, EnrichCrossSectional(one))
	assert.Zero(t, one[0].LiquidityEdge)
	assert.Zero(t, one[0].MomentumEdge)
}

func TestEnrichCrossSectional_RelativeOrdering(t *testing.T) {
	snaps := []domain.SymbolSnapshot{
		snap("DEEPUSDT", 5e6, 5e8, 1, 1, 0.2, 1.0),
		snap("MIDUSDT", 1e6, 1e8, 3, 4, 0.0, 0.0),
		snap("THINUSDT", 5e4, 2e7, 7, 40, -0.3, -1.5),
	}
	degraded := EnrichCrossSectional(snaps)
	assert.False(t, degraded)

	assert.Greater(t, snaps[0].LiquidityEdge, snaps[1].LiquidityEdge)
	assert.Greater(t, snaps[1].LiquidityEdge, snaps[2].LiquidityEdge)
	assert.Greater(t, snaps[0].MomentumEdge, snaps[2].MomentumEdge)
}

func TestEnrichCrossSectional_ZScoresClamped(t *testing.T) {
	snaps := make([]domain.SymbolSnapshot, 0, 12)
	for i := 0; i < 11; i++ {
		snaps = append(snaps, snap("AAAUSDT", 1e6, 1e8, 2, 3, 0, 0))
	}
	// One wild outlier cannot exceed the clamp.
	snaps = append(snaps, snap("PUMPUSDT", 1e6, 1e8, 2, 3, 50, 300))

	EnrichCrossSectional(snaps)
	assert.Equal(t, clampZ, snaps[11].MomentumEdge)
	assert.GreaterOrEqual(t, snaps[0].MomentumEdge, -clampZ)
}

func TestEnrichCrossSectional_MicrostructurePenaltyInverted(t *testing.T) {
	clean := snap("CLEANUSDT", 1e6, 1e8, 2, 3, 0, 0)
	dirty := snap("DIRTYUSDT", 1e6, 1e8, 2, 3, 0, 0)
	dirty.AnomalyScore = 60
	dirty.OrderFlowImbalance = 0.9

	snaps := []domain.SymbolSnapshot{clean, dirty}
	EnrichCrossSectional(snaps)

	// Higher penalty input must come out as the lower (healthier-is-higher)
	// microstructure edge.
	assert.Greater(t, snaps[0].MicrostructureEdge, snaps[1].MicrostructureEdge)
	// The anomaly residual is not inverted; dirtier stays higher.
	assert.Greater(t, snaps[1].AnomalyResidual, snaps[0].AnomalyResidual)
}

func TestEnrichCrossSectional_ManipScoreDoesNotFeedEdges(t *testing.T) {
	plain := []domain.SymbolSnapshot{
		snap("AUSDT", 5e6, 5e8, 1, 1, 0.2, 1.0),
		snap("BUSDT", 1e6, 1e8, 3, 4, 0.0, 0.0),
	}
	scored := []domain.SymbolSnapshot{
		snap("AUSDT", 5e6, 5e8, 1, 1, 0.2, 1.0),
		snap("BUSDT", 1e6, 1e8, 3, 4, 0.0, 0.0),
	}
	// Detection runs after normalization, so a carried-over score must not
	// move any edge.
	scored[0].ManipScore = 95

	EnrichCrossSectional(plain)
	EnrichCrossSectional(scored)
	for i := range plain {
		assert.Equal(t, plain[i].LiquidityEdge, scored[i].LiquidityEdge)
		assert.Equal(t, plain[i].MomentumEdge, scored[i].MomentumEdge)
		assert.Equal(t, plain[i].VolatilityEdge, scored[i].VolatilityEdge)
		assert.Equal(t, plain[i].MicrostructureEdge, scored[i].MicrostructureEdge)
		assert.Equal(t, plain[i].AnomalyResidual, scored[i].AnomalyResidual)
	}
}

func TestEnrichCrossSectional_IdenticalInputsYieldZeroEdges(t *testing.T) {
	snaps := []domain.SymbolSnapshot{
		snap("AUSDT", 1e6, 1e8, 2, 3, 0.1, 0.4),
		snap("BUSDT", 1e6, 1e8, 2, 3, 0.1, 0.4),
		snap("CUSDT", 1e6, 1e8, 2, 3, 0.1, 0.4),
	}
	degraded := EnrichCrossSectional(snaps)
	assert.False(t, degraded)
	for _, s := range snaps {
		assert.Zero(t, s.LiquidityEdge)
		assert.Zero(t, s.MomentumEdge)
		assert.Zero(t, s.VolatilityEdge)
		assert.Zero(t, s.MicrostructureEdge)
	}
}
