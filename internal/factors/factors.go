// Package factors computes cross-sectional edges: each cycle's snapshots are
// z-scored against their peers so the scoring engine works with relative
// standing rather than raw magnitudes. Edges are recomputed from scratch
// every cycle; there is no cross-cycle smoothing.
package factors

import (
	"math"

	"github.com/sawpanic/perpscan/internal/domain"
)

const clampZ = 3.0

// EnrichCrossSectional attaches liquidity/momentum/volatility/microstructure
// edges and the anomaly residual to every snapshot in place. It reports
// degraded=true when the universe is too small (< 2) to normalize, in which
// case all edges stay zero.
func EnrichCrossSectional(snaps []domain.SymbolSnapshot) (degraded bool) {
	if len(snaps) < 2 {
		return true
	}

	liquidity := zscore(collect(snaps, liquidityInput))
	momentum := zscore(collect(snaps, momentumInput))
	volatility := zscore(collect(snaps, volatilityInput))
	micro := zscore(collect(snaps, microPenaltyInput))
	anomaly := zscore(collect(snaps, anomalyInput))

	for i := range snaps {
		snaps[i].LiquidityEdge = round4(liquidity[i])
		snaps[i].MomentumEdge = round4(momentum[i])
		snaps[i].VolatilityEdge = round4(volatility[i])
		// Microstructure inputs are penalties; invert so higher is healthier.
		snaps[i].MicrostructureEdge = round4(-micro[i])
		snaps[i].AnomalyResidual = round4(anomaly[i])
	}
	return false
}

func liquidityInput(s domain.SymbolSnapshot) float64 {
	depth := math.Log1p(math.Max(s.Top5DepthUSDT, 0))
	volume := math.Log1p(math.Max(s.QuoteVolumeUSDT, 0))
	resilience := math.Log1p(math.Max(s.DepthToVolume, 0) + 1)
	spread := math.Log1p(math.Max(s.SpreadBPS, 0.01))
	slip := math.Log1p(math.Max(s.SlipBPS, 0.01))
	return depth + volume + resilience - spread - slip
}

func momentumInput(s domain.SymbolSnapshot) float64 {
	// Medium horizon dominates; 1-bar momentum is mostly noise intraday.
	return s.Ret15*0.7 + s.Ret1*0.3
}

func volatilityInput(s domain.SymbolSnapshot) float64 {
	atr := math.Max(s.ATRPct, 0)
	regime := math.Max(0, 1+s.VolatilityRegime)
	return atr * regime
}

func microPenaltyInput(s domain.SymbolSnapshot) float64 {
	imbalance := math.Abs(s.OrderFlowImbalance) * 40
	anomaly := math.Max(0, s.AnomalyScore)
	velocity := math.Abs(s.PriceVelocity) * 2
	volume := math.Max(0, s.VolumeZScore) * 5
	return imbalance + anomaly + velocity + volume
}

// Manipulation scores are attached after normalization, so only the raw
// anomaly signature feeds the residual.
func anomalyInput(s domain.SymbolSnapshot) float64 {
	return math.Max(0, s.AnomalyScore)
}

func collect(snaps []domain.SymbolSnapshot, fn func(domain.SymbolSnapshot) float64) []float64 {
	out := make([]float64, len(snaps))
	for i, s := range snaps {
		out[i] = fn(s)
	}
	return out
}

func zscore(values []float64) []float64 {
	out := make([]float64, len(values))
	if len(values) < 2 {
		return out
	}
	mu := 0.0
	for _, v := range values {
		mu += v
	}
	mu /= float64(len(values))
	sigma := 0.0
	for _, v := range values {
		sigma += (v - mu) * (v - mu)
	}
	sigma = math.Sqrt(sigma / float64(len(values)))
	if sigma <= 1e-9 {
		return out
	}
	for i, v := range values {
		z := (v - mu) / sigma
		if z > clampZ {
			z = clampZ
		} else if z < -clampZ {
			z = -clampZ
		}
		out[i] = z
	}
	return out
}

func round4(v float64) float64 { return math.Round(v*10_000) / 10_000 }
