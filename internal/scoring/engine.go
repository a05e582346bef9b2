package scoring

import (
	"math"
	"sort"

	"github.com/sawpanic/perpscan/internal/config"
	"github.com/sawpanic/perpscan/internal/domain"
)

const (
	// ManipPenaltyWeight discounts the final score per manipulation point.
	ManipPenaltyWeight = 0.4
	// ConfidencePenaltyWeight is steeper: confidence is a trust measure,
	// not a ranking key, so manipulation hits it harder.
	ConfidencePenaltyWeight = 0.6

	biasThresholdPct = 0.15
)

// Engine applies hard filters and the profile-weighted blend.
type Engine struct {
	filters      config.FilterConfig
	includeCarry bool
}

// NewEngine builds a scoring engine with the given hard filters.
func NewEngine(filters config.FilterConfig, includeCarry bool) *Engine {
	return &Engine{filters: filters, includeCarry: includeCarry}
}

// Score evaluates one snapshot. ok=false means a hard filter rejected the
// symbol: it is excluded from the ranking entirely, never merely penalized.
func (e *Engine) Score(snap domain.SymbolSnapshot, profile Profile) (domain.RankingEntry, bool) {
	if snap.QuoteVolumeUSDT < e.filters.MinQuoteVolumeUSDT || snap.SpreadBPS > e.filters.MaxSpreadBPS {
		return domain.RankingEntry{}, false
	}

	bd := domain.ScoreBreakdown{MomentumScale: 1.0}

	bd.Liquidity = profile.Liquidity["qvol"]*scaleLog(snap.QuoteVolumeUSDT, 1_000_000) +
		profile.Liquidity["depth"]*scaleLog(snap.Top5DepthUSDT, 100_000)

	bd.Volatility = profile.Vol["atr"] * snap.ATRPct

	// Hot volatility regimes mean momentum is less trustworthy.
	if snap.VolatilityRegime > 1.0 {
		bd.MomentumScale = 0.7
	}
	bd.Momentum = bd.MomentumScale * (profile.Momentum["ret_15"]*snap.Ret15 + profile.Momentum["ret_1"]*snap.Ret1)

	bd.Cost = profile.Cost["spread"]*snap.SpreadBPS + profile.Cost["slip"]*snap.SlipBPS

	if e.includeCarry {
		// Sign-normalized: negative funding pays the long side, so carry
		// contribution is the negated funding/basis.
		if snap.Funding8hPct != nil {
			bd.Carry += profile.Carry["funding"] * -*snap.Funding8hPct
		}
		if snap.BasisBPS != nil {
			bd.Carry += profile.Carry["basis"] * (-*snap.BasisBPS / 100)
		}
	}

	bd.StructureBonus = profile.Structure["volume_z"]*clamp(snap.VolumeZScore, -2.5, 6) +
		profile.Structure["velocity"]*clamp(snap.PriceVelocity, -5, 5)
	bd.StructurePenalty = profile.Structure["ofi"]*math.Abs(snap.OrderFlowImbalance) +
		profile.Structure["volatility"]*math.Abs(snap.VolatilityRegime) +
		profile.Structure["anomaly"]*(snap.AnomalyScore/10) +
		profile.Structure["residual"]*math.Max(0, snap.AnomalyResidual)

	bd.Edges = profile.Edges["liquidity"]*clamp(snap.LiquidityEdge, -3, 3) +
		profile.Edges["momentum"]*clamp(snap.MomentumEdge, -3, 3) +
		profile.Edges["volatility"]*clamp(snap.VolatilityEdge, -3, 3) +
		profile.Edges["micro"]*clamp(snap.MicrostructureEdge, -3, 3)

	bd.ManipPenalty = snap.ManipScore * ManipPenaltyWeight

	total := bd.Liquidity + bd.Volatility + bd.Momentum + bd.Carry +
		bd.StructureBonus + bd.Edges - bd.Cost - bd.StructurePenalty - bd.ManipPenalty

	return domain.RankingEntry{
		Symbol:     snap.Symbol,
		Score:      math.Round(total*10_000) / 10_000,
		Bias:       sideBias(snap),
		Confidence: confidence(snap, bd),
		Breakdown:  bd,
		Snapshot:   snap,
	}, true
}

// Rank scores a cycle's snapshots and returns the ordered ranking: score
// descending, symbol ascending on ties, truncated to topN (<= 0 keeps all).
// The filtered count reports hard-filter rejections.
func (e *Engine) Rank(snaps []domain.SymbolSnapshot, profile Profile, topN int) (entries []domain.RankingEntry, filtered int) {
	entries = make([]domain.RankingEntry, 0, len(snaps))
	for _, snap := range snaps {
		entry, ok := e.Score(snap, profile)
		if !ok {
			filtered++
			continue
		}
		entries = append(entries, entry)
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Score != entries[j].Score {
			return entries[i].Score > entries[j].Score
		}
		return entries[i].Symbol < entries[j].Symbol
	})
	if topN > 0 && len(entries) > topN {
		entries = entries[:topN]
	}
	return entries, filtered
}

// confidence is a 0-100 trust measure, discounted for manipulation risk and
// disorderly structure.
func confidence(snap domain.SymbolSnapshot, bd domain.ScoreBreakdown) float64 {
	c := 100.0
	c -= snap.ManipScore * ConfidencePenaltyWeight
	c -= math.Min(bd.StructurePenalty*2, 40)
	return math.Round(clamp(c, 0, 100)*100) / 100
}

func sideBias(snap domain.SymbolSnapshot) domain.SideBias {
	blended := snap.Ret15*0.7 + snap.Ret1*0.3
	switch {
	case blended > biasThresholdPct:
		return domain.BiasLong
	case blended < -biasThresholdPct:
		return domain.BiasShort
	default:
		return domain.BiasNeutral
	}
}

func scaleLog(value, divisor float64) float64 {
	return math.Log1p(math.Max(0, value) / divisor)
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
