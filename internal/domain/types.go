// Package domain holds the data model shared by the scan pipeline stages.
package domain

import "time"

// BookLevel is a single price level of an order book side.
type BookLevel struct {
	Price float64 `json:"price"`
	Qty   float64 `json:"qty"`
}

// Notional returns the quote-denominated size resting at the level.
func (l BookLevel) Notional() float64 {
	if l.Price <= 0 || l.Qty <= 0 {
		return 0
	}
	return l.Price * l.Qty
}

// OrderBook is a depth snapshot, best levels first.
type OrderBook struct {
	Bids []BookLevel `json:"bids"`
	Asks []BookLevel `json:"asks"`
}

// Bar is one OHLCV candle.
type Bar struct {
	OpenTime time.Time `json:"open_time"`
	Open     float64   `json:"open"`
	High     float64   `json:"high"`
	Low      float64   `json:"low"`
	Close    float64   `json:"close"`
	Volume   float64   `json:"volume"`
}

// Ticker carries top-of-book and rolling 24h stats for a symbol.
type Ticker struct {
	Symbol      string  `json:"symbol"`
	Bid         float64 `json:"bid"`
	Ask         float64 `json:"ask"`
	Last        float64 `json:"last"`
	QuoteVolume float64 `json:"quote_volume"`
	IndexPrice  float64 `json:"index_price,omitempty"`
}

// SymbolState is the raw upstream market state for one symbol, as returned
// by the gateway. FundingRate and OpenInterest are optional; everything else
// is mandatory and a state missing any of it fails snapshot construction.
type SymbolState struct {
	Symbol       string    `json:"symbol"`
	Venue        string    `json:"venue"`
	Ticker       Ticker    `json:"ticker"`
	Book         OrderBook `json:"book"`
	Bars         []Bar     `json:"bars"`
	FundingRate  *float64  `json:"funding_rate,omitempty"`
	OpenInterest *float64  `json:"open_interest,omitempty"`
	FetchedAt    time.Time `json:"fetched_at"`
}

// SymbolSnapshot is the computed metric bundle for one symbol in one cycle.
// Edge fields are cross-sectional and attached by the normalizer stage;
// manipulation fields are attached by the detector stage.
type SymbolSnapshot struct {
	Symbol string    `json:"symbol"`
	Venue  string    `json:"venue"`
	TS     time.Time `json:"ts"`

	QuoteVolumeUSDT float64  `json:"qvol_usdt"`
	SpreadBPS       float64  `json:"spread_bps"`
	Top5DepthUSDT   float64  `json:"top5_depth_usdt"`
	ATRPct          float64  `json:"atr_pct"`
	Ret1            float64  `json:"ret_1"`
	Ret15           float64  `json:"ret_15"`
	SlipBPS         float64  `json:"slip_bps"`
	Funding8hPct    *float64 `json:"funding_8h_pct,omitempty"`
	OpenInterest    *float64 `json:"open_interest,omitempty"`
	BasisBPS        *float64 `json:"basis_bps,omitempty"`

	VolumeZScore       float64 `json:"volume_zscore"`
	OrderFlowImbalance float64 `json:"order_flow_imbalance"`
	VolatilityRegime   float64 `json:"volatility_regime"`
	PriceVelocity      float64 `json:"price_velocity"`
	AnomalyScore       float64 `json:"anomaly_score"`
	DepthToVolume      float64 `json:"depth_to_volume_ratio"`

	LiquidityEdge      float64 `json:"liquidity_edge"`
	MomentumEdge       float64 `json:"momentum_edge"`
	VolatilityEdge     float64 `json:"volatility_edge"`
	MicrostructureEdge float64 `json:"microstructure_edge"`
	AnomalyResidual    float64 `json:"anomaly_residual"`

	ManipScore float64  `json:"manip_score"`
	ManipFlags []string `json:"manip_flags,omitempty"`

	Close float64 `json:"close"`
}

// ManipulationAssessment is the detector output for one snapshot.
type ManipulationAssessment struct {
	Score    float64            `json:"score"`
	Flags    []string           `json:"flags"`
	Features map[string]float64 `json:"features"`
}

// Flagged reports whether any rule fired.
func (a ManipulationAssessment) Flagged() bool { return len(a.Flags) > 0 }

// ScoreBreakdown itemizes the contribution of each scoring component.
type ScoreBreakdown struct {
	Liquidity        float64 `json:"liquidity"`
	Volatility       float64 `json:"volatility"`
	Momentum         float64 `json:"momentum"`
	Carry            float64 `json:"carry"`
	StructureBonus   float64 `json:"structure_bonus"`
	StructurePenalty float64 `json:"structure_penalty"`
	Edges            float64 `json:"edges"`
	Cost             float64 `json:"cost"`
	ManipPenalty     float64 `json:"manip_penalty"`
	MomentumScale    float64 `json:"momentum_scale"`
}

// SideBias is the directional lean implied by a symbol's momentum.
type SideBias string

const (
	BiasLong    SideBias = "long"
	BiasShort   SideBias = "short"
	BiasNeutral SideBias = "neutral"
)

// RankingEntry is one row of a cycle's published ranking. Entries are
// ordered by descending score with lexical symbol order breaking ties.
type RankingEntry struct {
	Symbol     string         `json:"symbol"`
	Score      float64        `json:"score"`
	Bias       SideBias       `json:"bias"`
	Confidence float64        `json:"confidence"`
	Breakdown  ScoreBreakdown `json:"breakdown"`
	Snapshot   SymbolSnapshot `json:"snapshot"`
}

// Ranking is the full ordered output of one cycle for one profile.
type Ranking struct {
	Venue   string         `json:"venue"`
	Profile string         `json:"profile"`
	TS      time.Time      `json:"ts"`
	Entries []RankingEntry `json:"entries"`
}

// CircuitState mirrors the gateway breaker state for health reporting.
type CircuitState string

const (
	CircuitClosed   CircuitState = "closed"
	CircuitOpen     CircuitState = "open"
	CircuitHalfOpen CircuitState = "half-open"
)

// VenueHealth is the externally visible health of one venue's gateway.
type VenueHealth struct {
	Venue               string       `json:"venue"`
	Circuit             CircuitState `json:"circuit"`
	ConsecutiveFailures int          `json:"consecutive_failures"`
	CooldownRemaining   float64      `json:"cooldown_remaining_sec"`
	LastLatencyMS       float64      `json:"last_latency_ms"`
	LastError           string       `json:"last_error,omitempty"`
	LastSuccess         time.Time    `json:"last_success,omitempty"`
}

// CycleStats summarizes one orchestrator cycle for logging and telemetry.
type CycleStats struct {
	Venue     string        `json:"venue"`
	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration"`
	Attempted int           `json:"attempted"`
	Succeeded int           `json:"succeeded"`
	Failed    int           `json:"failed"`
	Filtered  int           `json:"filtered"`
	Flagged   int           `json:"flagged"`
	Ranked    int           `json:"ranked"`
	Degraded  bool          `json:"degraded"`
	Skipped   bool          `json:"skipped"`
}
