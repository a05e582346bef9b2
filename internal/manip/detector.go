// Package manip flags manipulation-like microstructure. Rule triggers and a
// logistic feature blend each produce a 0-100 score; the final score is the
// max of the two. Only rules emit flags.
package manip

import (
	"math"
	"sort"
	"sync"

	"github.com/sawpanic/perpscan/internal/config"
	"github.com/sawpanic/perpscan/internal/domain"
)

// Rule severity weights. Fired severities sum into the rule score, capped
// at 100.
const (
	sevSpoofing    = 25
	sevWall        = 20
	sevVacuum      = 15
	sevScamWick    = 20
	sevOIDiverge   = 15
	sevFunding     = 10
	sevSurgeRevert = 15
	sevWashVolume  = 10
)

const volumeBaselineLen = 20

// priorState is the per-symbol carry between cycles: the last open interest
// reading and a bounded window of recent bar volumes. Overwritten each
// cycle; never grows past volumeBaselineLen.
type priorState struct {
	lastOI    float64
	hasOI     bool
	volumes   []float64
	lastRet1  float64
	lastSurge bool
}

// Detector evaluates snapshots against the rule set and logistic blend,
// carrying minimal state between cycles. Safe for use across venues; each
// assessment mutates only its own symbol's entry.
type Detector struct {
	cfg          config.ManipConfig
	testNotional float64

	mu     sync.Mutex
	states map[string]*priorState
}

// NewDetector builds a detector with the given rule thresholds.
func NewDetector(cfg config.ManipConfig, testNotional float64) *Detector {
	return &Detector{
		cfg:          cfg,
		testNotional: testNotional,
		states:       make(map[string]*priorState),
	}
}

// Assess scores one snapshot and updates the symbol's prior-cycle state.
// The order book and last bar come straight from the fetched state; the
// snapshot supplies the derived metrics.
func (d *Detector) Assess(snap domain.SymbolSnapshot, book domain.OrderBook, lastBar domain.Bar) domain.ManipulationAssessment {
	bidDepth, askDepth, topBid, topAsk := topOfBook(book)
	totalDepth := bidDepth + askDepth

	imbalance := 0.0
	if totalDepth > 0 {
		imbalance = (bidDepth - askDepth) / totalDepth
	}
	wallNotional := math.Max(topBid, topAsk)
	wallRatio := 0.0
	if totalDepth > 0 {
		wallRatio = wallNotional / totalDepth
	}
	vacuumRatio := 0.0
	if d.testNotional > 0 {
		vacuumRatio = totalDepth / (d.testNotional * 2)
	}
	wickRatio := wickRatio(lastBar, snap.ATRPct)

	prev, barVol := d.rollState(snap)
	oiDelta := 0.0
	if snap.OpenInterest != nil && prev.hasOI && prev.lastOI > 0 {
		oiDelta = (*snap.OpenInterest - prev.lastOI) / prev.lastOI
	}
	surge := d.isSurge(snap.VolumeZScore, barVol, prev.volumes)

	var flags []string
	ruleScore := 0.0
	fire := func(flag string, severity float64) {
		flags = append(flags, flag)
		ruleScore += severity
	}

	if math.Abs(imbalance) > d.cfg.DepthSkewThreshold && wallNotional > d.testNotional*1.5 {
		fire("spoofing_depth_imbalance", sevSpoofing)
	}
	if wallRatio > d.cfg.WallRatioThreshold && wallNotional > d.testNotional {
		fire("liquidity_wall", sevWall)
	}
	if totalDepth < d.testNotional*d.cfg.VacuumDepthMult {
		fire("liquidity_vacuum", sevVacuum)
	}
	if wickRatio > d.cfg.WickATRMult && snap.ATRPct > 0.2 {
		fire("scam_wick", sevScamWick)
	}
	if oiDelta > d.cfg.OIDeltaThreshold && snap.Ret15 < -d.cfg.OIPriceDropThreshold {
		fire("oi_price_divergence", sevOIDiverge)
	}
	if snap.Funding8hPct != nil {
		f := *snap.Funding8hPct
		if (f > 0 && snap.Ret1 < -d.cfg.FundingMomentumGate) || (f < 0 && snap.Ret1 > d.cfg.FundingMomentumGate) {
			fire("funding_price_divergence", sevFunding)
		}
	}
	if prev.lastSurge && snap.Ret1*prev.lastRet1 < 0 && math.Abs(snap.Ret1) > 0.3 {
		fire("post_surge_reversal", sevSurgeRevert)
	}
	if snap.VolumeZScore > d.cfg.WashVolumeZ && totalDepth < d.testNotional*3 {
		fire("wash_trade_volume", sevWashVolume)
	}
	if ruleScore > 100 {
		ruleScore = 100
	}

	funding := 0.0
	if snap.Funding8hPct != nil {
		funding = *snap.Funding8hPct
	}
	logistic := logisticScore(imbalance, wallRatio, wickRatio, oiDelta, funding, vacuumRatio,
		snap.VolumeZScore, snap.PriceVelocity, snap.AnomalyScore)

	score := math.Max(ruleScore, logistic)
	score = math.Min(100, math.Max(0, score))
	// The logistic path bottoms out near 7.6 with every feature floored;
	// anything under 10 with no flags is just that baseline, so clamp quiet
	// books to an exact zero.
	if len(flags) == 0 && score < 10 {
		score = 0
	}

	sort.Strings(flags)
	d.commit(snap, barVol, surge)

	return domain.ManipulationAssessment{
		Score: math.Round(score*100) / 100,
		Flags: flags,
		Features: map[string]float64{
			"imbalance":   round4(imbalance),
			"wall_ratio":  round4(wallRatio),
			"total_depth": math.Round(totalDepth*100) / 100,
			"wick_ratio":  round4(wickRatio),
			"oi_delta":    round4(oiDelta),
			"funding":     funding,
		},
	}
}

// Reset drops all prior-cycle state. Used when the symbol universe rotates.
func (d *Detector) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.states = make(map[string]*priorState)
}

// rollState returns a copy of the symbol's prior state for this assessment.
func (d *Detector) rollState(snap domain.SymbolSnapshot) (priorState, float64) {
	barVol := 0.0
	if snap.Close > 0 && snap.DepthToVolume > 0 {
		barVol = snap.Top5DepthUSDT / snap.DepthToVolume
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	st := d.states[stateKey(snap)]
	if st == nil {
		return priorState{}, barVol
	}
	cp := *st
	cp.volumes = append([]float64(nil), st.volumes...)
	return cp, barVol
}

// commit overwrites the symbol's carry with this cycle's readings.
func (d *Detector) commit(snap domain.SymbolSnapshot, barVol float64, surge bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	key := stateKey(snap)
	st := d.states[key]
	if st == nil {
		st = &priorState{}
		d.states[key] = st
	}
	if snap.OpenInterest != nil {
		st.lastOI = *snap.OpenInterest
		st.hasOI = true
	}
	if barVol > 0 {
		st.volumes = append(st.volumes, barVol)
		if len(st.volumes) > volumeBaselineLen {
			st.volumes = st.volumes[len(st.volumes)-volumeBaselineLen:]
		}
	}
	st.lastRet1 = snap.Ret1
	st.lastSurge = surge
}

func (d *Detector) isSurge(volumeZ, barVol float64, baseline []float64) bool {
	if volumeZ >= d.cfg.SurgeVolumeZ {
		return true
	}
	if len(baseline) == 0 || barVol <= 0 {
		return false
	}
	mu := 0.0
	for _, v := range baseline {
		mu += v
	}
	mu /= float64(len(baseline))
	return mu > 0 && barVol > mu*2.5
}

func stateKey(snap domain.SymbolSnapshot) string {
	return snap.Venue + "|" + snap.Symbol
}

func topOfBook(book domain.OrderBook) (bidDepth, askDepth, topBid, topAsk float64) {
	n := len(book.Bids)
	if n > 5 {
		n = 5
	}
	for _, lvl := range book.Bids[:n] {
		bidDepth += lvl.Notional()
	}
	n = len(book.Asks)
	if n > 5 {
		n = 5
	}
	for _, lvl := range book.Asks[:n] {
		askDepth += lvl.Notional()
	}
	if len(book.Bids) > 0 {
		topBid = book.Bids[0].Notional()
	}
	if len(book.Asks) > 0 {
		topAsk = book.Asks[0].Notional()
	}
	return bidDepth, askDepth, topBid, topAsk
}

func wickRatio(bar domain.Bar, atrPct float64) float64 {
	if bar.Close <= 0 {
		return 0
	}
	rangePct := math.Abs(bar.High-bar.Low) / bar.Close * 100
	baseline := math.Max(atrPct, 0.1)
	return rangePct / baseline
}

// logisticScore is the learned-weight path: floored features through a fixed
// linear blend and a sigmoid into [0, 100]. It never emits flags.
func logisticScore(imbalance, wallRatio, wickRatio, oiDelta, funding, vacuumRatio,
	volumeZ, velocity, anomaly float64) float64 {
	imbalanceF := math.Max(0, math.Abs(imbalance)-0.2)
	wallF := math.Max(0, wallRatio-0.3)
	wickF := math.Max(0, math.Min(wickRatio, 6)-2)
	oiF := math.Max(0, oiDelta-0.03)
	fundingF := math.Max(0, math.Abs(funding)-0.05)
	vacuumF := math.Max(0, 1-vacuumRatio)
	volumeF := math.Max(0, volumeZ-2) / 4
	velocityF := math.Min(math.Abs(velocity), 5) / 5
	anomalyF := math.Max(0, anomaly) / 100

	linear := -2.5 +
		3.2*imbalanceF +
		2.1*wallF +
		1.4*wickF +
		1.8*oiF +
		0.9*fundingF +
		1.2*vacuumF +
		0.8*volumeF +
		0.5*velocityF +
		0.6*anomalyF
	return 100 / (1 + math.Exp(-linear))
}

func round4(v float64) float64 { return math.Round(v*10_000) / 10_000 }
