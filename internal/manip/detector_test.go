package manip

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sawpanic/perpscan/internal/config"
	"github.com/sawpanic/perpscan/internal/domain"
)

const testNotional = 5000.0

func testConfig() config.ManipConfig {
	return config.ManipConfig{
		DepthSkewThreshold:   0.65,
		WallRatioThreshold:   0.55,
		VacuumDepthMult:      1.5,
		WickATRMult:          3.0,
		OIDeltaThreshold:     0.05,
		OIPriceDropThreshold: 0.8,
		FundingMomentumGate:  0.25,
		SurgeVolumeZ:         2.5,
		WashVolumeZ:          3.0,
	}
}

// balancedBook has plenty of symmetric depth so no structural rule fires.
func balancedBook() domain.OrderBook {
	var book domain.OrderBook
	for i := 0; i < 5; i++ {
		book.Bids = append(book.Bids, domain.BookLevel{Price: 100, Qty: 50})
		book.Asks = append(book.Asks, domain.BookLevel{Price: 100.02, Qty: 50})
	}
	return book
}

func cleanSnap(symbol string) domain.SymbolSnapshot {
	return domain.SymbolSnapshot{
		Symbol: symbol,
		Venue:  "binance",
		ATRPct: 1.0,
		Close:  100,
	}
}

func calmBar() domain.Bar {
	return domain.Bar{Open: 100, High: 100.5, Low: 99.5, Close: 100}
}

func TestAssess_CleanBookScoresZero(t *testing.T) {
	d := NewDetector(testConfig(), testNotional)

	a := d.Assess(cleanSnap("BTCUSDT"), balancedBook(), calmBar())
	assert.Empty(t, a.Flags)
	assert.Zero(t, a.Score)
	assert.False(t, a.Flagged())
}

func TestAssess_SpoofingDepthImbalance(t *testing.T) {
	d := NewDetector(testConfig(), testNotional)

	// One massive bid wall against a token ask side.
	book := domain.OrderBook{
		Bids: []domain.BookLevel{{Price: 100, Qty: 1000}},
		Asks: []domain.BookLevel{{Price: 100.02, Qty: 10}},
	}
	a := d.Assess(cleanSnap("SPOOFUSDT"), book, calmBar())
	assert.Contains(t, a.Flags, "spoofing_depth_imbalance")
	assert.Contains(t, a.Flags, "liquidity_wall")
	assert.Greater(t, a.Score, 0.0)
}

func TestAssess_LiquidityVacuum(t *testing.T) {
	d := NewDetector(testConfig(), testNotional)

	// Total depth well under testNotional * vacuum multiplier.
	book := domain.OrderBook{
		Bids: []domain.BookLevel{{Price: 100, Qty: 10}},
		Asks: []domain.BookLevel{{Price: 100.02, Qty: 10}},
	}
	a := d.Assess(cleanSnap("THINUSDT"), book, calmBar())
	assert.Contains(t, a.Flags, "liquidity_vacuum")
}

func TestAssess_ScamWick(t *testing.T) {
	d := NewDetector(testConfig(), testNotional)

	// 8% bar range against 1% ATR.
	bar := domain.Bar{Open: 100, High: 104, Low: 96, Close: 100}
	a := d.Assess(cleanSnap("WICKUSDT"), balancedBook(), bar)
	assert.Contains(t, a.Flags, "scam_wick")
}

func TestAssess_OIPriceDivergenceNeedsPriorReading(t *testing.T) {
	d := NewDetector(testConfig(), testNotional)

	oi1 := 1_000_000.0
	snap := cleanSnap("OIUSDT")
	snap.OpenInterest = &oi1
	snap.Ret15 = -1.5

	// First cycle has no prior OI, so the rule cannot fire.
	a := d.Assess(snap, balancedBook(), calmBar())
	assert.NotContains(t, a.Flags, "oi_price_divergence")

	// Second cycle: OI +10% while price keeps dropping.
	oi2 := 1_100_000.0
	snap.OpenInterest = &oi2
	a = d.Assess(snap, balancedBook(), calmBar())
	assert.Contains(t, a.Flags, "oi_price_divergence")
	assert.InDelta(t, 0.1, a.Features["oi_delta"], 1e-6)
}

func TestAssess_FundingPriceDivergence(t *testing.T) {
	d := NewDetector(testConfig(), testNotional)

	funding := 0.05
	snap := cleanSnap("FUNDUSDT")
	snap.Funding8hPct = &funding
	snap.Ret1 = -0.5

	a := d.Assess(snap, balancedBook(), calmBar())
	assert.Contains(t, a.Flags, "funding_price_divergence")

	// Funding and price agreeing is not divergence.
	snap.Ret1 = 0.5
	a = d.Assess(snap, balancedBook(), calmBar())
	assert.NotContains(t, a.Flags, "funding_price_divergence")
}

func TestAssess_PostSurgeReversal(t *testing.T) {
	d := NewDetector(testConfig(), testNotional)

	// Cycle 1: volume surge with positive momentum.
	snap := cleanSnap("SURGEUSDT")
	snap.VolumeZScore = 4.0
	snap.Ret1 = 2.0
	d.Assess(snap, balancedBook(), calmBar())

	// Cycle 2: momentum flips hard.
	snap.VolumeZScore = 0
	snap.Ret1 = -1.0
	a := d.Assess(snap, balancedBook(), calmBar())
	assert.Contains(t, a.Flags, "post_surge_reversal")
}

func TestAssess_WashTradeVolume(t *testing.T) {
	d := NewDetector(testConfig(), testNotional)

	// Hot volume on a book too thin to justify it.
	book := domain.OrderBook{
		Bids: []domain.BookLevel{{Price: 100, Qty: 50}},
		Asks: []domain.BookLevel{{Price: 100.02, Qty: 50}},
	}
	snap := cleanSnap("WASHUSDT")
	snap.VolumeZScore = 5.0
	a := d.Assess(snap, book, calmBar())
	assert.Contains(t, a.Flags, "wash_trade_volume")
}

func TestAssess_FlagsSortedAndScoreBounded(t *testing.T) {
	d := NewDetector(testConfig(), testNotional)

	// Stack as many rules as possible at once.
	book := domain.OrderBook{
		Bids: []domain.BookLevel{{Price: 100, Qty: 60}},
		Asks: []domain.BookLevel{{Price: 100.02, Qty: 1}},
	}
	snap := cleanSnap("EVILUSDT")
	snap.VolumeZScore = 6.0
	snap.AnomalyScore = 90
	bar := domain.Bar{Open: 100, High: 106, Low: 95, Close: 100}

	a := d.Assess(snap, book, bar)
	require.NotEmpty(t, a.Flags)
	assert.IsIncreasing(t, a.Flags)
	assert.LessOrEqual(t, a.Score, 100.0)
	assert.Greater(t, a.Score, 0.0)
}

func TestAssess_StateIsPerSymbolAndVenue(t *testing.T) {
	d := NewDetector(testConfig(), testNotional)

	oi := 1_000_000.0
	a := cleanSnap("AUSDT")
	a.OpenInterest = &oi
	a.Ret15 = -1.5
	d.Assess(a, balancedBook(), calmBar())

	// A different symbol must not inherit AUSDT's OI baseline.
	oiOther := 1_100_000.0
	b := cleanSnap("BUSDT")
	b.OpenInterest = &oiOther
	b.Ret15 = -1.5
	got := d.Assess(b, balancedBook(), calmBar())
	assert.NotContains(t, got.Flags, "oi_price_divergence")
}

func TestDetector_ResetDropsCarry(t *testing.T) {
	d := NewDetector(testConfig(), testNotional)

	oi1 := 1_000_000.0
	snap := cleanSnap("OIUSDT")
	snap.OpenInterest = &oi1
	snap.Ret15 = -1.5
	d.Assess(snap, balancedBook(), calmBar())

	d.Reset()

	oi2 := 1_100_000.0
	snap.OpenInterest = &oi2
	a := d.Assess(snap, balancedBook(), calmBar())
	assert.NotContains(t, a.Flags, "oi_price_divergence")
}
