package metrics

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sawpanic/perpscan/internal/domain"
)

func TestSpreadBPS(t *testing.T) {
	// 100.00 / 100.02: spread 0.02 on mid 100.01 ~ 2 bps.
	assert.InDelta(t, 2.0, SpreadBPS(100.00, 100.02), 0.01)

	// Crossed or unpriceable books price at the worst bound.
	assert.Equal(t, 10_000.0, SpreadBPS(100.02, 100.00))
	assert.Equal(t, 10_000.0, SpreadBPS(0, 100.00))
	assert.Equal(t, 10_000.0, SpreadBPS(100.00, 0))
}

func TestTop5Depth_SumsBothSidesCapped(t *testing.T) {
	book := domain.OrderBook{}
	for i := 0; i < 7; i++ {
		book.Bids = append(book.Bids, domain.BookLevel{Price: 100, Qty: 1})
		book.Asks = append(book.Asks, domain.BookLevel{Price: 100, Qty: 2})
	}
	// 5 levels * 100 + 5 levels * 200; the sixth and seventh are ignored.
	assert.Equal(t, 1500.0, Top5Depth(book))
}

func TestATRPct_ConstantRange(t *testing.T) {
	bars := make([]domain.Bar, 20)
	for i := range bars {
		bars[i] = domain.Bar{Open: 100, High: 101, Low: 99, Close: 100}
	}
	// TR is 2 every bar, close is 100, so ATR% is 2.
	assert.InDelta(t, 2.0, ATRPct(bars), 1e-9)

	assert.Equal(t, 0.0, ATRPct(nil))
}

func TestReturns_ShortAndLongHorizon(t *testing.T) {
	closes := make([]float64, 0, 20)
	for i := 0; i < 20; i++ {
		closes = append(closes, 100+float64(i))
	}
	ret1, ret15 := Returns(closes)
	assert.InDelta(t, (119.0/118.0-1)*100, ret1, 1e-9)
	assert.InDelta(t, (119.0/104.0-1)*100, ret15, 1e-9)
}

func TestReturns_ShortHistoryFallsBack(t *testing.T) {
	ret1, ret15 := Returns([]float64{100, 102})
	assert.InDelta(t, 2.0, ret1, 1e-9)
	assert.Equal(t, ret1, ret15)

	ret1, ret15 = Returns([]float64{100})
	assert.Zero(t, ret1)
	assert.Zero(t, ret15)
}

func TestReturns_IgnoresNonPositiveCloses(t *testing.T) {
	ret1, _ := Returns([]float64{100, 0, 102})
	assert.InDelta(t, 2.0, ret1, 1e-9)
}

func TestSlippageBPS_DeepBookIsCheap(t *testing.T) {
	book := domain.OrderBook{
		Bids: []domain.BookLevel{{Price: 99.99, Qty: 1000}},
		Asks: []domain.BookLevel{{Price: 100.01, Qty: 1000}},
	}
	slip := SlippageBPS(book, 5000)
	// Fill sits entirely at top of book, so slippage equals half the spread.
	assert.InDelta(t, 1.0, slip, 0.01)
}

func TestSlippageBPS_ThinBookPricesAtWorst(t *testing.T) {
	book := domain.OrderBook{
		Bids: []domain.BookLevel{{Price: 99.99, Qty: 1}},
		Asks: []domain.BookLevel{{Price: 100.01, Qty: 1}},
	}
	assert.Equal(t, 10_000.0, SlippageBPS(book, 5000))
}

func TestSlippageBPS_WalksLevels(t *testing.T) {
	book := domain.OrderBook{
		Bids: []domain.BookLevel{{Price: 100, Qty: 100}, {Price: 99, Qty: 100}},
		Asks: []domain.BookLevel{{Price: 101, Qty: 100}, {Price: 102, Qty: 100}},
	}
	slip := SlippageBPS(book, 15_000)
	// Buy side fills 10100 at 101 then the rest at 102; the blended average
	// runs above the touch.
	assert.Greater(t, slip, 50.0)
	assert.Less(t, slip, 10_000.0)
}

func TestBasisBPS(t *testing.T) {
	b := BasisBPS(100.10, 100.00)
	require.NotNil(t, b)
	assert.InDelta(t, 10.0, *b, 1e-6)

	assert.Nil(t, BasisBPS(0, 100))
	assert.Nil(t, BasisBPS(100, 0))
}

func TestFunding8hPct(t *testing.T) {
	raw := 0.0001
	pct := Funding8hPct(&raw)
	require.NotNil(t, pct)
	assert.InDelta(t, 0.01, *pct, 1e-9)

	assert.Nil(t, Funding8hPct(nil))
	zero := 0.0
	assert.Nil(t, Funding8hPct(&zero))
}

func TestVolumeZScore_SpikeDetected(t *testing.T) {
	bars := make([]domain.Bar, 0, 21)
	for i := 0; i < 20; i++ {
		vol := 100.0
		if i%2 == 0 {
			vol = 110.0
		}
		bars = append(bars, domain.Bar{Close: 100, Volume: vol})
	}
	bars = append(bars, domain.Bar{Close: 100, Volume: 500})

	z := VolumeZScore(bars)
	assert.Greater(t, z, 5.0)
}

func TestVolumeZScore_FlatBaselineIsZero(t *testing.T) {
	bars := make([]domain.Bar, 10)
	for i := range bars {
		bars[i] = domain.Bar{Close: 100, Volume: 100}
	}
	assert.Zero(t, VolumeZScore(bars))
	assert.Zero(t, VolumeZScore(bars[:2]))
}

func TestVolatilityRegime_HeatingUp(t *testing.T) {
	closes := make([]float64, 0, 60)
	price := 100.0
	for i := 0; i < 50; i++ {
		price *= 1.0001
		closes = append(closes, price)
	}
	for i := 0; i < 10; i++ {
		if i%2 == 0 {
			price *= 1.01
		} else {
			price *= 0.99
		}
		closes = append(closes, price)
	}
	assert.Greater(t, VolatilityRegime(closes), 1.0)
}

func TestPriceVelocity(t *testing.T) {
	closes := []float64{100, 100, 100, 100, 100, 105}
	// 5% over 5 bars is 1% per bar.
	assert.InDelta(t, 1.0, PriceVelocity(closes), 1e-9)
	assert.Zero(t, PriceVelocity(closes[:3]))
}

func TestOrderFlowImbalance(t *testing.T) {
	book := domain.OrderBook{
		Bids: []domain.BookLevel{{Price: 100, Qty: 30}},
		Asks: []domain.BookLevel{{Price: 100, Qty: 10}},
	}
	assert.InDelta(t, 0.5, OrderFlowImbalance(book), 1e-9)
	assert.Zero(t, OrderFlowImbalance(domain.OrderBook{}))
}

func TestAnomalyScore(t *testing.T) {
	// Calm market scores nothing.
	assert.Zero(t, AnomalyScore(1.0, 0.5, -0.2, 0.8))

	// Volume spike plus reversal plus regime jump stacks components.
	score := AnomalyScore(5.0, -2.0, 3.0, 1.5)
	assert.InDelta(t, 24+20+15, score, 1e-9)

	// Extreme inputs saturate at 100.
	assert.Equal(t, 100.0, AnomalyScore(50, -50, 100, 10))
}

func validState() domain.SymbolState {
	bars := make([]domain.Bar, 30)
	for i := range bars {
		bars[i] = domain.Bar{
			OpenTime: time.Unix(int64(1_700_000_000+60*i), 0),
			Open:     100, High: 101, Low: 99, Close: 100, Volume: 1000,
		}
	}
	return domain.SymbolState{
		Symbol: "BTCUSDT",
		Venue:  "binance",
		Ticker: domain.Ticker{Symbol: "BTCUSDT", Bid: 99.99, Ask: 100.01, Last: 100, QuoteVolume: 5e7},
		Book: domain.OrderBook{
			Bids: []domain.BookLevel{{Price: 99.99, Qty: 500}},
			Asks: []domain.BookLevel{{Price: 100.01, Qty: 500}},
		},
		Bars:      bars,
		FetchedAt: time.Unix(1_700_002_000, 0),
	}
}

func TestBuildSnapshot_Complete(t *testing.T) {
	snap, err := BuildSnapshot(validState(), 5000)
	require.NoError(t, err)

	assert.Equal(t, "BTCUSDT", snap.Symbol)
	assert.Equal(t, "binance", snap.Venue)
	assert.InDelta(t, 2.0, snap.SpreadBPS, 0.01)
	assert.InDelta(t, 5e7, snap.QuoteVolumeUSDT, 1)
	assert.Equal(t, 100.0, snap.Close)
	assert.Greater(t, snap.Top5DepthUSDT, 0.0)
	assert.Nil(t, snap.Funding8hPct)
	assert.Nil(t, snap.OpenInterest)
}

func TestBuildSnapshot_DeterministicForIdenticalState(t *testing.T) {
	state := validState()
	funding := 0.0001
	oi := 12_345.0
	state.FundingRate = &funding
	state.OpenInterest = &oi
	state.Ticker.IndexPrice = 99.95

	first, err := BuildSnapshot(state, 5000)
	require.NoError(t, err)
	second, err := BuildSnapshot(state, 5000)
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestBuildSnapshot_OptionalFieldsCarried(t *testing.T) {
	state := validState()
	funding := 0.0001
	oi := 12_345.0
	state.FundingRate = &funding
	state.OpenInterest = &oi
	state.Ticker.IndexPrice = 99.95

	snap, err := BuildSnapshot(state, 5000)
	require.NoError(t, err)
	require.NotNil(t, snap.Funding8hPct)
	assert.InDelta(t, 0.01, *snap.Funding8hPct, 1e-9)
	require.NotNil(t, snap.OpenInterest)
	assert.Equal(t, oi, *snap.OpenInterest)
	require.NotNil(t, snap.BasisBPS)
	assert.Greater(t, *snap.BasisBPS, 0.0)
}

func TestBuildSnapshot_MissingMandatoryFieldFails(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*domain.SymbolState)
		field  string
	}{
		{"no symbol", func(s *domain.SymbolState) { s.Symbol = "" }, "symbol"},
		{"no venue", func(s *domain.SymbolState) { s.Venue = "" }, "venue"},
		{"one bar", func(s *domain.SymbolState) { s.Bars = s.Bars[:1] }, "bars"},
		{"empty book", func(s *domain.SymbolState) { s.Book.Bids = nil }, "book"},
		{"no quote volume", func(s *domain.SymbolState) { s.Ticker.QuoteVolume = 0 }, "quote_volume"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			state := validState()
			tc.mutate(&state)
			_, err := BuildSnapshot(state, 5000)
			var snapErr *domain.SnapshotError
			require.ErrorAs(t, err, &snapErr)
			assert.Equal(t, tc.field, snapErr.Field)
		})
	}
}
