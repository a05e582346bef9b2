package metrics

import (
	"github.com/sawpanic/perpscan/internal/domain"
)

// BuildSnapshot turns raw symbol state into a scored-ready snapshot. A state
// missing any mandatory field returns a SnapshotError and the symbol is
// dropped for the cycle rather than defaulted.
func BuildSnapshot(state domain.SymbolState, testNotional float64) (domain.SymbolSnapshot, error) {
	if state.Symbol == "" {
		return domain.SymbolSnapshot{}, &domain.SnapshotError{Symbol: state.Symbol, Field: "symbol"}
	}
	if state.Venue == "" {
		return domain.SymbolSnapshot{}, &domain.SnapshotError{Symbol: state.Symbol, Field: "venue"}
	}
	if len(state.Bars) < 2 {
		return domain.SymbolSnapshot{}, &domain.SnapshotError{Symbol: state.Symbol, Field: "bars"}
	}
	if len(state.Book.Bids) == 0 || len(state.Book.Asks) == 0 {
		return domain.SymbolSnapshot{}, &domain.SnapshotError{Symbol: state.Symbol, Field: "book"}
	}

	bid := state.Ticker.Bid
	if bid <= 0 {
		bid = state.Book.Bids[0].Price
	}
	ask := state.Ticker.Ask
	if ask <= 0 {
		ask = state.Book.Asks[0].Price
	}
	if bid <= 0 || ask <= 0 {
		return domain.SymbolSnapshot{}, &domain.SnapshotError{Symbol: state.Symbol, Field: "quote"}
	}
	if state.Ticker.QuoteVolume <= 0 {
		return domain.SymbolSnapshot{}, &domain.SnapshotError{Symbol: state.Symbol, Field: "quote_volume"}
	}

	closes := Closes(state.Bars)
	closePrice := closes[len(closes)-1]
	if closePrice <= 0 {
		closePrice = state.Ticker.Last
	}
	if closePrice <= 0 {
		return domain.SymbolSnapshot{}, &domain.SnapshotError{Symbol: state.Symbol, Field: "close"}
	}

	ret1, ret15 := Returns(closes)
	depth := Top5Depth(state.Book)
	barVol := LatestBarVolumeUSDT(state.Bars, closePrice)
	depthToVolume := 0.0
	if barVol > 0 {
		depthToVolume = depth / barVol
	}
	volumeZ := VolumeZScore(state.Bars)
	volRegime := VolatilityRegime(closes)
	velocity := PriceVelocity(closes)

	snap := domain.SymbolSnapshot{
		Symbol:          state.Symbol,
		Venue:           state.Venue,
		TS:              state.FetchedAt,
		QuoteVolumeUSDT: state.Ticker.QuoteVolume,
		SpreadBPS:       SpreadBPS(bid, ask),
		Top5DepthUSDT:   depth,
		ATRPct:          ATRPct(state.Bars),
		Ret1:            ret1,
		Ret15:           ret15,
		SlipBPS:         SlippageBPS(state.Book, testNotional),
		Funding8hPct:    Funding8hPct(state.FundingRate),
		OpenInterest:    state.OpenInterest,
		BasisBPS:        BasisBPS(state.Ticker.Last, state.Ticker.IndexPrice),

		VolumeZScore:       volumeZ,
		OrderFlowImbalance: OrderFlowImbalance(state.Book),
		VolatilityRegime:   volRegime,
		PriceVelocity:      velocity,
		AnomalyScore:       AnomalyScore(ret15, ret1, volumeZ, volRegime),
		DepthToVolume:      depthToVolume,

		Close: closePrice,
	}
	return snap, nil
}
