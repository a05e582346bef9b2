// Package metrics derives per-symbol snapshots from raw market state.
// Every function here is pure: identical input always yields identical
// output, with no state carried between calls.
package metrics

import (
	"math"

	"github.com/sawpanic/perpscan/internal/domain"
)

const (
	// worstBPS is returned for unpriceable spreads/slippage (crossed or
	// empty books, notional the book cannot absorb).
	worstBPS = 10_000.0

	atrWindow      = 50
	momentumLong   = 15
	volumeZWindow  = 50
	regimeShortWin = 10
	regimeLongWin  = 60
	velocityWindow = 5
	depthLevels    = 5
)

// SpreadBPS computes the mid-market spread in basis points.
func SpreadBPS(bid, ask float64) float64 {
	if bid <= 0 || ask <= 0 || ask <= bid {
		return worstBPS
	}
	mid := (bid + ask) / 2
	return math.Abs((ask-bid)/mid) * 10_000
}

// Top5Depth sums the resting notional across the top five levels of both
// book sides.
func Top5Depth(book domain.OrderBook) float64 {
	total := 0.0
	for _, side := range [][]domain.BookLevel{book.Bids, book.Asks} {
		n := len(side)
		if n > depthLevels {
			n = depthLevels
		}
		for _, lvl := range side[:n] {
			total += lvl.Notional()
		}
	}
	return total
}

// ATRPct computes the average true range over the trailing window as a
// percentage of the last close.
func ATRPct(bars []domain.Bar) float64 {
	if len(bars) == 0 {
		return 0
	}
	trs := make([]float64, 0, len(bars))
	prevClose := bars[0].Close
	for _, b := range bars {
		tr := b.High - b.Low
		if hc := math.Abs(b.High - prevClose); hc > tr {
			tr = hc
		}
		if lc := math.Abs(b.Low - prevClose); lc > tr {
			tr = lc
		}
		trs = append(trs, tr)
		prevClose = b.Close
	}
	if len(trs) > atrWindow {
		trs = trs[len(trs)-atrWindow:]
	}
	sum := 0.0
	for _, tr := range trs {
		sum += tr
	}
	atr := sum / float64(len(trs))
	lastClose := bars[len(bars)-1].Close
	if lastClose <= 0 {
		return 0
	}
	return atr / lastClose * 100
}

// Returns computes trailing percent returns over 1 bar and the long
// momentum horizon. With too little history the long return falls back to
// the short one.
func Returns(closes []float64) (ret1, retN float64) {
	valid := closes[:0:0]
	for _, c := range closes {
		if c > 0 {
			valid = append(valid, c)
		}
	}
	if len(valid) < 2 {
		return 0, 0
	}
	last := valid[len(valid)-1]
	prev := valid[len(valid)-2]
	ret1 = (last/prev - 1) * 100
	if len(valid) > momentumLong {
		base := valid[len(valid)-momentumLong-1]
		retN = (last/base - 1) * 100
	} else {
		retN = ret1
	}
	return ret1, retN
}

// Closes extracts the close series from a bar slice.
func Closes(bars []domain.Bar) []float64 {
	out := make([]float64, 0, len(bars))
	for _, b := range bars {
		out = append(out, b.Close)
	}
	return out
}

// SlippageBPS estimates worst-side slippage in basis points for filling the
// given notional by walking the book. Books that cannot absorb the notional
// price at worstBPS.
func SlippageBPS(book domain.OrderBook, notional float64) float64 {
	if notional <= 0 || len(book.Bids) == 0 || len(book.Asks) == 0 {
		return worstBPS
	}
	mid := (book.Bids[0].Price + book.Asks[0].Price) / 2
	if mid <= 0 {
		return worstBPS
	}
	buy := walkSide(book.Asks, notional, mid, true)
	sell := walkSide(book.Bids, notional, mid, false)
	return math.Max(buy, sell)
}

func walkSide(levels []domain.BookLevel, notional, mid float64, isBuy bool) float64 {
	remaining := notional
	filledQuote := 0.0
	filledBase := 0.0
	for _, lvl := range levels {
		if lvl.Price <= 0 || lvl.Qty <= 0 {
			continue
		}
		take := math.Min(lvl.Notional(), remaining)
		if take <= 0 {
			continue
		}
		filledQuote += take
		filledBase += take / lvl.Price
		remaining -= take
		if remaining <= 1e-6 {
			break
		}
	}
	if filledQuote < notional*0.999 || filledBase <= 0 {
		return worstBPS
	}
	avg := filledQuote / filledBase
	diff := avg - mid
	if !isBuy {
		diff = mid - avg
	}
	return math.Abs(diff/mid) * 10_000
}

// BasisBPS returns the perp/index basis in basis points, or nil when either
// price is unavailable.
func BasisBPS(perpPrice, indexPrice float64) *float64 {
	if perpPrice <= 0 || indexPrice <= 0 {
		return nil
	}
	b := (perpPrice/indexPrice - 1) * 10_000
	return &b
}

// Funding8hPct converts a raw per-period funding rate into percent.
func Funding8hPct(raw *float64) *float64 {
	if raw == nil || *raw == 0 {
		return nil
	}
	pct := *raw * 100
	return &pct
}

// VolumeZScore measures how unusual the latest bar's volume is against the
// trailing baseline window.
func VolumeZScore(bars []domain.Bar) float64 {
	if len(bars) < 3 {
		return 0
	}
	window := bars
	if len(window) > volumeZWindow+1 {
		window = window[len(window)-volumeZWindow-1:]
	}
	baseline := window[:len(window)-1]
	last := window[len(window)-1].Volume
	mu, sigma := meanStd(volumes(baseline))
	if sigma <= 1e-9 {
		return 0
	}
	return (last - mu) / sigma
}

// VolatilityRegime returns short-window realized vol over long-window
// realized vol. Values above 1 indicate the market is heating up.
func VolatilityRegime(closes []float64) float64 {
	rets := logReturns(closes)
	if len(rets) < regimeShortWin {
		return 0
	}
	shortVol := stdDev(tail(rets, regimeShortWin))
	longVol := stdDev(tail(rets, regimeLongWin))
	if longVol <= 1e-12 {
		return 0
	}
	return shortVol / longVol
}

// PriceVelocity is the short-horizon percent price change per bar.
func PriceVelocity(closes []float64) float64 {
	if len(closes) < velocityWindow+1 {
		return 0
	}
	last := closes[len(closes)-1]
	base := closes[len(closes)-velocityWindow-1]
	if base <= 0 {
		return 0
	}
	return (last/base - 1) * 100 / velocityWindow
}

// OrderFlowImbalance is the normalized top-of-book resting-size skew,
// bounded to [-1, 1]. Positive values mean bid-heavy books.
func OrderFlowImbalance(book domain.OrderBook) float64 {
	bidDepth := 0.0
	askDepth := 0.0
	n := len(book.Bids)
	if n > depthLevels {
		n = depthLevels
	}
	for _, lvl := range book.Bids[:n] {
		bidDepth += lvl.Notional()
	}
	n = len(book.Asks)
	if n > depthLevels {
		n = depthLevels
	}
	for _, lvl := range book.Asks[:n] {
		askDepth += lvl.Notional()
	}
	total := bidDepth + askDepth
	if total <= 0 {
		return 0
	}
	return (bidDepth - askDepth) / total
}

// AnomalyScore blends volume spike, velocity reversal, and volatility-regime
// jump into a 0-100 pump/dump signature.
func AnomalyScore(ret15, ret1, volumeZ, volRegime float64) float64 {
	score := 0.0
	if volumeZ > 0 {
		score += math.Min(volumeZ*8, 40)
	}
	// Momentum reversing against the medium-term move while volume runs hot
	// is the classic post-pump fingerprint.
	if ret15 > 0 && ret1 < 0 || ret15 < 0 && ret1 > 0 {
		score += math.Min(math.Abs(ret1)*10, 30)
	}
	if volRegime > 1 {
		score += math.Min((volRegime-1)*30, 30)
	}
	return math.Min(score, 100)
}

// LatestBarVolumeUSDT approximates the quote volume of the latest bar.
func LatestBarVolumeUSDT(bars []domain.Bar, closePrice float64) float64 {
	if len(bars) == 0 || closePrice <= 0 {
		return 0
	}
	return bars[len(bars)-1].Volume * closePrice
}

func volumes(bars []domain.Bar) []float64 {
	out := make([]float64, 0, len(bars))
	for _, b := range bars {
		out = append(out, b.Volume)
	}
	return out
}

func logReturns(closes []float64) []float64 {
	out := make([]float64, 0, len(closes))
	for i := 1; i < len(closes); i++ {
		if closes[i-1] > 0 && closes[i] > 0 {
			out = append(out, math.Log(closes[i]/closes[i-1]))
		}
	}
	return out
}

func tail(v []float64, n int) []float64 {
	if len(v) > n {
		return v[len(v)-n:]
	}
	return v
}

func meanStd(v []float64) (mu, sigma float64) {
	if len(v) == 0 {
		return 0, 0
	}
	for _, x := range v {
		mu += x
	}
	mu /= float64(len(v))
	for _, x := range v {
		sigma += (x - mu) * (x - mu)
	}
	sigma = math.Sqrt(sigma / float64(len(v)))
	return mu, sigma
}

func stdDev(v []float64) float64 {
	_, sigma := meanStd(v)
	return sigma
}
