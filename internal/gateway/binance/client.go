// Package binance implements the gateway VenueClient against Binance USDT-M
// perpetual futures.
package binance

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/adshao/go-binance/v2/common"
	"github.com/adshao/go-binance/v2/futures"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/sawpanic/perpscan/internal/domain"
	"github.com/sawpanic/perpscan/internal/gateway"
)

const venueID = "binance"

// Client wraps the go-binance futures REST client. Market data only; no
// credentials required.
type Client struct {
	api        *futures.Client
	quoteAsset string
	topByQvol  int

	barInterval string
	barLimit    int
	bookDepth   int
}

// New creates a Binance futures market-data client. When topByQvol is
// positive the universe is trimmed to the most liquid contracts by 24h
// quote volume.
func New(quoteAsset string, topByQvol int, barInterval string, barLimit, bookDepth int) *Client {
	return &Client{
		api:         futures.NewClient("", ""),
		quoteAsset:  quoteAsset,
		topByQvol:   topByQvol,
		barInterval: barInterval,
		barLimit:    barLimit,
		bookDepth:   bookDepth,
	}
}

// Venue returns the venue identifier.
func (c *Client) Venue() string { return venueID }

// ListPerpSymbols returns actively trading perpetual contracts settled in
// the configured quote asset, ranked by 24h quote volume and trimmed to the
// configured universe size.
func (c *Client) ListPerpSymbols(ctx context.Context) ([]string, error) {
	info, err := c.api.NewExchangeInfoService().Do(ctx)
	if err != nil {
		return nil, wrapAPIError(err)
	}
	perps := make(map[string]bool, len(info.Symbols))
	for _, s := range info.Symbols {
		if s.ContractType != "PERPETUAL" || s.Status != "TRADING" {
			continue
		}
		if c.quoteAsset != "" && s.QuoteAsset != c.quoteAsset {
			continue
		}
		perps[s.Symbol] = true
	}

	stats, err := c.api.NewListPriceChangeStatsService().Do(ctx)
	if err != nil {
		return nil, wrapAPIError(err)
	}
	type ranked struct {
		symbol string
		qvol   float64
	}
	list := make([]ranked, 0, len(perps))
	for _, st := range stats {
		if !perps[st.Symbol] {
			continue
		}
		list = append(list, ranked{symbol: st.Symbol, qvol: parseFloat(st.QuoteVolume)})
	}
	sort.Slice(list, func(i, j int) bool {
		if list[i].qvol != list[j].qvol {
			return list[i].qvol > list[j].qvol
		}
		return list[i].symbol < list[j].symbol
	})
	if c.topByQvol > 0 && len(list) > c.topByQvol {
		list = list[:c.topByQvol]
	}
	symbols := make([]string, len(list))
	for i, r := range list {
		symbols[i] = r.symbol
	}
	return symbols, nil
}

// FetchSymbolState pulls ticker, depth, and klines concurrently; funding and
// open interest are optional and fetched best-effort after the mandatory
// legs succeed.
func (c *Client) FetchSymbolState(ctx context.Context, symbol string) (domain.SymbolState, error) {
	var (
		ticker domain.Ticker
		book   domain.OrderBook
		bars   []domain.Bar
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		ticker, err = c.fetchTicker(gctx, symbol)
		return err
	})
	g.Go(func() error {
		var err error
		book, err = c.fetchBook(gctx, symbol)
		return err
	})
	g.Go(func() error {
		var err error
		bars, err = c.fetchBars(gctx, symbol)
		return err
	})
	if err := g.Wait(); err != nil {
		return domain.SymbolState{}, err
	}

	state := domain.SymbolState{
		Symbol:    symbol,
		Venue:     venueID,
		Ticker:    ticker,
		Book:      book,
		Bars:      bars,
		FetchedAt: time.Now().UTC(),
	}

	if funding, indexPrice, err := c.fetchPremiumIndex(ctx, symbol); err != nil {
		log.Debug().Str("symbol", symbol).Err(err).Msg("funding fetch failed")
	} else {
		state.FundingRate = funding
		if indexPrice > 0 {
			state.Ticker.IndexPrice = indexPrice
		}
	}
	if oi, err := c.fetchOpenInterest(ctx, symbol); err != nil {
		log.Debug().Str("symbol", symbol).Err(err).Msg("open interest fetch failed")
	} else {
		state.OpenInterest = oi
	}
	return state, nil
}

func (c *Client) fetchTicker(ctx context.Context, symbol string) (domain.Ticker, error) {
	stats, err := c.api.NewListPriceChangeStatsService().Symbol(symbol).Do(ctx)
	if err != nil {
		return domain.Ticker{}, wrapAPIError(err)
	}
	if len(stats) == 0 {
		return domain.Ticker{}, gateway.MarkRejected(fmt.Errorf("no 24h stats for %s", symbol))
	}
	tickers, err := c.api.NewListBookTickersService().Symbol(symbol).Do(ctx)
	if err != nil {
		return domain.Ticker{}, wrapAPIError(err)
	}
	if len(tickers) == 0 {
		return domain.Ticker{}, gateway.MarkRejected(fmt.Errorf("no book ticker for %s", symbol))
	}
	return domain.Ticker{
		Symbol:      symbol,
		Bid:         parseFloat(tickers[0].BidPrice),
		Ask:         parseFloat(tickers[0].AskPrice),
		Last:        parseFloat(stats[0].LastPrice),
		QuoteVolume: parseFloat(stats[0].QuoteVolume),
	}, nil
}

func (c *Client) fetchBook(ctx context.Context, symbol string) (domain.OrderBook, error) {
	depth, err := c.api.NewDepthService().Symbol(symbol).Limit(c.bookDepth).Do(ctx)
	if err != nil {
		return domain.OrderBook{}, wrapAPIError(err)
	}
	book := domain.OrderBook{
		Bids: make([]domain.BookLevel, 0, len(depth.Bids)),
		Asks: make([]domain.BookLevel, 0, len(depth.Asks)),
	}
	for _, lvl := range depth.Bids {
		book.Bids = append(book.Bids, domain.BookLevel{Price: parseFloat(lvl.Price), Qty: parseFloat(lvl.Quantity)})
	}
	for _, lvl := range depth.Asks {
		book.Asks = append(book.Asks, domain.BookLevel{Price: parseFloat(lvl.Price), Qty: parseFloat(lvl.Quantity)})
	}
	return book, nil
}

func (c *Client) fetchBars(ctx context.Context, symbol string) ([]domain.Bar, error) {
	klines, err := c.api.NewKlinesService().
		Symbol(symbol).
		Interval(c.barInterval).
		Limit(c.barLimit).
		Do(ctx)
	if err != nil {
		return nil, wrapAPIError(err)
	}
	bars := make([]domain.Bar, 0, len(klines))
	for _, k := range klines {
		bars = append(bars, domain.Bar{
			OpenTime: time.UnixMilli(k.OpenTime).UTC(),
			Open:     parseFloat(k.Open),
			High:     parseFloat(k.High),
			Low:      parseFloat(k.Low),
			Close:    parseFloat(k.Close),
			Volume:   parseFloat(k.Volume),
		})
	}
	return bars, nil
}

func (c *Client) fetchPremiumIndex(ctx context.Context, symbol string) (*float64, float64, error) {
	premia, err := c.api.NewPremiumIndexService().Symbol(symbol).Do(ctx)
	if err != nil {
		return nil, 0, wrapAPIError(err)
	}
	if len(premia) == 0 {
		return nil, 0, nil
	}
	rate := parseFloat(premia[0].LastFundingRate)
	index := parseFloat(premia[0].IndexPrice)
	if rate == 0 {
		return nil, index, nil
	}
	return &rate, index, nil
}

func (c *Client) fetchOpenInterest(ctx context.Context, symbol string) (*float64, error) {
	oi, err := c.api.NewGetOpenInterestService().Symbol(symbol).Do(ctx)
	if err != nil {
		return nil, wrapAPIError(err)
	}
	value := parseFloat(oi.OpenInterest)
	if value <= 0 {
		return nil, nil
	}
	return &value, nil
}

// wrapAPIError tags Binance API-level rejections so the gateway skips
// retrying them; transport errors pass through untouched.
func wrapAPIError(err error) error {
	var apiErr *common.APIError
	if errors.As(err, &apiErr) {
		return gateway.MarkRejected(err)
	}
	return err
}

func parseFloat(s string) float64 {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return v
}
