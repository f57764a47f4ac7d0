package exchange

import (
	"context"
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"github.com/yanun0323/errors"

	"main/internal/schema"
)

// Frame serves a finite, ordered historical timeline from memory. It backs
// backtests: GetCandles never reads past the requested time, GetNextCandles
// looks ahead within the frame only.
type Frame struct {
	name      string
	candles   map[string][]schema.Candle
	precision map[string]Precision
}

// NewFrame copies and time-sorts the candle series per symbol.
func NewFrame(name string, candles map[string][]schema.Candle, precision map[string]Precision) *Frame {
	owned := make(map[string][]schema.Candle, len(candles))
	for symbol, series := range candles {
		cp := append([]schema.Candle(nil), series...)
		sort.Slice(cp, func(i, j int) bool { return cp[i].OpenTime.Before(cp[j].OpenTime) })
		owned[symbol] = cp
	}
	if precision == nil {
		precision = map[string]Precision{}
	}
	return &Frame{name: name, candles: owned, precision: precision}
}

// Name returns the frame name.
func (f *Frame) Name() string { return f.name }

// Timeline returns every candle open time for a symbol, in order.
func (f *Frame) Timeline(symbol string) []time.Time {
	series := f.candles[symbol]
	out := make([]time.Time, len(series))
	for i, c := range series {
		out[i] = c.OpenTime
	}
	return out
}

func (f *Frame) series(symbol string) ([]schema.Candle, error) {
	series, ok := f.candles[symbol]
	if !ok {
		return nil, errors.Wrap(ErrUnknownSym, symbol)
	}
	return series, nil
}

// GetCandles returns up to limit candles with OpenTime <= end, newest last.
func (f *Frame) GetCandles(_ context.Context, symbol string, end time.Time, limit int) ([]schema.Candle, error) {
	series, err := f.series(symbol)
	if err != nil {
		return nil, err
	}
	// first index strictly after end
	hi := sort.Search(len(series), func(i int) bool { return series[i].OpenTime.After(end) })
	lo := hi - limit
	if lo < 0 {
		lo = 0
	}
	return append([]schema.Candle(nil), series[lo:hi]...), nil
}

// GetNextCandles returns up to limit candles with OpenTime > after, oldest
// first, bounded by the frame end.
func (f *Frame) GetNextCandles(_ context.Context, symbol string, after time.Time, limit int) ([]schema.Candle, error) {
	series, err := f.series(symbol)
	if err != nil {
		return nil, err
	}
	lo := sort.Search(len(series), func(i int) bool { return series[i].OpenTime.After(after) })
	hi := lo + limit
	if hi > len(series) {
		hi = len(series)
	}
	return append([]schema.Candle(nil), series[lo:hi]...), nil
}

// GetAveragePrice returns the VWAP at the given frame time.
func (f *Frame) GetAveragePrice(ctx context.Context, symbol string, at time.Time) (decimal.Decimal, error) {
	return averagePrice(ctx, f, symbol, at)
}

// FormatPrice formats to the configured precision, default 8 places.
func (f *Frame) FormatPrice(symbol string, price decimal.Decimal) string {
	return formatFixed(price, f.precisionFor(symbol).Price)
}

// FormatQuantity formats to the configured precision, default 8 places.
func (f *Frame) FormatQuantity(symbol string, qty decimal.Decimal) string {
	return formatFixed(qty, f.precisionFor(symbol).Quantity)
}

func (f *Frame) precisionFor(symbol string) Precision {
	if p, ok := f.precision[symbol]; ok {
		return p
	}
	return Precision{Price: 8, Quantity: 8}
}

// GetOrderBook synthesizes a one-level book around the latest close; frames
// carry no depth data.
func (f *Frame) GetOrderBook(_ context.Context, symbol string, _ int) (schema.OrderBook, error) {
	series, err := f.series(symbol)
	if err != nil {
		return schema.OrderBook{}, err
	}
	if len(series) == 0 {
		return schema.OrderBook{}, ErrNoCandles
	}
	last := series[len(series)-1]
	spread := last.Close.Mul(decimal.RequireFromString("0.0001"))
	return schema.OrderBook{
		Symbol: symbol,
		Bids:   []schema.OrderBookLevel{{Price: last.Close.Sub(spread), Quantity: last.Volume}},
		Asks:   []schema.OrderBookLevel{{Price: last.Close.Add(spread), Quantity: last.Volume}},
		At:     last.OpenTime,
	}, nil
}
