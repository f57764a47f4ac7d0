// Package exchange defines the market data contract consumed by the tick
// engine, plus the adapters implementing it: binance for live runs, frame for
// backtests and generator for synthetic data.
package exchange

import (
	"context"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/yanun0323/errors"

	"main/internal/schema"
)

var (
	ErrNoCandles   = errors.New("no candles available")
	ErrNoLookAhead = errors.New("look-ahead is only available in backtest frames")
	ErrUnknownSym  = errors.New("unknown symbol")
)

// Exchange is the market data collaborator contract. Candles are one-minute
// bars. GetNextCandles looks ahead within a backtest frame only, never beyond
// it; live adapters reject it.
type Exchange interface {
	GetCandles(ctx context.Context, symbol string, end time.Time, limit int) ([]schema.Candle, error)
	GetNextCandles(ctx context.Context, symbol string, after time.Time, limit int) ([]schema.Candle, error)
	GetAveragePrice(ctx context.Context, symbol string, at time.Time) (decimal.Decimal, error)
	FormatPrice(symbol string, price decimal.Decimal) string
	FormatQuantity(symbol string, qty decimal.Decimal) string
	GetOrderBook(ctx context.Context, symbol string, depth int) (schema.OrderBook, error)
}

// Precision holds exchange formatting rules for one symbol.
type Precision struct {
	Price    int32 `json:"price"`
	Quantity int32 `json:"quantity"`
}

// averagePrice computes the VWAP over the last schema.VWAPWindow candles
// ending at the given time. Shared by every adapter.
func averagePrice(ctx context.Context, ex Exchange, symbol string, at time.Time) (decimal.Decimal, error) {
	candles, err := ex.GetCandles(ctx, symbol, at, schema.VWAPWindow)
	if err != nil {
		return decimal.Zero, err
	}
	if len(candles) == 0 {
		return decimal.Zero, ErrNoCandles
	}
	return schema.VWAP(candles), nil
}

// formatFixed truncates toward zero to the exchange precision; exchanges
// reject rounded-up values that cross a tick boundary.
func formatFixed(v decimal.Decimal, places int32) string {
	return v.Truncate(places).StringFixed(places)
}

// stepPrecision derives decimal places from a filter step like "0.01000000".
func stepPrecision(step string) int32 {
	dot := strings.IndexByte(step, '.')
	if dot < 0 {
		return 0
	}
	frac := strings.TrimRight(step[dot+1:], "0")
	return int32(len(frac))
}
