package engine

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"github.com/yanun0323/logs"

	"main/internal/schema"
)

// TickInput is the market view handed to a strategy on each evaluation.
// Price is the VWAP over the last five one-minute candles, not the last
// trade, so single-tick noise does not drive entries.
type TickInput struct {
	Symbol  string
	At      time.Time
	Price   decimal.Decimal
	Candles []schema.Candle
	Context schema.RunContext
}

// Entry is a strategy's decision to trade: a limit entry price with absolute
// TP/SL levels. The engine enforces everything else.
type Entry struct {
	Direction       schema.Direction
	PriceOpen       decimal.Decimal
	PriceTakeProfit decimal.Decimal
	PriceStopLoss   decimal.Decimal
}

// Strategy decides entries. Implementations are user code; the engine
// isolates their faults.
type Strategy interface {
	Name() string
	OnTick(ctx context.Context, input TickInput) (*Entry, error)
}

// callStrategy shields the engine from panicking user code: a panic is
// logged and the safe default (no entry) is substituted.
func callStrategy(ctx context.Context, s Strategy, input TickInput) (entry *Entry, err error) {
	defer func() {
		if r := recover(); r != nil {
			logs.Errorf("strategy %s panic on %s: %+v", s.Name(), input.Symbol, r)
			entry, err = nil, nil
		}
	}()
	return s.OnTick(ctx, input)
}
