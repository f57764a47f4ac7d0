package strategy

import (
	"context"

	"github.com/shopspring/decimal"

	"main/internal/engine"
	"main/internal/schema"
)

var hundred = decimal.NewFromInt(100)

// deviation triggers when the latest close strays from the VWAP tick price
// by more than the configured percent. With fade false it follows the move
// (momentum); with fade true it trades against it (mean reversion).
type deviation struct {
	spec Spec
	fade bool
}

func (d *deviation) Name() string {
	return d.spec.Name
}

func (d *deviation) OnTick(_ context.Context, input engine.TickInput) (*engine.Entry, error) {
	if len(input.Candles) == 0 || !input.Price.IsPositive() {
		return nil, nil
	}
	last := input.Candles[len(input.Candles)-1].Close
	deviationPct := last.Sub(input.Price).Div(input.Price).Mul(hundred)

	var dir schema.Direction
	switch {
	case deviationPct.GreaterThanOrEqual(d.spec.DeviationPercent):
		dir = schema.DirectionLong
		if d.fade {
			dir = schema.DirectionShort
		}
	case deviationPct.Neg().GreaterThanOrEqual(d.spec.DeviationPercent):
		dir = schema.DirectionShort
		if d.fade {
			dir = schema.DirectionLong
		}
	default:
		return nil, nil
	}
	if dir == schema.DirectionShort && !d.spec.AllowShort {
		return nil, nil
	}

	open := input.Price
	tp := open.Mul(hundred.Add(d.spec.TakeProfitPercent)).Div(hundred)
	sl := open.Mul(hundred.Sub(d.spec.StopLossPercent)).Div(hundred)
	if dir == schema.DirectionShort {
		tp = open.Mul(hundred.Sub(d.spec.TakeProfitPercent)).Div(hundred)
		sl = open.Mul(hundred.Add(d.spec.StopLossPercent)).Div(hundred)
	}
	return &engine.Entry{
		Direction:       dir,
		PriceOpen:       open,
		PriceTakeProfit: tp,
		PriceStopLoss:   sl,
	}, nil
}
