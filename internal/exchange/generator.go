package exchange

import (
	"time"

	"github.com/shopspring/decimal"

	"main/internal/schema"
)

// Generator builds deterministic synthetic one-minute candles. The walk is a
// triangle wave around the base price, so backtests over generated data are
// reproducible run to run.
type Generator struct {
	base      decimal.Decimal
	amplitude decimal.Decimal
	period    int
	volume    decimal.Decimal
	index     int
}

// NewGenerator creates a generator oscillating base ± amplitude over period
// candles.
func NewGenerator(base, amplitude decimal.Decimal, period int) *Generator {
	if period < 2 {
		period = 2
	}
	return &Generator{
		base:      base,
		amplitude: amplitude,
		period:    period,
		volume:    decimal.NewFromInt(10),
	}
}

// Next creates the next candle in sequence opening at the given time.
func (g *Generator) Next(openTime time.Time) schema.Candle {
	price := g.priceAt(g.index)
	next := g.priceAt(g.index + 1)
	g.index++

	high := decimal.Max(price, next)
	low := decimal.Min(price, next)
	return schema.Candle{
		OpenTime: openTime,
		Open:     price,
		High:     high,
		Low:      low,
		Close:    next,
		Volume:   g.volume,
	}
}

// Series produces n consecutive candles starting at start.
func (g *Generator) Series(start time.Time, n int) []schema.Candle {
	out := make([]schema.Candle, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, g.Next(start.Add(time.Duration(i)*time.Minute)))
	}
	return out
}

// priceAt evaluates the triangle wave at step i.
func (g *Generator) priceAt(i int) decimal.Decimal {
	half := g.period / 2
	pos := i % g.period
	var frac decimal.Decimal
	if pos < half {
		frac = decimal.NewFromInt(int64(pos)).Div(decimal.NewFromInt(int64(half)))
	} else {
		frac = decimal.NewFromInt(int64(g.period - pos)).Div(decimal.NewFromInt(int64(half)))
	}
	offset := g.amplitude.Mul(frac.Mul(decimal.NewFromInt(2)).Sub(decimal.NewFromInt(1)))
	return g.base.Add(offset)
}
