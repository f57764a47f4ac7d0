package schema

import (
	"time"

	"github.com/shopspring/decimal"
)

// Candle is one aggregated price bar.
type Candle struct {
	OpenTime time.Time       `json:"openTime"`
	Open     decimal.Decimal `json:"open"`
	High     decimal.Decimal `json:"high"`
	Low      decimal.Decimal `json:"low"`
	Close    decimal.Decimal `json:"close"`
	Volume   decimal.Decimal `json:"volume"`
}

// OrderBookLevel is one price level of an order book side.
type OrderBookLevel struct {
	Price    decimal.Decimal `json:"price"`
	Quantity decimal.Decimal `json:"quantity"`
}

// OrderBook is a point-in-time depth snapshot.
type OrderBook struct {
	Symbol string           `json:"symbol"`
	Bids   []OrderBookLevel `json:"bids"`
	Asks   []OrderBookLevel `json:"asks"`
	At     time.Time        `json:"at"`
}

// VWAPWindow is the number of one-minute candles used for pricing decisions.
const VWAPWindow = 5

// VWAP computes the volume weighted average price over the candles using the
// typical price (H+L+C)/3 per bar. Bars with zero volume fall back to a plain
// average of typical prices so a thin market still yields a price.
func VWAP(candles []Candle) decimal.Decimal {
	if len(candles) == 0 {
		return decimal.Zero
	}
	three := decimal.NewFromInt(3)
	sumPV := decimal.Zero
	sumV := decimal.Zero
	for _, c := range candles {
		typical := c.High.Add(c.Low).Add(c.Close).Div(three)
		sumPV = sumPV.Add(typical.Mul(c.Volume))
		sumV = sumV.Add(c.Volume)
	}
	if sumV.IsZero() {
		sum := decimal.Zero
		for _, c := range candles {
			sum = sum.Add(c.High.Add(c.Low).Add(c.Close).Div(three))
		}
		return sum.Div(decimal.NewFromInt(int64(len(candles))))
	}
	return sumPV.Div(sumV)
}
