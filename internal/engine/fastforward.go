package engine

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"github.com/yanun0323/errors"

	"main/internal/exchange"
	"main/internal/schema"
)

// fastForwardScan bounds one look-ahead request.
const fastForwardScan = 1440

// NextEventTime scans the frame ahead of now for the first candle that can
// change the active position's state: a touch of the working stop or take, a
// pending partial level, the breakeven threshold or a trailing step, or the
// holding expiry. Backtest drivers skip the ticks in between; ticks there are
// provably no-ops. Returns false when nothing ahead can change state within
// the scan window, or when the engine is not holding an active signal.
func (e *Engine) NextEventTime(ctx context.Context, now time.Time) (time.Time, bool, error) {
	if !e.cfg.FastForward || !e.runCtx.Backtest {
		return time.Time{}, false, nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.sig == nil || e.sig.Status != schema.StatusActive {
		return time.Time{}, false, nil
	}

	expiry := e.sig.PendingAt.Add(e.cfg.MaxHolding)
	watches := e.watchPrices()

	ref, err := e.deps.Exchange.GetAveragePrice(ctx, e.symbol, now)
	if err != nil {
		return time.Time{}, false, err
	}
	candles, err := e.deps.Exchange.GetNextCandles(ctx, e.symbol, now, fastForwardScan)
	if err != nil {
		if errors.Is(err, exchange.ErrNoLookAhead) {
			return time.Time{}, false, nil
		}
		return time.Time{}, false, err
	}
	for _, c := range candles {
		if !c.OpenTime.Before(expiry) {
			return expiry, true, nil
		}
		// widen the range to the previous reference so a gap over a
		// level still counts as a touch
		lo, hi := c.Low, c.High
		if ref.LessThan(lo) {
			lo = ref
		}
		if ref.GreaterThan(hi) {
			hi = ref
		}
		for _, p := range watches {
			if lo.LessThanOrEqual(p) && hi.GreaterThanOrEqual(p) {
				return c.OpenTime, true, nil
			}
		}
		ref = c.Close
	}
	return time.Time{}, false, nil
}

// watchPrices collects every price whose touch could mutate the signal.
func (e *Engine) watchPrices() []decimal.Decimal {
	s := e.sig
	watches := []decimal.Decimal{s.PriceStopLoss, s.PriceTakeProfit}

	open := s.PriceOpen
	for _, level := range schema.PartialProfitLevels {
		if schema.LevelTriggered(s.TriggeredProfitLevels, level) {
			continue
		}
		frac := decimal.NewFromInt(level).Div(hundred)
		if s.Direction == schema.DirectionLong {
			dist := s.OriginalPriceTakeProfit.Sub(open)
			watches = append(watches, open.Add(dist.Mul(frac)))
		} else {
			dist := open.Sub(s.OriginalPriceTakeProfit)
			watches = append(watches, open.Sub(dist.Mul(frac)))
		}
	}
	for _, level := range schema.PartialLossLevels {
		if schema.LevelTriggered(s.TriggeredLossLevels, level) {
			continue
		}
		frac := decimal.NewFromInt(level).Div(hundred)
		if s.Direction == schema.DirectionLong {
			dist := open.Sub(s.OriginalPriceStopLoss)
			watches = append(watches, open.Sub(dist.Mul(frac)))
		} else {
			dist := s.OriginalPriceStopLoss.Sub(open)
			watches = append(watches, open.Add(dist.Mul(frac)))
		}
	}
	if !s.BreakevenSet {
		buf := open.Mul(breakevenThreshold).Div(hundred)
		if s.Direction == schema.DirectionLong {
			watches = append(watches, open.Add(buf))
		} else {
			watches = append(watches, open.Sub(buf))
		}
	}
	if e.cfg.TrailingStop {
		dist, step := trailDistStep(s, e.cfg.TrailingStepPercent, false)
		if s.Direction == schema.DirectionLong {
			watches = append(watches, s.PriceStopLoss.Add(dist).Add(step))
		} else {
			watches = append(watches, s.PriceStopLoss.Sub(dist).Sub(step))
		}
	}
	if e.cfg.TrailingTake {
		dist, step := trailDistStep(s, e.cfg.TrailingStepPercent, true)
		if s.Direction == schema.DirectionLong {
			watches = append(watches, s.PriceTakeProfit.Sub(dist).Add(step))
		} else {
			watches = append(watches, s.PriceTakeProfit.Add(dist).Sub(step))
		}
	}
	return watches
}

func trailDistStep(s *schema.Signal, stepPercent decimal.Decimal, take bool) (dist, step decimal.Decimal) {
	switch {
	case take && s.Direction == schema.DirectionLong:
		dist = s.OriginalPriceTakeProfit.Sub(s.PriceOpen)
	case take:
		dist = s.PriceOpen.Sub(s.OriginalPriceTakeProfit)
	case s.Direction == schema.DirectionLong:
		dist = s.PriceOpen.Sub(s.OriginalPriceStopLoss)
	default:
		dist = s.OriginalPriceStopLoss.Sub(s.PriceOpen)
	}
	return dist, dist.Mul(stepPercent).Div(hundred)
}
