package engine

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"main/internal/bus"
	"main/internal/schema"
	"main/internal/signal"
)

var (
	hundred  = decimal.NewFromInt(100)
	feeRate  = decimal.NewFromFloat(schema.FeeRate)
	slipRate = decimal.NewFromFloat(schema.SlippageRate)

	// breakevenThreshold is the unrealized profit percent covering the
	// round-trip cost before the stop moves to entry.
	breakevenThreshold = feeRate.Add(slipRate).Mul(hundred)
)

// tickActive runs the per-tick management of an open position. Close
// conditions are evaluated in fixed priority: stop-loss, take-profit, time
// expiry, manual request. Only one fires per tick.
func (e *Engine) tickActive(ctx context.Context, now time.Time, price decimal.Decimal) (schema.TickResult, error) {
	switch {
	case stopHit(e.sig, price):
		return e.close(ctx, now, price, schema.CloseReasonStopLoss)
	case takeHit(e.sig, price):
		return e.close(ctx, now, price, schema.CloseReasonTakeProfit)
	case now.Sub(e.sig.PendingAt) >= e.cfg.MaxHolding:
		return e.close(ctx, now, price, schema.CloseReasonExpired)
	case e.closeRequested:
		return e.close(ctx, now, price, schema.CloseReasonManual)
	}

	dirty := false
	dirty = e.checkPartialProfit(now, price) || dirty
	dirty = e.checkPartialLoss(now, price) || dirty
	dirty = e.checkBreakeven(now, price) || dirty
	dirty = e.checkTrailing(now, price) || dirty
	if dirty {
		if err := e.persist(ctx, now); err != nil {
			return schema.TickResult{}, err
		}
	}
	return e.result(schema.TickActive, now, price), nil
}

func stopHit(s *schema.Signal, price decimal.Decimal) bool {
	if s.Direction == schema.DirectionLong {
		return price.LessThanOrEqual(s.PriceStopLoss)
	}
	return price.GreaterThanOrEqual(s.PriceStopLoss)
}

func takeHit(s *schema.Signal, price decimal.Decimal) bool {
	if s.Direction == schema.DirectionLong {
		return price.GreaterThanOrEqual(s.PriceTakeProfit)
	}
	return price.LessThanOrEqual(s.PriceTakeProfit)
}

// pnlPercent is the realized return net of entry fee and exit slippage.
func pnlPercent(dir schema.Direction, open, exit decimal.Decimal) decimal.Decimal {
	entryCost := open.Mul(decimal.NewFromInt(1).Add(feeRate))
	exitNet := exit.Mul(decimal.NewFromInt(1).Sub(slipRate))
	if dir == schema.DirectionLong {
		return exitNet.Sub(entryCost).Div(open).Mul(hundred)
	}
	return entryCost.Sub(exitNet).Div(open).Mul(hundred)
}

func (e *Engine) close(ctx context.Context, now time.Time, price decimal.Decimal, reason schema.CloseReason) (schema.TickResult, error) {
	if err := signal.Transition(e.sig, schema.StatusClosed); err != nil {
		return schema.TickResult{}, err
	}
	e.sig.ClosedAt = now
	e.sig.ClosePrice = price
	e.sig.CloseReason = reason
	e.sig.PnLPercent = pnlPercent(e.sig.Direction, e.sig.PriceOpen, price)
	e.closeRequested = false

	e.deps.Gate.RemoveSignal(e.sig)
	if err := e.drop(ctx); err != nil {
		return schema.TickResult{}, err
	}
	e.emitSignal(bus.EventSignalClosed, now, price)

	res := e.result(schema.TickClosed, now, price)
	e.sig = nil
	return res, nil
}

func (e *Engine) cancel(ctx context.Context, now time.Time, price decimal.Decimal, reason schema.CancelReason, id string) (schema.TickResult, error) {
	if err := signal.Transition(e.sig, schema.StatusCancelled); err != nil {
		return schema.TickResult{}, err
	}
	e.sig.ClosedAt = now
	e.sig.CancelReason = reason
	e.sig.CancelID = id
	e.cancelRequested = false
	e.cancelID = ""

	if err := e.drop(ctx); err != nil {
		return schema.TickResult{}, err
	}
	e.emitSignal(bus.EventSignalCancelled, now, price)

	res := e.result(schema.TickCancelled, now, price)
	e.sig = nil
	return res, nil
}

// profitProgress is how far price travelled toward the original take-profit,
// as a percent of the full distance. Negative values mean the position is
// losing.
func profitProgress(s *schema.Signal, price decimal.Decimal) decimal.Decimal {
	if s.Direction == schema.DirectionLong {
		dist := s.OriginalPriceTakeProfit.Sub(s.PriceOpen)
		return price.Sub(s.PriceOpen).Div(dist).Mul(hundred)
	}
	dist := s.PriceOpen.Sub(s.OriginalPriceTakeProfit)
	return s.PriceOpen.Sub(price).Div(dist).Mul(hundred)
}

// lossProgress mirrors profitProgress toward the original stop-loss.
func lossProgress(s *schema.Signal, price decimal.Decimal) decimal.Decimal {
	if s.Direction == schema.DirectionLong {
		dist := s.PriceOpen.Sub(s.OriginalPriceStopLoss)
		return s.PriceOpen.Sub(price).Div(dist).Mul(hundred)
	}
	dist := s.OriginalPriceStopLoss.Sub(s.PriceOpen)
	return price.Sub(s.PriceOpen).Div(dist).Mul(hundred)
}

// checkPartialProfit fires untriggered profit levels in increasing order.
// Each level fires at most once for the lifetime of the signal.
func (e *Engine) checkPartialProfit(now time.Time, price decimal.Decimal) bool {
	progress := profitProgress(e.sig, price)
	fired := false
	for _, level := range schema.PartialProfitLevels {
		if schema.LevelTriggered(e.sig.TriggeredProfitLevels, level) {
			continue
		}
		if progress.LessThan(decimal.NewFromInt(level)) {
			break
		}
		e.firePartial(now, price, level, bus.EventPartialProfitAvailable, bus.EventPartialProfitCommitted, &e.sig.TriggeredProfitLevels)
		fired = true
	}
	return fired
}

// checkPartialLoss mirrors checkPartialProfit on the losing side.
func (e *Engine) checkPartialLoss(now time.Time, price decimal.Decimal) bool {
	progress := lossProgress(e.sig, price)
	fired := false
	for _, level := range schema.PartialLossLevels {
		if schema.LevelTriggered(e.sig.TriggeredLossLevels, level) {
			continue
		}
		if progress.LessThan(decimal.NewFromInt(level)) {
			break
		}
		e.firePartial(now, price, level, bus.EventPartialLossAvailable, bus.EventPartialLossCommitted, &e.sig.TriggeredLossLevels)
		fired = true
	}
	return fired
}

func (e *Engine) firePartial(now time.Time, price decimal.Decimal, level int64, available, committed bus.EventType, triggered *[]int64) {
	ev := e.event(available, now, price)
	ev.Level = level
	e.queue(ev)

	*triggered = append(*triggered, level)
	executed := e.sig.PartialExecuted.Add(decimal.NewFromInt(schema.PartialClosePercent))
	if executed.GreaterThan(hundred) {
		executed = hundred
	}
	e.sig.PartialExecuted = executed

	ev = e.event(committed, now, price)
	ev.Level = level
	e.queue(ev)
}

// checkBreakeven moves the stop to the entry price once unrealized profit
// covers the round-trip fee and slippage. Fires once per signal.
func (e *Engine) checkBreakeven(now time.Time, price decimal.Decimal) bool {
	if e.sig.BreakevenSet {
		return false
	}
	var profit decimal.Decimal
	if e.sig.Direction == schema.DirectionLong {
		profit = price.Sub(e.sig.PriceOpen).Div(e.sig.PriceOpen).Mul(hundred)
	} else {
		profit = e.sig.PriceOpen.Sub(price).Div(e.sig.PriceOpen).Mul(hundred)
	}
	if profit.LessThan(breakevenThreshold) {
		return false
	}

	e.queue(e.event(bus.EventBreakevenAvailable, now, price))
	if e.sig.Direction == schema.DirectionLong && e.sig.PriceStopLoss.LessThan(e.sig.PriceOpen) {
		e.sig.PriceStopLoss = e.sig.PriceOpen
	}
	if e.sig.Direction == schema.DirectionShort && e.sig.PriceStopLoss.GreaterThan(e.sig.PriceOpen) {
		e.sig.PriceStopLoss = e.sig.PriceOpen
	}
	e.sig.BreakevenSet = true
	e.queue(e.event(bus.EventBreakevenCommitted, now, price))
	return true
}

// checkTrailing ratchets the working stop and take behind favorable moves.
// Distances are always measured against the original levels, so repeated
// adjustments never compound.
func (e *Engine) checkTrailing(now time.Time, price decimal.Decimal) bool {
	moved := false
	if e.cfg.TrailingStop {
		moved = e.trailStop(now, price) || moved
	}
	if e.cfg.TrailingTake {
		moved = e.trailTake(now, price) || moved
	}
	return moved
}

func (e *Engine) trailStop(now time.Time, price decimal.Decimal) bool {
	s := e.sig
	var dist, candidate, improvement decimal.Decimal
	if s.Direction == schema.DirectionLong {
		dist = s.PriceOpen.Sub(s.OriginalPriceStopLoss)
		candidate = price.Sub(dist)
		improvement = candidate.Sub(s.PriceStopLoss)
	} else {
		dist = s.OriginalPriceStopLoss.Sub(s.PriceOpen)
		candidate = price.Add(dist)
		improvement = s.PriceStopLoss.Sub(candidate)
	}
	step := dist.Mul(e.cfg.TrailingStepPercent).Div(hundred)
	if improvement.LessThan(step) {
		return false
	}

	s.PriceStopLoss = candidate
	ev := e.event(bus.EventTrailingStopCommitted, now, price)
	ev.ShiftPercent = shiftPercent(s.Direction, candidate, s.OriginalPriceStopLoss, dist)
	e.queue(ev)
	return true
}

func (e *Engine) trailTake(now time.Time, price decimal.Decimal) bool {
	s := e.sig
	var dist, candidate, improvement decimal.Decimal
	if s.Direction == schema.DirectionLong {
		dist = s.OriginalPriceTakeProfit.Sub(s.PriceOpen)
		candidate = price.Add(dist)
		improvement = candidate.Sub(s.PriceTakeProfit)
	} else {
		dist = s.PriceOpen.Sub(s.OriginalPriceTakeProfit)
		candidate = price.Sub(dist)
		improvement = s.PriceTakeProfit.Sub(candidate)
	}
	step := dist.Mul(e.cfg.TrailingStepPercent).Div(hundred)
	if improvement.LessThan(step) {
		return false
	}

	s.PriceTakeProfit = candidate
	ev := e.event(bus.EventTrailingTakeCommitted, now, price)
	ev.ShiftPercent = shiftPercent(s.Direction, candidate, s.OriginalPriceTakeProfit, dist)
	e.queue(ev)
	return true
}

// shiftPercent expresses how far a working level moved from its original, as
// a percent of the original distance.
func shiftPercent(dir schema.Direction, candidate, original, dist decimal.Decimal) decimal.Decimal {
	if dir == schema.DirectionLong {
		return candidate.Sub(original).Div(dist).Mul(hundred)
	}
	return original.Sub(candidate).Div(dist).Mul(hundred)
}
