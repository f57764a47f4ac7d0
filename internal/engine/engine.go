// Package engine runs one strategy against one symbol: it evaluates entries,
// walks the signal lifecycle and manages the open position tick by tick.
// Every state mutation is persisted before the tick result is handed to the
// caller, so a crash between ticks loses nothing.
package engine

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"
	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"

	"main/internal/bus"
	"main/internal/exchange"
	"main/internal/persist"
	"main/internal/risk"
	"main/internal/schema"
	"main/internal/signal"
	"main/internal/sizing"
)

var (
	ErrNilDependency = errors.New("nil engine dependency")
)

// Deps are the collaborators one engine instance works against.
type Deps struct {
	Exchange exchange.Exchange
	Store    persist.Store
	Gate     *risk.Gate
	Emitter  *bus.Emitter
}

// Engine owns at most one non-terminal signal for its (strategy, symbol)
// pair. Tick is the only state mutator; request methods are safe to call
// from other goroutines.
type Engine struct {
	runCtx   schema.RunContext
	symbol   string
	strategy Strategy
	cfg      Config
	sizing   sizing.Params
	deps     Deps

	stopNew  atomic.Bool
	restored atomic.Bool

	mu         sync.Mutex
	sig        *schema.Signal
	recCreated time.Time
	lastEval   time.Time
	pending    []bus.Event

	closeRequested  bool
	cancelRequested bool
	cancelID        string
}

// New builds an engine. Config zero values fall back to defaults.
func New(runCtx schema.RunContext, symbol string, strat Strategy, cfg Config, sizingParams sizing.Params, deps Deps) (*Engine, error) {
	if strat == nil || deps.Exchange == nil || deps.Store == nil || deps.Gate == nil || deps.Emitter == nil {
		return nil, ErrNilDependency
	}
	cfg = cfg.withDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Engine{
		runCtx:   runCtx,
		symbol:   symbol,
		strategy: strat,
		cfg:      cfg,
		sizing:   sizingParams,
		deps:     deps,
	}, nil
}

// Key returns the persistence key this engine owns.
func (e *Engine) Key() string {
	return e.runCtx.Key(e.symbol)
}

// Idle reports whether the engine holds no signal.
func (e *Engine) Idle() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.sig == nil
}

// Signal returns a snapshot of the current signal, nil when idle.
func (e *Engine) Signal() *schema.Signal {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.sig.Clone()
}

// BlockNewSignals stops entry evaluation; the current signal still runs to
// its terminal state. Used for graceful shutdown.
func (e *Engine) BlockNewSignals() {
	e.stopNew.Store(true)
}

// RequestClose asks the engine to close the active position manually on the
// next tick.
func (e *Engine) RequestClose() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closeRequested = true
}

// RequestCancel asks the engine to cancel the scheduled signal on the next
// tick. The id is recorded on the signal for audit.
func (e *Engine) RequestCancel(id string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.cancelRequested = true
	e.cancelID = id
}

// Restore adopts the persisted record for this engine's key, if any. It runs
// at most once per engine; corrupt records were quarantined by the store and
// leave the engine idle.
func (e *Engine) Restore(ctx context.Context) error {
	if !e.restored.CompareAndSwap(false, true) {
		return nil
	}
	rec, err := e.deps.Store.Read(ctx, e.Key())
	if err != nil {
		if errors.Is(err, persist.ErrNotFound) {
			return nil
		}
		if errors.Is(err, persist.ErrCorrupt) {
			logs.Warnf("record for %s was corrupt, starting clean", e.Key())
			return nil
		}
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.sig = rec.Signal.Clone()
	e.recCreated = rec.CreatedAt
	switch e.sig.Status {
	case schema.StatusOpened, schema.StatusActive:
		e.deps.Gate.AddSignal(e.sig)
	}
	logs.Infof("restored %s signal %s in status %s", e.Key(), e.sig.ID, e.sig.Status)
	return nil
}

// Tick runs one evaluation at the given time. The returned error is reserved
// for infrastructure failures (exchange, store); strategy faults and risk
// rejections surface as events and an idle result instead.
func (e *Engine) Tick(ctx context.Context, now time.Time) (schema.TickResult, error) {
	e.mu.Lock()
	res, err := e.tickLocked(ctx, now)
	events := e.pending
	e.pending = nil
	e.mu.Unlock()

	// Listeners run after the mutex is released so they may call back into
	// RequestClose, RequestCancel or Signal without blocking the loop.
	for _, ev := range events {
		e.deps.Emitter.Emit(ev)
	}
	return res, err
}

func (e *Engine) tickLocked(ctx context.Context, now time.Time) (schema.TickResult, error) {
	price, err := e.deps.Exchange.GetAveragePrice(ctx, e.symbol, now)
	if err != nil {
		return schema.TickResult{}, errors.Wrapf(err, "average price for %s", e.symbol)
	}

	switch {
	case e.sig == nil:
		return e.tickIdle(ctx, now, price)
	case e.sig.Status == schema.StatusScheduled:
		return e.tickScheduled(ctx, now, price)
	case e.sig.Status == schema.StatusOpened:
		return e.tickOpened(ctx, now, price)
	default:
		return e.tickActive(ctx, now, price)
	}
}

func (e *Engine) tickIdle(ctx context.Context, now time.Time, price decimal.Decimal) (schema.TickResult, error) {
	idle := e.result(schema.TickIdle, now, price)
	if e.stopNew.Load() {
		return idle, nil
	}
	if !e.lastEval.IsZero() && now.Sub(e.lastEval) < e.cfg.Interval.Duration() {
		return idle, nil
	}
	e.lastEval = now

	candles, err := e.deps.Exchange.GetCandles(ctx, e.symbol, now, schema.VWAPWindow)
	if err != nil {
		return schema.TickResult{}, errors.Wrapf(err, "candles for %s", e.symbol)
	}
	entry, err := callStrategy(ctx, e.strategy, TickInput{
		Symbol:  e.symbol,
		At:      now,
		Price:   price,
		Candles: candles,
		Context: e.runCtx,
	})
	if err != nil {
		logs.Errorf("strategy %s failed on %s, err: %+v", e.strategy.Name(), e.symbol, err)
		e.emitErr(bus.EventValidationError, now, price, err)
		return idle, nil
	}
	if entry == nil {
		return idle, nil
	}

	sig := &schema.Signal{
		ID:                      e.newSignalID(now),
		Symbol:                  e.symbol,
		StrategyName:            e.runCtx.StrategyName,
		ExchangeName:            e.runCtx.ExchangeName,
		FrameName:               e.runCtx.FrameName,
		Direction:               entry.Direction,
		PriceOpen:               entry.PriceOpen,
		PriceTakeProfit:         entry.PriceTakeProfit,
		PriceStopLoss:           entry.PriceStopLoss,
		OriginalPriceTakeProfit: entry.PriceTakeProfit,
		OriginalPriceStopLoss:   entry.PriceStopLoss,
		CreatedAt:               now,
	}
	qty, err := sizing.Calculate(e.sizing, entry.PriceOpen)
	if err != nil {
		e.emitErr(bus.EventValidationError, now, price, err)
		return idle, nil
	}
	sig.Quantity = qty
	if err := sig.Validate(); err != nil {
		e.emitErr(bus.EventValidationError, now, price, err)
		return idle, nil
	}

	if entryCrossed(sig.Direction, price, sig.PriceOpen) {
		if r := e.deps.Gate.Admit(sig); r != nil {
			e.emitRejection(now, price, r)
			return idle, nil
		}
		if err := signal.Transition(sig, schema.StatusOpened); err != nil {
			return schema.TickResult{}, err
		}
		sig.PendingAt = now
		e.sig = sig
		if err := e.persist(ctx, now); err != nil {
			return schema.TickResult{}, err
		}
		e.emitSignal(bus.EventSignalOpened, now, price)
		return e.result(schema.TickOpened, now, price), nil
	}

	if r := e.deps.Gate.Check(sig); r != nil {
		e.emitRejection(now, price, r)
		return idle, nil
	}
	if err := signal.Transition(sig, schema.StatusScheduled); err != nil {
		return schema.TickResult{}, err
	}
	sig.ScheduledAt = now
	e.sig = sig
	if err := e.persist(ctx, now); err != nil {
		return schema.TickResult{}, err
	}
	e.emitSignal(bus.EventSignalScheduled, now, price)
	return e.result(schema.TickScheduled, now, price), nil
}

func (e *Engine) tickScheduled(ctx context.Context, now time.Time, price decimal.Decimal) (schema.TickResult, error) {
	if e.cancelRequested {
		return e.cancel(ctx, now, price, schema.CancelReasonUser, e.cancelID)
	}

	if entryCrossed(e.sig.Direction, price, e.sig.PriceOpen) {
		if r := e.deps.Gate.Admit(e.sig); r != nil {
			e.emitRejection(now, price, r)
			return e.cancel(ctx, now, price, schema.CancelReasonRisk, r.ID)
		}
		if err := signal.Transition(e.sig, schema.StatusOpened); err != nil {
			return schema.TickResult{}, err
		}
		e.sig.PendingAt = now
		if err := e.persist(ctx, now); err != nil {
			return schema.TickResult{}, err
		}
		e.emitSignal(bus.EventSignalOpened, now, price)
		return e.result(schema.TickOpened, now, price), nil
	}

	if now.Sub(e.sig.ScheduledAt) >= e.cfg.ScheduleTimeout {
		return e.cancel(ctx, now, price, schema.CancelReasonTimeout, "")
	}
	if priceAway(e.sig.Direction, price, e.sig.PriceOpen, e.cfg.ScheduleRejectPercent) {
		return e.cancel(ctx, now, price, schema.CancelReasonPriceAway, "")
	}
	return e.result(schema.TickScheduled, now, price), nil
}

func (e *Engine) tickOpened(ctx context.Context, now time.Time, price decimal.Decimal) (schema.TickResult, error) {
	if err := signal.Transition(e.sig, schema.StatusActive); err != nil {
		return schema.TickResult{}, err
	}
	if err := e.persist(ctx, now); err != nil {
		return schema.TickResult{}, err
	}
	return e.result(schema.TickActive, now, price), nil
}

// newSignalID is random in live mode and derived from the run key plus
// creation time in backtests, keeping replays reproducible.
func (e *Engine) newSignalID(now time.Time) string {
	if e.runCtx.Backtest {
		return schema.NewBacktestSignalID(e.Key(), now)
	}
	return schema.NewSignalID()
}

// entryCrossed reports whether the market reached the limit entry: at or
// below for longs, at or above for shorts.
func entryCrossed(dir schema.Direction, price, open decimal.Decimal) bool {
	if dir == schema.DirectionLong {
		return price.LessThanOrEqual(open)
	}
	return price.GreaterThanOrEqual(open)
}

// priceAway reports whether the market ran away from the limit entry beyond
// the rejection threshold.
func priceAway(dir schema.Direction, price, open, percent decimal.Decimal) bool {
	if !percent.IsPositive() {
		return false
	}
	away := open.Mul(percent).Div(hundred)
	if dir == schema.DirectionLong {
		return price.GreaterThanOrEqual(open.Add(away))
	}
	return price.LessThanOrEqual(open.Sub(away))
}

// persist writes the current signal through the store before the tick result
// becomes visible to any consumer.
func (e *Engine) persist(ctx context.Context, now time.Time) error {
	if e.recCreated.IsZero() {
		e.recCreated = now
	}
	rec := persist.NewRecord(e.sig)
	rec.CreatedAt = e.recCreated
	return e.deps.Store.Write(ctx, e.Key(), rec)
}

// drop removes the persisted record after a signal reaches a terminal state.
func (e *Engine) drop(ctx context.Context) error {
	if err := e.deps.Store.Delete(ctx, e.Key()); err != nil {
		return err
	}
	e.recCreated = time.Time{}
	return nil
}

func (e *Engine) result(kind schema.TickKind, now time.Time, price decimal.Decimal) schema.TickResult {
	return schema.TickResult{
		Kind:      kind,
		Symbol:    e.symbol,
		Context:   e.runCtx,
		Price:     price,
		Timestamp: now,
		Signal:    e.sig.Clone(),
	}
}

func (e *Engine) event(typ bus.EventType, now time.Time, price decimal.Decimal) bus.Event {
	return bus.Event{
		Type:         typ,
		Symbol:       e.symbol,
		StrategyName: e.runCtx.StrategyName,
		ExchangeName: e.runCtx.ExchangeName,
		FrameName:    e.runCtx.FrameName,
		Backtest:     e.runCtx.Backtest,
		At:           now,
		Price:        price,
		Signal:       e.sig.Clone(),
	}
}

// queue records an event built under the mutex; Tick delivers the batch in
// order once the mutex is released.
func (e *Engine) queue(ev bus.Event) {
	e.pending = append(e.pending, ev)
}

func (e *Engine) emitSignal(typ bus.EventType, now time.Time, price decimal.Decimal) {
	e.queue(e.event(typ, now, price))
}

func (e *Engine) emitRejection(now time.Time, price decimal.Decimal, r *risk.Rejection) {
	ev := e.event(bus.EventRiskRejection, now, price)
	ev.RejectionID = r.ID
	ev.RejectionCode = r.Code
	ev.RejectionReason = r.Reason
	e.queue(ev)
}

func (e *Engine) emitErr(typ bus.EventType, now time.Time, price decimal.Decimal, err error) {
	ev := e.event(typ, now, price)
	ev.Err = err.Error()
	e.queue(ev)
}
