// Package runner drives tick engines: RunBacktest walks a frame's candle
// timeline deterministically, RunLive polls the exchange on a wall-clock
// cadence with crash recovery and graceful shutdown.
package runner

import (
	"time"

	"github.com/yanun0323/errors"

	"main/internal/bus"
	"main/internal/engine"
	"main/internal/exchange"
	"main/internal/persist"
	"main/internal/risk"
	"main/internal/schema"
	"main/internal/sizing"
)

var (
	ErrMissingOption = errors.New("missing runner option")
	ErrEmptyFrame    = errors.New("frame has no candles for symbol")
)

// Options configure one (strategy, symbol) run. Exchange is the live market
// data source; backtests read from their frame instead.
type Options struct {
	Symbol   string
	Strategy engine.Strategy

	Engine engine.Config
	Sizing sizing.Params

	Exchange     exchange.Exchange
	ExchangeName string
	Store        persist.Store
	Gate         *risk.Gate
	Emitter      *bus.Emitter

	// Cache memoizes engines across runs; optional.
	Cache *EngineCache

	// TickInterval is the live polling cadence.
	TickInterval time.Duration
}

func (o Options) validate() error {
	if o.Symbol == "" || o.Strategy == nil {
		return errors.Wrap(ErrMissingOption, "symbol and strategy are required")
	}
	if o.Store == nil || o.Gate == nil || o.Emitter == nil {
		return errors.Wrap(ErrMissingOption, "store, gate and emitter are required")
	}
	return nil
}

func (o Options) runContext(frameName string, backtest bool) schema.RunContext {
	return schema.RunContext{
		StrategyName: o.Strategy.Name(),
		ExchangeName: o.ExchangeName,
		FrameName:    frameName,
		Backtest:     backtest,
	}
}

func (o Options) buildEngine(runCtx schema.RunContext, ex exchange.Exchange) (*engine.Engine, error) {
	build := func() (*engine.Engine, error) {
		return engine.New(runCtx, o.Symbol, o.Strategy, o.Engine, o.Sizing, engine.Deps{
			Exchange: ex,
			Store:    o.Store,
			Gate:     o.Gate,
			Emitter:  o.Emitter,
		})
	}
	if o.Cache == nil {
		return build()
	}
	key := runCtx.Key(o.Symbol) + "." + runCtx.FrameName
	return o.Cache.Get(key, build)
}

func emitRun(o Options, runCtx schema.RunContext, typ bus.EventType, at time.Time, err error) {
	ev := bus.Event{
		Type:         typ,
		Symbol:       o.Symbol,
		StrategyName: runCtx.StrategyName,
		ExchangeName: runCtx.ExchangeName,
		FrameName:    runCtx.FrameName,
		Backtest:     runCtx.Backtest,
		At:           at,
	}
	if err != nil {
		ev.Err = err.Error()
	}
	o.Emitter.Emit(ev)
}
