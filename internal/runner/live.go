package runner

import (
	"context"
	"sync"
	"time"

	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"

	"main/internal/bus"
	"main/internal/engine"
	"main/internal/schema"
)

const defaultTickInterval = time.Second

// shutdownCancelID marks scheduled signals cancelled by a graceful stop.
const shutdownCancelID = "shutdown"

// Live is a running live loop. Results must be consumed; the loop blocks on
// the channel so a persisted mutation is always visible before the next tick.
type Live struct {
	opts    Options
	runCtx  schema.RunContext
	eng     *engine.Engine
	results chan schema.TickResult

	stopOnce sync.Once
	stop     chan struct{}
}

// RunLive restores any persisted signal for the (strategy, symbol) pair and
// starts polling the exchange. The loop halts on context cancellation, on an
// infrastructure error, or after Stop has wound the position down.
func RunLive(ctx context.Context, opts Options) (*Live, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}
	if opts.Exchange == nil {
		return nil, errors.Wrap(ErrMissingOption, "exchange is required")
	}
	if opts.TickInterval <= 0 {
		opts.TickInterval = defaultTickInterval
	}

	runCtx := opts.runContext("", false)
	eng, err := opts.buildEngine(runCtx, opts.Exchange)
	if err != nil {
		return nil, err
	}
	if err := eng.Restore(ctx); err != nil {
		return nil, err
	}

	l := &Live{
		opts:    opts,
		runCtx:  runCtx,
		eng:     eng,
		results: make(chan schema.TickResult),
		stop:    make(chan struct{}),
	}
	go l.loop(ctx)
	return l, nil
}

// Results streams tick results until the loop ends.
func (l *Live) Results() <-chan schema.TickResult {
	return l.results
}

// Stop begins a graceful shutdown: no new entries, scheduled signals are
// cancelled and an active position is closed manually on the next tick. The
// results channel closes once the engine is idle.
func (l *Live) Stop() {
	l.stopOnce.Do(func() { close(l.stop) })
}

func (l *Live) loop(ctx context.Context) {
	defer close(l.results)
	stopping := false
	for {
		res, err := l.eng.Tick(ctx, time.Now())
		if err != nil {
			logs.Errorf("live %s/%s halted, err: %+v", l.runCtx.StrategyName, l.opts.Symbol, err)
			emitRun(l.opts, l.runCtx, bus.EventRunError, time.Now(), err)
			return
		}
		select {
		case l.results <- res:
		case <-ctx.Done():
			return
		}
		if stopping && (res.Terminal() || l.eng.Idle()) {
			emitRun(l.opts, l.runCtx, bus.EventRunDone, time.Now(), nil)
			return
		}

		select {
		case <-ctx.Done():
			return
		case <-l.stop:
			if stopping {
				// winding down already; keep ticking without delay
				continue
			}
			stopping = true
			l.eng.BlockNewSignals()
			sig := l.eng.Signal()
			switch {
			case sig == nil:
				emitRun(l.opts, l.runCtx, bus.EventRunDone, time.Now(), nil)
				return
			case sig.Status == schema.StatusScheduled:
				l.eng.RequestCancel(shutdownCancelID)
			default:
				l.eng.RequestClose()
			}
		case <-time.After(l.opts.TickInterval):
		}
	}
}
