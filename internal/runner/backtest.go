package runner

import (
	"context"
	"sort"

	"github.com/yanun0323/logs"

	"main/internal/bus"
	"main/internal/exchange"
	"main/internal/schema"
)

// RunBacktest replays the frame's candle timeline for the symbol through a
// tick engine and streams one result per evaluated tick. The channel is
// unbuffered: nothing is computed ahead of the consumer. Cancelling the
// context releases the producer. Two runs over the same frame and options
// yield identical result sequences.
func RunBacktest(ctx context.Context, frame *exchange.Frame, opts Options) (<-chan schema.TickResult, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}
	timeline := frame.Timeline(opts.Symbol)
	if len(timeline) == 0 {
		return nil, ErrEmptyFrame
	}

	runCtx := opts.runContext(frame.Name(), true)
	eng, err := opts.buildEngine(runCtx, frame)
	if err != nil {
		return nil, err
	}

	out := make(chan schema.TickResult)
	go func() {
		defer close(out)
		for i := 0; i < len(timeline); i++ {
			now := timeline[i]
			res, err := eng.Tick(ctx, now)
			if err != nil {
				logs.Errorf("backtest %s/%s halted at %s, err: %+v", runCtx.StrategyName, opts.Symbol, now, err)
				emitRun(opts, runCtx, bus.EventRunError, now, err)
				return
			}
			select {
			case out <- res:
			case <-ctx.Done():
				return
			}
			if res.Kind != schema.TickActive {
				continue
			}
			at, ok, err := eng.NextEventTime(ctx, now)
			if err != nil {
				logs.Errorf("backtest %s/%s look-ahead failed, err: %+v", runCtx.StrategyName, opts.Symbol, err)
				emitRun(opts, runCtx, bus.EventRunError, now, err)
				return
			}
			if !ok {
				continue
			}
			j := sort.Search(len(timeline), func(k int) bool { return !timeline[k].Before(at) })
			if j > i+1 {
				i = j - 1
			}
		}
		emitRun(opts, runCtx, bus.EventRunDone, timeline[len(timeline)-1], nil)
	}()
	return out, nil
}

