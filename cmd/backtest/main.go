package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/shopspring/decimal"

	"main/internal/bus"
	"main/internal/obs"
	"main/internal/ops"
	"main/internal/risk"
	"main/internal/runner"
	"main/internal/schema"
	"main/internal/strategy"
)

func main() {
	if err := run(); err != nil {
		log.Printf("backtest: %v", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", "", "Path to JSON config")
	verbose := flag.Bool("v", false, "Log every tick result")
	flag.Parse()

	if *configPath == "" {
		return fmt.Errorf("missing config; use -config")
	}
	loaded, err := ops.Load(*configPath)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	frame, err := loaded.BuildFrame()
	if err != nil {
		return err
	}
	store, err := loaded.BuildStore()
	if err != nil {
		return err
	}

	metrics := obs.NewMetrics()
	emitter := bus.NewEmitter()
	emitter.Subscribe(metrics.Listener())
	emitter.Subscribe(func(ev bus.Event) {
		switch ev.Type {
		case bus.EventSignalClosed:
			log.Printf("closed %s %s %s reason=%s pnl=%s%%",
				ev.StrategyName, ev.Symbol, ev.Signal.Direction, ev.Signal.CloseReason, ev.Signal.PnLPercent.StringFixed(4))
		case bus.EventSignalCancelled:
			log.Printf("cancelled %s %s reason=%s", ev.StrategyName, ev.Symbol, ev.Signal.CancelReason)
		case bus.EventRiskRejection:
			log.Printf("rejected %s %s code=%s: %s", ev.StrategyName, ev.Symbol, ev.RejectionCode, ev.RejectionReason)
		case bus.EventRunError:
			log.Printf("run error %s %s: %s", ev.StrategyName, ev.Symbol, ev.Err)
		}
	})

	gate := risk.NewGate(risk.Scope{ExchangeName: frame.Name(), FrameName: frame.Name()}, loaded.Risk)

	type tally struct {
		closed int
		pnl    decimal.Decimal
	}
	var (
		mu      sync.Mutex
		tallies = map[string]*tally{}
		wg      sync.WaitGroup
	)

	for _, spec := range loaded.Strategies {
		strat, err := strategy.Build(spec)
		if err != nil {
			return err
		}
		for _, symbol := range loaded.Symbols {
			results, err := runner.RunBacktest(ctx, frame, runner.Options{
				Symbol:       symbol,
				Strategy:     strat,
				Engine:       loaded.Engine,
				Sizing:       loaded.Sizing,
				ExchangeName: frame.Name(),
				Store:        store,
				Gate:         gate,
				Emitter:      emitter,
			})
			if err != nil {
				return err
			}

			key := spec.Name + "/" + symbol
			wg.Add(1)
			go func() {
				defer wg.Done()
				for res := range results {
					metrics.ObserveTick(res.Kind)
					if *verbose {
						log.Printf("%s %s %s price=%s", res.Timestamp.Format("2006-01-02 15:04"), key, res.Kind, res.Price.StringFixed(4))
					}
					if res.Kind != schema.TickClosed {
						continue
					}
					mu.Lock()
					tl, ok := tallies[key]
					if !ok {
						tl = &tally{}
						tallies[key] = tl
					}
					tl.closed++
					tl.pnl = tl.pnl.Add(res.Signal.PnLPercent)
					mu.Unlock()
				}
			}()
		}
	}
	wg.Wait()

	for key, tl := range tallies {
		log.Printf("%s: trades=%d total_pnl=%s%%", key, tl.closed, tl.pnl.StringFixed(4))
	}
	snap := metrics.Snapshot()
	log.Printf("ticks=%v events=%v rejections=%v", snap.Ticks, snap.Events, snap.Rejections)
	return nil
}
