package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"sync"

	pyroscope "github.com/grafana/pyroscope-go"
	"github.com/joho/godotenv"
	"github.com/yanun0323/pkg/sys"

	"main/internal/bus"
	"main/internal/exchange"
	"main/internal/obs"
	"main/internal/ops"
	"main/internal/risk"
	"main/internal/runner"
	"main/internal/strategy"
)

func main() {
	if err := run(); err != nil {
		log.Printf("live: %v", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", "", "Path to JSON config")
	envPath := flag.String("env", "", "Path to .env file (optional)")
	flag.Parse()

	if *envPath != "" {
		if err := godotenv.Load(*envPath); err != nil {
			return err
		}
	} else {
		_ = godotenv.Load()
	}

	if *configPath == "" {
		return fmt.Errorf("missing config; use -config")
	}
	loaded, err := ops.Load(*configPath)
	if err != nil {
		return err
	}
	if key := os.Getenv("BINANCE_API_KEY"); key != "" {
		loaded.Exchange.APIKey = key
	}
	if secret := os.Getenv("BINANCE_SECRET_KEY"); secret != "" {
		loaded.Exchange.SecretKey = secret
	}

	// the run context stays alive through graceful shutdown; the shutdown
	// signal only decides when to begin winding positions down
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if server := os.Getenv("PYROSCOPE_SERVER"); server != "" {
		profiler, err := pyroscope.Start(pyroscope.Config{
			ApplicationName: "signal-engine.live",
			ServerAddress:   server,
			ProfileTypes: []pyroscope.ProfileType{
				pyroscope.ProfileCPU,
				pyroscope.ProfileAllocObjects,
				pyroscope.ProfileInuseSpace,
			},
		})
		if err != nil {
			return err
		}
		defer func() { _ = profiler.Stop() }()
	}

	store, err := loaded.BuildStore()
	if err != nil {
		return err
	}
	clients := exchange.NewCache(loaded.ExchangeFactory())
	client, err := clients.Get(loaded.Exchange.Name)
	if err != nil {
		return err
	}
	if b, ok := client.(*exchange.Binance); ok {
		for _, symbol := range loaded.Symbols {
			if _, err := b.LoadPrecision(ctx, symbol); err != nil {
				log.Printf("precision for %s unavailable: %v", symbol, err)
			}
		}
	}

	metrics := obs.NewMetrics()
	emitter := bus.NewEmitter()
	emitter.Subscribe(metrics.Listener())
	emitter.Subscribe(func(ev bus.Event) {
		switch ev.Type {
		case bus.EventSignalScheduled, bus.EventSignalOpened, bus.EventSignalClosed, bus.EventSignalCancelled:
			log.Printf("%s %s/%s price=%s", ev.Type, ev.StrategyName, ev.Symbol, ev.Price.StringFixed(4))
		case bus.EventRiskRejection:
			log.Printf("rejected %s/%s code=%s: %s", ev.StrategyName, ev.Symbol, ev.RejectionCode, ev.RejectionReason)
		case bus.EventRunError:
			log.Printf("run error %s/%s: %s", ev.StrategyName, ev.Symbol, ev.Err)
		}
	})

	gate := risk.NewGate(risk.Scope{ExchangeName: loaded.Exchange.Name}, loaded.Risk)
	if err := gate.Load(ctx, store); err != nil {
		return err
	}

	var (
		wg    sync.WaitGroup
		lives []*runner.Live
	)
	for _, spec := range loaded.Strategies {
		strat, err := strategy.Build(spec)
		if err != nil {
			return err
		}
		for _, symbol := range loaded.Symbols {
			live, err := runner.RunLive(ctx, runner.Options{
				Symbol:       symbol,
				Strategy:     strat,
				Engine:       loaded.Engine,
				Sizing:       loaded.Sizing,
				Exchange:     client,
				ExchangeName: loaded.Exchange.Name,
				Store:        store,
				Gate:         gate,
				Emitter:      emitter,
				TickInterval: loaded.TickInterval,
			})
			if err != nil {
				return err
			}
			lives = append(lives, live)

			wg.Add(1)
			go func() {
				defer wg.Done()
				for res := range live.Results() {
					metrics.ObserveTick(res.Kind)
				}
			}()
		}
	}
	log.Printf("live run started: %d loops", len(lives))

	<-sys.Shutdown()
	log.Printf("shutting down")
	for _, live := range lives {
		live.Stop()
	}
	wg.Wait()

	snap := metrics.Snapshot()
	log.Printf("ticks=%v events=%v rejections=%v", snap.Ticks, snap.Events, snap.Rejections)
	return nil
}
