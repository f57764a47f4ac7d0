// Package ops loads and resolves the runtime configuration for the backtest
// and live commands.
package ops

import (
	"encoding/json"
	"os"
	"time"

	"github.com/shopspring/decimal"
	"github.com/yanun0323/errors"

	"main/internal/engine"
	"main/internal/exchange"
	"main/internal/persist"
	"main/internal/risk"
	"main/internal/schema"
	"main/internal/sizing"
	"main/internal/strategy"
)

var (
	ErrBadConfig = errors.New("bad configuration")
)

// FileConfig mirrors the JSON config layout. Durations are strings in Go
// syntax ("30m", "24h"); decimals accept both numbers and strings.
type FileConfig struct {
	Symbols    []string        `json:"symbols"`
	Strategies []strategy.Spec `json:"strategies"`

	Engine EngineConfig  `json:"engine"`
	Sizing sizing.Params `json:"sizing"`
	Risk   risk.Limits   `json:"risk"`

	Store    StoreConfig    `json:"store"`
	Exchange ExchangeConfig `json:"exchange"`
	Frame    FrameConfig    `json:"frame"`

	// TickInterval is the live polling cadence.
	TickInterval string `json:"tickInterval"`
}

// EngineConfig is the serializable form of engine.Config.
type EngineConfig struct {
	Interval              schema.Interval `json:"interval"`
	ScheduleTimeout       string          `json:"scheduleTimeout"`
	ScheduleRejectPercent decimal.Decimal `json:"scheduleRejectPercent"`
	MaxHolding            string          `json:"maxHolding"`
	TrailingStop          bool            `json:"trailingStop"`
	TrailingTake          bool            `json:"trailingTake"`
	TrailingStepPercent   decimal.Decimal `json:"trailingStepPercent"`
	FastForward           bool            `json:"fastForward"`
}

// StoreConfig selects the persistence backend.
type StoreConfig struct {
	Kind string `json:"kind"` // file | dummy | postgres
	Dir  string `json:"dir"`  // file

	// postgres
	Host     string `json:"host"`
	Port     int    `json:"port"`
	User     string `json:"user"`
	Password string `json:"password"`
	Database string `json:"database"`
	SSLMode  string `json:"sslMode"`
}

// ExchangeConfig names the live market data source.
type ExchangeConfig struct {
	Name      string `json:"name"` // binance
	APIKey    string `json:"apiKey"`
	SecretKey string `json:"secretKey"`
}

// FrameConfig describes the backtest data source: a candle file per symbol
// or a deterministic generator.
type FrameConfig struct {
	Name   string `json:"name"`
	Source string `json:"source"` // file | generator

	// file: path to a JSON document mapping symbol to candle array
	Path string `json:"path"`

	// generator
	Base      decimal.Decimal `json:"base"`
	Amplitude decimal.Decimal `json:"amplitude"`
	Period    int             `json:"period"`
	Start     time.Time       `json:"start"`
	Count     int             `json:"count"`
}

// Loaded is the resolved configuration ready for use.
type Loaded struct {
	Symbols    []string
	Strategies []strategy.Spec

	Engine engine.Config
	Sizing sizing.Params
	Risk   risk.Limits

	Store        StoreConfig
	Exchange     ExchangeConfig
	Frame        FrameConfig
	TickInterval time.Duration
}

// Load reads a JSON config file and resolves every section.
func Load(path string) (Loaded, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Loaded{}, errors.Wrapf(err, "read config %s", path)
	}
	var cfg FileConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return Loaded{}, errors.Wrapf(err, "parse config %s", path)
	}
	return Resolve(cfg)
}

// Resolve validates a parsed config and converts it to runtime types.
func Resolve(cfg FileConfig) (Loaded, error) {
	if len(cfg.Symbols) == 0 {
		return Loaded{}, errors.Wrap(ErrBadConfig, "no symbols")
	}
	if len(cfg.Strategies) == 0 {
		return Loaded{}, errors.Wrap(ErrBadConfig, "no strategies")
	}
	for _, spec := range cfg.Strategies {
		if _, err := strategy.Build(spec); err != nil {
			return Loaded{}, errors.Wrapf(err, "strategy %q", spec.Name)
		}
	}

	engineCfg, err := resolveEngine(cfg.Engine)
	if err != nil {
		return Loaded{}, err
	}
	tickInterval, err := parseDuration(cfg.TickInterval, time.Second)
	if err != nil {
		return Loaded{}, errors.Wrap(ErrBadConfig, "tickInterval: "+err.Error())
	}
	if err := validateStore(cfg.Store); err != nil {
		return Loaded{}, err
	}

	return Loaded{
		Symbols:      cfg.Symbols,
		Strategies:   cfg.Strategies,
		Engine:       engineCfg,
		Sizing:       cfg.Sizing,
		Risk:         cfg.Risk,
		Store:        cfg.Store,
		Exchange:     cfg.Exchange,
		Frame:        cfg.Frame,
		TickInterval: tickInterval,
	}, nil
}

func resolveEngine(cfg EngineConfig) (engine.Config, error) {
	timeout, err := parseDuration(cfg.ScheduleTimeout, 0)
	if err != nil {
		return engine.Config{}, errors.Wrap(ErrBadConfig, "scheduleTimeout: "+err.Error())
	}
	holding, err := parseDuration(cfg.MaxHolding, 0)
	if err != nil {
		return engine.Config{}, errors.Wrap(ErrBadConfig, "maxHolding: "+err.Error())
	}
	return engine.Config{
		Interval:              cfg.Interval,
		ScheduleTimeout:       timeout,
		ScheduleRejectPercent: cfg.ScheduleRejectPercent,
		MaxHolding:            holding,
		TrailingStop:          cfg.TrailingStop,
		TrailingTake:          cfg.TrailingTake,
		TrailingStepPercent:   cfg.TrailingStepPercent,
		FastForward:           cfg.FastForward,
	}, nil
}

func parseDuration(s string, fallback time.Duration) (time.Duration, error) {
	if s == "" {
		return fallback, nil
	}
	return time.ParseDuration(s)
}

func validateStore(cfg StoreConfig) error {
	switch cfg.Kind {
	case "", "dummy":
		return nil
	case "file":
		if cfg.Dir == "" {
			return errors.Wrap(ErrBadConfig, "file store needs dir")
		}
		return nil
	case "postgres":
		if cfg.Database == "" {
			return errors.Wrap(ErrBadConfig, "postgres store needs database")
		}
		return nil
	default:
		return errors.Wrapf(ErrBadConfig, "unknown store kind %q", cfg.Kind)
	}
}

// BuildStore constructs the configured persistence backend.
func (l Loaded) BuildStore() (persist.Store, error) {
	switch l.Store.Kind {
	case "", "dummy":
		return persist.NewDummyStore(), nil
	case "file":
		return persist.NewFileStore(l.Store.Dir)
	case "postgres":
		return persist.NewPostgresStore(persist.PostgresOption{
			Host:     l.Store.Host,
			Port:     l.Store.Port,
			User:     l.Store.User,
			Password: l.Store.Password,
			Database: l.Store.Database,
			SSLMode:  l.Store.SSLMode,
		})
	default:
		return nil, errors.Wrapf(ErrBadConfig, "unknown store kind %q", l.Store.Kind)
	}
}

// ExchangeFactory builds live clients by name using this config's
// credentials, for use with exchange.NewCache.
func (l Loaded) ExchangeFactory() exchange.Factory {
	return func(name string) (exchange.Exchange, error) {
		switch name {
		case "", "binance":
			return exchange.NewBinance(l.Exchange.APIKey, l.Exchange.SecretKey), nil
		default:
			return nil, errors.Wrapf(exchange.ErrUnknownExchange, "%q", name)
		}
	}
}

// BuildFrame constructs the backtest frame from a candle file or a
// deterministic generator, sharing one synthetic series across symbols.
func (l Loaded) BuildFrame() (*exchange.Frame, error) {
	switch l.Frame.Source {
	case "file":
		data, err := os.ReadFile(l.Frame.Path)
		if err != nil {
			return nil, errors.Wrapf(err, "read frame %s", l.Frame.Path)
		}
		var candles map[string][]schema.Candle
		if err := json.Unmarshal(data, &candles); err != nil {
			return nil, errors.Wrapf(err, "parse frame %s", l.Frame.Path)
		}
		return exchange.NewFrame(l.Frame.Name, candles, nil), nil
	case "", "generator":
		if l.Frame.Count <= 0 {
			return nil, errors.Wrap(ErrBadConfig, "generator frame needs count")
		}
		base := l.Frame.Base
		if base.IsZero() {
			base = decimal.NewFromInt(100)
		}
		amplitude := l.Frame.Amplitude
		if amplitude.IsZero() {
			amplitude = decimal.NewFromInt(5)
		}
		start := l.Frame.Start
		if start.IsZero() {
			start = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
		}
		candles := make(map[string][]schema.Candle, len(l.Symbols))
		for _, symbol := range l.Symbols {
			gen := exchange.NewGenerator(base, amplitude, l.Frame.Period)
			candles[symbol] = gen.Series(start, l.Frame.Count)
		}
		return exchange.NewFrame(l.Frame.Name, candles, nil), nil
	default:
		return nil, errors.Wrapf(ErrBadConfig, "unknown frame source %q", l.Frame.Source)
	}
}
