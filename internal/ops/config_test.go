package ops

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"main/internal/exchange"
	"main/internal/persist"
	"main/internal/schema"
	"main/internal/strategy"
)

const sampleConfig = `{
	"symbols": ["BTCUSDT", "ETHUSDT"],
	"strategies": [
		{
			"name": "mom-1",
			"type": "momentum",
			"deviationPercent": "1",
			"takeProfitPercent": "10",
			"stopLossPercent": "5",
			"allowShort": true
		}
	],
	"engine": {
		"interval": "5m",
		"scheduleTimeout": "30m",
		"maxHolding": "24h",
		"trailingStop": true,
		"fastForward": true
	},
	"sizing": {
		"method": "fixed_percentage",
		"capital": "10000",
		"riskPercent": "2"
	},
	"risk": {
		"maxPositions": 3,
		"maxDrawdownPercent": "20"
	},
	"store": {"kind": "file", "dir": "/tmp/signals"},
	"exchange": {"name": "binance"},
	"frame": {"name": "synthetic", "source": "generator", "count": 120},
	"tickInterval": "2s"
}`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadResolvesEverySection(t *testing.T) {
	loaded, err := Load(writeConfig(t, sampleConfig))
	require.NoError(t, err)

	assert.Equal(t, []string{"BTCUSDT", "ETHUSDT"}, loaded.Symbols)
	require.Len(t, loaded.Strategies, 1)
	assert.Equal(t, strategy.TypeMomentum, loaded.Strategies[0].Type)

	assert.Equal(t, schema.Interval5m, loaded.Engine.Interval)
	assert.Equal(t, 30*time.Minute, loaded.Engine.ScheduleTimeout)
	assert.Equal(t, 24*time.Hour, loaded.Engine.MaxHolding)
	assert.True(t, loaded.Engine.TrailingStop)
	assert.True(t, loaded.Engine.FastForward)

	assert.True(t, loaded.Sizing.Capital.Equal(decimal.NewFromInt(10000)))
	assert.Equal(t, 3, loaded.Risk.MaxPositions)
	assert.Equal(t, 2*time.Second, loaded.TickInterval)
}

func TestLoadRejectsBadConfigs(t *testing.T) {
	for name, body := range map[string]string{
		"no symbols":     `{"strategies": [{"name": "s", "type": "momentum", "deviationPercent": "1", "takeProfitPercent": "10", "stopLossPercent": "5"}]}`,
		"no strategies":  `{"symbols": ["BTCUSDT"]}`,
		"bad strategy":   `{"symbols": ["BTCUSDT"], "strategies": [{"name": "s", "type": "nope", "deviationPercent": "1", "takeProfitPercent": "10", "stopLossPercent": "5"}]}`,
		"bad duration":   `{"symbols": ["BTCUSDT"], "strategies": [{"name": "s", "type": "momentum", "deviationPercent": "1", "takeProfitPercent": "10", "stopLossPercent": "5"}], "engine": {"scheduleTimeout": "soon"}}`,
		"bad store kind": `{"symbols": ["BTCUSDT"], "strategies": [{"name": "s", "type": "momentum", "deviationPercent": "1", "takeProfitPercent": "10", "stopLossPercent": "5"}], "store": {"kind": "redis"}}`,
	} {
		t.Run(name, func(t *testing.T) {
			_, err := Load(writeConfig(t, body))
			require.Error(t, err)
		})
	}
}

func TestBuildStore(t *testing.T) {
	loaded := Loaded{Store: StoreConfig{Kind: "dummy"}}
	store, err := loaded.BuildStore()
	require.NoError(t, err)
	assert.IsType(t, persist.DummyStore{}, store)

	loaded = Loaded{Store: StoreConfig{Kind: "file", Dir: t.TempDir()}}
	store, err = loaded.BuildStore()
	require.NoError(t, err)
	assert.IsType(t, &persist.FileStore{}, store)
}

func TestBuildFrameGenerator(t *testing.T) {
	loaded := Loaded{
		Symbols: []string{"BTCUSDT"},
		Frame:   FrameConfig{Name: "synthetic", Source: "generator", Count: 60},
	}
	frame, err := loaded.BuildFrame()
	require.NoError(t, err)
	assert.Equal(t, "synthetic", frame.Name())
	assert.Len(t, frame.Timeline("BTCUSDT"), 60)
}

func TestBuildFrameFromFile(t *testing.T) {
	body := `{"BTCUSDT": [{"openTime": "2026-01-01T00:00:00Z", "open": "100", "high": "101", "low": "99", "close": "100", "volume": "1"}]}`
	path := filepath.Join(t.TempDir(), "frame.json")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))

	loaded := Loaded{Frame: FrameConfig{Name: "jan", Source: "file", Path: path}}
	frame, err := loaded.BuildFrame()
	require.NoError(t, err)
	assert.Len(t, frame.Timeline("BTCUSDT"), 1)
}

func TestExchangeFactoryThroughCache(t *testing.T) {
	loaded := Loaded{Exchange: ExchangeConfig{Name: "binance"}}
	cache := exchange.NewCache(loaded.ExchangeFactory())

	a, err := cache.Get("binance")
	require.NoError(t, err)
	b, err := cache.Get("binance")
	require.NoError(t, err)
	assert.Same(t, a, b, "repeated lookups reuse one client")

	_, err = cache.Get("kraken")
	assert.ErrorIs(t, err, exchange.ErrUnknownExchange)
}
