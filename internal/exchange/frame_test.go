package exchange

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"main/internal/schema"
)

func testFrame(t *testing.T, n int) (*Frame, time.Time) {
	t.Helper()
	start := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	gen := NewGenerator(decimal.NewFromInt(100), decimal.NewFromInt(10), 20)
	return NewFrame("june", map[string][]schema.Candle{
		"BTCUSDT": gen.Series(start, n),
	}, nil), start
}

func TestFrameGetCandles(t *testing.T) {
	ctx := context.Background()
	frame, start := testFrame(t, 60)

	candles, err := frame.GetCandles(ctx, "BTCUSDT", start.Add(9*time.Minute), 5)
	require.NoError(t, err)
	require.Len(t, candles, 5)
	assert.True(t, candles[4].OpenTime.Equal(start.Add(9*time.Minute)))
	assert.True(t, candles[0].OpenTime.Equal(start.Add(5*time.Minute)))

	t.Run("clamped at frame start", func(t *testing.T) {
		candles, err := frame.GetCandles(ctx, "BTCUSDT", start.Add(time.Minute), 5)
		require.NoError(t, err)
		assert.Len(t, candles, 2)
	})

	t.Run("unknown symbol", func(t *testing.T) {
		_, err := frame.GetCandles(ctx, "DOGEUSDT", start, 5)
		assert.ErrorIs(t, err, ErrUnknownSym)
	})
}

func TestFrameGetNextCandlesBoundedByFrame(t *testing.T) {
	ctx := context.Background()
	frame, start := testFrame(t, 10)

	next, err := frame.GetNextCandles(ctx, "BTCUSDT", start.Add(7*time.Minute), 10)
	require.NoError(t, err)
	// only two candles remain inside the frame, look-ahead never exceeds it
	require.Len(t, next, 2)
	assert.True(t, next[0].OpenTime.Equal(start.Add(8*time.Minute)))
	assert.True(t, next[1].OpenTime.Equal(start.Add(9*time.Minute)))
}

func TestFrameAveragePriceUsesVWAPWindow(t *testing.T) {
	ctx := context.Background()
	frame, start := testFrame(t, 60)

	at := start.Add(30 * time.Minute)
	candles, err := frame.GetCandles(ctx, "BTCUSDT", at, schema.VWAPWindow)
	require.NoError(t, err)

	got, err := frame.GetAveragePrice(ctx, "BTCUSDT", at)
	require.NoError(t, err)
	assert.True(t, got.Equal(schema.VWAP(candles)), got.String())
}

func TestFrameFormat(t *testing.T) {
	frame := NewFrame("x", map[string][]schema.Candle{}, map[string]Precision{
		"BTCUSDT": {Price: 2, Quantity: 3},
	})
	price := decimal.RequireFromString("123.4567")
	assert.Equal(t, "123.45", frame.FormatPrice("BTCUSDT", price))
	assert.Equal(t, "123.456", frame.FormatQuantity("BTCUSDT", price))
	// unknown symbols use 8 places
	assert.Equal(t, "123.45670000", frame.FormatPrice("ETHUSDT", price))
}

func TestGeneratorDeterministic(t *testing.T) {
	start := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	a := NewGenerator(decimal.NewFromInt(100), decimal.NewFromInt(10), 20).Series(start, 40)
	b := NewGenerator(decimal.NewFromInt(100), decimal.NewFromInt(10), 20).Series(start, 40)
	require.Equal(t, len(a), len(b))
	for i := range a {
		assert.True(t, a[i].Close.Equal(b[i].Close))
		assert.True(t, a[i].High.GreaterThanOrEqual(a[i].Low))
	}
}

func TestCacheMemoizesAndClears(t *testing.T) {
	built := 0
	cache := NewCache(func(name string) (Exchange, error) {
		if name != "frame" {
			return nil, ErrUnknownExchange
		}
		built++
		frame, _ := testFrame(t, 5)
		return frame, nil
	})

	a, err := cache.Get("frame")
	require.NoError(t, err)
	b, err := cache.Get("frame")
	require.NoError(t, err)
	assert.Same(t, a.(*Frame), b.(*Frame))
	assert.Equal(t, 1, built)

	cache.Clear()
	_, err = cache.Get("frame")
	require.NoError(t, err)
	assert.Equal(t, 2, built)

	_, err = cache.Get("nope")
	assert.ErrorIs(t, err, ErrUnknownExchange)
}
