package schema

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validLong(t *testing.T) *Signal {
	t.Helper()
	return &Signal{
		ID:                      NewSignalID(),
		Symbol:                  "BTCUSDT",
		StrategyName:            "momentum",
		ExchangeName:            "binance",
		Direction:               DirectionLong,
		Status:                  StatusScheduled,
		Quantity:                decimal.NewFromInt(1),
		PriceOpen:               decimal.NewFromInt(100),
		PriceTakeProfit:         decimal.NewFromInt(110),
		PriceStopLoss:           decimal.NewFromInt(95),
		OriginalPriceTakeProfit: decimal.NewFromInt(110),
		OriginalPriceStopLoss:   decimal.NewFromInt(95),
		CreatedAt:               time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestSignalValidate(t *testing.T) {
	sig := validLong(t)
	require.NoError(t, sig.Validate())

	t.Run("long level ordering", func(t *testing.T) {
		bad := validLong(t)
		bad.PriceStopLoss = decimal.NewFromInt(105)
		assert.ErrorIs(t, bad.Validate(), ErrInvalidLevels)
	})

	t.Run("short level ordering", func(t *testing.T) {
		short := validLong(t)
		short.Direction = DirectionShort
		assert.ErrorIs(t, short.Validate(), ErrInvalidLevels)

		short.PriceTakeProfit = decimal.NewFromInt(90)
		short.PriceStopLoss = decimal.NewFromInt(105)
		assert.NoError(t, short.Validate())
	})

	t.Run("non-positive price", func(t *testing.T) {
		bad := validLong(t)
		bad.PriceOpen = decimal.Zero
		assert.ErrorIs(t, bad.Validate(), ErrInvalidPrice)
	})

	t.Run("timestamps ordered", func(t *testing.T) {
		bad := validLong(t)
		bad.ScheduledAt = bad.CreatedAt.Add(-time.Minute)
		assert.ErrorIs(t, bad.Validate(), ErrInvalidTimestamp)

		ok := validLong(t)
		ok.ScheduledAt = ok.CreatedAt
		ok.PendingAt = ok.ScheduledAt.Add(time.Minute)
		ok.ClosedAt = ok.PendingAt.Add(time.Hour)
		assert.NoError(t, ok.Validate())
	})

	t.Run("missing identity", func(t *testing.T) {
		bad := validLong(t)
		bad.StrategyName = ""
		assert.ErrorIs(t, bad.Validate(), ErrMissingIdentity)
	})
}

func TestSignalClone(t *testing.T) {
	sig := validLong(t)
	sig.TriggeredProfitLevels = []int64{30}

	cp := sig.Clone()
	cp.TriggeredProfitLevels = append(cp.TriggeredProfitLevels, 60)
	cp.PriceStopLoss = decimal.NewFromInt(99)

	assert.Equal(t, []int64{30}, sig.TriggeredProfitLevels)
	assert.True(t, sig.PriceStopLoss.Equal(decimal.NewFromInt(95)))
}

func TestLevelTriggered(t *testing.T) {
	assert.True(t, LevelTriggered([]int64{30, 60}, 60))
	assert.False(t, LevelTriggered([]int64{30, 60}, 90))
	assert.False(t, LevelTriggered(nil, 30))
}

func TestBacktestSignalIDReproducible(t *testing.T) {
	at := time.Date(2026, 1, 2, 10, 0, 0, 0, time.UTC)
	id := NewBacktestSignalID("momentum.BTCUSDT", at)
	assert.Equal(t, id, NewBacktestSignalID("momentum.BTCUSDT", at))
	assert.NotEqual(t, id, NewBacktestSignalID("momentum.BTCUSDT", at.Add(time.Minute)))
	assert.NotEqual(t, id, NewBacktestSignalID("momentum.ETHUSDT", at))
}
