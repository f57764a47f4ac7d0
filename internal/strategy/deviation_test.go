package strategy

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"main/internal/engine"
	"main/internal/schema"
)

func input(vwap, lastClose float64) engine.TickInput {
	return engine.TickInput{
		Symbol: "BTCUSDT",
		At:     time.Date(2026, 1, 2, 10, 0, 0, 0, time.UTC),
		Price:  decimal.NewFromFloat(vwap),
		Candles: []schema.Candle{{
			OpenTime: time.Date(2026, 1, 2, 9, 59, 0, 0, time.UTC),
			Close:    decimal.NewFromFloat(lastClose),
			Volume:   decimal.NewFromInt(1),
		}},
	}
}

func spec(typ string) Spec {
	return Spec{
		Name:              "dev",
		Type:              typ,
		DeviationPercent:  decimal.NewFromInt(1),
		TakeProfitPercent: decimal.NewFromInt(10),
		StopLossPercent:   decimal.NewFromInt(5),
		AllowShort:        true,
	}
}

func TestMomentumFollowsDeviation(t *testing.T) {
	strat, err := Build(spec(TypeMomentum))
	require.NoError(t, err)
	assert.Equal(t, "dev", strat.Name())

	entry, err := strat.OnTick(context.Background(), input(100, 102))
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.Equal(t, schema.DirectionLong, entry.Direction)
	assert.True(t, entry.PriceOpen.Equal(decimal.NewFromInt(100)))
	assert.True(t, entry.PriceTakeProfit.Equal(decimal.NewFromInt(110)))
	assert.True(t, entry.PriceStopLoss.Equal(decimal.NewFromInt(95)))

	entry, err = strat.OnTick(context.Background(), input(100, 98))
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.Equal(t, schema.DirectionShort, entry.Direction)
	assert.True(t, entry.PriceTakeProfit.Equal(decimal.NewFromInt(90)))
	assert.True(t, entry.PriceStopLoss.Equal(decimal.NewFromInt(105)))
}

func TestMeanReversionFadesDeviation(t *testing.T) {
	strat, err := Build(spec(TypeMeanReversion))
	require.NoError(t, err)

	entry, err := strat.OnTick(context.Background(), input(100, 102))
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.Equal(t, schema.DirectionShort, entry.Direction)

	entry, err = strat.OnTick(context.Background(), input(100, 98))
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.Equal(t, schema.DirectionLong, entry.Direction)
}

func TestDeviationBelowThresholdIsQuiet(t *testing.T) {
	strat, err := Build(spec(TypeMomentum))
	require.NoError(t, err)

	entry, err := strat.OnTick(context.Background(), input(100, 100.5))
	require.NoError(t, err)
	assert.Nil(t, entry)
}

func TestShortsDisabled(t *testing.T) {
	s := spec(TypeMomentum)
	s.AllowShort = false
	strat, err := Build(s)
	require.NoError(t, err)

	entry, err := strat.OnTick(context.Background(), input(100, 98))
	require.NoError(t, err)
	assert.Nil(t, entry)
}

func TestBuildRejectsBadSpecs(t *testing.T) {
	_, err := Build(Spec{})
	require.ErrorIs(t, err, ErrBadSpec)

	s := spec("made_up")
	_, err = Build(s)
	require.ErrorIs(t, err, ErrUnknownType)
}
