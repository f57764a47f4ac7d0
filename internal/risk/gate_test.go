package risk

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"main/internal/persist"
	"main/internal/schema"
)

func candidate(strategy, symbol string) *schema.Signal {
	created := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	return &schema.Signal{
		ID:                      schema.NewSignalID(),
		Symbol:                  symbol,
		StrategyName:            strategy,
		ExchangeName:            "binance",
		Direction:               schema.DirectionLong,
		Status:                  schema.StatusOpened,
		Quantity:                decimal.NewFromInt(1),
		PriceOpen:               decimal.NewFromInt(100),
		PriceTakeProfit:         decimal.NewFromInt(110),
		PriceStopLoss:           decimal.NewFromInt(95),
		OriginalPriceTakeProfit: decimal.NewFromInt(110),
		OriginalPriceStopLoss:   decimal.NewFromInt(95),
		CreatedAt:               created,
		PendingAt:               created,
	}
}

func TestGateMaxPositions(t *testing.T) {
	gate := NewGate(Scope{ExchangeName: "binance"}, Limits{MaxPositions: 1})

	first := candidate("alpha", "BTCUSDT")
	require.Nil(t, gate.Check(first))
	gate.AddSignal(first)

	second := candidate("beta", "BTCUSDT")
	r := gate.Check(second)
	require.NotNil(t, r)
	assert.Equal(t, CodeMaxPositions, r.Code)
	assert.NotEmpty(t, r.ID)

	gate.RemoveSignal(first)
	assert.Nil(t, gate.Check(second))
}

func TestGateMaxPositionsUnderConcurrency(t *testing.T) {
	// two strategies racing for a single slot: exactly one may win
	gate := NewGate(Scope{ExchangeName: "binance"}, Limits{MaxPositions: 1})

	var admitted int64
	var wg sync.WaitGroup
	for _, strategy := range []string{"alpha", "beta"} {
		wg.Add(1)
		go func(name string) {
			defer wg.Done()
			if gate.Admit(candidate(name, "BTCUSDT")) == nil {
				atomic.AddInt64(&admitted, 1)
			}
		}(strategy)
	}
	wg.Wait()
	assert.EqualValues(t, 1, admitted)
	assert.Len(t, gate.Positions(), 1)
}

func TestGateDuplicateSignal(t *testing.T) {
	gate := NewGate(Scope{ExchangeName: "binance"}, Limits{})
	sig := candidate("alpha", "BTCUSDT")
	gate.AddSignal(sig)

	r := gate.Check(candidate("alpha", "BTCUSDT"))
	require.NotNil(t, r)
	assert.Equal(t, CodeDuplicateSignal, r.Code)

	// same strategy, different symbol is fine
	assert.Nil(t, gate.Check(candidate("alpha", "ETHUSDT")))
}

func TestGateMaxSymbolExposure(t *testing.T) {
	gate := NewGate(Scope{ExchangeName: "binance"}, Limits{
		MaxSymbolExposure: decimal.NewFromInt(150),
	})
	sig := candidate("alpha", "BTCUSDT")
	gate.AddSignal(sig) // 100 notional

	r := gate.Check(candidate("beta", "BTCUSDT")) // would be 200 total
	require.NotNil(t, r)
	assert.Equal(t, CodeMaxSymbolExposure, r.Code)

	assert.Nil(t, gate.Check(candidate("beta", "ETHUSDT")))
}

func TestGateMaxDrawdown(t *testing.T) {
	gate := NewGate(Scope{ExchangeName: "binance"}, Limits{
		MaxDrawdownPercent: decimal.NewFromInt(10),
	})

	loser := candidate("alpha", "BTCUSDT")
	gate.AddSignal(loser)
	loser.Status = schema.StatusClosed
	loser.PnLPercent = decimal.NewFromInt(-12)
	gate.RemoveSignal(loser)

	r := gate.Check(candidate("alpha", "BTCUSDT"))
	require.NotNil(t, r)
	assert.Equal(t, CodeMaxDrawdown, r.Code)
}

func TestGateCustomValidatorPanicIsolated(t *testing.T) {
	gate := NewGate(Scope{ExchangeName: "binance"}, Limits{}, func(*schema.Signal, View) *Rejection {
		panic("boom")
	})
	r := gate.Check(candidate("alpha", "BTCUSDT"))
	require.NotNil(t, r)
	assert.Equal(t, CodeValidatorPanic, r.Code)
}

func TestGateCustomValidatorOrder(t *testing.T) {
	calls := 0
	gate := NewGate(Scope{ExchangeName: "binance"}, Limits{},
		func(*schema.Signal, View) *Rejection {
			calls++
			return &Rejection{ID: "fixed", Code: "custom", Reason: "no"}
		},
		func(*schema.Signal, View) *Rejection {
			calls++
			return nil
		},
	)
	r := gate.Check(candidate("alpha", "BTCUSDT"))
	require.NotNil(t, r)
	assert.Equal(t, "custom", r.Code)
	assert.Equal(t, 1, calls, "first rejection short-circuits")
}

func TestGateLoadFromStore(t *testing.T) {
	ctx := context.Background()
	store, err := persist.NewFileStore(t.TempDir())
	require.NoError(t, err)

	active := candidate("alpha", "BTCUSDT")
	active.Status = schema.StatusActive
	require.NoError(t, store.Write(ctx, active.Key(), persist.NewRecord(active)))

	scheduled := candidate("beta", "ETHUSDT")
	scheduled.Status = schema.StatusScheduled
	scheduled.PendingAt = time.Time{}
	scheduled.ScheduledAt = scheduled.CreatedAt
	require.NoError(t, store.Write(ctx, scheduled.Key(), persist.NewRecord(scheduled)))

	other := candidate("gamma", "BTCUSDT")
	other.Status = schema.StatusActive
	other.ExchangeName = "bybit"
	require.NoError(t, store.Write(ctx, other.Key(), persist.NewRecord(other)))

	gate := NewGate(Scope{ExchangeName: "binance"}, Limits{})
	require.NoError(t, gate.Load(ctx, store))

	positions := gate.Positions()
	require.Len(t, positions, 1, "only active signals on this exchange count")
	assert.Equal(t, active.ID, positions[0].SignalID)
}
