package schema

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func bar(ts time.Time, h, l, c, v int64) Candle {
	return Candle{
		OpenTime: ts,
		Open:     decimal.NewFromInt(c),
		High:     decimal.NewFromInt(h),
		Low:      decimal.NewFromInt(l),
		Close:    decimal.NewFromInt(c),
		Volume:   decimal.NewFromInt(v),
	}
}

func TestVWAP(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	t.Run("volume weighted", func(t *testing.T) {
		candles := []Candle{
			bar(now, 102, 98, 100, 1), // typical 100
			bar(now.Add(time.Minute), 212, 208, 210, 3), // typical 210
		}
		// (100*1 + 210*3) / 4 = 182.5
		got := VWAP(candles)
		assert.True(t, got.Equal(decimal.RequireFromString("182.5")), got.String())
	})

	t.Run("zero volume falls back to average", func(t *testing.T) {
		candles := []Candle{
			bar(now, 102, 98, 100, 0),
			bar(now.Add(time.Minute), 202, 198, 200, 0),
		}
		got := VWAP(candles)
		assert.True(t, got.Equal(decimal.NewFromInt(150)), got.String())
	})

	t.Run("empty", func(t *testing.T) {
		assert.True(t, VWAP(nil).IsZero())
	})
}
