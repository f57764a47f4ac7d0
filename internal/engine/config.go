package engine

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/yanun0323/errors"

	"main/internal/schema"
)

var (
	ErrBadInterval = errors.New("bad evaluation interval")
	ErrBadTimeout  = errors.New("bad schedule timeout")
	ErrBadPercent  = errors.New("bad percent setting")
)

// Config tunes one engine instance. Zero values fall back to defaults via
// withDefaults, so callers only set what they care about.
type Config struct {
	// Interval throttles strategy evaluation while idle. Position
	// management still runs on every tick.
	Interval schema.Interval

	// ScheduleTimeout cancels a scheduled signal whose limit price was
	// never reached.
	ScheduleTimeout time.Duration

	// ScheduleRejectPercent cancels a scheduled signal once price moves
	// this far away from the limit entry.
	ScheduleRejectPercent decimal.Decimal

	// MaxHolding closes an active position on time expiry.
	MaxHolding time.Duration

	// TrailingStop ratchets the working stop-loss behind favorable price
	// moves, keeping the original stop distance.
	TrailingStop bool

	// TrailingTake pushes the working take-profit ahead of favorable
	// price moves, keeping the original take distance.
	TrailingTake bool

	// TrailingStepPercent is the minimum improvement, as a percent of the
	// original distance, before a trailing adjustment commits.
	TrailingStepPercent decimal.Decimal

	// FastForward lets backtest drivers skip ticks that cannot change
	// position state.
	FastForward bool
}

func (c Config) withDefaults() Config {
	if c.Interval == "" {
		c.Interval = schema.Interval1m
	}
	if c.ScheduleTimeout <= 0 {
		c.ScheduleTimeout = 30 * time.Minute
	}
	if c.ScheduleRejectPercent.IsZero() {
		c.ScheduleRejectPercent = decimal.NewFromInt(5)
	}
	if c.MaxHolding <= 0 {
		c.MaxHolding = 24 * time.Hour
	}
	if c.TrailingStepPercent.IsZero() {
		c.TrailingStepPercent = decimal.NewFromInt(10)
	}
	return c
}

func (c Config) Validate() error {
	if c.Interval.Duration() <= 0 {
		return errors.Wrapf(ErrBadInterval, "%q", c.Interval)
	}
	if c.ScheduleTimeout <= 0 {
		return ErrBadTimeout
	}
	if c.ScheduleRejectPercent.IsNegative() || c.TrailingStepPercent.IsNegative() {
		return ErrBadPercent
	}
	return nil
}
