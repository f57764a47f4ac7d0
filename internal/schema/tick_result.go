package schema

import (
	"time"

	"github.com/shopspring/decimal"
)

// TickKind discriminates tick result variants.
type TickKind string

const (
	TickIdle      TickKind = "idle"
	TickScheduled TickKind = "scheduled"
	TickOpened    TickKind = "opened"
	TickActive    TickKind = "active"
	TickClosed    TickKind = "closed"
	TickCancelled TickKind = "cancelled"
)

// TickResult is one evaluation outcome streamed to consumers. Kind is the
// discriminator; Signal is nil for idle results. Timestamp is wall-clock time
// in live mode and candle time in backtest mode.
type TickResult struct {
	Kind      TickKind        `json:"kind"`
	Symbol    string          `json:"symbol"`
	Context   RunContext      `json:"context"`
	Price     decimal.Decimal `json:"price"`
	Timestamp time.Time       `json:"timestamp"`
	Signal    *Signal         `json:"signal,omitempty"`
}

// Terminal reports whether the result ends the signal it carries.
func (r TickResult) Terminal() bool {
	return r.Kind == TickClosed || r.Kind == TickCancelled
}
