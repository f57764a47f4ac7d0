package schema

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/yanun0323/errors"
)

var (
	ErrInvalidDirection = errors.New("invalid signal direction")
	ErrInvalidPrice     = errors.New("signal price must be positive")
	ErrInvalidQuantity  = errors.New("signal quantity must be positive")
	ErrInvalidLevels    = errors.New("invalid TP/SL ordering for direction")
	ErrInvalidTimestamp = errors.New("signal timestamps out of order")
	ErrMissingIdentity  = errors.New("signal identity fields are empty")
)

// Signal is one trading opportunity, owned exclusively by the tick engine
// that created it until it reaches a terminal status. Status is the
// discriminator; ClosePrice/PnL/CloseReason are meaningful only for closed
// signals and CancelReason/CancelID only for cancelled ones.
type Signal struct {
	ID           string    `json:"id"`
	Symbol       string    `json:"symbol"`
	StrategyName string    `json:"strategyName"`
	ExchangeName string    `json:"exchangeName"`
	FrameName    string    `json:"frameName"`
	Direction    Direction `json:"direction"`
	Status       Status    `json:"status"`

	Quantity        decimal.Decimal `json:"quantity"`
	PriceOpen       decimal.Decimal `json:"priceOpen"`
	PriceTakeProfit decimal.Decimal `json:"priceTakeProfit"`
	PriceStopLoss   decimal.Decimal `json:"priceStopLoss"`

	// Original levels are preserved immutably once set. Trailing mutates
	// the working TP/SL above, never these.
	OriginalPriceTakeProfit decimal.Decimal `json:"originalPriceTakeProfit"`
	OriginalPriceStopLoss   decimal.Decimal `json:"originalPriceStopLoss"`

	// Triggered partial levels, plain sorted arrays for storage portability.
	TriggeredProfitLevels []int64 `json:"triggeredProfitLevels"`
	TriggeredLossLevels   []int64 `json:"triggeredLossLevels"`

	// PartialExecuted is the cumulative percent of the position closed by
	// partial profit/loss fills.
	PartialExecuted decimal.Decimal `json:"partialExecuted"`
	BreakevenSet    bool            `json:"breakevenSet"`

	CreatedAt   time.Time `json:"createdAt"`
	ScheduledAt time.Time `json:"scheduledAt"`
	PendingAt   time.Time `json:"pendingAt"`
	ClosedAt    time.Time `json:"closedAt"`

	ClosePrice   decimal.Decimal `json:"closePrice"`
	PnLPercent   decimal.Decimal `json:"pnlPercent"`
	CloseReason  CloseReason     `json:"closeReason"`
	CancelReason CancelReason    `json:"cancelReason"`
	CancelID     string          `json:"cancelId"`
}

// NewSignalID generates a fresh signal identifier.
func NewSignalID() string {
	return uuid.NewString()
}

// NewBacktestSignalID derives a reproducible identifier from the run key and
// creation time, so replaying the same frame yields an identical stream.
func NewBacktestSignalID(key string, at time.Time) string {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(key+"@"+at.UTC().Format(time.RFC3339Nano))).String()
}

// Key returns the (strategy, symbol) persistence key.
func (s *Signal) Key() string {
	return s.StrategyName + "." + s.Symbol
}

// Terminal reports whether the signal reached a final status.
func (s *Signal) Terminal() bool {
	return s.Status == StatusClosed || s.Status == StatusCancelled
}

// Validate checks the creation invariants. It is called before the signal is
// persisted and again on every record loaded during recovery.
func (s *Signal) Validate() error {
	if s.ID == "" || s.Symbol == "" || s.StrategyName == "" || s.ExchangeName == "" {
		return ErrMissingIdentity
	}
	if !s.Direction.Valid() {
		return ErrInvalidDirection
	}
	if !s.PriceOpen.IsPositive() || !s.PriceTakeProfit.IsPositive() || !s.PriceStopLoss.IsPositive() {
		return ErrInvalidPrice
	}
	if !s.Quantity.IsPositive() {
		return ErrInvalidQuantity
	}
	switch s.Direction {
	case DirectionLong:
		if !(s.PriceStopLoss.LessThan(s.PriceOpen) && s.PriceOpen.LessThan(s.PriceTakeProfit)) {
			return ErrInvalidLevels
		}
	case DirectionShort:
		if !(s.PriceTakeProfit.LessThan(s.PriceOpen) && s.PriceOpen.LessThan(s.PriceStopLoss)) {
			return ErrInvalidLevels
		}
	}
	if s.CreatedAt.IsZero() {
		return ErrInvalidTimestamp
	}
	if !s.ScheduledAt.IsZero() && s.ScheduledAt.Before(s.CreatedAt) {
		return ErrInvalidTimestamp
	}
	if !s.PendingAt.IsZero() {
		ref := s.ScheduledAt
		if ref.IsZero() {
			ref = s.CreatedAt
		}
		if s.PendingAt.Before(ref) {
			return ErrInvalidTimestamp
		}
	}
	if !s.ClosedAt.IsZero() && !s.PendingAt.IsZero() && s.ClosedAt.Before(s.PendingAt) {
		return ErrInvalidTimestamp
	}
	return nil
}

// LevelTriggered reports whether a partial level already fired.
func LevelTriggered(levels []int64, level int64) bool {
	for _, l := range levels {
		if l == level {
			return true
		}
	}
	return false
}

// Clone returns a deep copy safe to hand to consumers.
func (s *Signal) Clone() *Signal {
	if s == nil {
		return nil
	}
	cp := *s
	cp.TriggeredProfitLevels = append([]int64(nil), s.TriggeredProfitLevels...)
	cp.TriggeredLossLevels = append([]int64(nil), s.TriggeredLossLevels...)
	return &cp
}
