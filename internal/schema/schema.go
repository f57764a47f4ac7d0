package schema

import "time"

// Direction is the side of a signal.
type Direction string

const (
	DirectionLong  Direction = "long"
	DirectionShort Direction = "short"
)

// Valid reports whether the direction is a known value.
func (d Direction) Valid() bool {
	return d == DirectionLong || d == DirectionShort
}

// Status is the lifecycle state of a signal.
type Status string

const (
	StatusScheduled Status = "scheduled"
	StatusOpened    Status = "opened"
	StatusActive    Status = "active"
	StatusClosed    Status = "closed"
	StatusCancelled Status = "cancelled"
)

// CloseReason explains why an active signal closed.
type CloseReason string

const (
	CloseReasonNone       CloseReason = ""
	CloseReasonStopLoss   CloseReason = "stop_loss"
	CloseReasonTakeProfit CloseReason = "take_profit"
	CloseReasonExpired    CloseReason = "time_expired"
	CloseReasonManual     CloseReason = "manual"
)

// CancelReason explains why a scheduled signal never opened.
type CancelReason string

const (
	CancelReasonNone      CancelReason = ""
	CancelReasonTimeout   CancelReason = "timeout"
	CancelReasonPriceAway CancelReason = "price_away"
	CancelReasonUser      CancelReason = "user"
	CancelReasonRisk      CancelReason = "risk_rejected"
)

// RunContext identifies one (strategy, exchange, frame) run. It is immutable
// and passed down the call chain instead of living in ambient state.
// FrameName is empty in live mode.
type RunContext struct {
	StrategyName string `json:"strategyName"`
	ExchangeName string `json:"exchangeName"`
	FrameName    string `json:"frameName"`
	Backtest     bool   `json:"backtest"`
}

// Key returns the persistence/cache key for a symbol under this context.
func (c RunContext) Key(symbol string) string {
	return c.StrategyName + "." + symbol
}

// Fee and slippage are modeled at 0.1% of notional each, applied per leg.
const (
	FeeRate      = 0.001
	SlippageRate = 0.001
)

// Partial levels are percentages of the full TP/SL distance. Each level fires
// at most once and closes a fixed slice of the position. The decaying profit
// schedule follows a Kelly-style risk decay.
var (
	PartialProfitLevels = []int64{30, 60, 90}
	PartialLossLevels   = []int64{40, 80}
)

// PartialClosePercent is the share of the position closed per triggered level.
const PartialClosePercent = 25

// Interval is a supported signal-generation throttle interval.
type Interval string

const (
	Interval1m  Interval = "1m"
	Interval3m  Interval = "3m"
	Interval5m  Interval = "5m"
	Interval15m Interval = "15m"
	Interval30m Interval = "30m"
	Interval1h  Interval = "1h"
)

// Duration converts the interval to a time.Duration, zero when unknown.
func (i Interval) Duration() time.Duration {
	switch i {
	case Interval1m:
		return time.Minute
	case Interval3m:
		return 3 * time.Minute
	case Interval5m:
		return 5 * time.Minute
	case Interval15m:
		return 15 * time.Minute
	case Interval30m:
		return 30 * time.Minute
	case Interval1h:
		return time.Hour
	default:
		return 0
	}
}
