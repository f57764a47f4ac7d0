// Package bus is the event surface consumed by reporting and notification
// collaborators. Events carry enough denormalized context to be consumed
// independently of engine state.
package bus

import (
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/yanun0323/logs"

	"main/internal/schema"
)

// EventType categorizes engine events.
type EventType string

const (
	EventSignalScheduled EventType = "signal_scheduled"
	EventSignalOpened    EventType = "signal_opened"
	EventSignalClosed    EventType = "signal_closed"
	EventSignalCancelled EventType = "signal_cancelled"

	EventPartialProfitAvailable EventType = "partial_profit_available"
	EventPartialProfitCommitted EventType = "partial_profit_committed"
	EventPartialLossAvailable   EventType = "partial_loss_available"
	EventPartialLossCommitted   EventType = "partial_loss_committed"

	EventTrailingStopCommitted EventType = "trailing_stop_committed"
	EventTrailingTakeCommitted EventType = "trailing_take_committed"
	EventBreakevenAvailable    EventType = "breakeven_available"
	EventBreakevenCommitted    EventType = "breakeven_committed"

	EventRiskRejection   EventType = "risk_rejection"
	EventValidationError EventType = "validation_error"
	EventRunDone         EventType = "run_done"
	EventRunError        EventType = "run_error"
)

// Event is one engine occurrence. Signal is a snapshot clone; consumers may
// keep it without racing the engine.
type Event struct {
	Type         EventType       `json:"type"`
	Symbol       string          `json:"symbol"`
	StrategyName string          `json:"strategyName"`
	ExchangeName string          `json:"exchangeName"`
	FrameName    string          `json:"frameName"`
	Backtest     bool            `json:"backtest"`
	At           time.Time       `json:"at"`
	Price        decimal.Decimal `json:"price"`

	Signal *schema.Signal `json:"signal,omitempty"`

	// risk_rejection
	RejectionID     string `json:"rejectionId,omitempty"`
	RejectionCode   string `json:"rejectionCode,omitempty"`
	RejectionReason string `json:"rejectionReason,omitempty"`

	// partial and trailing adjustments
	Level        int64           `json:"level,omitempty"`
	ShiftPercent decimal.Decimal `json:"shiftPercent,omitempty"`

	// validation_error / run_error
	Err string `json:"err,omitempty"`
}

// Listener consumes events. Listeners run synchronously on the emitting
// goroutine in registration order.
type Listener func(Event)

// Emitter fans events out to registered listeners. A panicking listener is
// recovered, logged and skipped, so one misbehaving extension cannot halt the
// engine or corrupt signal state.
type Emitter struct {
	mu        sync.RWMutex
	nextID    int
	listeners map[int]Listener
}

// NewEmitter creates an emitter with no listeners.
func NewEmitter() *Emitter {
	return &Emitter{listeners: make(map[int]Listener)}
}

// Subscribe registers a listener and returns its unsubscribe function.
func (e *Emitter) Subscribe(fn Listener) (unsubscribe func()) {
	e.mu.Lock()
	id := e.nextID
	e.nextID++
	e.listeners[id] = fn
	e.mu.Unlock()

	return func() {
		e.mu.Lock()
		delete(e.listeners, id)
		e.mu.Unlock()
	}
}

// Emit delivers the event to every listener in registration order.
func (e *Emitter) Emit(event Event) {
	e.mu.RLock()
	ids := make([]int, 0, len(e.listeners))
	for id := range e.listeners {
		ids = append(ids, id)
	}
	// map iteration is unordered; restore registration order
	sort.Ints(ids)
	listeners := make([]Listener, 0, len(ids))
	for _, id := range ids {
		listeners = append(listeners, e.listeners[id])
	}
	e.mu.RUnlock()

	for _, fn := range listeners {
		e.deliver(fn, event)
	}
}

func (e *Emitter) deliver(fn Listener, event Event) {
	defer func() {
		if r := recover(); r != nil {
			logs.Errorf("event listener panic on %s: %+v", event.Type, r)
		}
	}()
	fn(event)
}
