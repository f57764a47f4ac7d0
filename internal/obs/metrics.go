// Package obs collects lightweight run counters. It is intentionally small:
// a counter per event type, per rejection code and per tick kind, cheap
// enough to stay on in backtests.
package obs

import (
	"sync"

	"main/internal/bus"
	"main/internal/schema"
)

// Metrics aggregates counters for one run.
type Metrics struct {
	mu         sync.Mutex
	events     map[bus.EventType]uint64
	rejections map[string]uint64
	ticks      map[schema.TickKind]uint64
}

// Snapshot is a point-in-time copy of the counters.
type Snapshot struct {
	Events     map[bus.EventType]uint64
	Rejections map[string]uint64
	Ticks      map[schema.TickKind]uint64
}

// NewMetrics allocates an empty metrics container.
func NewMetrics() *Metrics {
	return &Metrics{
		events:     make(map[bus.EventType]uint64),
		rejections: make(map[string]uint64),
		ticks:      make(map[schema.TickKind]uint64),
	}
}

// Listener returns a bus listener that feeds the counters. Wire it with
// emitter.Subscribe(metrics.Listener()).
func (m *Metrics) Listener() bus.Listener {
	return func(ev bus.Event) {
		m.mu.Lock()
		m.events[ev.Type]++
		if ev.Type == bus.EventRiskRejection && ev.RejectionCode != "" {
			m.rejections[ev.RejectionCode]++
		}
		m.mu.Unlock()
	}
}

// ObserveTick counts one streamed tick result.
func (m *Metrics) ObserveTick(kind schema.TickKind) {
	m.mu.Lock()
	m.ticks[kind]++
	m.mu.Unlock()
}

// Snapshot copies the current counter values.
func (m *Metrics) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	snap := Snapshot{
		Events:     make(map[bus.EventType]uint64, len(m.events)),
		Rejections: make(map[string]uint64, len(m.rejections)),
		Ticks:      make(map[schema.TickKind]uint64, len(m.ticks)),
	}
	for k, v := range m.events {
		snap.Events[k] = v
	}
	for k, v := range m.rejections {
		snap.Rejections[k] = v
	}
	for k, v := range m.ticks {
		snap.Ticks[k] = v
	}
	return snap
}
