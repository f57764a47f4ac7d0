package obs

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"main/internal/bus"
	"main/internal/schema"
)

func TestMetricsListener(t *testing.T) {
	m := NewMetrics()
	emitter := bus.NewEmitter()
	emitter.Subscribe(m.Listener())

	emitter.Emit(bus.Event{Type: bus.EventSignalOpened})
	emitter.Emit(bus.Event{Type: bus.EventSignalOpened})
	emitter.Emit(bus.Event{Type: bus.EventRiskRejection, RejectionCode: "max_positions"})
	m.ObserveTick(schema.TickIdle)
	m.ObserveTick(schema.TickClosed)

	snap := m.Snapshot()
	assert.EqualValues(t, 2, snap.Events[bus.EventSignalOpened])
	assert.EqualValues(t, 1, snap.Events[bus.EventRiskRejection])
	assert.EqualValues(t, 1, snap.Rejections["max_positions"])
	assert.EqualValues(t, 1, snap.Ticks[schema.TickIdle])
	assert.EqualValues(t, 1, snap.Ticks[schema.TickClosed])
}

func TestSnapshotIsACopy(t *testing.T) {
	m := NewMetrics()
	m.ObserveTick(schema.TickActive)
	snap := m.Snapshot()
	snap.Ticks[schema.TickActive] = 99
	assert.EqualValues(t, 1, m.Snapshot().Ticks[schema.TickActive])
}
