package infra

import (
	"sync/atomic"
	"time"
)

// Metrics provides lightweight observability without external dependencies.
// Uses atomic operations for thread-safety.
type Metrics struct {
	// Counters
	cyclesRun        atomic.Uint64
	cyclesAborted    atomic.Uint64
	goalsFired       atomic.Uint64
	deliveriesOK     atomic.Uint64
	deliveriesFailed atomic.Uint64
	commandsHandled  atomic.Uint64

	// Latency tracking
	cycleSumNs   atomic.Int64
	cycleCount   atomic.Uint64
	lastCycleUnx atomic.Int64

	// Gauges
	gatewayConnected atomic.Int32 // 1 = connected, 0 = disconnected
}

// GlobalMetrics is the singleton metrics instance.
var GlobalMetrics = &Metrics{}

// RecordCycle records a completed evaluation cycle with its duration.
func (m *Metrics) RecordCycle(d time.Duration, fired int) {
	m.cyclesRun.Add(1)
	m.goalsFired.Add(uint64(fired))
	m.cycleSumNs.Add(int64(d))
	m.cycleCount.Add(1)
	m.lastCycleUnx.Store(time.Now().Unix())
}

// RecordAbortedCycle records a cycle that stopped before evaluation.
func (m *Metrics) RecordAbortedCycle() {
	m.cyclesAborted.Add(1)
	m.lastCycleUnx.Store(time.Now().Unix())
}

// RecordDelivery records the outcome of one notification.
func (m *Metrics) RecordDelivery(ok bool) {
	if ok {
		m.deliveriesOK.Add(1)
		return
	}
	m.deliveriesFailed.Add(1)
}

// RecordCommand records a handled chat command.
func (m *Metrics) RecordCommand() {
	m.commandsHandled.Add(1)
}

// SetGatewayConnected sets the chat gateway state.
func (m *Metrics) SetGatewayConnected(connected bool) {
	if connected {
		m.gatewayConnected.Store(1)
	} else {
		m.gatewayConnected.Store(0)
	}
}

// MetricsSnapshot is a point-in-time view of all metrics.
type MetricsSnapshot struct {
	CyclesRun        uint64     `json:"cycles_run"`
	CyclesAborted    uint64     `json:"cycles_aborted"`
	GoalsFired       uint64     `json:"goals_fired"`
	DeliveriesOK     uint64     `json:"deliveries_ok"`
	DeliveriesFailed uint64     `json:"deliveries_failed"`
	CommandsHandled  uint64     `json:"commands_handled"`
	AvgCycleMs       int64      `json:"avg_cycle_ms"`
	LastCycleAt      *time.Time `json:"last_cycle_at,omitempty"` // nil until the first cycle
	GatewayConnected bool       `json:"gateway_connected"`
	Timestamp        time.Time  `json:"timestamp"`
}

// Snapshot returns current metrics as a snapshot.
func (m *Metrics) Snapshot() MetricsSnapshot {
	var avg int64
	if count := m.cycleCount.Load(); count > 0 {
		avg = m.cycleSumNs.Load() / int64(count) / int64(time.Millisecond)
	}

	var last *time.Time
	if unix := m.lastCycleUnx.Load(); unix > 0 {
		t := time.Unix(unix, 0)
		last = &t
	}

	return MetricsSnapshot{
		CyclesRun:        m.cyclesRun.Load(),
		CyclesAborted:    m.cyclesAborted.Load(),
		GoalsFired:       m.goalsFired.Load(),
		DeliveriesOK:     m.deliveriesOK.Load(),
		DeliveriesFailed: m.deliveriesFailed.Load(),
		CommandsHandled:  m.commandsHandled.Load(),
		AvgCycleMs:       avg,
		LastCycleAt:      last,
		GatewayConnected: m.gatewayConnected.Load() == 1,
		Timestamp:        time.Now(),
	}
}

// Reset clears all metrics (for testing).
func (m *Metrics) Reset() {
	m.cyclesRun.Store(0)
	m.cyclesAborted.Store(0)
	m.goalsFired.Store(0)
	m.deliveriesOK.Store(0)
	m.deliveriesFailed.Store(0)
	m.commandsHandled.Store(0)
	m.cycleSumNs.Store(0)
	m.cycleCount.Store(0)
	m.lastCycleUnx.Store(0)
	m.gatewayConnected.Store(0)
}
