package virtgpu

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestMetricsObserveRoundTrip(t *testing.T) {
	m := NewMetrics()

	m.ObserveRoundTrip("control", 50*time.Microsecond, true)
	m.ObserveRoundTrip("control", 80*time.Microsecond, false)
	m.ObserveRoundTrip("cursor", 5*time.Microsecond, true)

	snap := m.Snapshot()
	assert.Equal(t, uint64(2), snap.ControlOps)
	assert.Equal(t, uint64(1), snap.ControlErrors)
	assert.Equal(t, uint64(1), snap.CursorOps)
	assert.Equal(t, uint64(0), snap.CursorErrors)
	assert.Equal(t, uint64(3), snap.TotalOps)
	assert.InDelta(t, 100.0/3.0, snap.ErrorRate, 0.01)
}

func TestMetricsLatencyStats(t *testing.T) {
	m := NewMetrics()

	for i := 0; i < 100; i++ {
		m.ObserveRoundTrip("control", 50*time.Microsecond, true)
	}

	snap := m.Snapshot()
	assert.Equal(t, uint64(50_000), snap.AvgLatencyNs)
	assert.NotZero(t, snap.LatencyP50Ns)
	assert.GreaterOrEqual(t, snap.LatencyP99Ns, snap.LatencyP50Ns)
	// All samples land at or below the 100us bucket.
	assert.Equal(t, uint64(100), snap.LatencyHistogram[2])
	assert.Zero(t, snap.LatencyHistogram[0])
}

func TestMetricsRecordFlush(t *testing.T) {
	m := NewMetrics()

	m.RecordFlush(1280 * 800 * 4)
	m.RecordFlush(1280 * 800 * 4)

	snap := m.Snapshot()
	assert.Equal(t, uint64(2), snap.FlushOps)
	assert.Equal(t, uint64(2*1280*800*4), snap.TransferredBytes)
}

func TestMetricsReset(t *testing.T) {
	m := NewMetrics()
	m.ObserveRoundTrip("control", time.Millisecond, true)
	m.RecordFlush(4096)

	m.Reset()

	snap := m.Snapshot()
	assert.Zero(t, snap.TotalOps)
	assert.Zero(t, snap.FlushOps)
	assert.Zero(t, snap.TransferredBytes)
	assert.Zero(t, snap.AvgLatencyNs)
}

func TestMetricsUptime(t *testing.T) {
	m := NewMetrics()
	time.Sleep(time.Millisecond)

	running := m.Snapshot().UptimeNs
	assert.Greater(t, running, uint64(0))

	m.Stop()
	stopped := m.Snapshot().UptimeNs
	time.Sleep(time.Millisecond)
	assert.Equal(t, stopped, m.Snapshot().UptimeNs, "uptime advanced after Stop")
}
