package virtgpu

import (
	"sync/atomic"
	"time"
)

// LatencyBuckets defines the round-trip latency histogram buckets in
// nanoseconds, 1us to 10s with logarithmic spacing.
var LatencyBuckets = []uint64{
	1_000,
	10_000,
	100_000,
	1_000_000,
	10_000_000,
	100_000_000,
	1_000_000_000,
	10_000_000_000,
}

const numLatencyBuckets = 8

// Metrics tracks operational statistics for one device.
type Metrics struct {
	// Per-queue round trips.
	ControlOps    atomic.Uint64
	CursorOps     atomic.Uint64
	ControlErrors atomic.Uint64
	CursorErrors  atomic.Uint64

	// Display session operations.
	FlushOps         atomic.Uint64
	TransferredBytes atomic.Uint64

	// Round-trip latency.
	TotalLatencyNs atomic.Uint64
	OpCount        atomic.Uint64
	// Cumulative counts: bucket[i] counts round trips with latency
	// <= LatencyBuckets[i].
	LatencyHist [numLatencyBuckets]atomic.Uint64

	StartTime atomic.Int64
	StopTime  atomic.Int64
}

// NewMetrics creates a metrics instance with the start time stamped.
func NewMetrics() *Metrics {
	m := &Metrics{}
	m.StartTime.Store(time.Now().UnixNano())
	return m
}

// ObserveRoundTrip implements the transport observer hook.
func (m *Metrics) ObserveRoundTrip(queue string, latency time.Duration, ok bool) {
	switch queue {
	case "cursor":
		m.CursorOps.Add(1)
		if !ok {
			m.CursorErrors.Add(1)
		}
	default:
		m.ControlOps.Add(1)
		if !ok {
			m.ControlErrors.Add(1)
		}
	}
	m.recordLatency(uint64(latency.Nanoseconds()))
}

// RecordFlush notes one completed flush and the bytes it pushed to the
// host.
func (m *Metrics) RecordFlush(bytes uint64) {
	m.FlushOps.Add(1)
	m.TransferredBytes.Add(bytes)
}

func (m *Metrics) recordLatency(ns uint64) {
	m.TotalLatencyNs.Add(ns)
	m.OpCount.Add(1)
	for i, bucket := range LatencyBuckets {
		if ns <= bucket {
			m.LatencyHist[i].Add(1)
		}
	}
}

// Stop stamps the teardown time.
func (m *Metrics) Stop() {
	m.StopTime.Store(time.Now().UnixNano())
}

// MetricsSnapshot is a point-in-time copy of the counters plus derived
// statistics.
type MetricsSnapshot struct {
	ControlOps    uint64
	CursorOps     uint64
	ControlErrors uint64
	CursorErrors  uint64

	FlushOps         uint64
	TransferredBytes uint64

	AvgLatencyNs uint64
	LatencyP50Ns uint64
	LatencyP99Ns uint64

	LatencyHistogram [numLatencyBuckets]uint64

	TotalOps  uint64
	ErrorRate float64 // percent
	UptimeNs  uint64
}

// Snapshot copies the counters and computes derived statistics.
func (m *Metrics) Snapshot() MetricsSnapshot {
	snap := MetricsSnapshot{
		ControlOps:       m.ControlOps.Load(),
		CursorOps:        m.CursorOps.Load(),
		ControlErrors:    m.ControlErrors.Load(),
		CursorErrors:     m.CursorErrors.Load(),
		FlushOps:         m.FlushOps.Load(),
		TransferredBytes: m.TransferredBytes.Load(),
	}
	snap.TotalOps = snap.ControlOps + snap.CursorOps

	opCount := m.OpCount.Load()
	if opCount > 0 {
		snap.AvgLatencyNs = m.TotalLatencyNs.Load() / opCount
		snap.LatencyP50Ns = m.percentile(0.50)
		snap.LatencyP99Ns = m.percentile(0.99)
	}

	errs := snap.ControlErrors + snap.CursorErrors
	if snap.TotalOps > 0 {
		snap.ErrorRate = float64(errs) / float64(snap.TotalOps) * 100.0
	}

	start := m.StartTime.Load()
	stop := m.StopTime.Load()
	if stop > 0 {
		snap.UptimeNs = uint64(stop - start)
	} else {
		snap.UptimeNs = uint64(time.Now().UnixNano() - start)
	}

	for i := 0; i < numLatencyBuckets; i++ {
		snap.LatencyHistogram[i] = m.LatencyHist[i].Load()
	}
	return snap
}

// percentile estimates latency at the given percentile using linear
// interpolation between histogram buckets.
func (m *Metrics) percentile(p float64) uint64 {
	total := m.OpCount.Load()
	if total == 0 {
		return 0
	}
	target := uint64(float64(total) * p)
	prevBucket := uint64(0)
	for i, bucket := range LatencyBuckets {
		count := m.LatencyHist[i].Load()
		if count >= target {
			prevCount := uint64(0)
			if i > 0 {
				prevCount = m.LatencyHist[i-1].Load()
			}
			if count == prevCount {
				return bucket
			}
			frac := float64(target-prevCount) / float64(count-prevCount)
			return prevBucket + uint64(frac*float64(bucket-prevBucket))
		}
		prevBucket = bucket
	}
	return LatencyBuckets[numLatencyBuckets-1]
}

// Reset zeroes all counters.
func (m *Metrics) Reset() {
	m.ControlOps.Store(0)
	m.CursorOps.Store(0)
	m.ControlErrors.Store(0)
	m.CursorErrors.Store(0)
	m.FlushOps.Store(0)
	m.TransferredBytes.Store(0)
	m.TotalLatencyNs.Store(0)
	m.OpCount.Store(0)
	for i := 0; i < numLatencyBuckets; i++ {
		m.LatencyHist[i].Store(0)
	}
	m.StartTime.Store(time.Now().UnixNano())
	m.StopTime.Store(0)
}
