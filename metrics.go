package iolink

import (
	"sync/atomic"
	"time"
)

// LatencyBuckets defines the ISDU transaction latency histogram buckets
// in nanoseconds, logarithmically spaced from 1ms to 10s (IO-Link
// transactions are bounded by cycle time on the low end and master
// timeouts on the high end, unlike a block device's microsecond-scale
// I/O).
var LatencyBuckets = []uint64{
	1_000_000,      // 1ms
	10_000_000,     // 10ms
	100_000_000,    // 100ms
	1_000_000_000,  // 1s
	10_000_000_000, // 10s
}

const numLatencyBuckets = 5

// Metrics tracks performance and operational statistics for one device.
type Metrics struct {
	Cycles        atomic.Uint64 // total Poll() calls
	FramesOK      atomic.Uint64
	FramesInvalid atomic.Uint64 // checksum/frame errors

	ISDUTransactions atomic.Uint64
	ISDUAborted      atomic.Uint64
	ISDUFailed       atomic.Uint64

	EventsAppeared    atomic.Uint64
	EventsDisappeared atomic.Uint64
	EventsDropped     atomic.Uint64

	TotalISDULatencyNs atomic.Uint64
	ISDUCount          atomic.Uint64
	LatencyBuckets     [numLatencyBuckets]atomic.Uint64

	StartTime atomic.Int64
	StopTime  atomic.Int64
}

// NewMetrics creates a new metrics instance.
func NewMetrics() *Metrics {
	m := &Metrics{}
	m.StartTime.Store(time.Now().UnixNano())
	return m
}

// RecordCycle records one Poll() invocation.
func (m *Metrics) RecordCycle() { m.Cycles.Add(1) }

// RecordFrame records one received M-sequence's checksum outcome.
func (m *Metrics) RecordFrame(ok bool) {
	if ok {
		m.FramesOK.Add(1)
	} else {
		m.FramesInvalid.Add(1)
	}
}

// RecordISDU records one completed ISDU transaction and its latency.
func (m *Metrics) RecordISDU(latencyNs uint64, aborted, failed bool) {
	m.ISDUTransactions.Add(1)
	if aborted {
		m.ISDUAborted.Add(1)
	}
	if failed {
		m.ISDUFailed.Add(1)
	}
	m.TotalISDULatencyNs.Add(latencyNs)
	m.ISDUCount.Add(1)
	for i, bucket := range LatencyBuckets {
		if latencyNs <= bucket {
			m.LatencyBuckets[i].Add(1)
		}
	}
}

// RecordEvent records one appear/disappear/drop.
func (m *Metrics) RecordEvent(appeared, disappeared, dropped bool) {
	if appeared {
		m.EventsAppeared.Add(1)
	}
	if disappeared {
		m.EventsDisappeared.Add(1)
	}
	if dropped {
		m.EventsDropped.Add(1)
	}
}

// Stop marks the device as stopped.
func (m *Metrics) Stop() { m.StopTime.Store(time.Now().UnixNano()) }

// MetricsSnapshot is a point-in-time snapshot of Metrics.
type MetricsSnapshot struct {
	Cycles            uint64
	FramesOK          uint64
	FramesInvalid     uint64
	ISDUTransactions  uint64
	ISDUAborted       uint64
	ISDUFailed        uint64
	EventsAppeared    uint64
	EventsDisappeared uint64
	EventsDropped     uint64
	AvgISDULatencyNs  uint64
	UptimeNs          uint64
	FrameErrorRate    float64
}

// Snapshot returns a point-in-time snapshot of m.
func (m *Metrics) Snapshot() MetricsSnapshot {
	snap := MetricsSnapshot{
		Cycles:            m.Cycles.Load(),
		FramesOK:          m.FramesOK.Load(),
		FramesInvalid:     m.FramesInvalid.Load(),
		ISDUTransactions:  m.ISDUTransactions.Load(),
		ISDUAborted:       m.ISDUAborted.Load(),
		ISDUFailed:        m.ISDUFailed.Load(),
		EventsAppeared:    m.EventsAppeared.Load(),
		EventsDisappeared: m.EventsDisappeared.Load(),
		EventsDropped:     m.EventsDropped.Load(),
	}

	count := m.ISDUCount.Load()
	if count > 0 {
		snap.AvgISDULatencyNs = m.TotalISDULatencyNs.Load() / count
	}

	start := m.StartTime.Load()
	stop := m.StopTime.Load()
	if stop > 0 {
		snap.UptimeNs = uint64(stop - start)
	} else {
		snap.UptimeNs = uint64(time.Now().UnixNano() - start)
	}

	totalFrames := snap.FramesOK + snap.FramesInvalid
	if totalFrames > 0 {
		snap.FrameErrorRate = float64(snap.FramesInvalid) / float64(totalFrames) * 100.0
	}
	return snap
}

// Reset zeroes all counters (useful for testing).
func (m *Metrics) Reset() {
	m.Cycles.Store(0)
	m.FramesOK.Store(0)
	m.FramesInvalid.Store(0)
	m.ISDUTransactions.Store(0)
	m.ISDUAborted.Store(0)
	m.ISDUFailed.Store(0)
	m.EventsAppeared.Store(0)
	m.EventsDisappeared.Store(0)
	m.EventsDropped.Store(0)
	m.TotalISDULatencyNs.Store(0)
	m.ISDUCount.Store(0)
	for i := range m.LatencyBuckets {
		m.LatencyBuckets[i].Store(0)
	}
	m.StartTime.Store(time.Now().UnixNano())
	m.StopTime.Store(0)
}

// Observer allows pluggable metrics collection, invoked directly by
// Device for cycle, frame, ISDU and event outcomes. It is separate from
// the event package's Sink, which Device does not wire.
type Observer interface {
	ObserveCycle()
	ObserveFrame(ok bool)
	ObserveISDU(latencyNs uint64, aborted, failed bool)
	ObserveEvent(appeared, disappeared, dropped bool)
}

// NoOpObserver is a no-op implementation of Observer.
type NoOpObserver struct{}

func (NoOpObserver) ObserveCycle()                                 {}
func (NoOpObserver) ObserveFrame(bool)                             {}
func (NoOpObserver) ObserveISDU(uint64, bool, bool)                {}
func (NoOpObserver) ObserveEvent(bool, bool, bool)                 {}

// MetricsObserver implements Observer using the built-in Metrics.
type MetricsObserver struct {
	metrics *Metrics
}

// NewMetricsObserver creates an observer that records to the given metrics.
func NewMetricsObserver(m *Metrics) *MetricsObserver { return &MetricsObserver{metrics: m} }

func (o *MetricsObserver) ObserveCycle()     { o.metrics.RecordCycle() }
func (o *MetricsObserver) ObserveFrame(ok bool) { o.metrics.RecordFrame(ok) }
func (o *MetricsObserver) ObserveISDU(latencyNs uint64, aborted, failed bool) {
	o.metrics.RecordISDU(latencyNs, aborted, failed)
}
func (o *MetricsObserver) ObserveEvent(appeared, disappeared, dropped bool) {
	o.metrics.RecordEvent(appeared, disappeared, dropped)
}

var _ Observer = (*MetricsObserver)(nil)
var _ Observer = (*NoOpObserver)(nil)
