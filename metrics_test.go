package iolink

import "testing"

func TestMetricsRecordCycleAndFrame(t *testing.T) {
	m := NewMetrics()
	m.RecordCycle()
	m.RecordCycle()
	m.RecordFrame(true)
	m.RecordFrame(false)

	snap := m.Snapshot()
	if snap.Cycles != 2 {
		t.Errorf("expected 2 cycles, got %d", snap.Cycles)
	}
	if snap.FramesOK != 1 || snap.FramesInvalid != 1 {
		t.Errorf("expected 1 ok / 1 invalid frame, got %d/%d", snap.FramesOK, snap.FramesInvalid)
	}
	if snap.FrameErrorRate != 50.0 {
		t.Errorf("expected 50%% frame error rate, got %f", snap.FrameErrorRate)
	}
}

func TestMetricsISDULatencyBuckets(t *testing.T) {
	m := NewMetrics()
	m.RecordISDU(500_000, false, false)   // under 1ms bucket
	m.RecordISDU(50_000_000, false, false) // under 100ms bucket, over 10ms

	snap := m.Snapshot()
	if snap.ISDUTransactions != 2 {
		t.Fatalf("expected 2 ISDU transactions, got %d", snap.ISDUTransactions)
	}
	if m.LatencyBuckets[0].Load() != 1 {
		t.Errorf("expected 1 sample in the 1ms bucket, got %d", m.LatencyBuckets[0].Load())
	}
	if m.LatencyBuckets[2].Load() != 2 {
		t.Errorf("expected 2 cumulative samples by the 100ms bucket, got %d", m.LatencyBuckets[2].Load())
	}
	wantAvg := (500_000 + 50_000_000) / 2
	if snap.AvgISDULatencyNs != uint64(wantAvg) {
		t.Errorf("expected avg latency %d, got %d", wantAvg, snap.AvgISDULatencyNs)
	}
}

func TestMetricsEventCounters(t *testing.T) {
	m := NewMetrics()
	m.RecordEvent(true, false, false)
	m.RecordEvent(false, true, false)
	m.RecordEvent(false, false, true)

	snap := m.Snapshot()
	if snap.EventsAppeared != 1 || snap.EventsDisappeared != 1 || snap.EventsDropped != 1 {
		t.Errorf("expected 1/1/1 event counters, got %d/%d/%d", snap.EventsAppeared, snap.EventsDisappeared, snap.EventsDropped)
	}
}

func TestMetricsReset(t *testing.T) {
	m := NewMetrics()
	m.RecordCycle()
	m.RecordFrame(true)
	m.Reset()

	snap := m.Snapshot()
	if snap.Cycles != 0 || snap.FramesOK != 0 {
		t.Errorf("expected zeroed metrics after Reset, got %+v", snap)
	}
}

func TestMetricsObserverDelegatesToMetrics(t *testing.T) {
	m := NewMetrics()
	obs := NewMetricsObserver(m)

	obs.ObserveCycle()
	obs.ObserveFrame(true)
	obs.ObserveISDU(1_000_000, false, false)
	obs.ObserveEvent(true, false, false)

	snap := m.Snapshot()
	if snap.Cycles != 1 || snap.FramesOK != 1 || snap.ISDUTransactions != 1 || snap.EventsAppeared != 1 {
		t.Errorf("expected observer calls to be recorded, got %+v", snap)
	}
}

func TestNoOpObserverDoesNotPanic(t *testing.T) {
	var o Observer = NoOpObserver{}
	o.ObserveCycle()
	o.ObserveFrame(false)
	o.ObserveISDU(0, true, false)
	o.ObserveEvent(false, true, false)
}
