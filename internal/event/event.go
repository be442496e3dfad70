// Package event implements the Event Handler and Event State Machine: a
// bounded FIFO of pending device events plus the active-appear/disappear
// set the master uses to reconcile what is currently asserted.
//
// Per-severity counters below are grounded on this codebase's fixed-size
// atomic-counter-array histogram idiom, generalized from latency buckets
// to severities; the pluggable EventSink is grounded on the
// Observer/NoOpObserver pattern used for metrics collection elsewhere.
package event

import (
	"fmt"
	"sync/atomic"
)

// Severity ranks an event for overflow-drop arbitration: when the FIFO is
// full, the oldest event at the lowest severity currently queued is
// dropped to make room.
type Severity int

const (
	SeverityInfo Severity = iota
	SeverityWarning
	SeverityError
	numSeverities
)

func (s Severity) String() string {
	switch s {
	case SeverityInfo:
		return "Info"
	case SeverityWarning:
		return "Warning"
	case SeverityError:
		return "Error"
	default:
		return fmt.Sprintf("Severity(%d)", int(s))
	}
}

// Kind is whether an event is appearing (becoming active), disappearing
// (clearing), or a single-shot occurrence that carries no active state at
// all.
type Kind int

const (
	Appear Kind = iota
	Disappear
	SingleShot
)

// Code is the vendor/spec-defined event code (IO-Link "event qualifier"
// code range).
type Code uint16

// pending is one queued transmission.
type pending struct {
	Code     Code
	Kind     Kind
	Severity Severity
}

// Sink optionally observes appear/disappear traffic independent of the OD
// arbitration path, the way a pluggable Observer watches I/O elsewhere in
// this codebase.
type Sink interface {
	ObserveAppear(code Code, sev Severity)
	ObserveDisappear(code Code, sev Severity)
}

// NoOpSink discards everything.
type NoOpSink struct{}

func (NoOpSink) ObserveAppear(Code, Severity)    {}
func (NoOpSink) ObserveDisappear(Code, Severity) {}

var _ Sink = NoOpSink{}

// Handler owns the pending-event ring buffer and the active-event set for
// one device.
type Handler struct {
	sink Sink

	ring     [ringCapacity]pending
	head     int // next slot to pop
	tail     int // next slot to push
	count    int

	active map[Code]Severity

	counters [numSeverities]atomic.Uint64
}

const ringCapacity = 16

// New constructs a Handler with an empty queue and empty active set. sink
// may be nil, in which case events are only queued/counted, not observed.
func New(sink Sink) *Handler {
	if sink == nil {
		sink = NoOpSink{}
	}
	return &Handler{sink: sink, active: make(map[Code]Severity)}
}

// Signal records an occurrence of code at the given severity. Appear and
// Disappear participate in the active-event set: a redundant Appear of an
// already-active code, or a redundant Disappear of a code that is not
// active, is dropped silently (the same state is never transmitted
// twice). SingleShot bypasses the active set entirely — it is always
// queued, and never marks code active or inactive — for events that carry
// no persistent state of their own (e.g. a momentary diagnostic pulse).
func (h *Handler) Signal(code Code, kind Kind, sev Severity) {
	if kind != SingleShot {
		_, isActive := h.active[code]
		if kind == Appear && isActive {
			return
		}
		if kind == Disappear && !isActive {
			return
		}
	}

	if h.count == ringCapacity {
		h.dropLowestSeverity()
	}

	h.ring[h.tail] = pending{Code: code, Kind: kind, Severity: sev}
	h.tail = (h.tail + 1) % ringCapacity
	h.count++

	switch kind {
	case Appear:
		h.active[code] = sev
	case Disappear:
		delete(h.active, code)
	}
	h.counters[sev].Add(1)
}

// dropLowestSeverity evicts the oldest queued event at the lowest
// severity currently present in the ring, making room for a new one.
func (h *Handler) dropLowestSeverity() {
	lowestIdx := -1
	lowestSev := Severity(numSeverities)
	idx := h.head
	for i := 0; i < h.count; i++ {
		p := h.ring[idx]
		if p.Severity < lowestSev {
			lowestSev = p.Severity
			lowestIdx = idx
		}
		idx = (idx + 1) % ringCapacity
	}
	if lowestIdx < 0 {
		return
	}
	h.removeAt(lowestIdx)
}

// removeAt deletes the entry at ring index i by shifting every later
// logical entry back by one slot, preserving FIFO order among survivors.
func (h *Handler) removeAt(i int) {
	pos := (i - h.head + ringCapacity) % ringCapacity
	cur := i
	for n := pos + 1; n < h.count; n++ {
		next := (cur + 1) % ringCapacity
		h.ring[cur] = h.ring[next]
		cur = next
	}
	h.tail = cur
	h.count--
}

// Pending reports whether an event is queued for transmission.
func (h *Handler) Pending() bool { return h.count > 0 }

// Next pops the oldest queued event for transmission over OD, invoking
// the configured Sink.
func (h *Handler) Next() (Code, Kind, Severity, bool) {
	if h.count == 0 {
		return 0, Appear, 0, false
	}
	p := h.ring[h.head]
	h.head = (h.head + 1) % ringCapacity
	h.count--
	switch p.Kind {
	case Appear:
		h.sink.ObserveAppear(p.Code, p.Severity)
	case Disappear:
		h.sink.ObserveDisappear(p.Code, p.Severity)
	}
	return p.Code, p.Kind, p.Severity, true
}

// ActiveCount reports how many distinct event codes are currently active
// (appeared but not yet disappeared).
func (h *Handler) ActiveCount() int { return len(h.active) }

// CountBySeverity reports the lifetime count of signals at sev.
func (h *Handler) CountBySeverity(sev Severity) uint64 {
	if sev < 0 || int(sev) >= int(numSeverities) {
		return 0
	}
	return h.counters[sev].Load()
}
