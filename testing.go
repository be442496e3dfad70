package iolink

import (
	"sync"
	"time"

	"github.com/go-iolink/iolink/internal/phy"
)

// MockPhysicalLayer is an in-memory, half-duplex loopback transport for
// tests: it records every outbound byte slice a Device sends and serves
// a scripted queue of inbound master frames, with edge-triggered timer
// simulation driven explicitly rather than by wall-clock time.
//
// Grounded on this codebase's call-tracking/state-flag mock pattern,
// generalized from a read/write block-device mock to a half-duplex
// frame transport.
type MockPhysicalLayer struct {
	mu sync.Mutex

	mode        int
	modeChanges []int

	inbound     [][]byte
	transmitted [][]byte

	armed   map[phy.TimerID]bool
	expired map[phy.TimerID]bool

	status phy.Status
}

// NewMockPhysicalLayer constructs an idle mock transport.
func NewMockPhysicalLayer() *MockPhysicalLayer {
	return &MockPhysicalLayer{
		armed:   make(map[phy.TimerID]bool),
		expired: make(map[phy.TimerID]bool),
	}
}

// QueueInbound appends a raw M-sequence frame to be returned by the
// next Transfer call(s), oldest first.
func (m *MockPhysicalLayer) QueueInbound(frame []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := make([]byte, len(frame))
	copy(cp, frame)
	m.inbound = append(m.inbound, cp)
}

// Transmitted returns every outbound byte slice sent so far, in order.
func (m *MockPhysicalLayer) Transmitted() [][]byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([][]byte, len(m.transmitted))
	copy(out, m.transmitted)
	return out
}

// ExpireTimer marks id as fired if it is armed (a disarmed timer is left
// alone); the next Expired(id) call observes this and clears it
// (edge-triggered, matching a hardware timer IRQ).
func (m *MockPhysicalLayer) ExpireTimer(id phy.TimerID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.armed[id] {
		m.expired[id] = true
	}
}

// SetStatus sets the line status Status() reports.
func (m *MockPhysicalLayer) SetStatus(s phy.Status) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.status = s
}

// SetMode implements phy.PhysicalLayer.
func (m *MockPhysicalLayer) SetMode(mode int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.mode = mode
	m.modeChanges = append(m.modeChanges, mode)
	return nil
}

// Mode reports the most recently set baud mode.
func (m *MockPhysicalLayer) Mode() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.mode
}

// Transfer implements phy.PhysicalLayer: a non-empty out is recorded
// verbatim (an empty one is not recorded), and the oldest queued inbound
// frame (if any) is returned.
func (m *MockPhysicalLayer) Transfer(out []byte) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(out) > 0 {
		cp := make([]byte, len(out))
		copy(cp, out)
		m.transmitted = append(m.transmitted, cp)
	}
	if len(m.inbound) == 0 {
		return nil, nil
	}
	next := m.inbound[0]
	m.inbound = m.inbound[1:]
	return next, nil
}

// StartTimer implements phy.PhysicalLayer.
func (m *MockPhysicalLayer) StartTimer(id phy.TimerID, d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.armed[id] = true
	m.expired[id] = false
}

// RestartTimer implements phy.PhysicalLayer.
func (m *MockPhysicalLayer) RestartTimer(id phy.TimerID, d time.Duration) {
	m.StartTimer(id, d)
}

// StopTimer implements phy.PhysicalLayer.
func (m *MockPhysicalLayer) StopTimer(id phy.TimerID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.armed[id] = false
	m.expired[id] = false
}

// Expired implements phy.PhysicalLayer, clearing the flag once read.
func (m *MockPhysicalLayer) Expired(id phy.TimerID) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.expired[id] {
		m.expired[id] = false
		return true
	}
	return false
}

// Status implements phy.PhysicalLayer.
func (m *MockPhysicalLayer) Status() phy.Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status
}

var _ phy.PhysicalLayer = (*MockPhysicalLayer)(nil)

// recordedReadConfirm and recordedWriteConfirm capture one AL_Read_cnf
// / AL_Write_cnf delivery for test assertions.
type recordedReadConfirm struct {
	Index  uint16
	Sub    uint8
	Data   []byte
	Result Result
	Err    error
}

type recordedWriteConfirm struct {
	Index  uint16
	Sub    uint8
	Result Result
	Err    error
}

// MockApplication implements Application, recording every upcall for
// test assertions instead of acting on it.
type MockApplication struct {
	mu sync.Mutex

	PDCycles      []bool
	NewOutputs    [][]byte
	ControlEvents []ControlEvent
	ReadConfirms  []recordedReadConfirm
	WriteConfirms []recordedWriteConfirm
	EventConfirms []uint16
}

// NewMockApplication constructs an empty MockApplication.
func NewMockApplication() *MockApplication { return &MockApplication{} }

func (a *MockApplication) PDCycle(valid bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.PDCycles = append(a.PDCycles, valid)
}

func (a *MockApplication) NewOutput(data []byte) {
	a.mu.Lock()
	defer a.mu.Unlock()
	cp := make([]byte, len(data))
	copy(cp, data)
	a.NewOutputs = append(a.NewOutputs, cp)
}

func (a *MockApplication) Control(event ControlEvent) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.ControlEvents = append(a.ControlEvents, event)
}

func (a *MockApplication) ReadConfirm(index uint16, sub uint8, data []byte, result Result, err error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.ReadConfirms = append(a.ReadConfirms, recordedReadConfirm{Index: index, Sub: sub, Data: data, Result: result, Err: err})
}

func (a *MockApplication) WriteConfirm(index uint16, sub uint8, result Result, err error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.WriteConfirms = append(a.WriteConfirms, recordedWriteConfirm{Index: index, Sub: sub, Result: result, Err: err})
}

func (a *MockApplication) EventConfirm(code uint16) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.EventConfirms = append(a.EventConfirms, code)
}

// LastControl returns the most recently delivered control event and
// whether any has been delivered yet.
func (a *MockApplication) LastControl() (ControlEvent, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if len(a.ControlEvents) == 0 {
		return 0, false
	}
	return a.ControlEvents[len(a.ControlEvents)-1], true
}

var _ Application = (*MockApplication)(nil)
