// Package sysmgmt implements System Management: the component that owns
// device identification and reports a consolidated view of device state,
// the way the top-level orchestrator elsewhere in this codebase sequences
// its sub-components and exposes a single State()/Info() summary rather
// than making callers poll each sub-component individually.
package sysmgmt

import (
	"github.com/go-iolink/iolink/internal/command"
	"github.com/go-iolink/iolink/internal/dlmode"
	"github.com/go-iolink/iolink/internal/event"
	"github.com/go-iolink/iolink/internal/storage"
)

// Info is a point-in-time snapshot of overall device state, grounded on
// this codebase's DeviceInfo accessor-struct pattern.
type Info struct {
	DLState       dlmode.State
	Baud          dlmode.BaudMode
	StorageState  storage.State
	StorageLocked bool
	ActiveEvents  int
	Identity      command.Identification
}

// Manager aggregates the sub-machines that together determine whether
// this device is healthy and what state it reports to the application.
type Manager struct {
	dl     *dlmode.Machine
	ds     *storage.Store
	events *event.Handler
	cmd    *command.Handler
}

// New constructs a Manager over the device's already-constructed
// sub-machines.
func New(dl *dlmode.Machine, ds *storage.Store, events *event.Handler, cmd *command.Handler) *Manager {
	return &Manager{dl: dl, ds: ds, events: events, cmd: cmd}
}

// Snapshot returns the current consolidated device state.
func (m *Manager) Snapshot() Info {
	return Info{
		DLState:       m.dl.State(),
		Baud:          m.dl.Baud(),
		StorageState:  m.ds.State(),
		StorageLocked: m.ds.Locked(),
		ActiveEvents:  m.events.ActiveCount(),
		Identity:      m.cmd.DeviceIdentResponse(),
	}
}

// Ready reports whether the device is in a state the application should
// treat as fully operational (Operate reached, Data Storage not Corrupt).
func (m *Manager) Ready() bool {
	return m.dl.State() == dlmode.Operate && m.ds.State() != storage.Corrupt
}

// Restart clears a fatal fault by returning Data-Link Mode to a fresh
// wake-up attempt; System Management is the sole authority empowered to
// request this, per the requirement that only an explicit restart clears
// a HardwareError/ProtocolError fault.
func (m *Manager) Restart() error {
	return m.dl.WakeUp()
}
