// Package dlmode implements the Data-Link Mode state machine: the device's
// view of the physical-layer handshake (Inactive/Startup/Preoperate/
// Operate) and the baud-rate probe sequence that runs inside Startup.
//
// The state-enum-plus-guarded-transition-function shape here is the same
// one a per-tag I/O state machine uses elsewhere in this codebase: exactly
// one owner drives the transition, invalid transitions are rejected rather
// than silently coerced, and every transition is logged.
package dlmode

import (
	"fmt"
	"time"

	"github.com/go-iolink/iolink/internal/constants"
	"github.com/go-iolink/iolink/internal/phy"
)

// State is the Data-Link Mode device state.
type State int

const (
	Inactive State = iota
	Startup
	Preoperate
	Operate
)

func (s State) String() string {
	switch s {
	case Inactive:
		return "Inactive"
	case Startup:
		return "Startup"
	case Preoperate:
		return "Preoperate"
	case Operate:
		return "Operate"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// BaudMode is the physical baud rate a device probes through during
// Startup, fastest first.
type BaudMode int

const (
	COM3 BaudMode = iota // 230.4 kBd
	COM2                 // 38.4 kBd
	COM1                 // 4.8 kBd
	SIO                  // fallback, not an IO-Link communication mode
)

func (b BaudMode) String() string {
	switch b {
	case COM3:
		return "COM3"
	case COM2:
		return "COM2"
	case COM1:
		return "COM1"
	case SIO:
		return "SIO"
	default:
		return fmt.Sprintf("BaudMode(%d)", int(b))
	}
}

// Config holds the Data-Link Mode's configurable timing parameters,
// defaulted the same way a negotiated protocol config elsewhere in this
// codebase holds named timing parameters with a Valid/default pattern.
type Config struct {
	T1StartupGuard time.Duration
	T2Message      time.Duration
}

// DefaultConfig returns IO-Link's conservative device-side timing defaults.
func DefaultConfig() Config {
	return Config{
		T1StartupGuard: constants.DefaultT1StartupGuard,
		T2Message:      constants.DefaultT2MessageTimeout,
	}
}

func (c Config) valid() Config {
	out := c
	if out.T1StartupGuard <= 0 {
		out.T1StartupGuard = constants.DefaultT1StartupGuard
	}
	if out.T2Message <= 0 {
		out.T2Message = constants.DefaultT2MessageTimeout
	}
	return out
}

// TransitionError reports an attempted transition out of a state that does
// not permit it.
type TransitionError struct {
	From  State
	Event string
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("dlmode: %s not valid from %s", e.Event, e.From)
}

// Machine is the Data-Link Mode state machine for one device instance.
type Machine struct {
	cfg Config
	pl  phy.PhysicalLayer
	log phy.Logger

	state           State
	baud            BaudMode
	faultStreak     int
	operateEnter    bool // set once per Operate entry, cleared by ConsumeOperateEntered; used by callers to fire Control_ind(Operate) exactly once
	preoperateEnter bool // set once per Preoperate entry, cleared by ConsumePreoperateEntered; used by callers to fire Control_ind(Preoperate) exactly once
}

// New constructs a Machine in Inactive state.
func New(pl phy.PhysicalLayer, log phy.Logger, cfg Config) *Machine {
	return &Machine{
		cfg:   cfg.valid(),
		pl:    pl,
		log:   log,
		state: Inactive,
		baud:  SIO,
	}
}

// State reports the current Data-Link Mode state.
func (m *Machine) State() State { return m.state }

// Baud reports the currently active baud mode.
func (m *Machine) Baud() BaudMode { return m.baud }

// WakeUp moves the device from Inactive into Startup at COM3, the fastest
// probe rate, and arms the startup guard timer.
func (m *Machine) WakeUp() error {
	if m.state != Inactive {
		return &TransitionError{From: m.state, Event: "WakeUp"}
	}
	m.baud = COM3
	if err := m.pl.SetMode(int(COM3)); err != nil {
		return err
	}
	m.pl.StartTimer(phy.T1StartupGuard, m.cfg.T1StartupGuard)
	m.transition(Startup, "WakeUp")
	return nil
}

// NextBaud steps the probe sequence down one rate (COM3 -> COM2 -> COM1)
// when T1 expires without a valid MasterIdent, re-arming T1. Falling back
// past COM1 returns the device to Inactive.
func (m *Machine) NextBaud() error {
	if m.state != Startup {
		return &TransitionError{From: m.state, Event: "NextBaud"}
	}
	switch m.baud {
	case COM3:
		m.baud = COM2
	case COM2:
		m.baud = COM1
	default:
		m.pl.StopTimer(phy.T1StartupGuard)
		m.transition(Inactive, "NextBaud(exhausted)")
		return nil
	}
	if err := m.pl.SetMode(int(m.baud)); err != nil {
		return err
	}
	m.pl.RestartTimer(phy.T1StartupGuard, m.cfg.T1StartupGuard)
	return nil
}

// MasterIdentAccepted records that the Command Handler validated an
// incoming MasterIdent at the current baud rate, stopping the startup
// guard and arming the steady-state message-timeout timer.
func (m *Machine) MasterIdentAccepted() error {
	if m.state != Startup {
		return &TransitionError{From: m.state, Event: "MasterIdentAccepted"}
	}
	m.pl.StopTimer(phy.T1StartupGuard)
	m.pl.StartTimer(phy.T2Message, m.cfg.T2Message)
	m.faultStreak = 0
	return nil
}

// EnterPreoperate transitions Startup -> Preoperate on an explicit master
// PreOperate command.
func (m *Machine) EnterPreoperate() error {
	if m.state != Startup {
		return &TransitionError{From: m.state, Event: "EnterPreoperate"}
	}
	m.transition(Preoperate, "EnterPreoperate")
	m.preoperateEnter = true
	return nil
}

// ConsumePreoperateEntered reports, and clears, whether Preoperate was
// entered since the last call. Callers use this to fire
// Control_ind(Preoperate) exactly once per entry.
func (m *Machine) ConsumePreoperateEntered() bool {
	v := m.preoperateEnter
	m.preoperateEnter = false
	return v
}

// EnterOperate transitions Preoperate -> Operate once System Management
// confirms parameter and data-storage readiness.
func (m *Machine) EnterOperate() error {
	if m.state != Preoperate {
		return &TransitionError{From: m.state, Event: "EnterOperate"}
	}
	m.transition(Operate, "EnterOperate")
	m.operateEnter = true
	return nil
}

// ConsumeOperateEntered reports, and clears, whether Operate was entered
// since the last call. Callers use this to fire Control_ind(Operate)
// exactly once per entry.
func (m *Machine) ConsumeOperateEntered() bool {
	v := m.operateEnter
	m.operateEnter = false
	return v
}

// MessageReceived resets the T2 message-timeout timer and clears the
// consecutive-fault streak; call on every well-formed master message.
func (m *Machine) MessageReceived() {
	m.pl.RestartTimer(phy.T2Message, m.cfg.T2Message)
	m.faultStreak = 0
}

// RecordFault records a checksum or frame error. Three consecutive faults
// (constants.ChecksumFaultThreshold) demote the link to Startup from any
// state other than Inactive, per the link-degraded escalation rule.
func (m *Machine) RecordFault() {
	m.faultStreak++
	if m.faultStreak >= constants.ChecksumFaultThreshold && m.state != Inactive {
		m.faultStreak = 0
		m.demoteToStartup("LinkDegraded")
	}
}

// T2Expired handles the steady-state message timeout firing: the master
// has gone silent, so the link falls back to Startup to re-probe.
func (m *Machine) T2Expired() {
	if m.state == Inactive {
		return
	}
	m.demoteToStartup("T2Expired")
}

// Fault is a fatal HardwareError/ProtocolError: the link drops all the way
// to Inactive and awaits an explicit restart from System Management.
func (m *Machine) Fault() {
	m.pl.StopTimer(phy.T1StartupGuard)
	m.pl.StopTimer(phy.T2Message)
	m.transition(Inactive, "Fault")
}

func (m *Machine) demoteToStartup(reason string) {
	m.pl.StopTimer(phy.T2Message)
	m.baud = COM3
	_ = m.pl.SetMode(int(COM3))
	m.pl.StartTimer(phy.T1StartupGuard, m.cfg.T1StartupGuard)
	m.transition(Startup, reason)
}

func (m *Machine) transition(to State, event string) {
	if m.log != nil {
		m.log.Infof("dlmode: %s -> %s (%s)", m.state, to, event)
	}
	m.state = to
}
