// Package iolink implements an IO-Link device (slave) protocol stack:
// physical-layer framing, Data-Link Mode negotiation, Process Data and
// On-Request Data exchange, ISDU parameter transfer, master commands,
// events, and Data Storage, all driven by a single cooperative Poll
// call per cycle.
//
// Device is this package's root type, grounded on this codebase's
// top-level orchestrator shape: one constructor that wires every
// sub-component together up front (mirroring the create-with-cleanup-
// on-error discipline used for device setup elsewhere in this
// codebase), and one driving entry point that steps every
// sub-component in a fixed order each cycle.
package iolink

import (
	"time"

	"github.com/go-iolink/iolink/internal/command"
	"github.com/go-iolink/iolink/internal/constants"
	"github.com/go-iolink/iolink/internal/dlmode"
	"github.com/go-iolink/iolink/internal/event"
	"github.com/go-iolink/iolink/internal/isdu"
	"github.com/go-iolink/iolink/internal/logging"
	"github.com/go-iolink/iolink/internal/message"
	"github.com/go-iolink/iolink/internal/odata"
	"github.com/go-iolink/iolink/internal/param"
	"github.com/go-iolink/iolink/internal/pdata"
	"github.com/go-iolink/iolink/internal/phy"
	"github.com/go-iolink/iolink/internal/storage"
	"github.com/go-iolink/iolink/internal/sysmgmt"
)

// PhysicalLayer is the transport port a Device talks through. Wire a
// concrete UART/transceiver driver, or MockPhysicalLayer in tests.
type PhysicalLayer = phy.PhysicalLayer

// TimerID names one of the fixed timer instances PhysicalLayer
// implementations must support.
type TimerID = phy.TimerID

const (
	TimerStartupGuard = phy.T1StartupGuard
	TimerMessage      = phy.T2Message
	TimerCycle        = phy.TCycle
)

// Access describes which sides may read or write a parameter slot.
type Access = param.Access

const (
	ReadOnly  = param.ReadOnly
	WriteOnly = param.WriteOnly
	ReadWrite = param.ReadWrite
)

// ParamKey identifies a parameter slot by IO-Link index and sub-index.
type ParamKey = param.Key

// EventSeverity ranks a signalled event for overflow arbitration.
type EventSeverity = event.Severity

const (
	SeverityInfo    = event.SeverityInfo
	SeverityWarning = event.SeverityWarning
	SeverityError   = event.SeverityError
)

// EventKind is whether a signalled event is appearing, disappearing, or a
// single-shot occurrence.
type EventKind = event.Kind

const (
	EventAppear     = event.Appear
	EventDisappear  = event.Disappear
	EventSingleShot = event.SingleShot
)

// ParameterSpec seeds one entry of the device's static parameter
// directory at construction time.
type ParameterSpec struct {
	Key        ParamKey
	Access     Access
	Persistent bool
	MaxLen     int
	Initial    []byte
}

// DeviceParams configures a new Device.
type DeviceParams struct {
	PhysicalLayer PhysicalLayer
	Application   Application

	VendorID     uint16
	DeviceID     uint32
	FunctionID   uint16
	MinCycleTime uint8

	// PDSize and ODSize are the negotiated M-sequence segment sizes in
	// bytes. Both default to 1 if left zero.
	PDSize int
	ODSize int

	Parameters []ParameterSpec
}

// Options holds optional dependencies for a Device, following this
// codebase's Options-struct construction pattern.
type Options struct {
	Logger   *logging.Logger
	Observer Observer
}

// loggerAdapter satisfies phy.Logger with a *logging.Logger.
type loggerAdapter struct{ l *logging.Logger }

func (a loggerAdapter) Debugf(format string, args ...interface{}) { a.l.Debugf(format, args...) }
func (a loggerAdapter) Infof(format string, args ...interface{})  { a.l.Infof(format, args...) }
func (a loggerAdapter) Warnf(format string, args ...interface{})  { a.l.Warnf(format, args...) }
func (a loggerAdapter) Errorf(format string, args ...interface{}) { a.l.Errorf(format, args...) }

// Device is one IO-Link device instance: every protocol sub-component
// wired together and driven by Poll.
type Device struct {
	pl  PhysicalLayer
	log phy.Logger
	app Application

	observer Observer
	metrics  *Metrics

	dl     *dlmode.Machine
	pd     *pdata.Handler
	params *param.Manager
	ds     *storage.Store
	isduH  *isdu.Handler
	evH    *event.Handler
	odArb  *odata.Arbiter
	cmdH   *command.Handler
	sys    *sysmgmt.Manager

	pdSize int
	odSize int

	frameType uint8
	lastMC    byte

	outScratch   []byte
	isduOut      []byte
	pendingCmd   command.ID
	cmdReplyDue  bool
	pendingALKey ParamKey
	pendingALOp  string // "" | "read" | "write"
}

// NewDevice constructs a Device in Inactive state, ready for WakeUp.
func NewDevice(p DeviceParams, opts *Options) (*Device, error) {
	if p.PhysicalLayer == nil {
		return nil, NewError("NewDevice", ErrInvalidParameter, "PhysicalLayer is required")
	}
	if p.Application == nil {
		return nil, NewError("NewDevice", ErrInvalidParameter, "Application is required")
	}
	if opts == nil {
		opts = &Options{}
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.Default()
	}
	observer := opts.Observer
	if observer == nil {
		observer = NoOpObserver{}
	}

	pdSize := p.PDSize
	if pdSize <= 0 {
		pdSize = 1
	}
	odSize := p.ODSize
	if odSize <= 0 {
		odSize = 1
	}

	pl := loggerAdapter{l: logger}

	params := param.New()
	for _, spec := range p.Parameters {
		if err := params.Register(spec.Key, spec.Access, spec.Persistent, spec.MaxLen, spec.Initial); err != nil {
			return nil, WrapError("NewDevice", err)
		}
	}

	dl := dlmode.New(p.PhysicalLayer, pl, dlmode.DefaultConfig())
	pdH := pdata.New()
	ds := storage.New(params)
	isduH := isdu.New(params, odSize)
	evH := event.New(nil)
	odArb := odata.New(isduH, evH)
	ident := command.Identification{
		VendorID:     p.VendorID,
		DeviceID:     p.DeviceID,
		FunctionID:   p.FunctionID,
		MinCycleTime: p.MinCycleTime,
	}
	cmdH := command.New(dl, ds, pl, ident)
	sys := sysmgmt.New(dl, ds, evH, cmdH)

	d := &Device{
		pl:         p.PhysicalLayer,
		log:        pl,
		app:        p.Application,
		observer:   observer,
		metrics:    NewMetrics(),
		dl:         dl,
		pd:         pdH,
		params:     params,
		ds:         ds,
		isduH:      isduH,
		evH:        evH,
		odArb:      odArb,
		cmdH:       cmdH,
		sys:        sys,
		pdSize:     pdSize,
		odSize:     odSize,
		outScratch: make([]byte, 0, 2+constants.MaxPDSize+constants.MaxODSize),
		isduOut:    make([]byte, odSize),
	}
	return d, nil
}

// WakeUp begins the Startup handshake (the 24V wake-up pulse in real
// hardware; here, whatever condition the embedding application decides
// should start communication).
func (d *Device) WakeUp() error {
	if err := d.dl.WakeUp(); err != nil {
		return WrapError("WakeUp", err)
	}
	return nil
}

// Restart clears a fatal fault and returns to a fresh wake-up attempt;
// only System Management may do this.
func (d *Device) Restart() error {
	if err := d.sys.Restart(); err != nil {
		return WrapError("Restart", err)
	}
	return nil
}

// State reports the current consolidated device state.
func (d *Device) State() sysmgmt.Info { return d.sys.Snapshot() }

// Ready reports whether the device is fully operational.
func (d *Device) Ready() bool { return d.sys.Ready() }

// Metrics returns the device's live metrics counters.
func (d *Device) Metrics() *Metrics { return d.metrics }

// LoadStorage validates a Data Storage record read back from the
// physical medium at boot and restores its entries into the parameter
// slots. Call before the first Poll.
func (d *Device) LoadStorage(record []byte) error {
	if err := d.ds.Load(record); err != nil {
		return WrapError("LoadStorage", err)
	}
	return nil
}

// Poll drives exactly one protocol cycle: inbound frame handling,
// Data-Link Mode, Process/On-Request Data arbitration, and outbound
// frame construction, in the fixed order the protocol requires:
// physical inbound, message validation, Data-Link Mode, PD/OD
// arbitration, ISDU/Command/Event, System Management, then physical
// outbound.
func (d *Device) Poll(now time.Time) error {
	d.metrics.RecordCycle()
	d.observer.ObserveCycle()

	if d.dl.State() == dlmode.Inactive {
		return nil
	}

	prevState := d.dl.State()

	// 1. Physical inbound: send last cycle's reply, receive whatever the
	// master sent this cycle.
	in, err := d.pl.Transfer(d.outScratch)
	if err != nil {
		d.dl.Fault()
		d.invalidateAndNotify(prevState)
		return WrapError("Poll", err)
	}

	d.checkTimers()

	if len(in) > 0 {
		d.handleInbound(in)
	}

	d.buildOutbound()
	d.invalidateAndNotify(prevState)

	if d.dl.State() == dlmode.Operate {
		_, valid := d.pd.Output(make([]byte, d.pdSize))
		d.app.PDCycle(valid)
	}
	return nil
}

func (d *Device) checkTimers() {
	if d.dl.State() == dlmode.Startup && d.pl.Expired(phy.T1StartupGuard) {
		_ = d.dl.NextBaud()
	}
	if d.pl.Expired(phy.T2Message) {
		d.dl.T2Expired()
	}
}

// handleInbound parses and validates one M-sequence, then routes it to
// the Data-Link Mode, Command, Process Data, or ISDU handler.
func (d *Device) handleInbound(in []byte) {
	frame, _, err := message.Parse(in, d.pdSize, d.odSize)
	if err != nil {
		d.dl.RecordFault()
		d.metrics.RecordFrame(false)
		d.observer.ObserveFrame(false)
		return
	}
	if !message.VerifyCKT(frame.CKTByte, d.frameType, frame.MCByte, frame.PD, frame.OD) {
		d.dl.RecordFault()
		d.metrics.RecordFrame(false)
		d.observer.ObserveFrame(false)
		return
	}
	d.metrics.RecordFrame(true)
	d.observer.ObserveFrame(true)
	d.dl.MessageReceived()
	d.lastMC = frame.MCByte

	mc := message.DecodeMC(frame.MCByte)
	owner := d.odArb.Current(d.dl.State())

	switch mc.Channel {
	case message.ChannelProcess:
		if d.dl.State() == dlmode.Operate {
			if d.pd.SetInput(frame.PD) {
				d.app.NewOutput(frame.PD)
			}
		}
	case message.ChannelPage:
		d.dispatchCommand(mc.Address, frame.OD)
	}

	if owner == odata.OwnerISDU {
		d.stepISDU(frame.OD)
	}
}

func (d *Device) dispatchCommand(address uint8, payload []byte) {
	id := command.ID(address)
	if err := d.cmdH.Dispatch(id, payload); err != nil {
		d.log.Warnf("iolink: command %s failed: %v", id, err)
		return
	}
	d.pendingCmd = id
	d.cmdReplyDue = true
	d.odArb.SetCommandPending(true)

	switch id {
	case command.Fallback:
		d.app.Control(ControlFallback)
	case command.PreOperate:
		if d.dl.ConsumePreoperateEntered() {
			d.app.Control(ControlPreoperate)
		}
	case command.Operate:
		if d.dl.ConsumeOperateEntered() {
			d.app.Control(ControlOperate)
		}
	}
}

// stepISDU advances the in-flight ISDU transaction by one OD cycle and
// delivers an application-initiated transaction's result once done.
func (d *Device) stepISDU(inbound []byte) {
	for i := range d.isduOut {
		d.isduOut[i] = 0
	}
	_, done := d.isduH.Step(inbound, d.isduOut)
	if !done || d.pendingALOp == "" {
		return
	}

	data, result, err := d.isduH.Collect()
	key := d.pendingALKey
	op := d.pendingALOp
	d.pendingALOp = ""

	alResult, aborted, failed := translateResult(result)
	d.metrics.RecordISDU(0, aborted, failed)
	d.observer.ObserveISDU(0, aborted, failed)
	if op == "read" {
		d.app.ReadConfirm(key.Index, key.Sub, data, alResult, err)
	} else {
		d.app.WriteConfirm(key.Index, key.Sub, alResult, err)
	}
}

func translateResult(r isdu.Result) (result Result, aborted, failed bool) {
	switch r {
	case isdu.ResultDone:
		return ResultDone, false, false
	case isdu.ResultAborted:
		return ResultAborted, true, false
	default:
		return ResultFailed, false, true
	}
}

// buildOutbound assembles this cycle's reply M-sequence: Process Data
// output plus whichever On-Request Data producer the arbiter granted.
// The PD segment is always pdSize bytes; bytes the application has not
// set are zero.
func (d *Device) buildOutbound() {
	pd := make([]byte, d.pdSize)
	d.pd.Output(pd)

	var od []byte
	switch d.odArb.Current(d.dl.State()) {
	case odata.OwnerCommand:
		if d.cmdReplyDue {
			od = []byte{byte(d.pendingCmd)}
			d.cmdReplyDue = false
			d.odArb.SetCommandPending(false)
		}
	case odata.OwnerISDU:
		od = d.isduOut
	case odata.OwnerEvent:
		if code, kind, sev, ok := d.evH.Next(); ok {
			appeared := kind == event.Appear
			disappeared := kind == event.Disappear
			d.metrics.RecordEvent(appeared, disappeared, false)
			d.observer.ObserveEvent(appeared, disappeared, false)
			od = []byte{byte(code >> 8), byte(code), byte(kind)<<4 | byte(sev)}
			d.app.EventConfirm(uint16(code))
		}
	}

	d.outScratch = message.Build(d.outScratch, d.frameType, d.lastMC, pd, od)
}

// invalidateAndNotify fires AL_Control_ind once Data-Link Mode leaves
// Operate, since leaving Operate always invalidates Process Data.
func (d *Device) invalidateAndNotify(prevState dlmode.State) {
	cur := d.dl.State()
	if prevState == dlmode.Operate && cur != dlmode.Operate {
		d.pd.InvalidateAll()
		if cur == dlmode.Inactive {
			d.app.Control(ControlFault)
		} else {
			d.app.Control(ControlFallback)
		}
	}
}

// AL_GetInput_req copies the Process Data the master most recently sent
// to the device into dst.
func (d *Device) AL_GetInput_req(dst []byte) (n int, valid bool) {
	return d.pd.Input(dst)
}

// AL_SetOutput_req stores the device's own Process Data to be sent to
// the master on the next cycle.
func (d *Device) AL_SetOutput_req(data []byte) error {
	if !d.pd.SetOutput(data) {
		return NewError("AL_SetOutput_req", ErrBufferOverflow, "process data too large")
	}
	return nil
}

// AL_Read_req starts an application-initiated ISDU read of (index, sub).
// The result is delivered asynchronously via Application.ReadConfirm.
func (d *Device) AL_Read_req(index uint16, sub uint8) error {
	key := ParamKey{Index: index, Sub: sub}
	if err := d.isduH.StartRead(isdu.FromApplication, key); err != nil {
		return NewParamError("AL_Read_req", index, sub, ErrBusy, err.Error())
	}
	d.pendingALKey = key
	d.pendingALOp = "read"
	return nil
}

// AL_Write_req starts an application-initiated ISDU write of value to
// (index, sub). The result is delivered asynchronously via
// Application.WriteConfirm. A write to a persistent parameter is refused
// with ErrLocked while Data Storage is locked.
func (d *Device) AL_Write_req(index uint16, sub uint8, value []byte) error {
	key := ParamKey{Index: index, Sub: sub}
	if d.params.Persistent(key) {
		if err := d.ds.CheckLocalWrite(); err != nil {
			return NewParamError("AL_Write_req", index, sub, ErrLocked, err.Error())
		}
	}
	if err := d.isduH.StartWrite(isdu.FromApplication, key, value); err != nil {
		return NewParamError("AL_Write_req", index, sub, ErrBusy, err.Error())
	}
	d.pendingALKey = key
	d.pendingALOp = "write"
	return nil
}

// AL_Abort_req cancels whatever ISDU transaction is currently in
// flight, regardless of origin.
func (d *Device) AL_Abort_req() {
	d.isduH.Abort()
}

// AL_Event_req signals an event appearing or disappearing at the given
// severity; EventConfirm fires once it has been transmitted.
func (d *Device) AL_Event_req(code uint16, kind EventKind, sev EventSeverity) {
	d.evH.Signal(event.Code(code), kind, sev)
}
