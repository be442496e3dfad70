package iolink

// ControlEvent is delivered to the application via AL_Control_ind whenever
// Data-Link Mode changes in a way the application must react to.
type ControlEvent int

const (
	ControlPreoperate ControlEvent = iota
	ControlOperate
	ControlFallback
	ControlFault
)

func (c ControlEvent) String() string {
	switch c {
	case ControlPreoperate:
		return "Preoperate"
	case ControlOperate:
		return "Operate"
	case ControlFallback:
		return "Fallback"
	case ControlFault:
		return "Fault"
	default:
		return "ControlEvent(?)"
	}
}

// Application is the upcall port a sensor or actuator implementation
// plugs into a Device. All methods are called synchronously from within
// Poll and must not block.
type Application interface {
	// PDCycle delivers the device's own outbound Process Data status once
	// per cycle while in Operate (AL_PdCycle_ind).
	PDCycle(valid bool)

	// NewOutput delivers Process Data the master sent to the device
	// (AL_NewOutput_ind).
	NewOutput(data []byte)

	// Control delivers a Data-Link Mode transition (AL_Control_ind).
	Control(event ControlEvent)

	// ReadConfirm delivers the outcome of an application-initiated
	// AL_Read_req (AL_Read_cnf).
	ReadConfirm(index uint16, sub uint8, data []byte, result Result, err error)

	// WriteConfirm delivers the outcome of an application-initiated
	// AL_Write_req (AL_Write_cnf).
	WriteConfirm(index uint16, sub uint8, result Result, err error)

	// EventConfirm delivers the outcome of an application-initiated
	// AL_Event_req once the event has been transmitted (AL_Event_cnf).
	EventConfirm(code uint16)
}

// Result is the outcome of a completed application-initiated ISDU
// transaction.
type Result int

const (
	ResultDone Result = iota
	ResultAborted
	ResultFailed
)

// NoOpApplication implements Application with every method a no-op; embed
// it to implement only the callbacks a particular device cares about.
type NoOpApplication struct{}

func (NoOpApplication) PDCycle(bool)                                         {}
func (NoOpApplication) NewOutput([]byte)                                     {}
func (NoOpApplication) Control(ControlEvent)                                 {}
func (NoOpApplication) ReadConfirm(uint16, uint8, []byte, Result, error)     {}
func (NoOpApplication) WriteConfirm(uint16, uint8, Result, error)            {}
func (NoOpApplication) EventConfirm(uint16)                                  {}

var _ Application = NoOpApplication{}
