// Package isdu implements the ISDU Handler: the segmented,
// flow-controlled transfer state machine that moves a parameter value of
// up to constants.MaxISDULength bytes across the single-byte-per-cycle OD
// channel.
//
// The state-enum-plus-transition-function shape, and the rule that at
// most one transaction may be in flight at a time, is grounded on this
// codebase's per-resource ownership state machine idiom (one owning state
// enum, switch-dispatched transitions, mutation only by the current
// owner) together with the segmented-transfer shape (toggled
// request/response, expedited-vs-segmented framing) documented in the
// pack's CANopen SDO reference.
package isdu

import (
	"fmt"

	"github.com/go-iolink/iolink/internal/constants"
	"github.com/go-iolink/iolink/internal/param"
)

// State is the ISDU transaction state.
type State int

const (
	Idle State = iota
	RequestSent
	AwaitingResponseSegment
	AggregatingResponse
	Done
	Aborting
)

func (s State) String() string {
	switch s {
	case Idle:
		return "Idle"
	case RequestSent:
		return "RequestSent"
	case AwaitingResponseSegment:
		return "AwaitingResponseSegment"
	case AggregatingResponse:
		return "AggregatingResponse"
	case Done:
		return "Done"
	case Aborting:
		return "Aborting"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Direction is whether the in-flight transaction is a read or a write.
type Direction int

const (
	DirRead Direction = iota
	DirWrite
)

// Result is the outcome reported once a transaction completes.
type Result int

const (
	ResultNone Result = iota
	ResultDone
	ResultAborted
	ResultFailed
)

// Origin distinguishes which side started the in-flight transaction, used
// to decide preemption: a master-originated transaction always preempts
// an application-originated one in flight.
type Origin int

const (
	FromApplication Origin = iota
	FromMaster
)

func (o Origin) String() string {
	switch o {
	case FromApplication:
		return "application"
	case FromMaster:
		return "master"
	default:
		return fmt.Sprintf("Origin(%d)", int(o))
	}
}

// Handler runs at most one ISDU transaction at a time.
type Handler struct {
	mgr *param.Manager

	state     State
	origin    Origin
	dir       Direction
	key       param.Key
	buf       [constants.MaxISDULength]byte
	total     int // total bytes expected/produced
	sent      int // bytes already consumed from buf (write) or produced into buf (read)
	odSize    int
	result    Result
	resultErr error
}

// New constructs an idle Handler bound to mgr.
func New(mgr *param.Manager, odSize int) *Handler {
	if odSize <= 0 {
		odSize = 1
	}
	return &Handler{mgr: mgr, odSize: odSize}
}

// State reports the current transaction state.
func (h *Handler) State() State { return h.state }

// Busy reports whether a transaction currently owns the OD channel.
func (h *Handler) Busy() bool { return h.state != Idle && h.state != Done }

// StartRead begins a read of key. A master-originated start preempts an
// in-flight application-originated transaction (aborting it); an
// application-originated start is refused outright if anything else is in
// flight.
func (h *Handler) StartRead(origin Origin, key param.Key) error {
	if err := h.admit(origin); err != nil {
		return err
	}
	n, err := h.mgr.Read(toParamOrigin(origin), key, h.buf[:])
	if err != nil {
		h.state = Idle
		return err
	}
	h.origin = origin
	h.dir = DirRead
	h.key = key
	h.total = n
	h.sent = 0
	h.state = RequestSent
	return nil
}

// StartWrite begins a write of value to key.
func (h *Handler) StartWrite(origin Origin, key param.Key, value []byte) error {
	if err := h.admit(origin); err != nil {
		return err
	}
	if len(value) > len(h.buf) {
		h.state = Idle
		return fmt.Errorf("isdu: value too long (%d bytes)", len(value))
	}
	h.origin = origin
	h.dir = DirWrite
	h.key = key
	h.total = copy(h.buf[:], value)
	h.sent = 0
	h.state = RequestSent
	return nil
}

func (h *Handler) admit(origin Origin) error {
	if h.Busy() {
		if origin == FromMaster && h.origin == FromApplication {
			h.state = Aborting
			h.result = ResultAborted
			// Fall through: the new master transaction takes ownership
			// immediately: single in-flight slot, no queue.
		} else {
			return fmt.Errorf("isdu: busy with an in-flight %s transaction", h.origin)
		}
	}
	h.state = RequestSent
	h.result = ResultNone
	h.resultErr = nil
	return nil
}

// Step advances the in-flight transaction by one OD cycle, producing up
// to odSize bytes of outbound segment (for a read) or consuming up to
// odSize bytes of inbound segment (for a write), and reports whether the
// transaction has completed.
func (h *Handler) Step(inbound []byte, outbound []byte) (produced int, done bool) {
	switch h.state {
	case RequestSent, AwaitingResponseSegment:
		if h.dir == DirRead {
			n := copy(outbound, h.buf[h.sent:h.total])
			h.sent += n
			if h.sent >= h.total {
				h.state = AggregatingResponse
			} else {
				h.state = AwaitingResponseSegment
			}
			return n, false
		}
		// Write: an application-originated value is already fully staged
		// in buf at StartWrite time, so each inbound segment only advances
		// the count; a master-originated write copies the inbound segment
		// into buf. Either way, once all bytes are accounted for, commit.
		var n int
		if h.origin == FromMaster {
			n = copy(h.buf[h.sent:h.total], inbound)
		} else {
			n = min(len(inbound), h.total-h.sent)
		}
		h.sent += n
		if h.sent >= h.total {
			if err := h.mgr.Write(toParamOrigin(h.origin), h.key, h.buf[:h.total]); err != nil {
				h.result = ResultFailed
				h.resultErr = err
			} else {
				h.result = ResultDone
			}
			h.state = Done
			return 0, true
		}
		h.state = AwaitingResponseSegment
		return 0, false
	case AggregatingResponse:
		h.result = ResultDone
		h.state = Done
		return 0, true
	case Aborting:
		h.result = ResultAborted
		h.state = Done
		return 0, true
	default:
		return 0, true
	}
}

// Abort cancels the in-flight transaction immediately, regardless of
// origin (an AL_Abort_req always wins over whatever is running).
func (h *Handler) Abort() {
	if !h.Busy() {
		return
	}
	h.state = Aborting
}

// Collect returns the assembled read result (if the completed transaction
// was a read) and clears Handler back to Idle so a new transaction may
// start.
func (h *Handler) Collect() (data []byte, result Result, err error) {
	if h.state != Done {
		return nil, ResultNone, fmt.Errorf("isdu: no completed transaction to collect")
	}
	var out []byte
	if h.dir == DirRead && h.result == ResultDone {
		out = make([]byte, h.total)
		copy(out, h.buf[:h.total])
	}
	result, err = h.result, h.resultErr
	h.state = Idle
	h.result = ResultNone
	h.resultErr = nil
	return out, result, err
}

func toParamOrigin(o Origin) param.Origin {
	if o == FromMaster {
		return param.FromMaster
	}
	return param.FromApplication
}
