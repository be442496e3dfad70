package iolink

import (
	"errors"
	"fmt"
)

// Error represents a structured IO-Link device error with context.
type Error struct {
	Op    string  // operation that failed (e.g. "AL_Read_req", "Operate")
	Index uint16  // parameter index, if applicable (0 if not)
	Sub   uint8   // parameter sub-index, if applicable
	Code  ErrCode // high-level error category
	Msg   string  // human-readable message
	Inner error   // wrapped cause
}

// Error implements the error interface.
func (e *Error) Error() string {
	var parts []string
	if e.Op != "" {
		parts = append(parts, fmt.Sprintf("op=%s", e.Op))
	}
	if e.Index != 0 {
		parts = append(parts, fmt.Sprintf("index=%#04x.%d", e.Index, e.Sub))
	}

	msg := e.Msg
	if msg == "" {
		msg = string(e.Code)
	}
	if len(parts) > 0 {
		return fmt.Sprintf("iolink: %s (%s)", msg, parts[0])
	}
	return fmt.Sprintf("iolink: %s", msg)
}

// Unwrap returns the wrapped error for errors.Is/As support.
func (e *Error) Unwrap() error { return e.Inner }

// Is provides errors.Is support comparing by error code.
func (e *Error) Is(target error) bool {
	if target == nil {
		return false
	}
	if te, ok := target.(*Error); ok {
		return e.Code == te.Code
	}
	return false
}

// ErrCode enumerates the abstract error kinds IO-Link Interface
// Specification v1.1.4 defines for device-side operations.
type ErrCode string

const (
	ErrInvalidParameter ErrCode = "invalid parameter"
	ErrTimeout          ErrCode = "timeout"
	ErrChecksum         ErrCode = "checksum error"
	ErrInvalidFrame     ErrCode = "invalid frame"
	ErrBufferOverflow   ErrCode = "buffer overflow"
	ErrDeviceNotReady   ErrCode = "device not ready"
	ErrBusy             ErrCode = "busy"
	ErrLocked           ErrCode = "locked"
	ErrAccessDenied     ErrCode = "access denied"
	ErrHardware         ErrCode = "hardware error"
	ErrProtocol         ErrCode = "protocol error"
	ErrNullPointer      ErrCode = "null pointer"
	ErrAborted          ErrCode = "aborted"
)

// NewError creates a new structured error with no parameter context.
func NewError(op string, code ErrCode, msg string) *Error {
	return &Error{Op: op, Code: code, Msg: msg}
}

// NewParamError creates a new structured error scoped to a parameter
// index/sub-index.
func NewParamError(op string, index uint16, sub uint8, code ErrCode, msg string) *Error {
	return &Error{Op: op, Index: index, Sub: sub, Code: code, Msg: msg}
}

// WrapError wraps inner with iolink context. An inner *Error keeps its
// code; any other error is classified as a HardwareError (the
// PhysicalLayer port's failures have no more specific abstract kind
// available to this layer). A nil inner yields a nil *Error.
func WrapError(op string, inner error) *Error {
	if inner == nil {
		return nil
	}
	if ie, ok := inner.(*Error); ok {
		return &Error{Op: op, Index: ie.Index, Sub: ie.Sub, Code: ie.Code, Msg: ie.Msg, Inner: ie.Inner}
	}
	return &Error{Op: op, Code: ErrHardware, Msg: inner.Error(), Inner: inner}
}

// IsCode reports whether err (or something it wraps) is an *Error with
// the given code.
func IsCode(err error, code ErrCode) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == code
	}
	return false
}
