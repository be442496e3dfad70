package iolink

import (
	"errors"
	"testing"
)

func TestStructuredErrorMessage(t *testing.T) {
	err := NewParamError("AL_Read_req", 0x0010, 0, ErrTimeout, "no response")
	if err.Error() == "" {
		t.Fatalf("expected a non-empty error string")
	}
}

func TestErrorsIsByCode(t *testing.T) {
	a := NewError("AL_Write_req", ErrLocked, "locked")
	b := NewError("AL_Write_req", ErrLocked, "locked, different message")
	if !errors.Is(a, b) {
		t.Errorf("expected two errors with the same code to match via errors.Is")
	}
}

func TestWrapErrorPreservesCode(t *testing.T) {
	inner := NewError("phy.Transfer", ErrHardware, "line fault")
	wrapped := WrapError("Poll", inner)
	if wrapped.Code != ErrHardware {
		t.Errorf("expected wrapped error to keep the inner code, got %v", wrapped.Code)
	}
	if !IsCode(wrapped, ErrHardware) {
		t.Errorf("expected IsCode to find ErrHardware")
	}
}

func TestWrapErrorClassifiesPlainError(t *testing.T) {
	wrapped := WrapError("Poll", errors.New("boom"))
	if wrapped.Code != ErrHardware {
		t.Errorf("expected a plain error to be classified as ErrHardware, got %v", wrapped.Code)
	}
}

func TestWrapErrorNilIsNil(t *testing.T) {
	if WrapError("Poll", nil) != nil {
		t.Errorf("expected WrapError(nil) to return nil")
	}
}
