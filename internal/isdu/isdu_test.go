package isdu

import (
	"bytes"
	"testing"

	"github.com/go-iolink/iolink/internal/param"
)

func newTestHandler(t *testing.T) (*Handler, *param.Manager, param.Key) {
	t.Helper()
	mgr := param.New()
	key := param.Key{Index: 0x0010, Sub: 0}
	if err := mgr.Register(key, param.ReadWrite, false, 16, []byte("ACME")); err != nil {
		t.Fatalf("Register: %v", err)
	}
	return New(mgr, 2), mgr, key
}

func TestReadTransactionAcrossMultipleSegments(t *testing.T) {
	h, _, key := newTestHandler(t)

	if err := h.StartRead(FromApplication, key); err != nil {
		t.Fatalf("StartRead: %v", err)
	}

	var out []byte
	seg := make([]byte, 2)
	for {
		n, done := h.Step(nil, seg)
		out = append(out, seg[:n]...)
		if done {
			break
		}
	}
	data, result, err := h.Collect()
	if err != nil {
		t.Fatalf("Collect: %v", err)
	}
	if result != ResultDone {
		t.Fatalf("expected ResultDone, got %v", result)
	}
	if !bytes.Equal(data, []byte("ACME")) {
		t.Fatalf("expected ACME, got %q", data)
	}
	if h.State() != Idle {
		t.Fatalf("expected Idle after Collect, got %s", h.State())
	}
}

func TestWriteTransactionAcrossMultipleSegments(t *testing.T) {
	h, mgr, key := newTestHandler(t)

	if err := h.StartWrite(FromApplication, key, []byte("XYZ1")); err != nil {
		t.Fatalf("StartWrite: %v", err)
	}

	segments := [][]byte{{'X', 'Y'}, {'Z', '1'}}
	var done bool
	for _, seg := range segments {
		_, done = h.Step(seg, nil)
	}
	if !done {
		t.Fatalf("expected transaction to complete after all segments consumed")
	}
	_, result, err := h.Collect()
	if err != nil || result != ResultDone {
		t.Fatalf("expected successful write, got result=%v err=%v", result, err)
	}

	var dst [16]byte
	n, _ := mgr.Read(param.FromApplication, key, dst[:])
	if string(dst[:n]) != "XYZ1" {
		t.Fatalf("expected parameter updated to XYZ1, got %q", dst[:n])
	}
}

func TestSecondApplicationTransactionRejectedWhileBusy(t *testing.T) {
	h, _, key := newTestHandler(t)
	_ = h.StartRead(FromApplication, key)

	if err := h.StartRead(FromApplication, key); err == nil {
		t.Fatalf("expected a second application-originated transaction to be rejected while busy")
	}
}

func TestMasterPreemptsApplicationTransaction(t *testing.T) {
	h, _, key := newTestHandler(t)
	_ = h.StartRead(FromApplication, key)

	if err := h.StartRead(FromMaster, key); err != nil {
		t.Fatalf("expected master-originated start to preempt, got %v", err)
	}
	if h.origin != FromMaster {
		t.Fatalf("expected the in-flight transaction to now be master-owned")
	}
}

func TestAbortCompletesWithAbortedResult(t *testing.T) {
	h, _, key := newTestHandler(t)
	_ = h.StartRead(FromApplication, key)

	seg := make([]byte, 2)
	h.Step(nil, seg) // consume first segment, transaction still running

	h.Abort()
	_, done := h.Step(nil, seg)
	if !done {
		t.Fatalf("expected Step to report done immediately after Abort")
	}
	_, result, _ := h.Collect()
	if result != ResultAborted {
		t.Fatalf("expected ResultAborted, got %v", result)
	}
	if h.Busy() {
		t.Fatalf("expected OD channel free for a new transaction after Collect")
	}
}
