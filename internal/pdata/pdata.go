// Package pdata implements the Process Data Handler: the fixed-capacity
// input/output buffers exchanged every cycle once Operate is reached.
//
// Grounded on the mutex-protected fixed-region buffer idiom used for the
// in-memory backing store elsewhere in this codebase, simplified to a
// single mutex per direction since a PD buffer is at most 32 bytes and has
// exactly one writer.
package pdata

import "sync"

// MaxSize is the largest Process Data segment this device exchanges.
const MaxSize = 32

// Buffer holds one direction's Process Data: a fixed-capacity byte array
// plus a validity flag, swapped atomically under a mutex so a reader never
// observes a half-written cycle.
type Buffer struct {
	mu    sync.Mutex
	data  [MaxSize]byte
	n     int
	valid bool
}

// Set stores a new Process Data value and marks it valid. p must not
// exceed MaxSize bytes.
func (b *Buffer) Set(p []byte) bool {
	if len(p) > MaxSize {
		return false
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.n = copy(b.data[:], p)
	b.valid = true
	return true
}

// Invalidate marks the buffer's contents as not current, without clearing
// the bytes (the last value stays available for diagnostics, per the
// Data-Link Mode invariant that invalid PD still reports its last value).
func (b *Buffer) Invalidate() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.valid = false
}

// Get copies the current value into dst (which must have capacity for at
// least the buffer's current length) and reports validity.
func (b *Buffer) Get(dst []byte) (n int, valid bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	n = copy(dst, b.data[:b.n])
	return n, b.valid
}

// Len reports the current payload length, regardless of validity.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.n
}

// Handler owns both directions of Process Data for one device. Naming
// follows IO-Link convention: direction is always relative to the device,
// so Out is data flowing out to the master and In is data arriving from
// the master.
type Handler struct {
	In  Buffer
	Out Buffer
}

// New constructs a Handler with both directions invalid, as required
// before the first full cycle in Operate.
func New() *Handler {
	return &Handler{}
}

// SetOutput stores process data bound for the master (e.g. a sensor
// reading supplied by the application via AL_SetOutput_req).
func (h *Handler) SetOutput(p []byte) bool {
	return h.Out.Set(p)
}

// Output copies the current outbound Process Data into dst.
func (h *Handler) Output(dst []byte) (int, bool) {
	return h.Out.Get(dst)
}

// SetInput stores process data the master sent to the device (e.g. an
// actuator command), later delivered to the application via
// AL_NewOutput_ind.
func (h *Handler) SetInput(p []byte) bool {
	return h.In.Set(p)
}

// Input copies the current inbound Process Data into dst.
func (h *Handler) Input(dst []byte) (int, bool) {
	return h.In.Get(dst)
}

// InvalidateAll marks both directions invalid, called whenever Data-Link
// Mode drops out of Operate.
func (h *Handler) InvalidateAll() {
	h.In.Invalidate()
	h.Out.Invalidate()
}
