// Package constants holds default configuration and timing values shared
// across the IO-Link device stack.
package constants

import "time"

// Frame and buffer size limits
const (
	// MaxPDSize is the largest Process Data segment an M-sequence carries.
	MaxPDSize = 32

	// MaxODSize is the largest On-Request Data segment carried per cycle.
	MaxODSize = 8

	// MaxISDULength is the largest aggregated ISDU parameter value this
	// device will assemble in its fixed-capacity reassembly buffer.
	MaxISDULength = 232

	// MaxEventQueueDepth bounds the pending-event FIFO; no heap growth, the
	// ring buffer is sized once at construction.
	MaxEventQueueDepth = 16

	// MaxParameterSlots bounds the Parameter Manager's static directory.
	MaxParameterSlots = 64

	// MaxDataStorageBytes bounds the Data Storage persisted record payload.
	MaxDataStorageBytes = 1024
)

// Default timing parameters for the Data-Link Mode handler.
//
// These mirror IO-Link Interface Specification v1.1.4's device-side timing
// budget: T1 bounds how long the device waits for a valid MasterIdent at
// each probed baud rate before stepping down to the next, T2 bounds how long it waits for any
// subsequent master message before declaring the link dead, and the default
// minimum cycle time is the fastest cycle the device advertises to the
// master during DeviceIdent negotiation.
const (
	// DefaultT1StartupGuard is how long Startup waits for MasterIdent at
	// one baud rate before stepping down (COM3 -> COM2 -> COM1); expiry at
	// COM1 returns the device to Inactive.
	DefaultT1StartupGuard = 100 * time.Millisecond

	// DefaultT2MessageTimeout is how long any active DL-Mode state waits
	// for the next master message before declaring LinkDegraded.
	DefaultT2MessageTimeout = 10 * time.Millisecond

	// DefaultMinCycleTime is the minimum cycle time this device advertises,
	// expressed as a count of 0.1ms units (24 * 0.1ms = 2.4ms).
	DefaultMinCycleTime = 24

	// ChecksumFaultThreshold is the number of consecutive CKT/frame errors
	// that escalate DL-Mode to LinkDegraded (demotion to Startup).
	ChecksumFaultThreshold = 3
)
