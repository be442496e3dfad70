package iolink

import "github.com/go-iolink/iolink/internal/constants"

// Re-exported constants for public API consumers.
const (
	MaxPDSize           = constants.MaxPDSize
	MaxODSize           = constants.MaxODSize
	MaxISDULength       = constants.MaxISDULength
	MaxEventQueueDepth  = constants.MaxEventQueueDepth
	MaxParameterSlots   = constants.MaxParameterSlots
	MaxDataStorageBytes = constants.MaxDataStorageBytes

	DefaultMinCycleTime   = constants.DefaultMinCycleTime
	ChecksumFaultThreshold = constants.ChecksumFaultThreshold
)
