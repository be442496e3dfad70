// Package command implements the Command Handler: one method per master
// command, each validating preconditions, applying the effect, and
// logging the outcome — the same one-method-per-control-command shape
// used for the control-plane dispatcher elsewhere in this codebase,
// generalized from device/queue lifecycle commands to IO-Link master
// commands.
package command

import (
	"fmt"

	"github.com/go-iolink/iolink/internal/dlmode"
	"github.com/go-iolink/iolink/internal/phy"
	"github.com/go-iolink/iolink/internal/storage"
)

// ID identifies a master command.
type ID int

const (
	Fallback ID = iota
	MasterIdent
	DeviceIdent
	DeviceStartup
	PreOperate
	Operate
	DataStorageUpload
	DataStorageDownload
	DataStorageLock
	DataStorageUnlock
	VendorReserved
)

func (id ID) String() string {
	switch id {
	case Fallback:
		return "Fallback"
	case MasterIdent:
		return "MasterIdent"
	case DeviceIdent:
		return "DeviceIdent"
	case DeviceStartup:
		return "DeviceStartup"
	case PreOperate:
		return "PreOperate"
	case Operate:
		return "Operate"
	case DataStorageUpload:
		return "DataStorageUpload"
	case DataStorageDownload:
		return "DataStorageDownload"
	case DataStorageLock:
		return "DataStorageLock"
	case DataStorageUnlock:
		return "DataStorageUnlock"
	case VendorReserved:
		return "VendorReserved"
	default:
		return fmt.Sprintf("ID(%d)", int(id))
	}
}

// Identification is the device identification data reported in response
// to MasterIdent/DeviceIdent.
type Identification struct {
	VendorID     uint16
	DeviceID     uint32
	FunctionID   uint16
	MinCycleTime uint8
}

// Handler dispatches master commands against the Data-Link Mode machine
// and Data Storage.
type Handler struct {
	dl      *dlmode.Machine
	ds      *storage.Store
	log     phy.Logger
	ident   Identification
	pending storage.State // not read; handleOperate gates on ds.State() directly
}

// New constructs a command Handler.
func New(dl *dlmode.Machine, ds *storage.Store, log phy.Logger, ident Identification) *Handler {
	return &Handler{dl: dl, ds: ds, log: log, ident: ident}
}

// Dispatch routes one decoded master command to its handler method.
func (h *Handler) Dispatch(id ID, payload []byte) error {
	switch id {
	case Fallback:
		return h.handleFallback()
	case MasterIdent:
		return h.handleMasterIdent(payload)
	case DeviceIdent:
		return h.handleDeviceIdent()
	case DeviceStartup:
		return h.handleDeviceStartup()
	case PreOperate:
		return h.handlePreOperate()
	case Operate:
		return h.handleOperate()
	case DataStorageUpload:
		return h.handleDataStorageUpload()
	case DataStorageDownload:
		return h.handleDataStorageDownload(payload)
	case DataStorageLock:
		return h.handleDataStorageLock()
	case DataStorageUnlock:
		return h.handleDataStorageUnlock()
	case VendorReserved:
		return nil // vendor-specific commands are accepted and ignored by default
	default:
		return fmt.Errorf("command: unknown command id %d", int(id))
	}
}

func (h *Handler) handleFallback() error {
	h.dl.Fault()
	if h.log != nil {
		h.log.Warnf("command: Fallback requested, dropping to Inactive")
	}
	return nil
}

func (h *Handler) handleMasterIdent(payload []byte) error {
	// A real MasterIdent carries the master's own identification; this
	// device only needs to confirm the link is alive at the current baud.
	_ = payload
	if err := h.dl.MasterIdentAccepted(); err != nil {
		return err
	}
	if h.log != nil {
		h.log.Infof("command: MasterIdent accepted at %s", h.dl.Baud())
	}
	return nil
}

// DeviceIdentResponse returns this device's identification for the
// master's DeviceIdent read.
func (h *Handler) DeviceIdentResponse() Identification {
	return h.ident
}

func (h *Handler) handleDeviceIdent() error {
	// DeviceIdent is a read of DeviceIdentResponse(); no state change.
	return nil
}

// handleDeviceStartup acknowledges the master's DeviceStartup command,
// which the master sends while still in Startup to begin parameterization
// before requesting PreOperate. It carries no Data-Link Mode transition of
// its own; Preoperate is entered only by an explicit PreOperate command,
// per spec.
func (h *Handler) handleDeviceStartup() error {
	if h.dl.State() != dlmode.Startup {
		return fmt.Errorf("command: DeviceStartup requires Startup state, have %s", h.dl.State())
	}
	if h.log != nil {
		h.log.Infof("command: DeviceStartup acknowledged")
	}
	return nil
}

// handlePreOperate transitions Startup -> Preoperate. A PreOperate command
// received while already in Preoperate is a no-op, per spec's idempotence
// requirement.
func (h *Handler) handlePreOperate() error {
	switch h.dl.State() {
	case dlmode.Preoperate:
		return nil
	case dlmode.Startup:
		if err := h.dl.EnterPreoperate(); err != nil {
			return err
		}
		if h.log != nil {
			h.log.Infof("command: PreOperate -> Preoperate")
		}
		return nil
	default:
		return fmt.Errorf("command: PreOperate requires Startup or Preoperate state, have %s", h.dl.State())
	}
}

func (h *Handler) handleOperate() error {
	if h.ds.State() == storage.Corrupt {
		return fmt.Errorf("command: refusing Operate, Data Storage is Corrupt")
	}
	if err := h.dl.EnterOperate(); err != nil {
		return err
	}
	if h.log != nil {
		h.log.Infof("command: Operate entered")
	}
	return nil
}

func (h *Handler) handleDataStorageUpload() error {
	return nil // caller pulls bytes via Store.Upload; no state change here
}

func (h *Handler) handleDataStorageDownload(payload []byte) error {
	return h.ds.Download(payload)
}

func (h *Handler) handleDataStorageLock() error {
	h.ds.Lock()
	return nil
}

func (h *Handler) handleDataStorageUnlock() error {
	h.ds.Unlock()
	return nil
}
