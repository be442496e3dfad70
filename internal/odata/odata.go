// Package odata implements On-Request Data arbitration: deciding, once
// per cycle, which of the device's OD-channel producers — a master
// command awaiting a reply, an in-flight ISDU transaction, or a queued
// event — owns the OD byte(s) for that cycle.
//
// Grounded on this codebase's per-tag single-owner discipline (exactly one
// state machine may act on a shared resource at a time), generalized here
// from "one owner per I/O tag" to "one owner of the OD channel per cycle",
// driven by a deterministic priority table rather than first-come
// first-served.
package odata

import (
	"github.com/go-iolink/iolink/internal/dlmode"
	"github.com/go-iolink/iolink/internal/event"
	"github.com/go-iolink/iolink/internal/isdu"
)

// Owner identifies which producer currently holds the OD channel.
type Owner int

const (
	OwnerNone Owner = iota
	OwnerCommand
	OwnerISDU
	OwnerEvent
)

func (o Owner) String() string {
	switch o {
	case OwnerNone:
		return "None"
	case OwnerCommand:
		return "Command"
	case OwnerISDU:
		return "ISDU"
	case OwnerEvent:
		return "Event"
	default:
		return "Owner(?)"
	}
}

// Arbiter decides OD-channel ownership for one cycle at a time. Priority,
// highest first: a pending master command reply, an in-flight ISDU
// transaction, a queued event, then idle.
type Arbiter struct {
	isdu           *isdu.Handler
	events         *event.Handler
	commandPending bool
}

// New constructs an Arbiter over the given ISDU and Event handlers.
func New(isduHandler *isdu.Handler, events *event.Handler) *Arbiter {
	return &Arbiter{isdu: isduHandler, events: events}
}

// SetCommandPending marks whether a master command reply is waiting to be
// sent; the Device sets this when it dispatches a command and clears it
// once the reply has occupied the channel for one cycle.
func (a *Arbiter) SetCommandPending(pending bool) {
	a.commandPending = pending
}

// Current reports which producer would be granted the channel this cycle,
// given the Data-Link Mode's current state, without mutating anything.
// Master command replies and ISDU traffic are link-state independent (a
// command reply must reach the master regardless of mode, and ISDU only
// runs once the master is already talking to the device); queued events
// transmit only in Operate or Preoperate, per spec.
func (a *Arbiter) Current(dl dlmode.State) Owner {
	switch {
	case a.commandPending:
		return OwnerCommand
	case a.isdu.Busy():
		return OwnerISDU
	case (dl == dlmode.Operate || dl == dlmode.Preoperate) && a.events.Pending():
		return OwnerEvent
	default:
		return OwnerNone
	}
}
