// Package device defines the capability surface the update orchestration
// engine requires from a concrete target: a uniform, page-granular copy and
// a boot primitive, plus the geometry queries strategies need to plan
// against. Board support (clock/SPI/watchdog init), the concrete flash
// driver, image verification, and partition definition are deliberately
// left out of this package - they are named only by the interfaces below
// as external collaborators.
package device

import (
	"errors"

	"github.com/iansmith/swapboot/slot"
)

// ErrUnsupportedCapability reports that a Device does not advertise a
// capability (primary slot, scratch) a caller requires. Nothing in this
// module returns it: the strategy constructors take those capabilities
// in their parameter types instead.
var ErrUnsupportedCapability = errors.New("device: required capability not supported")

// Device is the minimal capability set every strategy and the orchestrator
// can rely on.
type Device interface {
	// Copy erases To's page if needed and transfers From's page into it,
	// leaving From unchanged. It must be idempotent: replaying the same
	// operation after a crash must produce the same final contents of
	// operation.To.
	Copy(op slot.CopyOperation) error

	// Boot hands control to the given slot. On real hardware it does not
	// return; a hosted implementation such as Memory records the slot and
	// returns nil, and a non-nil error means the boot did not happen. It
	// must never be called during a half-finished step. Go has no bottom
	// type, so "no
	// operation after Boot" is a convention the orchestrator upholds
	// (Boot is always the final statement it executes) rather than a
	// type-level guarantee.
	Boot(s slot.Slot) error

	// PageCount reports the number of logical pages per image slot.
	// Identical across every full-image slot the device exposes.
	PageCount() uint16
}

// WithScratch is implemented by devices that expose a scratch region for
// swap strategies to use as a temporary buffer.
type WithScratch interface {
	Device

	// ScratchPageCount reports the number of pages available in scratch.
	// May be smaller than PageCount.
	ScratchPageCount() uint16

	// Scratch reports which slot plays the scratch role.
	Scratch() slot.Slot
}

// WithPrimarySlot is implemented by devices that can name which slot the
// CPU boots from.
type WithPrimarySlot interface {
	Device

	// Primary reports which slot plays the primary role.
	Primary() slot.Slot
}
