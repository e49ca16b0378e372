package strategy

import (
	"github.com/iansmith/swapboot/device"
	"github.com/iansmith/swapboot/slot"
)

// CopyRequest asks for source to be copied onto the primary slot, with an
// optional backup slot to fall back to (via Revert) if the new image
// fails its trial. Without a backup, a failed trial has nowhere to return
// to.
type CopyRequest struct {
	Source slot.Slot
	Backup *slot.Slot
}

// Copy is the one-way copy strategy: copy Source onto primary, forgetting
// whatever was there before. Useful when a board has plenty of spare
// storage for old images but only one memory it can execute from, and
// when no scratch page is available.
type Copy struct {
	request  CopyRequest
	numPages uint16
	primary  slot.Slot
}

// NewCopy builds a Copy strategy against dev's current primary slot and
// page count.
func NewCopy(dev device.WithPrimarySlot, request CopyRequest) *Copy {
	return &Copy{
		request:  request,
		numPages: dev.PageCount(),
		primary:  dev.Primary(),
	}
}

// LastStep implements Strategy. Copy only needs a single step: one to
// transfer every page. Re-entering at step 0 after a crash is always
// correct because Plan(0) is the same full-image copy regardless of how
// far it previously got.
func (c *Copy) LastStep() slot.Step {
	return 1
}

// Plan implements Strategy.
func (c *Copy) Plan(step slot.Step) []slot.CopyOperation {
	ops := make([]slot.CopyOperation, 0, c.numPages)
	for p := uint16(0); p < c.numPages; p++ {
		ops = append(ops, slot.CopyOperation{
			From: slot.MemoryLocation{Slot: c.request.Source, Page: slot.Page(p)},
			To:   slot.MemoryLocation{Slot: c.primary, Page: slot.Page(p)},
		})
	}
	return ops
}

// Revert implements Reverter. If a backup was supplied, it returns a Copy
// that restores it (with no further backup of its own - a revert of a
// revert is not defined). Otherwise the update is not reversible.
func (c *Copy) Revert() (Strategy, bool) {
	if c.request.Backup == nil {
		return nil, false
	}
	return &Copy{
		request:  CopyRequest{Source: *c.request.Backup},
		numPages: c.numPages,
		primary:  c.primary,
	}, true
}

var (
	_ Strategy = (*Copy)(nil)
	_ Reverter = (*Copy)(nil)
)
