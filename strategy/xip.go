package strategy

import (
	"github.com/iansmith/swapboot/device"
	"github.com/iansmith/swapboot/slot"
)

// XIPRequest names the slot to execute in place, with an optional backup
// to fall back to via Revert.
type XIPRequest struct {
	Target slot.Slot
	Backup *slot.Slot
}

// XIP (execute in place) selects a slot without copying any memory: it
// requires the device to be able to run code directly from the target
// slot's storage.
type XIP struct {
	request XIPRequest
}

// NewXIP builds an XIP strategy. It takes a device only to mirror the
// other constructors' shape; XIP needs no geometry.
func NewXIP(_ device.Device, request XIPRequest) *XIP {
	return &XIP{request: request}
}

// LastStep implements Strategy: there is no copying work, so the boot
// step is step 0.
func (x *XIP) LastStep() slot.Step {
	return 0
}

// Plan implements Strategy: XIP never emits a copy operation.
func (x *XIP) Plan(slot.Step) []slot.CopyOperation {
	return nil
}

// Revert implements Reverter: swap target and backup, if a backup was
// given.
func (x *XIP) Revert() (Strategy, bool) {
	if x.request.Backup == nil {
		return nil, false
	}
	target := x.request.Target
	return &XIP{request: XIPRequest{Target: *x.request.Backup, Backup: &target}}, true
}

var (
	_ Strategy = (*XIP)(nil)
	_ Reverter = (*XIP)(nil)
)
