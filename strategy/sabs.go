package strategy

import (
	"github.com/iansmith/swapboot/device"
	"github.com/iansmith/swapboot/slot"
)

// SABSRequest names the secondary slot to swap with primary using the
// "S <- A <- B <- S" scratch-buffer swap.
type SABSRequest struct {
	Secondary slot.Slot
}

// SABS swaps primary (A) with secondary (B) through scratch (S), leaving
// both images intact. Primary and secondary each endure one erase per
// page; scratch endures one erase per block, where a block is
// scratchPages wide.
//
// LastStep uses ceil(numPages/scratchPages), not floor - floor division
// silently drops a tail of uncopied pages whenever numPages is not a
// multiple of scratchPages.
type SABS struct {
	secondary    slot.Slot
	numPages     uint16
	scratchPages uint16
	primary      slot.Slot
	scratch      slot.Slot
}

// NewSABS builds a SABS strategy against dev's geometry. dev must
// advertise both a primary slot and a scratch region.
func NewSABS(dev interface {
	device.WithPrimarySlot
	device.WithScratch
}, request SABSRequest) *SABS {
	return &SABS{
		secondary:    request.Secondary,
		numPages:     dev.PageCount(),
		scratchPages: dev.ScratchPageCount(),
		primary:      dev.Primary(),
		scratch:      dev.Scratch(),
	}
}

func (s *SABS) blocks() uint16 {
	return ceilDiv(s.numPages, s.scratchPages)
}

// LastStep implements Strategy.
func (s *SABS) LastStep() slot.Step {
	return slot.Step(3 * s.blocks())
}

// pagesInBlock returns how many pages the given block transfers - every
// block is scratchPages wide except possibly the last, which carries
// whatever pages are left over.
func (s *SABS) pagesInBlock(block uint16) uint16 {
	start := block * s.scratchPages
	remaining := s.numPages - start
	if remaining > s.scratchPages {
		return s.scratchPages
	}
	return remaining
}

// Plan implements Strategy. Step encoding is 3*block + phase, phase in
// {0: A->S, 1: B->A, 2: S->B}.
func (s *SABS) Plan(step slot.Step) []slot.CopyOperation {
	block := uint16(step) / 3
	phase := uint16(step) % 3
	start := block * s.scratchPages
	count := s.pagesInBlock(block)

	var from, to slot.MemoryLocation
	switch phase {
	case 0: // A -> S
		from = slot.MemoryLocation{Slot: s.primary, Page: slot.Page(start)}
		to = slot.MemoryLocation{Slot: s.scratch, Page: 0}
	case 1: // B -> A
		from = slot.MemoryLocation{Slot: s.secondary, Page: slot.Page(start)}
		to = slot.MemoryLocation{Slot: s.primary, Page: slot.Page(start)}
	case 2: // S -> B
		from = slot.MemoryLocation{Slot: s.scratch, Page: 0}
		to = slot.MemoryLocation{Slot: s.secondary, Page: slot.Page(start)}
	}

	ops := make([]slot.CopyOperation, 0, count)
	for p := uint16(0); p < count; p++ {
		ops = append(ops, slot.CopyOperation{
			From: slot.MemoryLocation{Slot: from.Slot, Page: slot.Page(uint16(from.Page) + p)},
			To:   slot.MemoryLocation{Slot: to.Slot, Page: slot.Page(uint16(to.Page) + p)},
		})
	}
	return ops
}

// Revert implements Reverter. SABS is its own inverse: swapping A and B
// through scratch again restores the original arrangement.
func (s *SABS) Revert() (Strategy, bool) {
	return s, true
}

var (
	_ Strategy = (*SABS)(nil)
	_ Reverter = (*SABS)(nil)
)
