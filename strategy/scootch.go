package strategy

import (
	"errors"

	"github.com/iansmith/swapboot/device"
	"github.com/iansmith/swapboot/slot"
)

// ErrScratchTooWide is returned by NewScootch when the device's scratch
// region is more than one page. A scratch region wider than one page is
// rejected outright rather than silently truncated down to what Scootch
// can use; supporting it is left as a future extension.
var ErrScratchTooWide = errors.New("strategy: scootch requires a single-page scratch region")

// ScootchRequest names the secondary slot to swap with primary using the
// "swap move" strategy.
type ScootchRequest struct {
	Secondary slot.Slot
}

// Scootch swaps primary and secondary using only one scratch page -
// less wear-resistant-memory-friendly than SABS, but requiring far less
// scratch. Primary endures two erases on every page except its last,
// which the scootch phase never writes and so endures one; secondary and
// scratch each endure one, independent of page count.
type Scootch struct {
	secondary slot.Slot
	numPages  uint16
	primary   slot.Slot
	scratch   slot.Slot
}

// NewScootch builds a Scootch strategy against dev's geometry. dev must
// advertise both a primary slot and a single-page scratch region.
func NewScootch(dev interface {
	device.WithPrimarySlot
	device.WithScratch
}, request ScootchRequest) (*Scootch, error) {
	if dev.ScratchPageCount() != 1 {
		return nil, ErrScratchTooWide
	}
	return &Scootch{
		secondary: request.Secondary,
		numPages:  dev.PageCount(),
		primary:   dev.Primary(),
		scratch:   dev.Scratch(),
	}, nil
}

// LastStep implements Strategy: one scootch move per page, plus two
// copies (to primary, to secondary) per page.
func (s *Scootch) LastStep() slot.Step {
	return slot.Step(3 * s.numPages)
}

func (s *Scootch) scratchLocation() slot.MemoryLocation {
	return slot.MemoryLocation{Slot: s.scratch, Page: 0}
}

// Plan implements Strategy. Plan emits exactly one operation per step.
func (s *Scootch) Plan(step slot.Step) []slot.CopyOperation {
	raw := uint16(step)

	if raw < s.numPages {
		p := raw
		from := slot.MemoryLocation{Slot: s.primary, Page: slot.Page(p)}
		var to slot.MemoryLocation
		if p == 0 {
			to = s.scratchLocation()
		} else {
			to = slot.MemoryLocation{Slot: s.primary, Page: slot.Page(p - 1)}
		}
		return []slot.CopyOperation{{From: from, To: to}}
	}

	r := raw - s.numPages
	p := s.numPages - (r / 2) - 1
	if r%2 == 0 {
		// ToPrimary: secondary[p] -> primary[p].
		return []slot.CopyOperation{{
			From: slot.MemoryLocation{Slot: s.secondary, Page: slot.Page(p)},
			To:   slot.MemoryLocation{Slot: s.primary, Page: slot.Page(p)},
		}}
	}

	// ToSecondary: primary[p-1] -> secondary[p], or scratch[0] -> secondary[0].
	var from slot.MemoryLocation
	if p == 0 {
		from = s.scratchLocation()
	} else {
		from = slot.MemoryLocation{Slot: s.primary, Page: slot.Page(p - 1)}
	}
	return []slot.CopyOperation{{
		From: from,
		To:   slot.MemoryLocation{Slot: s.secondary, Page: slot.Page(p)},
	}}
}

// Revert implements Reverter. Scootch is its own inverse: running it
// again un-does the swap.
func (s *Scootch) Revert() (Strategy, bool) {
	return s, true
}

var (
	_ Strategy = (*Scootch)(nil)
	_ Reverter = (*Scootch)(nil)
)
