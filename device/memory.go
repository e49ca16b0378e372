package device

import (
	"fmt"

	"github.com/iansmith/swapboot/slot"
)

// Layout describes which slots a Memory reference device exposes and which
// roles they play. Both the tri-slot (no scratch) and single-scratch
// layouts from the original bootlick mock devices are expressible by
// leaving HasScratch false or true respectively.
type Layout struct {
	PrimarySlot   slot.Slot
	PageCount     uint16
	PageSize      int
	HasScratch    bool
	ScratchSlot   slot.Slot
	ScratchPages  uint16
	InitialImages map[slot.Slot][]byte
}

// Memory is an in-memory reference Device, suitable for unit tests, the
// CLI demo (cmd/swapbootsim), and as a template for a real flash-backed
// Device. It tracks wear per page and records the slot passed to Boot
// instead of actually jumping to it, so tests can assert on both.
type Memory struct {
	layout Layout
	pages  map[slot.Slot][]byte
	Wear   *WearTracker

	// Booted is set by Boot and never cleared; a hosted test harness
	// reads it instead of the process actually jumping to a reset
	// vector, which a freestanding Device.Boot would do.
	Booted *slot.Slot
}

// NewMemory constructs a Memory device from layout, copying the initial
// per-slot image bytes supplied in layout.InitialImages. Slots not present
// in InitialImages start zeroed.
func NewMemory(layout Layout) *Memory {
	if layout.PageSize <= 0 {
		layout.PageSize = 1
	}
	m := &Memory{
		layout: layout,
		pages:  make(map[slot.Slot][]byte),
		Wear:   NewWearTracker(),
	}
	return m
}

func (m *Memory) slotBytes(s slot.Slot, pageCount uint16) []byte {
	b, ok := m.pages[s]
	if !ok {
		if init, ok := m.layout.InitialImages[s]; ok {
			b = append([]byte(nil), init...)
			need := int(pageCount) * m.layout.PageSize
			if len(b) < need {
				b = append(b, make([]byte, need-len(b))...)
			}
		} else {
			b = make([]byte, int(pageCount)*m.layout.PageSize)
		}
		m.pages[s] = b
	}
	return b
}

func (m *Memory) pageCountFor(s slot.Slot) uint16 {
	if m.layout.HasScratch && s == m.layout.ScratchSlot {
		return m.layout.ScratchPages
	}
	return m.layout.PageCount
}

func (m *Memory) pageRange(loc slot.MemoryLocation) ([]byte, error) {
	count := m.pageCountFor(loc.Slot)
	if uint16(loc.Page) >= count {
		return nil, fmt.Errorf("device: page %d out of range for slot %d (have %d pages)", loc.Page, loc.Slot, count)
	}
	b := m.slotBytes(loc.Slot, count)
	start := int(loc.Page) * m.layout.PageSize
	return b[start : start+m.layout.PageSize], nil
}

// Copy implements Device. It is idempotent: copying the same operation
// twice leaves op.To identical to copying it once, because the write is a
// plain byte-slice overwrite with no in-place transformation.
func (m *Memory) Copy(op slot.CopyOperation) error {
	if op.From == op.To {
		return fmt.Errorf("device: copy operation source and destination are identical: %s", op)
	}
	from, err := m.pageRange(op.From)
	if err != nil {
		return err
	}
	to, err := m.pageRange(op.To)
	if err != nil {
		return err
	}
	copy(to, from)
	m.Wear.Increase(op.To)
	return nil
}

// Boot implements Device by recording the requested slot rather than
// jumping to it.
func (m *Memory) Boot(s slot.Slot) error {
	m.Booted = &s
	return nil
}

// PageCount implements Device.
func (m *Memory) PageCount() uint16 {
	return m.layout.PageCount
}

// ScratchPageCount implements WithScratch.
func (m *Memory) ScratchPageCount() uint16 {
	return m.layout.ScratchPages
}

// Scratch implements WithScratch.
func (m *Memory) Scratch() slot.Slot {
	return m.layout.ScratchSlot
}

// Primary implements WithPrimarySlot.
func (m *Memory) Primary() slot.Slot {
	return m.layout.PrimarySlot
}

// Contents returns a copy of the current bytes stored for s, for test
// assertions. It does not count as wear.
func (m *Memory) Contents(s slot.Slot) []byte {
	count := m.pageCountFor(s)
	return append([]byte(nil), m.slotBytes(s, count)...)
}

var (
	_ Device          = (*Memory)(nil)
	_ WithScratch     = (*Memory)(nil)
	_ WithPrimarySlot = (*Memory)(nil)
)
