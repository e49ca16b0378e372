package device

import (
	"sync"

	"github.com/iansmith/swapboot/slot"
)

// WearTracker counts erase/program cycles per MemoryLocation. It is a
// first-class feature of Memory (not merely a test fixture) because wear
// assertions ("each page of primary and secondary has been erased
// exactly once") need something to assert against; a real flash-backed
// Device is free to embed one too.
type WearTracker struct {
	mu     sync.Mutex
	counts map[slot.MemoryLocation]int
}

// NewWearTracker returns an empty tracker.
func NewWearTracker() *WearTracker {
	return &WearTracker{counts: make(map[slot.MemoryLocation]int)}
}

// Increase records one more erase/program cycle at loc.
func (w *WearTracker) Increase(loc slot.MemoryLocation) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.counts[loc]++
}

// Count reports the number of cycles recorded at loc.
func (w *WearTracker) Count(loc slot.MemoryLocation) int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.counts[loc]
}

// CheckSlot reports whether every recorded location within s has at most
// wearLevel cycles.
func (w *WearTracker) CheckSlot(s slot.Slot, wearLevel int) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	for loc, count := range w.counts {
		if loc.Slot == s && count > wearLevel {
			return false
		}
	}
	return true
}

// ExactSlot reports whether every page in [0, pageCount) of s was recorded
// exactly wearLevel times - stricter than CheckSlot, which only bounds wear
// from above and would pass on pages that were never touched at all.
func (w *WearTracker) ExactSlot(s slot.Slot, pageCount uint16, wearLevel int) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	for p := uint16(0); p < pageCount; p++ {
		loc := slot.MemoryLocation{Slot: s, Page: slot.Page(p)}
		if w.counts[loc] != wearLevel {
			return false
		}
	}
	return true
}
