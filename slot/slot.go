// Package slot defines the address space the update orchestration engine
// operates over: opaque image slots, the logical pages within them, and the
// single page-granular operation ("copy from here to there") every
// strategy plans in terms of.
package slot

import "fmt"

// Slot names a logical image region. Slot identifiers carry no ordering
// semantics of their own; a Device assigns meaning to them through role
// queries (primary, scratch) rather than through the numeric value.
type Slot uint8

// Page is a 16-bit index into a Slot. Page 0 is the lowest address within
// the slot. A logical page is the LCM-aligned unit across every underlying
// physical flash involved, so it must be a multiple of every physical
// erase size in play.
type Page uint16

// Step is a monotonically increasing progress counter within a strategy.
// Step 0 is always the first work unit; a strategy's LastStep denotes the
// boot step, and planning a copy at or beyond it is undefined.
type Step uint16

// MemoryLocation addresses a single logical page within a slot.
type MemoryLocation struct {
	Slot Slot
	Page Page
}

// String renders a MemoryLocation as "slot:page" for diagnostics.
func (m MemoryLocation) String() string {
	return fmt.Sprintf("%d:%d", m.Slot, m.Page)
}

// CopyOperation describes a single page-granular transfer: erase To's page
// if needed, then move the contents of From's page into To's page, leaving
// From unchanged. A planner never emits an operation whose From equals its
// To.
type CopyOperation struct {
	From MemoryLocation
	To   MemoryLocation
}

// String renders a CopyOperation as "from -> to" for diagnostics.
func (c CopyOperation) String() string {
	return fmt.Sprintf("%s -> %s", c.From, c.To)
}
