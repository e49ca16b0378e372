package strategy

import (
	"fmt"

	"github.com/iansmith/swapboot/slot"
)

// Bounds describes the declared page-count bounds for each slot a
// strategy is allowed to touch, keyed by slot. It lets strategy unit
// tests directly check the core planner invariants: a destination never
// equals its source within an operation, and every destination falls
// inside its slot's declared bounds.
type Bounds map[slot.Slot]uint16

// Validate runs s's full plan (every step from 0 to LastStep) against
// bounds, returning the first violation found, or nil if none.
func Validate(s Strategy, bounds Bounds) error {
	for step := slot.Step(0); step < s.LastStep(); step++ {
		for _, op := range s.Plan(step) {
			if op.From == op.To {
				return fmt.Errorf("strategy: step %d: operation %s has equal source and destination", step, op)
			}
			if err := checkBounds(op.To, bounds); err != nil {
				return fmt.Errorf("strategy: step %d: %w", step, err)
			}
		}
	}
	return nil
}

func checkBounds(loc slot.MemoryLocation, bounds Bounds) error {
	count, ok := bounds[loc.Slot]
	if !ok {
		return fmt.Errorf("destination %s targets a slot outside the declared bounds", loc)
	}
	if uint16(loc.Page) >= count {
		return fmt.Errorf("destination %s exceeds declared page count %d", loc, count)
	}
	return nil
}
