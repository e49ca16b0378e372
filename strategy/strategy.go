// Package strategy implements the slot activation strategies that, given
// an abstract update request and a device's geometry, deterministically
// emit the sequence of page-copy operations realizing an update one step
// at a time. Every strategy here is a pure, allocation-light function of
// its constructor inputs and a step index - the foundation the crash
// safety of package orchestrator is built on.
package strategy

import (
	"github.com/iansmith/swapboot/slot"
)

// Strategy is a slot activation plan. Implementations must be
// deterministic: calling Plan(s) twice for the same step must yield equal
// sequences, and every step must be individually re-executable.
type Strategy interface {
	// LastStep is the total number of work units. It also denotes the
	// boot step: planning a copy at or beyond it is undefined behavior.
	LastStep() slot.Step

	// Plan returns the copy operations for the given step. The caller
	// must never invoke Plan with step >= LastStep().
	Plan(step slot.Step) []slot.CopyOperation
}

// Reverter is implemented by strategies that can produce a planner for
// their own recovery plan. A strategy with no meaningful reverse (XIP with
// no backup, for instance) does not implement this interface or returns
// ok=false.
type Reverter interface {
	Revert() (Strategy, bool)
}

func ceilDiv(a, b uint16) uint16 {
	return (a + b - 1) / b
}
