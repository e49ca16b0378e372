// Package state defines the bootloader lifecycle record: the tagged union
// of states an update can be in, and the codec that round-trips it to a
// bounded byte buffer for storage on NOR flash.
package state

import (
	"fmt"

	"github.com/iansmith/swapboot/slot"
)

// Tag identifies which variant of State is populated. The zero value,
// TagInitial, is also the zero value of State itself: a never-written
// record and a freshly constructed Initial state are indistinguishable,
// which matches the factory-fresh semantics of Initial.
type Tag uint8

const (
	TagInitial Tag = iota
	TagRequest
	TagSwapping
	TagTrialing
	TagReturning
	TagFailed
	TagConfirmed
)

// String renders a Tag by name for diagnostics and error messages.
func (t Tag) String() string {
	switch t {
	case TagInitial:
		return "Initial"
	case TagRequest:
		return "Request"
	case TagSwapping:
		return "Swapping"
	case TagTrialing:
		return "Trialing"
	case TagReturning:
		return "Returning"
	case TagFailed:
		return "Failed"
	case TagConfirmed:
		return "Confirmed"
	default:
		return fmt.Sprintf("Tag(%d)", uint8(t))
	}
}

// State is the bootloader's persistent lifecycle record, a tagged union
// over the seven variants named in Tag. Only the fields relevant to Tag
// are meaningful; callers should construct values with the constructors
// below and read them with the corresponding accessors rather than poking
// fields directly, so that a reader unfamiliar with one variant cannot
// mistake another variant's leftover field values for its own.
type State struct {
	tag     Tag
	current slot.Slot
	target  slot.Slot
	old     slot.Slot
	failed  slot.Slot
	step    slot.Step
}

// Tag reports which variant a State holds.
func (s State) Tag() Tag { return s.tag }

// Initial is the factory-fresh state: boot primary, no update in flight.
func Initial() State {
	return State{tag: TagInitial}
}

// NewRequest records that current is running and target has been asked
// for.
func NewRequest(current, target slot.Slot) State {
	return State{tag: TagRequest, current: current, target: target}
}

// Request reports the fields of a Request state. ok is false if s is not
// tagged Request.
func (s State) Request() (current, target slot.Slot, ok bool) {
	if s.tag != TagRequest {
		return 0, 0, false
	}
	return s.current, s.target, true
}

// NewSwapping records a forward swap in progress: target is being brought
// up, old is what was running before, step is progress through the
// forward strategy plan.
func NewSwapping(target, old slot.Slot, step slot.Step) State {
	return State{tag: TagSwapping, target: target, old: old, step: step}
}

// Swapping reports the fields of a Swapping state. ok is false if s is
// not tagged Swapping.
func (s State) Swapping() (target, old slot.Slot, step slot.Step, ok bool) {
	if s.tag != TagSwapping {
		return 0, 0, 0, false
	}
	return s.target, s.old, s.step, true
}

// NewTrialing records that a swap finished and target is running on
// probation: an unconditional reset from here means the trial failed.
func NewTrialing(target, old slot.Slot) State {
	return State{tag: TagTrialing, target: target, old: old}
}

// Trialing reports the fields of a Trialing state. ok is false if s is
// not tagged Trialing.
func (s State) Trialing() (target, old slot.Slot, ok bool) {
	if s.tag != TagTrialing {
		return 0, 0, false
	}
	return s.target, s.old, true
}

// NewReturning records that a failed trial is being reverted: failed is
// the slot whose trial did not confirm, old is the slot being restored,
// step is progress through the reverse strategy plan.
func NewReturning(failed, old slot.Slot, step slot.Step) State {
	return State{tag: TagReturning, failed: failed, old: old, step: step}
}

// Returning reports the fields of a Returning state. ok is false if s is
// not tagged Returning.
func (s State) Returning() (failed, old slot.Slot, step slot.Step, ok bool) {
	if s.tag != TagReturning {
		return 0, 0, 0, false
	}
	return s.failed, s.old, s.step, true
}

// NewFailed records the terminal outcome of a reverted trial: current is
// what boots, failed is the slot whose trial never confirmed.
func NewFailed(current, failed slot.Slot) State {
	return State{tag: TagFailed, current: current, failed: failed}
}

// Failed reports the fields of a Failed state. ok is false if s is not
// tagged Failed.
func (s State) Failed() (current, failed slot.Slot, ok bool) {
	if s.tag != TagFailed {
		return 0, 0, false
	}
	return s.current, s.failed, true
}

// NewConfirmed records that target's trial succeeded; it is now the slot
// to boot.
func NewConfirmed(target slot.Slot) State {
	return State{tag: TagConfirmed, target: target}
}

// Confirmed reports the fields of a Confirmed state. ok is false if s is
// not tagged Confirmed.
func (s State) Confirmed() (target slot.Slot, ok bool) {
	if s.tag != TagConfirmed {
		return 0, false
	}
	return s.target, true
}
