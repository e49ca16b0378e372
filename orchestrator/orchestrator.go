// Package orchestrator implements the reset-time transition table (C5):
// read state, decide the next transition, execute at most one step,
// persist the next state, and possibly boot. One call to Run corresponds
// to one boot cycle; calling it repeatedly drives an update through
// request, swap, trial, and (if needed) revert.
package orchestrator

import (
	"fmt"

	"github.com/iansmith/swapboot/bootlog"
	"github.com/iansmith/swapboot/device"
	"github.com/iansmith/swapboot/slot"
	"github.com/iansmith/swapboot/state"
	"github.com/iansmith/swapboot/strategy"
	"github.com/iansmith/swapboot/watchdog"
)

// StateStore is the persistence capability the orchestrator depends on:
// package store's NorStore and FileStore both satisfy it.
type StateStore interface {
	Fetch() (state.State, bool, error)
	Store(state.State) error
}

// Factory builds the strategy that activates target, replacing whatever
// was running in old. Which concrete Strategy a Factory returns (Copy,
// SABS, Scootch, XIP) is a build-time configuration choice, fixed when a
// board is built - the orchestrator itself is strategy-agnostic.
type Factory func(dev device.Device, target, old slot.Slot) (strategy.Strategy, error)

// Orchestrator wires together the device, the persistent state store, and
// a strategy factory to drive the reset-time transition table.
type Orchestrator struct {
	Device   device.Device
	Store    StateStore
	Build    Factory
	Watchdog watchdog.Watchdog
	Log      bootlog.Logger

	// PrimarySlot is booted from the Initial state - the factory-fresh,
	// no-update-ever-requested case.
	PrimarySlot slot.Slot

	// Verify, if non-nil, is called exactly once between a completed
	// Swapping and the write of Trialing. A nil Verify always succeeds.
	// This is the optional image-verification extension point.
	Verify func(slot.Slot) error
}

// Result reports what one Run call did.
type Result struct {
	// Booted is true if this call ended in a boot (every terminal state
	// does: Initial, Confirmed, Failed, and the final step of a
	// Swapping or Returning run).
	Booted     bool
	BootedSlot slot.Slot

	// Next is the state committed by this call - the freshly persisted
	// state if one was written, or the state that was read and found
	// already terminal otherwise.
	Next state.State
}

// Run performs exactly one transition of the reset-time table: fetch the
// current state, perform at most one step of work, persist the next
// state, and boot if the new state is terminal. A crash at any point
// before persistence completes leaves the previously committed state in
// place; the next Run call re-enters the table at the top with it.
func (o *Orchestrator) Run() (Result, error) {
	log := bootlog.OrNop(o.Log)

	cur, ok, err := o.Store.Fetch()
	if err != nil {
		return Result{}, fmt.Errorf("orchestrator: fetch state: %w", err)
	}
	if !ok {
		cur = state.Initial()
	}

	switch cur.Tag() {
	case state.TagInitial:
		log.Infof("initial boot, starting primary slot %v", o.PrimarySlot)
		return o.boot(o.PrimarySlot, cur)

	case state.TagConfirmed:
		target, _ := cur.Confirmed()
		log.Infof("trial for %v confirmed, booting", target)
		return o.boot(target, cur)

	case state.TagFailed:
		current, failed, _ := cur.Failed()
		log.Warnf("update to %v failed and was reverted, booting %v", failed, current)
		return o.boot(current, cur)

	case state.TagRequest:
		current, target, _ := cur.Request()
		log.Infof("request to activate %v (from %v)", target, current)
		next := state.NewSwapping(target, current, 0)
		if err := o.persist(next); err != nil {
			return Result{}, err
		}
		return Result{Next: next}, nil

	case state.TagSwapping:
		return o.stepSwapping(cur)

	case state.TagTrialing:
		target, old, _ := cur.Trialing()
		log.Warnf("trial for %v did not confirm before reset, reverting to %v", target, old)
		next := state.NewReturning(target, old, 0)
		if err := o.persist(next); err != nil {
			return Result{}, err
		}
		return Result{Next: next}, nil

	case state.TagReturning:
		return o.stepReturning(cur)

	default:
		return Result{}, fmt.Errorf("orchestrator: state has unknown tag %v", cur.Tag())
	}
}

func (o *Orchestrator) stepSwapping(cur state.State) (Result, error) {
	target, old, step, _ := cur.Swapping()

	forward, err := o.Build(o.Device, target, old)
	if err != nil {
		return Result{}, fmt.Errorf("orchestrator: build strategy for %v: %w", target, err)
	}

	if err := o.executeStep(forward, step); err != nil {
		return Result{}, err
	}

	if step+1 < forward.LastStep() {
		next := state.NewSwapping(target, old, step+1)
		if err := o.persist(next); err != nil {
			return Result{}, err
		}
		return Result{Next: next}, nil
	}

	if o.Verify != nil {
		if err := o.Verify(target); err != nil {
			return Result{}, fmt.Errorf("orchestrator: verify %v: %w", target, err)
		}
	}

	next := state.NewTrialing(target, old)
	if err := o.persist(next); err != nil {
		return Result{}, err
	}
	return o.boot(target, next)
}

func (o *Orchestrator) stepReturning(cur state.State) (Result, error) {
	failed, old, step, _ := cur.Returning()

	forward, err := o.Build(o.Device, failed, old)
	if err != nil {
		return Result{}, fmt.Errorf("orchestrator: build strategy for %v: %w", failed, err)
	}
	reverter, ok := forward.(strategy.Reverter)
	if !ok {
		return Result{}, fmt.Errorf("orchestrator: strategy for %v does not support revert", failed)
	}
	reverse, ok := reverter.Revert()
	if !ok {
		return Result{}, fmt.Errorf("orchestrator: strategy for %v declined to revert", failed)
	}

	if err := o.executeStep(reverse, step); err != nil {
		return Result{}, err
	}

	if step+1 < reverse.LastStep() {
		next := state.NewReturning(failed, old, step+1)
		if err := o.persist(next); err != nil {
			return Result{}, err
		}
		return Result{Next: next}, nil
	}

	next := state.NewFailed(old, failed)
	if err := o.persist(next); err != nil {
		return Result{}, err
	}
	return o.boot(old, next)
}

// executeStep runs one step's copy operations, petting the watchdog
// before each copy so a long copy never starves it. A step at or beyond
// the strategy's LastStep (a zero-step strategy such as XIP) has no
// operations, and Plan is not called for it.
func (o *Orchestrator) executeStep(s strategy.Strategy, step slot.Step) error {
	if step >= s.LastStep() {
		return nil
	}
	for _, op := range s.Plan(step) {
		o.pet()
		if err := o.Device.Copy(op); err != nil {
			return fmt.Errorf("orchestrator: copy %s: %w", op, err)
		}
	}
	return nil
}

// persist writes next to the store, petting the watchdog first so a
// long flash write never starves it.
func (o *Orchestrator) persist(next state.State) error {
	o.pet()
	if err := o.Store.Store(next); err != nil {
		return fmt.Errorf("orchestrator: persist state: %w", err)
	}
	return nil
}

func (o *Orchestrator) pet() {
	if o.Watchdog != nil {
		o.Watchdog.Pet()
	}
}

func (o *Orchestrator) boot(s slot.Slot, committed state.State) (Result, error) {
	if err := o.Device.Boot(s); err != nil {
		return Result{}, fmt.Errorf("orchestrator: boot %v: %w", s, err)
	}
	return Result{Booted: true, BootedSlot: s, Next: committed}, nil
}

// Confirm records that target's trial succeeded. This is the one
// transition not driven by Run: the newly booted application calls
// Confirm after self-verification. If that write never happens before
// the next reset, the next Run call finds Trialing again and proceeds
// to Returning.
func Confirm(s StateStore, target slot.Slot) error {
	if err := s.Store(state.NewConfirmed(target)); err != nil {
		return fmt.Errorf("orchestrator: confirm %v: %w", target, err)
	}
	return nil
}
