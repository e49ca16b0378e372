package orchestrator

import (
	"errors"
	"testing"

	"github.com/iansmith/swapboot/device"
	"github.com/iansmith/swapboot/slot"
	"github.com/iansmith/swapboot/state"
	"github.com/iansmith/swapboot/store"
	"github.com/iansmith/swapboot/strategy"
	"github.com/iansmith/swapboot/watchdog"
)

// fakeDevice is a minimal device.WithPrimarySlot that records what was
// asked of it rather than moving any real bytes.
type fakeDevice struct {
	primary   slot.Slot
	pageCount uint16
	boots     []slot.Slot
	copies    []slot.CopyOperation
	bootErr   error
	copyErr   error
	failCopy  int // 1-based index of the Copy call to fail, once; 0 disables
}

func (d *fakeDevice) Copy(op slot.CopyOperation) error {
	d.copies = append(d.copies, op)
	if d.failCopy != 0 && len(d.copies) == d.failCopy {
		d.failCopy = 0
		return errors.New("simulated copy failure")
	}
	return d.copyErr
}

func (d *fakeDevice) Boot(s slot.Slot) error {
	d.boots = append(d.boots, s)
	return d.bootErr
}

func (d *fakeDevice) PageCount() uint16  { return d.pageCount }
func (d *fakeDevice) Primary() slot.Slot { return d.primary }

var (
	_ device.Device         = (*fakeDevice)(nil)
	_ device.WithPrimarySlot = (*fakeDevice)(nil)
)

// fakeStore is a StateStore held entirely in memory, for tests that
// exercise orchestrator transition logic in isolation from package store.
type fakeStore struct {
	state state.State
	has   bool
}

func (f *fakeStore) Fetch() (state.State, bool, error) { return f.state, f.has, nil }
func (f *fakeStore) Store(s state.State) error {
	f.state = s
	f.has = true
	return nil
}

// xipFactory builds an XIP strategy backed by old, for tests that only
// care about state transitions and not page copying.
func xipFactory(dev device.Device, target, old slot.Slot) (strategy.Strategy, error) {
	backup := old
	return strategy.NewXIP(dev, strategy.XIPRequest{Target: target, Backup: &backup}), nil
}

func TestRunInitialBootsPrimary(t *testing.T) {
	dev := &fakeDevice{primary: 0}
	st := &fakeStore{}
	o := &Orchestrator{Device: dev, Store: st, Build: xipFactory, PrimarySlot: 0}

	res, err := o.Run()
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if !res.Booted || res.BootedSlot != 0 {
		t.Errorf("Result = %+v, want Booted=true BootedSlot=0", res)
	}
	if len(dev.boots) != 1 || dev.boots[0] != 0 {
		t.Errorf("boots = %v, want [0]", dev.boots)
	}
}

func TestRunConfirmedBootsTarget(t *testing.T) {
	dev := &fakeDevice{}
	st := &fakeStore{state: state.NewConfirmed(2), has: true}
	o := &Orchestrator{Device: dev, Store: st, Build: xipFactory}

	res, err := o.Run()
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if !res.Booted || res.BootedSlot != 2 {
		t.Errorf("Result = %+v, want Booted=true BootedSlot=2", res)
	}
}

func TestRunFailedBootsCurrent(t *testing.T) {
	dev := &fakeDevice{}
	st := &fakeStore{state: state.NewFailed(0, 1), has: true}
	o := &Orchestrator{Device: dev, Store: st, Build: xipFactory}

	res, err := o.Run()
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if !res.Booted || res.BootedSlot != 0 {
		t.Errorf("Result = %+v, want Booted=true BootedSlot=0", res)
	}
}

func TestRunRequestTransitionsToSwapping(t *testing.T) {
	dev := &fakeDevice{}
	st := &fakeStore{state: state.NewRequest(0, 1), has: true}
	o := &Orchestrator{Device: dev, Store: st, Build: xipFactory}

	res, err := o.Run()
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if res.Booted {
		t.Errorf("Result.Booted = true, want false")
	}
	if len(dev.boots) != 0 {
		t.Errorf("boots = %v, want none", dev.boots)
	}
	target, old, step, ok := st.state.Swapping()
	if !ok || target != 1 || old != 0 || step != 0 {
		t.Errorf("state = %+v, want Swapping{target:1, old:0, step:0}", st.state)
	}
}

func TestRunSwappingWithZeroStepStrategyCompletesAndBoots(t *testing.T) {
	dev := &fakeDevice{}
	st := &fakeStore{state: state.NewSwapping(1, 0, 0), has: true}
	wd := &watchdog.Counter{}
	o := &Orchestrator{Device: dev, Store: st, Build: xipFactory, Watchdog: wd}

	res, err := o.Run()
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if !res.Booted || res.BootedSlot != 1 {
		t.Errorf("Result = %+v, want Booted=true BootedSlot=1", res)
	}
	if len(dev.copies) != 0 {
		t.Errorf("copies = %v, want none (XIP plans no copies)", dev.copies)
	}
	if st.state.Tag() != state.TagTrialing {
		t.Errorf("final tag = %v, want Trialing", st.state.Tag())
	}
	// No copies to pet for; one pet for the persist.
	if wd.Count != 1 {
		t.Errorf("watchdog pets = %d, want 1", wd.Count)
	}
}

func TestRunSwappingMultiStepStaysInSwappingUntilLastStep(t *testing.T) {
	dev := &fakeDevice{}
	st := &fakeStore{state: state.NewSwapping(1, 0, 0), has: true}
	factory := func(dev device.Device, target, old slot.Slot) (strategy.Strategy, error) {
		return &twoStepStrategy{}, nil
	}
	o := &Orchestrator{Device: dev, Store: st, Build: factory}

	res, err := o.Run()
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if res.Booted {
		t.Errorf("Result.Booted = true after step 0 of 2, want false")
	}
	target, old, step, ok := st.state.Swapping()
	if !ok || target != 1 || old != 0 || step != 1 {
		t.Errorf("state = %+v, want Swapping{target:1, old:0, step:1}", st.state)
	}

	res, err = o.Run()
	if err != nil {
		t.Fatalf("second Run failed: %v", err)
	}
	if !res.Booted || res.BootedSlot != 1 {
		t.Errorf("Result = %+v, want Booted=true BootedSlot=1 after final step", res)
	}
	if st.state.Tag() != state.TagTrialing {
		t.Errorf("final tag = %v, want Trialing", st.state.Tag())
	}
}

// twoStepStrategy is a test double with two steps, each emitting one
// no-op-shaped copy, used to exercise the multi-step Swapping path.
type twoStepStrategy struct{}

func (twoStepStrategy) LastStep() slot.Step { return 2 }
func (twoStepStrategy) Plan(step slot.Step) []slot.CopyOperation {
	return []slot.CopyOperation{{
		From: slot.MemoryLocation{Slot: 0, Page: slot.Page(step)},
		To:   slot.MemoryLocation{Slot: 1, Page: slot.Page(step)},
	}}
}

func TestRunSwappingCallsVerifyBeforeTrialing(t *testing.T) {
	dev := &fakeDevice{}
	st := &fakeStore{state: state.NewSwapping(1, 0, 0), has: true}
	var verified slot.Slot
	var called bool
	o := &Orchestrator{
		Device: dev, Store: st, Build: xipFactory,
		Verify: func(s slot.Slot) error { called = true; verified = s; return nil },
	}

	if _, err := o.Run(); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if !called || verified != 1 {
		t.Errorf("Verify called=%v with %v, want called with slot 1", called, verified)
	}
}

func TestRunSwappingVerifyFailureBlocksTrialing(t *testing.T) {
	dev := &fakeDevice{}
	st := &fakeStore{state: state.NewSwapping(1, 0, 0), has: true}
	o := &Orchestrator{
		Device: dev, Store: st, Build: xipFactory,
		Verify: func(slot.Slot) error { return errors.New("bad image") },
	}

	if _, err := o.Run(); err == nil {
		t.Fatalf("Run succeeded despite Verify failure")
	}
	if st.state.Tag() != state.TagSwapping {
		t.Errorf("state tag = %v, want Swapping (unchanged)", st.state.Tag())
	}
	if len(dev.boots) != 0 {
		t.Errorf("boots = %v, want none", dev.boots)
	}
}

func TestRunSwappingCopyFailureLeavesStateUnchanged(t *testing.T) {
	dev := &fakeDevice{failCopy: 1}
	st := &fakeStore{state: state.NewSwapping(1, 0, 0), has: true}
	factory := func(dev device.Device, target, old slot.Slot) (strategy.Strategy, error) {
		return &twoStepStrategy{}, nil
	}
	o := &Orchestrator{Device: dev, Store: st, Build: factory}

	if _, err := o.Run(); err == nil {
		t.Fatalf("Run succeeded despite injected copy failure")
	}
	target, old, step, ok := st.state.Swapping()
	if !ok || target != 1 || old != 0 || step != 0 {
		t.Errorf("state = %+v, want unchanged Swapping{target:1, old:0, step:0}", st.state)
	}

	// Retrying (as a reset would) now succeeds, since the copy is
	// idempotent and the failure was injected only once.
	if _, err := o.Run(); err != nil {
		t.Fatalf("retry Run failed: %v", err)
	}
}

func TestRunTrialingWithoutConfirmTransitionsToReturning(t *testing.T) {
	dev := &fakeDevice{}
	st := &fakeStore{state: state.NewTrialing(1, 0), has: true}
	o := &Orchestrator{Device: dev, Store: st, Build: xipFactory}

	res, err := o.Run()
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if res.Booted {
		t.Errorf("Result.Booted = true, want false")
	}
	failed, old, step, ok := st.state.Returning()
	if !ok || failed != 1 || old != 0 || step != 0 {
		t.Errorf("state = %+v, want Returning{failed:1, old:0, step:0}", st.state)
	}
}

func TestRunReturningCompletesAndBootsOld(t *testing.T) {
	dev := &fakeDevice{}
	st := &fakeStore{state: state.NewReturning(1, 0, 0), has: true}
	o := &Orchestrator{Device: dev, Store: st, Build: xipFactory}

	res, err := o.Run()
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if !res.Booted || res.BootedSlot != 0 {
		t.Errorf("Result = %+v, want Booted=true BootedSlot=0", res)
	}
	if st.state.Tag() != state.TagFailed {
		t.Errorf("final tag = %v, want Failed", st.state.Tag())
	}
}

func TestRunReturningWithoutRevertSupportFails(t *testing.T) {
	dev := &fakeDevice{}
	st := &fakeStore{state: state.NewReturning(1, 0, 0), has: true}
	factory := func(dev device.Device, target, old slot.Slot) (strategy.Strategy, error) {
		return noRevertStrategy{}, nil
	}
	o := &Orchestrator{Device: dev, Store: st, Build: factory}

	if _, err := o.Run(); err == nil {
		t.Fatalf("Run succeeded despite a strategy with no Revert")
	}
}

type noRevertStrategy struct{}

func (noRevertStrategy) LastStep() slot.Step                { return 0 }
func (noRevertStrategy) Plan(slot.Step) []slot.CopyOperation { return nil }

func TestConfirmWritesConfirmedState(t *testing.T) {
	st := &fakeStore{state: state.NewTrialing(1, 0), has: true}
	if err := Confirm(st, 1); err != nil {
		t.Fatalf("Confirm failed: %v", err)
	}
	target, ok := st.state.Confirmed()
	if !ok || target != 1 {
		t.Errorf("state = %+v, want Confirmed{1}", st.state)
	}
}

// TestFullCycleWithRealStoreAndCopyStrategy drives Request through
// Swapping, Trialing, and Confirm against a real NorStore backed by an
// in-memory NOR flash, exercising the orchestrator's persistence and
// watchdog-petting policy end to end rather than through fakeStore.
func TestFullCycleWithRealStoreAndCopyStrategy(t *testing.T) {
	flash := device.NewMemoryNorFlash(4*4096, 1, 1, 4096)
	ns, err := store.NewNorStore(flash, nil)
	if err != nil {
		t.Fatalf("NewNorStore failed: %v", err)
	}
	if err := ns.Store(state.NewRequest(0, 1)); err != nil {
		t.Fatalf("seed Store failed: %v", err)
	}

	dev := &fakeDevice{primary: 0, pageCount: 4}
	wd := &watchdog.Counter{}
	backup := slot.Slot(0)
	factory := func(d device.Device, target, old slot.Slot) (strategy.Strategy, error) {
		return strategy.NewCopy(d.(device.WithPrimarySlot), strategy.CopyRequest{Source: target, Backup: &backup}), nil
	}
	o := &Orchestrator{Device: dev, Store: ns, Build: factory, Watchdog: wd, PrimarySlot: 0}

	// Request -> Swapping.
	if _, err := o.Run(); err != nil {
		t.Fatalf("Run (request) failed: %v", err)
	}
	// Swapping -> copy + Trialing + boot.
	res, err := o.Run()
	if err != nil {
		t.Fatalf("Run (swapping) failed: %v", err)
	}
	if !res.Booted || res.BootedSlot != 1 {
		t.Errorf("Result = %+v, want Booted=true BootedSlot=1", res)
	}
	if len(dev.copies) != 4 {
		t.Errorf("copies = %d, want 4 (one per page)", len(dev.copies))
	}
	got, ok, err := ns.Fetch()
	if err != nil || !ok {
		t.Fatalf("Fetch failed: ok=%v err=%v", ok, err)
	}
	if got.Tag() != state.TagTrialing {
		t.Errorf("state tag = %v, want Trialing", got.Tag())
	}

	// Application confirms the trial.
	if err := Confirm(ns, 1); err != nil {
		t.Fatalf("Confirm failed: %v", err)
	}
	res, err = o.Run()
	if err != nil {
		t.Fatalf("Run (confirmed) failed: %v", err)
	}
	if !res.Booted || res.BootedSlot != 1 {
		t.Errorf("Result = %+v, want Booted=true BootedSlot=1 after confirm", res)
	}
}
