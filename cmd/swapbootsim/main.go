// Command swapbootsim is a host-side simulator that assembles a
// device.Memory, one of the two state store backends, and an
// orchestrator.Orchestrator, then drives the reset/update/trial cycle.
// Run it more than once against the same -state path to see a session
// resume exactly where it left off, the same way a real board would
// after a reset.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/iansmith/swapboot/bootlog"
	"github.com/iansmith/swapboot/device"
	"github.com/iansmith/swapboot/orchestrator"
	"github.com/iansmith/swapboot/slot"
	"github.com/iansmith/swapboot/state"
	"github.com/iansmith/swapboot/store"
	"github.com/iansmith/swapboot/strategy"
	"github.com/iansmith/swapboot/watchdog"
)

func main() {
	var (
		backend   = flag.String("backend", "nor", `state store backend: "nor" (log-structured, store.FileNorFlash) or "file" (JSON snapshot, natefinch/atomic)`)
		statePath = flag.String("state", "swapboot-state.bin", "path to the persistent state file (meaning depends on -backend)")
		norSize   = flag.Uint("nor-size", 3*4096, "capacity in bytes of the simulated NOR region (backend=nor only)")
		pages     = flag.Uint("pages", 4, "pages per image slot")
		pageSize  = flag.Uint("page-size", 16, "bytes per page")
		request   = flag.Int("request", -1, "slot to request activation of (-1 means no new request this run)")
		failTrial = flag.Bool("fail-trial", false, "simulate the new image never confirming, forcing a revert")
		resets    = flag.Int("resets", 10, "maximum number of reset cycles to simulate in this run")
	)
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: swapbootsim [flags]\n")
		fmt.Fprintf(os.Stderr, "Simulates a power-loss-safe firmware update using the Copy strategy.\n\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	logger := bootlog.NewStderrLogger("swapbootsim: ")

	st, err := openStore(*backend, *statePath, uint32(*norSize))
	if err != nil {
		fmt.Fprintf(os.Stderr, "swapbootsim: %v\n", err)
		os.Exit(1)
	}

	dev := device.NewMemory(device.Layout{
		PrimarySlot: 0,
		PageCount:   uint16(*pages),
		PageSize:    int(*pageSize),
		InitialImages: map[slot.Slot][]byte{
			0: patternImage("A", *pages, *pageSize),
			1: patternImage("B", *pages, *pageSize),
		},
	})

	factory := func(d device.Device, target, old slot.Slot) (strategy.Strategy, error) {
		withPrimary, ok := d.(device.WithPrimarySlot)
		if !ok {
			return nil, fmt.Errorf("swapbootsim: device has no primary slot")
		}
		backup := old
		return strategy.NewCopy(withPrimary, strategy.CopyRequest{Source: target, Backup: &backup}), nil
	}

	orch := &orchestrator.Orchestrator{
		Device:      dev,
		Store:       st,
		Build:       factory,
		Watchdog:    watchdog.NoOp{},
		Log:         logger,
		PrimarySlot: dev.Primary(),
	}

	if *request >= 0 {
		if err := seedRequest(st, slot.Slot(*request), dev.Primary()); err != nil {
			fmt.Fprintf(os.Stderr, "swapbootsim: %v\n", err)
			os.Exit(1)
		}
	}

	for i := 0; i < *resets; i++ {
		res, err := orch.Run()
		if err != nil {
			fmt.Fprintf(os.Stderr, "swapbootsim: reset %d failed: %v\n", i, err)
			os.Exit(1)
		}
		fmt.Fprintf(os.Stderr, "reset %d: booted=%v slot=%v state=%v\n", i, res.Booted, res.BootedSlot, res.Next.Tag())

		if res.Next.Tag() == state.TagTrialing {
			if *failTrial {
				fmt.Fprintln(os.Stderr, "application does not confirm; trial will revert on next reset")
			} else {
				if err := orchestrator.Confirm(st, res.BootedSlot); err != nil {
					fmt.Fprintf(os.Stderr, "swapbootsim: %v\n", err)
					os.Exit(1)
				}
				fmt.Fprintln(os.Stderr, "application confirms the trial")
			}
			continue
		}

		if res.Booted && stableTag(res.Next.Tag()) {
			break
		}
	}
}

func stableTag(t state.Tag) bool {
	return t == state.TagInitial || t == state.TagConfirmed || t == state.TagFailed
}

// seedRequest writes a Request state if the store is currently in a
// terminal (boot-only) state, mimicking an external updater handing the
// bootloader new work. It refuses to clobber an update already in flight.
func seedRequest(st orchestrator.StateStore, target, primary slot.Slot) error {
	cur, ok, err := st.Fetch()
	if err != nil {
		return fmt.Errorf("reading current state: %w", err)
	}
	var current slot.Slot
	if !ok {
		current = primary
	} else {
		switch cur.Tag() {
		case state.TagInitial:
			current = primary
		case state.TagConfirmed:
			current, _ = cur.Confirmed()
		case state.TagFailed:
			current, _, _ = cur.Failed()
		default:
			return fmt.Errorf("an update is already in progress (state %v); cannot request %v", cur.Tag(), target)
		}
	}
	return st.Store(state.NewRequest(current, target))
}

func openStore(backend, path string, norSize uint32) (orchestrator.StateStore, error) {
	switch backend {
	case "nor":
		flash, err := store.OpenFileNorFlash(path, norSize)
		if err != nil {
			return nil, fmt.Errorf("opening NOR region %q: %w", path, err)
		}
		ns, err := store.NewNorStore(flash, nil)
		if err != nil {
			return nil, fmt.Errorf("initializing NOR store: %w", err)
		}
		return ns, nil
	case "file":
		return store.NewFileStore(path), nil
	default:
		return nil, fmt.Errorf("unknown -backend %q (want \"nor\" or \"file\")", backend)
	}
}

func patternImage(tag string, pages, pageSize uint) []byte {
	b := make([]byte, pages*pageSize)
	for i := range b {
		b[i] = tag[0]
	}
	return b
}
