package store

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"

	natomic "github.com/natefinch/atomic"

	"github.com/iansmith/swapboot/slot"
	"github.com/iansmith/swapboot/state"
)

// FileStore snapshots the orchestrator's current state.State to a JSON
// file, letting cmd/swapbootsim resume a simulated session across
// process restarts. Unlike NorStore it is not meant to exercise crash
// behavior: natefinch/atomic's rename-based replace means Fetch can never
// observe a half-written snapshot, which is exactly what host tooling
// bookkeeping wants and exactly what the log-structured NOR store must
// NOT have, since that store exists to let tests inject torn writes.
type FileStore struct {
	path string
}

// NewFileStore builds a FileStore snapshotting to path.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// fileStoreRecord is the on-disk JSON shape of a state.State snapshot.
// Only the fields relevant to Tag are populated, mirroring state.State's
// own tagged-union discipline.
type fileStoreRecord struct {
	Tag     string     `json:"tag"`
	Current *slot.Slot `json:"current,omitempty"`
	Target  *slot.Slot `json:"target,omitempty"`
	Old     *slot.Slot `json:"old,omitempty"`
	Failed  *slot.Slot `json:"failed,omitempty"`
	Step    *slot.Step `json:"step,omitempty"`
}

func toFileStoreRecord(st state.State) fileStoreRecord {
	switch st.Tag() {
	case state.TagRequest:
		current, target, _ := st.Request()
		return fileStoreRecord{Tag: "Request", Current: &current, Target: &target}
	case state.TagSwapping:
		target, old, step, _ := st.Swapping()
		return fileStoreRecord{Tag: "Swapping", Target: &target, Old: &old, Step: &step}
	case state.TagTrialing:
		target, old, _ := st.Trialing()
		return fileStoreRecord{Tag: "Trialing", Target: &target, Old: &old}
	case state.TagReturning:
		failed, old, step, _ := st.Returning()
		return fileStoreRecord{Tag: "Returning", Failed: &failed, Old: &old, Step: &step}
	case state.TagFailed:
		current, failed, _ := st.Failed()
		return fileStoreRecord{Tag: "Failed", Current: &current, Failed: &failed}
	case state.TagConfirmed:
		target, _ := st.Confirmed()
		return fileStoreRecord{Tag: "Confirmed", Target: &target}
	default:
		return fileStoreRecord{Tag: "Initial"}
	}
}

func fromFileStoreRecord(r fileStoreRecord) (state.State, error) {
	need := func(fields ...*slot.Slot) error {
		for _, f := range fields {
			if f == nil {
				return fmt.Errorf("store: snapshot tag %q missing a required field", r.Tag)
			}
		}
		return nil
	}

	switch r.Tag {
	case "Initial":
		return state.Initial(), nil
	case "Request":
		if err := need(r.Current, r.Target); err != nil {
			return state.State{}, err
		}
		return state.NewRequest(*r.Current, *r.Target), nil
	case "Swapping":
		if err := need(r.Target, r.Old); err != nil {
			return state.State{}, err
		}
		if r.Step == nil {
			return state.State{}, fmt.Errorf("store: snapshot tag %q missing step", r.Tag)
		}
		return state.NewSwapping(*r.Target, *r.Old, *r.Step), nil
	case "Trialing":
		if err := need(r.Target, r.Old); err != nil {
			return state.State{}, err
		}
		return state.NewTrialing(*r.Target, *r.Old), nil
	case "Returning":
		if err := need(r.Failed, r.Old); err != nil {
			return state.State{}, err
		}
		if r.Step == nil {
			return state.State{}, fmt.Errorf("store: snapshot tag %q missing step", r.Tag)
		}
		return state.NewReturning(*r.Failed, *r.Old, *r.Step), nil
	case "Failed":
		if err := need(r.Current, r.Failed); err != nil {
			return state.State{}, err
		}
		return state.NewFailed(*r.Current, *r.Failed), nil
	case "Confirmed":
		if err := need(r.Target); err != nil {
			return state.State{}, err
		}
		return state.NewConfirmed(*r.Target), nil
	default:
		return state.State{}, fmt.Errorf("store: snapshot has unknown tag %q", r.Tag)
	}
}

// Store writes st to the snapshot file, replacing any previous contents
// atomically.
func (f *FileStore) Store(st state.State) error {
	data, err := json.MarshalIndent(toFileStoreRecord(st), "", "  ")
	if err != nil {
		return fmt.Errorf("store: marshal snapshot: %w", err)
	}
	if err := natomic.WriteFile(f.path, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("store: write snapshot %s: %w", f.path, err)
	}
	return nil
}

// Fetch reads the snapshot file, returning ok=false if it does not exist
// yet.
func (f *FileStore) Fetch() (state.State, bool, error) {
	data, err := os.ReadFile(f.path)
	if err != nil {
		if os.IsNotExist(err) {
			return state.State{}, false, nil
		}
		return state.State{}, false, fmt.Errorf("store: read snapshot %s: %w", f.path, err)
	}

	var rec fileStoreRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return state.State{}, false, fmt.Errorf("store: decode snapshot %s: %w", f.path, err)
	}
	st, err := fromFileStoreRecord(rec)
	if err != nil {
		return state.State{}, false, err
	}
	return st, true, nil
}
