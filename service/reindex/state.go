package reindex

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"github.com/CharellKing/ela-reindex/utils"
	"github.com/jinzhu/copier"
	"github.com/pkg/errors"
	"github.com/samber/lo"
)

// Mapping is an index mapping document as returned by the cluster.
type Mapping map[string]interface{}

type EntryStatus string

const (
	EntryPending EntryStatus = "pending"
	EntryActive  EntryStatus = "active"
)

// MigrationEntry is the durable record of one source index. A pending entry
// carries the mapping it drifted with, an active entry the target index and
// the handle of the background copy.
type MigrationEntry struct {
	Status         EntryStatus `json:"status"`
	SourceIndex    string      `json:"source_index"`
	DriftedMapping Mapping     `json:"mapping,omitempty"`
	TargetIndex    string      `json:"target_index,omitempty"`
	JobHandle      string      `json:"task,omitempty"`
}

func NewPendingEntry(sourceIndex string, mapping Mapping) *MigrationEntry {
	return &MigrationEntry{
		Status:         EntryPending,
		SourceIndex:    sourceIndex,
		DriftedMapping: mapping,
	}
}

func (e *MigrationEntry) IsPending() bool {
	return e.Status == EntryPending
}

func (e *MigrationEntry) IsActive() bool {
	return e.Status == EntryActive
}

// Activate turns a pending entry into an active one.
func (e *MigrationEntry) Activate(targetIndex, jobHandle string) {
	e.Status = EntryActive
	e.TargetIndex = targetIndex
	e.JobHandle = jobHandle
	e.DriftedMapping = nil
}

// UnmarshalJSON also accepts entries without a status, which are active when
// they carry a task and pending otherwise.
func (e *MigrationEntry) UnmarshalJSON(data []byte) error {
	type plain MigrationEntry
	var entry plain
	if err := json.Unmarshal(data, &entry); err != nil {
		return err
	}
	if entry.Status == "" {
		entry.Status = lo.Ternary(entry.JobHandle != "", EntryActive, EntryPending)
	}
	*e = MigrationEntry(entry)
	return nil
}

// MigrationState maps a source index name to its entry.
type MigrationState map[string]*MigrationEntry

func (s MigrationState) SortedSources() []string {
	sources := lo.Keys(s)
	sort.Strings(sources)
	return sources
}

func (s MigrationState) Pending() []*MigrationEntry {
	return s.filter(EntryPending)
}

func (s MigrationState) Active() []*MigrationEntry {
	return s.filter(EntryActive)
}

func (s MigrationState) filter(status EntryStatus) []*MigrationEntry {
	var entries []*MigrationEntry
	for _, source := range s.SortedSources() {
		if s[source].Status == status {
			entries = append(entries, s[source])
		}
	}
	return entries
}

// Clone returns a deep copy of the state.
func (s MigrationState) Clone() (MigrationState, error) {
	cloned := make(MigrationState, len(s))
	if err := copier.CopyWithOption(&cloned, &s, copier.Option{DeepCopy: true}); err != nil {
		return nil, errors.WithStack(err)
	}
	return cloned, nil
}

// TargetIndexName is the index a source migrates into.
func TargetIndexName(sourceIndex, suffix string) string {
	return fmt.Sprintf("%s-%s", sourceIndex, suffix)
}

// CheckInvariants verifies that every entry is keyed by its own source, that
// nothing migrates into itself or into a name that another entry uses, and
// that active entries carry a job handle.
func (s MigrationState) CheckInvariants(suffix string) error {
	targets := make(map[string]string, len(s))
	for _, source := range s.SortedSources() {
		entry := s[source]
		if entry == nil {
			return errors.Errorf("entry %s is empty", source)
		}
		if entry.SourceIndex != source {
			return errors.Errorf("entry %s is keyed under %s", entry.SourceIndex, source)
		}

		switch entry.Status {
		case EntryPending:
			if entry.TargetIndex != "" || entry.JobHandle != "" {
				return errors.Errorf("pending entry %s already has a job", source)
			}
		case EntryActive:
			if entry.JobHandle == "" {
				return errors.Errorf("active entry %s has no job handle", source)
			}
			if entry.TargetIndex != TargetIndexName(source, suffix) {
				return errors.Errorf("active entry %s migrates into %s", source, entry.TargetIndex)
			}
		default:
			return errors.Errorf("entry %s has unknown status %q", source, entry.Status)
		}

		target := TargetIndexName(source, suffix)
		if target == source {
			return errors.Errorf("entry %s migrates into itself", source)
		}
		if other, ok := targets[target]; ok {
			return errors.Errorf("entries %s and %s share target %s", other, source, target)
		}
		targets[target] = source
	}

	for target, source := range targets {
		if _, ok := s[target]; ok {
			return errors.Errorf("index %s is both a source and the target of %s", target, source)
		}
	}
	return nil
}

// StateStore persists a MigrationState as a JSON document at path.
type StateStore struct {
	path string
	lock *FileLock
}

func NewStateStore(path string) *StateStore {
	return &StateStore{
		path: path,
		lock: NewFileLock(path + ".lock"),
	}
}

func (s *StateStore) Path() string {
	return s.path
}

// Lock takes the advisory lock guarding the state file against another
// process. It fails with StateLocked when the lock is held elsewhere.
func (s *StateStore) Lock() error {
	return s.lock.Lock()
}

func (s *StateStore) Unlock() error {
	return s.lock.Unlock()
}

// Load reads the state, creating an empty state file when there is none.
func (s *StateStore) Load() (MigrationState, error) {
	if !utils.FileIsExisted(s.path) {
		state := MigrationState{}
		if err := s.Save(state); err != nil {
			return nil, errors.WithStack(err)
		}
		return state, nil
	}
	return s.Peek()
}

// Peek reads the state without touching the file system, an absent file
// reads as an empty state.
func (s *StateStore) Peek() (MigrationState, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return MigrationState{}, nil
		}
		return nil, errors.WithStack(err)
	}

	state := MigrationState{}
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, errors.WithStack(utils.NewCustomError(utils.StateCorrupted,
			"state file %s is not a migration state: %v", s.path, err))
	}
	if state == nil {
		state = MigrationState{}
	}

	for source, entry := range state {
		if entry == nil {
			return nil, errors.WithStack(utils.NewCustomError(utils.StateCorrupted,
				"state file %s has an empty entry for %s", s.path, source))
		}
		if entry.SourceIndex == "" {
			entry.SourceIndex = source
		}
	}
	return state, nil
}

// Save overwrites the state file atomically.
func (s *StateStore) Save(state MigrationState) error {
	if state == nil {
		state = MigrationState{}
	}
	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return errors.WithStack(err)
	}
	return errors.WithStack(utils.WriteFileAtomic(s.path, data, 0o644))
}
