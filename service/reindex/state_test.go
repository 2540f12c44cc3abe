package reindex

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/CharellKing/ela-reindex/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStateStoreLoadCreatesEmptyFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	store := NewStateStore(path)

	state, err := store.Load()
	require.NoError(t, err)
	assert.Empty(t, state)
	assert.True(t, utils.FileIsExisted(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.JSONEq(t, `{}`, string(data))
}

func TestStateStoreSaveAndLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	store := NewStateStore(path)

	state := MigrationState{
		"idx-000": NewPendingEntry("idx-000", keywordMapping()),
		"idx-001": NewPendingEntry("idx-001", keywordMapping()),
	}
	state["idx-001"].Activate("idx-001-new", "node:7")
	require.NoError(t, store.Save(state))

	loaded, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, []string{"idx-000", "idx-001"}, loaded.SortedSources())
	assert.True(t, loaded["idx-000"].IsPending())
	assert.Equal(t, "keyword", loaded["idx-000"].DriftedMapping["properties"].(map[string]interface{})["message"].(map[string]interface{})["type"])
	assert.True(t, loaded["idx-001"].IsActive())
	assert.Equal(t, "idx-001-new", loaded["idx-001"].TargetIndex)
	assert.Equal(t, "node:7", loaded["idx-001"].JobHandle)
	assert.Nil(t, loaded["idx-001"].DriftedMapping)

	matches, err := filepath.Glob(filepath.Join(filepath.Dir(path), ".state.json*"))
	require.NoError(t, err)
	assert.Empty(t, matches)
}

func TestStateStoreLoadEntriesWithoutStatus(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	require.NoError(t, os.WriteFile(path, []byte(`{
		"idx-000": {"mapping": {"properties": {}}},
		"idx-001": {"task": "node:3", "target_index": "idx-001-new"}
	}`), 0o644))

	state, err := NewStateStore(path).Load()
	require.NoError(t, err)
	assert.True(t, state["idx-000"].IsPending())
	assert.Equal(t, "idx-000", state["idx-000"].SourceIndex)
	assert.True(t, state["idx-001"].IsActive())
	assert.Equal(t, "node:3", state["idx-001"].JobHandle)
	assert.NoError(t, state.CheckInvariants("new"))
}

func TestStateStoreLoadCorrupted(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"idx-000": [`), 0o644))

	_, err := NewStateStore(path).Load()
	require.Error(t, err)
	assert.True(t, utils.IsCustomError(err, utils.StateCorrupted))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, `{"idx-000": [`, string(data))
}

func TestStateStorePeekDoesNotCreate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")

	state, err := NewStateStore(path).Peek()
	require.NoError(t, err)
	assert.Empty(t, state)
	assert.False(t, utils.FileIsExisted(path))
}

func TestStateStoreLock(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	first := NewStateStore(path)
	second := NewStateStore(path)

	require.NoError(t, first.Lock())
	err := second.Lock()
	require.Error(t, err)
	assert.True(t, utils.IsCustomError(err, utils.StateLocked))

	require.NoError(t, first.Unlock())
	require.NoError(t, second.Lock())
	require.NoError(t, second.Unlock())
}

func TestCheckInvariants(t *testing.T) {
	active := func(source, target, handle string) *MigrationEntry {
		entry := NewPendingEntry(source, nil)
		entry.Activate(target, handle)
		return entry
	}

	tests := []struct {
		name    string
		state   MigrationState
		wantErr bool
	}{
		{
			name:  "empty",
			state: MigrationState{},
		},
		{
			name: "pending and active",
			state: MigrationState{
				"idx-000": NewPendingEntry("idx-000", keywordMapping()),
				"idx-001": active("idx-001", "idx-001-new", "node:1"),
			},
		},
		{
			name:    "keyed under another name",
			state:   MigrationState{"idx-000": NewPendingEntry("idx-001", nil)},
			wantErr: true,
		},
		{
			name:    "active without handle",
			state:   MigrationState{"idx-000": active("idx-000", "idx-000-new", "")},
			wantErr: true,
		},
		{
			name:    "active into another target",
			state:   MigrationState{"idx-000": active("idx-000", "idx-001", "node:1")},
			wantErr: true,
		},
		{
			name: "source is another entry's target",
			state: MigrationState{
				"idx-000":     NewPendingEntry("idx-000", nil),
				"idx-000-new": NewPendingEntry("idx-000-new", nil),
			},
			wantErr: true,
		},
		{
			name:    "unknown status",
			state:   MigrationState{"idx-000": {Status: "done", SourceIndex: "idx-000"}},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.state.CheckInvariants("new")
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestMigrationStateClone(t *testing.T) {
	state := MigrationState{
		"idx-000": NewPendingEntry("idx-000", keywordMapping()),
	}

	cloned, err := state.Clone()
	require.NoError(t, err)
	cloned["idx-000"].Activate("idx-000-new", "node:1")
	delete(cloned, "idx-000")
	cloned["idx-001"] = NewPendingEntry("idx-001", nil)

	assert.Equal(t, []string{"idx-000"}, state.SortedSources())
	assert.True(t, state["idx-000"].IsPending())
	assert.Empty(t, state["idx-000"].JobHandle)
}
