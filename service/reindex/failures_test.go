package reindex

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/CharellKing/ela-reindex/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFailureLedger(t *testing.T) {
	stateFile := filepath.Join(t.TempDir(), "state.json")
	ledger := NewFailureLedger(stateFile)
	assert.Equal(t, stateFile+".failed", ledger.Path())

	records, err := ledger.List()
	require.NoError(t, err)
	assert.Empty(t, records)
	assert.False(t, utils.FileIsExisted(ledger.Path()))

	require.NoError(t, ledger.Record(&FailureRecord{SourceIndex: "idx-002", TargetIndex: "idx-002-new", JobHandle: "node:2", Reason: "boom"}))
	require.NoError(t, ledger.Record(&FailureRecord{SourceIndex: "idx-000", TargetIndex: "idx-000-new", JobHandle: "node:1", Reason: "bang"}))

	records, err = ledger.List()
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "idx-000", records[0].SourceIndex)
	assert.Equal(t, "idx-002", records[1].SourceIndex)
	assert.Equal(t, "boom", records[1].Reason)
	assert.False(t, records[1].FailedAt.IsZero())

	cleared, err := ledger.Clear("idx-002", "idx-009")
	require.NoError(t, err)
	assert.Equal(t, []string{"idx-002"}, cleared)

	cleared, err = ledger.Clear()
	require.NoError(t, err)
	assert.Equal(t, []string{"idx-000"}, cleared)

	records, err = ledger.List()
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestFailureLedgerCorrupted(t *testing.T) {
	stateFile := filepath.Join(t.TempDir(), "state.json")
	ledger := NewFailureLedger(stateFile)
	require.NoError(t, os.WriteFile(ledger.Path(), []byte("not json"), 0o644))

	_, err := ledger.Load()
	require.Error(t, err)
	assert.True(t, utils.IsCustomError(err, utils.StateCorrupted))
}

func TestFailureLedgerConcurrentRecord(t *testing.T) {
	ledger := NewFailureLedger(filepath.Join(t.TempDir(), "state.json"))

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			source := fmt.Sprintf("idx-%03d", i)
			assert.NoError(t, ledger.Record(&FailureRecord{SourceIndex: source, TargetIndex: source + "-new", Reason: "boom"}))
		}(i)
	}
	wg.Wait()

	records, err := ledger.List()
	require.NoError(t, err)
	assert.Len(t, records, 16)
}
