package reindex

import (
	"encoding/json"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/CharellKing/ela-reindex/utils"
	"github.com/pkg/errors"
	"github.com/samber/lo"
)

type FailureRecord struct {
	SourceIndex string    `json:"source_index"`
	TargetIndex string    `json:"target_index"`
	JobHandle   string    `json:"task"`
	Reason      string    `json:"reason"`
	FailedAt    time.Time `json:"failed_at"`
}

// FailureLedger keeps the migrations whose job failed. A source index in the
// ledger is left out of drift detection until it is cleared. Record and Clear
// hold mu across the read and the write so parallel jobs keep every record.
type FailureLedger struct {
	path string
	mu   sync.Mutex
}

func NewFailureLedger(stateFile string) *FailureLedger {
	return &FailureLedger{path: stateFile + ".failed"}
}

func (l *FailureLedger) Path() string {
	return l.path
}

func (l *FailureLedger) Load() (map[string]*FailureRecord, error) {
	data, err := os.ReadFile(l.path)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]*FailureRecord{}, nil
		}
		return nil, errors.WithStack(err)
	}

	records := map[string]*FailureRecord{}
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, errors.WithStack(utils.NewCustomError(utils.StateCorrupted,
			"failure ledger %s is not readable: %v", l.path, err))
	}
	if records == nil {
		records = map[string]*FailureRecord{}
	}
	return records, nil
}

// List returns the records ordered by source index.
func (l *FailureLedger) List() ([]*FailureRecord, error) {
	records, err := l.Load()
	if err != nil {
		return nil, errors.WithStack(err)
	}

	sources := lo.Keys(records)
	sort.Strings(sources)
	return lo.Map(sources, func(source string, _ int) *FailureRecord {
		return records[source]
	}), nil
}

func (l *FailureLedger) Record(record *FailureRecord) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	records, err := l.Load()
	if err != nil {
		return errors.WithStack(err)
	}
	if record.FailedAt.IsZero() {
		record.FailedAt = time.Now().UTC()
	}
	records[record.SourceIndex] = record
	return l.save(records)
}

// Clear removes the given source indices from the ledger, or every record
// when none is given. It returns the cleared sources.
func (l *FailureLedger) Clear(sourceIndexes ...string) ([]string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	records, err := l.Load()
	if err != nil {
		return nil, errors.WithStack(err)
	}

	if len(sourceIndexes) == 0 {
		sourceIndexes = lo.Keys(records)
	}

	var cleared []string
	for _, source := range sourceIndexes {
		if _, ok := records[source]; ok {
			delete(records, source)
			cleared = append(cleared, source)
		}
	}
	sort.Strings(cleared)

	if len(cleared) == 0 {
		return nil, nil
	}
	return cleared, l.save(records)
}

func (l *FailureLedger) save(records map[string]*FailureRecord) error {
	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return errors.WithStack(err)
	}
	return errors.WithStack(utils.WriteFileAtomic(l.path, data, 0o644))
}
