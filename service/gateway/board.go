package gateway

import (
	"sync"
	"time"

	"github.com/CharellKing/ela-reindex/service/reindex"
	"github.com/samber/lo"
)

type EntryView struct {
	SourceIndex string `json:"source_index"`
	TargetIndex string `json:"target_index"`
	Status      string `json:"status"`
	JobHandle   string `json:"task,omitempty"`
}

type Snapshot struct {
	Phase     reindex.Phase `json:"phase"`
	UpdatedAt time.Time     `json:"updated_at"`
	Pending   []*EntryView  `json:"pending"`
	Active    []*EntryView  `json:"active"`
}

// Board keeps the latest phase and state a reindex driver reported.
type Board struct {
	suffix string
	ledger *reindex.FailureLedger

	mu        sync.RWMutex
	phase     reindex.Phase
	state     reindex.MigrationState
	updatedAt time.Time
}

func NewBoard(suffix string, ledger *reindex.FailureLedger) *Board {
	return &Board{
		suffix:    suffix,
		ledger:    ledger,
		phase:     reindex.PhaseIdle,
		state:     reindex.MigrationState{},
		updatedAt: time.Now(),
	}
}

func (b *Board) Observe(phase reindex.Phase, state reindex.MigrationState) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.phase = phase
	if state != nil {
		b.state = state
	}
	b.updatedAt = time.Now()
}

func (b *Board) Snapshot() *Snapshot {
	b.mu.RLock()
	defer b.mu.RUnlock()

	toView := func(entry *reindex.MigrationEntry, _ int) *EntryView {
		view := &EntryView{
			SourceIndex: entry.SourceIndex,
			TargetIndex: entry.TargetIndex,
			Status:      string(entry.Status),
			JobHandle:   entry.JobHandle,
		}
		if view.TargetIndex == "" {
			view.TargetIndex = reindex.TargetIndexName(entry.SourceIndex, b.suffix)
		}
		return view
	}

	return &Snapshot{
		Phase:     b.phase,
		UpdatedAt: b.updatedAt,
		Pending:   lo.Map(b.state.Pending(), toView),
		Active:    lo.Map(b.state.Active(), toView),
	}
}

func (b *Board) Failures() ([]*reindex.FailureRecord, error) {
	if b.ledger == nil {
		return nil, nil
	}
	return b.ledger.List()
}
