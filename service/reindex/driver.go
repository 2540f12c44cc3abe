package reindex

import (
	"context"
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/CharellKing/ela-reindex/config"
	"github.com/CharellKing/ela-reindex/pkg/es"
	"github.com/CharellKing/ela-reindex/utils"
	"github.com/alitto/pond"
	"github.com/bytedance/gopkg/collection/skipmap"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/spf13/cast"
)

type Phase string

const (
	PhaseIdle           Phase = "idle"
	PhaseDiscovering    Phase = "discovering"
	PhaseEmpty          Phase = "empty"
	PhaseHasWork        Phase = "has_work"
	PhaseCheckingTarget Phase = "checking_target"
	PhaseStarting       Phase = "starting"
	PhasePolling        Phase = "polling"
	PhaseCompleted      Phase = "completed"
	PhaseFailed         Phase = "failed"
	PhaseConflict       Phase = "conflict"
	PhaseHalted         Phase = "halted"
)

// Observer is told about every phase change with a copy of the state.
type Observer interface {
	Observe(phase Phase, state MigrationState)
}

type OutcomeResult string

const (
	OutcomeCompleted OutcomeResult = "completed"
	OutcomeFailed    OutcomeResult = "failed"
	OutcomeSkipped   OutcomeResult = "skipped"
	OutcomeConflict  OutcomeResult = "conflict"
	OutcomePlanned   OutcomeResult = "planned"
	OutcomeResume    OutcomeResult = "resume"
)

type Outcome struct {
	SourceIndex   string
	TargetIndex   string
	JobHandle     string
	Result        OutcomeResult
	Reason        string
	SourceCount   uint64
	TargetCount   uint64
	CountMismatch bool
}

type Report struct {
	RunID      string
	DryRun     bool
	Discovered bool
	Reference  string
	Outcomes   []*Outcome
	Remaining  MigrationState
}

// Driver owns the migration state for one run: it loads or discovers the
// work, starts each migration, waits for it and persists after every change.
type Driver struct {
	catalog  *Catalog
	detector *DriftDetector
	executor *Executor
	poller   *Poller
	store    *StateStore
	ledger   *FailureLedger

	pattern        string
	suffix         string
	parallelism    uint
	dryRun         bool
	verifyDocCount bool
	observer       Observer

	mu    sync.Mutex
	state MigrationState
	phase Phase
}

func NewDriver(esInstance es.ES, reindexCfg *config.ReindexCfg) *Driver {
	catalog := NewCatalog(esInstance).WithIgnoreSystemIndex(reindexCfg.IgnoreSystemIndex)
	return &Driver{
		catalog:        catalog,
		detector:       NewDriftDetector(catalog),
		executor:       NewExecutor(esInstance, catalog),
		poller:         NewPoller(esInstance, reindexCfg.PollInterval),
		store:          NewStateStore(reindexCfg.StateFile),
		ledger:         NewFailureLedger(reindexCfg.StateFile),
		pattern:        reindexCfg.IndexPattern,
		suffix:         reindexCfg.TargetSuffix,
		parallelism:    max(reindexCfg.Parallelism, 1),
		verifyDocCount: reindexCfg.VerifyDocCount,
		state:          MigrationState{},
		phase:          PhaseIdle,
	}
}

func (d *Driver) WithDryRun(dryRun bool) *Driver {
	d.dryRun = dryRun
	return d
}

func (d *Driver) WithObserver(observer Observer) *Driver {
	d.observer = observer
	return d
}

func (d *Driver) Ledger() *FailureLedger {
	return d.ledger
}

func (d *Driver) Store() *StateStore {
	return d.store
}

// Snapshot returns the current phase and a copy of the in-memory state.
func (d *Driver) Snapshot() (Phase, MigrationState) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.phase, d.cloneStateLocked()
}

func (d *Driver) Run(ctx context.Context) (*Report, error) {
	if utils.GetCtxKeyTaskID(ctx) == "" {
		ctx = utils.SetCtxKeyTaskID(ctx, uuid.New().String())
	}
	ctx = utils.SetCtxKeyDryRun(ctx, d.dryRun)

	report := &Report{
		RunID:  utils.GetCtxKeyTaskID(ctx),
		DryRun: d.dryRun,
	}
	if d.dryRun {
		err := d.preview(ctx, report)
		d.transition(ctx, PhaseHalted)
		return report, errors.WithStack(err)
	}

	if err := d.store.Lock(); err != nil {
		return report, errors.WithStack(err)
	}
	defer func() {
		if err := d.store.Unlock(); err != nil {
			utils.GetLogger(ctx).Warnf("unlock state file: %+v", err)
		}
	}()

	err := d.run(ctx, report)
	report.Remaining = d.cloneState()
	d.transition(ctx, PhaseHalted)
	return report, errors.WithStack(err)
}

func (d *Driver) run(ctx context.Context, report *Report) error {
	state, err := d.store.Load()
	if err != nil {
		return errors.WithStack(err)
	}
	if err := state.CheckInvariants(d.suffix); err != nil {
		return errors.WithStack(utils.NewCustomError(utils.StateCorrupted,
			"state file %s: %v", d.store.Path(), err))
	}
	d.setState(state)

	if len(state) == 0 {
		d.transition(ctx, PhaseDiscovering)
		discovered, reference, err := d.discover(ctx)
		if err != nil {
			return errors.WithStack(err)
		}
		report.Discovered = true
		report.Reference = reference

		if len(discovered) == 0 {
			d.transition(ctx, PhaseEmpty)
			utils.GetLogger(ctx).Info("no index needs to be migrated")
			return nil
		}

		d.mu.Lock()
		d.state = discovered
		err = d.persistLocked()
		d.mu.Unlock()
		if err != nil {
			return errors.WithStack(err)
		}
		utils.GetLogger(ctx).Infof("%d indexes need to be migrated", len(discovered))
	} else {
		utils.GetLogger(ctx).Infof("resume %d pending and %d active migrations",
			len(state.Pending()), len(state.Active()))
	}

	d.transition(ctx, PhaseHasWork)
	outcomes, err := d.execute(ctx)
	report.Outcomes = outcomes
	if err != nil {
		return errors.WithStack(err)
	}

	if len(d.cloneState()) == 0 {
		d.transition(ctx, PhaseEmpty)
		utils.GetLogger(ctx).Info("all migrations complete")
	}
	return nil
}

// discover builds the pending entries from the drifted indices. Migration
// outputs and indices with a recorded failure are left out.
func (d *Driver) discover(ctx context.Context) (MigrationState, string, error) {
	descriptors, err := d.catalog.ListIndices(ctx, d.pattern)
	if err != nil {
		return nil, "", errors.WithStack(err)
	}
	if len(descriptors) == 0 {
		utils.GetLogger(ctx).Infof("no index matches %s", d.pattern)
		return MigrationState{}, "", nil
	}

	reference, drifted, err := d.detector.Detect(ctx, descriptors)
	if err != nil {
		return nil, "", errors.WithStack(err)
	}

	failures, err := d.ledger.Load()
	if err != nil {
		return nil, "", errors.WithStack(err)
	}

	state := MigrationState{}
	for name, mapping := range drifted {
		if strings.HasSuffix(name, "-"+d.suffix) {
			utils.GetLogger(ctx).Infof("index %s is a migration output, skip it", name)
			continue
		}
		if failure, ok := failures[name]; ok {
			utils.GetLogger(ctx).Warnf("index %s failed with task %s (%s), skip it until the failure is cleared",
				name, failure.JobHandle, failure.Reason)
			continue
		}
		state[name] = NewPendingEntry(name, mapping)
	}
	return state, reference, nil
}

// preview reports what a run would do. It reads the cluster and the state
// file but never writes either.
func (d *Driver) preview(ctx context.Context, report *Report) error {
	state, err := d.store.Peek()
	if err != nil {
		return errors.WithStack(err)
	}

	if len(state) == 0 {
		d.transition(ctx, PhaseDiscovering)
		state, report.Reference, err = d.discover(ctx)
		if err != nil {
			return errors.WithStack(err)
		}
		report.Discovered = true
	}

	preview, err := state.Clone()
	if err != nil {
		return errors.WithStack(err)
	}

	for _, source := range preview.SortedSources() {
		entry := preview[source]
		target := TargetIndexName(source, d.suffix)
		logger := utils.GetLogger(utils.SetCtxKeyTargetIndex(utils.SetCtxKeySourceIndex(ctx, source), target))

		if entry.IsActive() {
			logger.Infof("would resume polling task %s for %s -> %s", entry.JobHandle, source, entry.TargetIndex)
			report.Outcomes = append(report.Outcomes, &Outcome{
				SourceIndex: source,
				TargetIndex: entry.TargetIndex,
				JobHandle:   entry.JobHandle,
				Result:      OutcomeResume,
			})
			continue
		}

		outcome := &Outcome{
			SourceIndex: source,
			TargetIndex: target,
			Result:      OutcomePlanned,
		}
		existed, err := d.catalog.IndexExisted(ctx, target)
		if err != nil {
			return errors.WithStack(err)
		}
		if existed {
			outcome.Result = OutcomeConflict
			outcome.Reason = "target index already exists"
			logger.Warnf("would halt, target %s of %s already exists", target, source)
		} else {
			logger.Infof("would reindex %s -> %s", source, target)
		}
		report.Outcomes = append(report.Outcomes, outcome)
	}
	report.Remaining = preview

	if len(preview) == 0 {
		d.transition(ctx, PhaseEmpty)
		utils.GetLogger(ctx).Info("no index needs to be migrated")
	}
	return nil
}

// execute drives every entry to a terminal state, active entries first, then
// pending ones, each group in ascending source order. The first error halts
// the run; entries not reached stay in the state for the next run.
func (d *Driver) execute(ctx context.Context) ([]*Outcome, error) {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	d.mu.Lock()
	var order []string
	for _, entry := range d.state.Active() {
		order = append(order, entry.SourceIndex)
	}
	for _, entry := range d.state.Pending() {
		order = append(order, entry.SourceIndex)
	}
	d.mu.Unlock()

	var (
		haltErr  error
		haltOnce sync.Once
	)
	halt := func(err error) {
		haltOnce.Do(func() {
			haltErr = err
			cancel()
		})
	}

	outcomes := skipmap.NewString()
	finishCount := atomic.Int32{}
	pool := pond.New(cast.ToInt(d.parallelism), len(order))
	for _, source := range order {
		source := source
		pool.Submit(func() {
			if runCtx.Err() != nil {
				return
			}
			outcome, err := d.process(runCtx, source)
			if outcome != nil {
				outcomes.Store(source, outcome)
			}
			if err != nil {
				halt(err)
				return
			}
			finishCount.Add(1)
			utils.GetLogger(runCtx).Infof("reindex progress %0.4f (%d, %d)",
				float64(finishCount.Load())/float64(len(order)), finishCount.Load(), len(order))
		})
	}
	pool.StopAndWait()

	// skipmap ranges in key hash order
	sources := append([]string(nil), order...)
	sort.Strings(sources)
	var results []*Outcome
	for _, source := range sources {
		if value, ok := outcomes.Load(source); ok {
			results = append(results, value.(*Outcome))
		}
	}

	if haltErr == nil && ctx.Err() != nil {
		haltErr = ctx.Err()
	}
	return results, errors.WithStack(haltErr)
}

// process starts the migration of source when it is pending and waits for
// its job.
func (d *Driver) process(ctx context.Context, source string) (*Outcome, error) {
	d.mu.Lock()
	entry, ok := d.state[source]
	if !ok {
		d.mu.Unlock()
		return nil, nil
	}
	pending := entry.IsPending()
	targetIndex, jobHandle := entry.TargetIndex, entry.JobHandle
	d.mu.Unlock()

	if pending {
		targetIndex = TargetIndexName(source, d.suffix)
	}
	ctx = utils.SetCtxKeySourceIndex(ctx, source)
	ctx = utils.SetCtxKeyTargetIndex(ctx, targetIndex)

	if pending {
		d.transition(ctx, PhaseCheckingTarget)
		handle, err := d.executor.StartMigration(ctx, source, targetIndex)
		if err != nil {
			return d.startFailed(ctx, source, targetIndex, err)
		}
		jobHandle = handle

		d.mu.Lock()
		entry.Activate(targetIndex, jobHandle)
		err = d.persistLocked()
		d.mu.Unlock()
		if err != nil {
			return nil, errors.WithStack(err)
		}
		d.transition(ctx, PhaseStarting)
	} else {
		utils.GetLogger(ctx).Infof("resume polling task %s", jobHandle)
	}

	ctx = utils.SetCtxKeyJobHandle(ctx, jobHandle)
	d.transition(ctx, PhasePolling)

	status, err := d.wait(ctx, jobHandle)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	return d.finish(ctx, source, targetIndex, jobHandle, status)
}

func (d *Driver) startFailed(ctx context.Context, source, targetIndex string, err error) (*Outcome, error) {
	outcome := &Outcome{
		SourceIndex: source,
		TargetIndex: targetIndex,
		Reason:      err.Error(),
	}

	switch {
	case utils.IsCustomError(err, utils.TargetConflict):
		d.transition(ctx, PhaseConflict)
		utils.GetLogger(ctx).Errorf("halt: target %s already exists, delete or alias %s if it is already migrated, "+
			"otherwise delete %s", targetIndex, source, targetIndex)
		outcome.Result = OutcomeConflict
		return outcome, errors.WithStack(err)
	case utils.IsCustomError(err, utils.NonIndexExisted):
		utils.GetLogger(ctx).Warnf("index %s vanished, skip it", source)
		outcome.Result = OutcomeSkipped

		d.mu.Lock()
		delete(d.state, source)
		persistErr := d.persistLocked()
		d.mu.Unlock()
		return outcome, errors.WithStack(persistErr)
	default:
		return nil, errors.WithStack(err)
	}
}

func (d *Driver) wait(ctx context.Context, jobHandle string) (*JobStatus, error) {
	bar := utils.NewProgressBar(ctx, "reindex", 0)
	defer bar.Finish()

	status, err := d.poller.WaitForTerminal(ctx, jobHandle, func(status *JobStatus) {
		bar.Update(status.Progress.Done(), status.Progress.Total)
	})
	return status, errors.WithStack(err)
}

// finish removes a terminal entry, recording it in the failure ledger when
// its job failed.
func (d *Driver) finish(ctx context.Context, source, targetIndex, jobHandle string, status *JobStatus) (*Outcome, error) {
	outcome := &Outcome{
		SourceIndex: source,
		TargetIndex: targetIndex,
		JobHandle:   jobHandle,
	}

	if status.State == JobCompleted {
		d.transition(ctx, PhaseCompleted)
		outcome.Result = OutcomeCompleted
		utils.GetLogger(ctx).Infof("reindex %s -> %s completed", source, targetIndex)
		if d.verifyDocCount {
			d.verify(ctx, outcome)
		}
	} else {
		d.transition(ctx, PhaseFailed)
		outcome.Result = OutcomeFailed
		outcome.Reason = status.Reason
		utils.GetLogger(ctx).Errorf("reindex %s -> %s failed: %s", source, targetIndex, status.Reason)

		if err := d.ledger.Record(&FailureRecord{
			SourceIndex: source,
			TargetIndex: targetIndex,
			JobHandle:   jobHandle,
			Reason:      status.Reason,
		}); err != nil {
			return outcome, errors.WithStack(err)
		}
	}

	d.mu.Lock()
	delete(d.state, source)
	err := d.persistLocked()
	d.mu.Unlock()
	return outcome, errors.WithStack(err)
}

func (d *Driver) verify(ctx context.Context, outcome *Outcome) {
	sourceCount, err := d.catalog.Count(ctx, outcome.SourceIndex)
	if err != nil {
		utils.GetLogger(ctx).Warnf("count %s: %+v", outcome.SourceIndex, err)
		return
	}
	targetCount, err := d.catalog.Count(ctx, outcome.TargetIndex)
	if err != nil {
		utils.GetLogger(ctx).Warnf("count %s: %+v", outcome.TargetIndex, err)
		return
	}

	outcome.SourceCount = sourceCount
	outcome.TargetCount = targetCount
	outcome.CountMismatch = sourceCount != targetCount
	if outcome.CountMismatch {
		utils.GetLogger(ctx).Warnf("document count mismatch, %s has %d, %s has %d",
			outcome.SourceIndex, sourceCount, outcome.TargetIndex, targetCount)
	}
}

// persistLocked checks the invariants and saves the state. d.mu must be held.
func (d *Driver) persistLocked() error {
	if err := d.state.CheckInvariants(d.suffix); err != nil {
		return errors.WithStack(err)
	}
	return errors.WithStack(d.store.Save(d.state))
}

func (d *Driver) setState(state MigrationState) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.state = state
}

func (d *Driver) cloneState() MigrationState {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.cloneStateLocked()
}

func (d *Driver) cloneStateLocked() MigrationState {
	state, err := d.state.Clone()
	if err != nil {
		return MigrationState{}
	}
	return state
}

func (d *Driver) transition(ctx context.Context, phase Phase) {
	d.mu.Lock()
	d.phase = phase
	var state MigrationState
	if d.observer != nil {
		state = d.cloneStateLocked()
	}
	d.mu.Unlock()

	utils.GetLogger(ctx).Debugf("phase %s", phase)
	if d.observer != nil {
		d.observer.Observe(phase, state)
	}
}
