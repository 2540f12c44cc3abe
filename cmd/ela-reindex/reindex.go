package main

import (
	"context"
	"time"

	"github.com/CharellKing/ela-reindex/config"
	"github.com/CharellKing/ela-reindex/pkg/es"
	"github.com/CharellKing/ela-reindex/service/gateway"
	"github.com/CharellKing/ela-reindex/service/reindex"
	"github.com/CharellKing/ela-reindex/service/task"
	"github.com/CharellKing/ela-reindex/utils"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

const shutdownTimeout = 5 * time.Second

func newReindexCmd(a *app) *cobra.Command {
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "reindex",
		Short: "Detect drifted indices and copy each into <index>-<suffix>",
		Long: `reindex compares every index matching the pattern with the most recently
created one. Indices whose mapping differs are recorded in the state file and
copied with the cluster's asynchronous reindex, one target per source. A run
that is interrupted resumes from the state file on the next invocation.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.reindex(cmd.Context(), dryRun)
		},
	}

	flags := cmd.Flags()
	flags.BoolVar(&dryRun, "dry-run", false, "report the planned migrations without changing anything")
	flags.StringSlice("addresses", nil, "cluster endpoints")
	flags.String("user", "", "cluster user")
	flags.String("password", "", "cluster password")
	flags.String("pattern", "", "index name pattern, e.g. logs-*")
	flags.String("suffix", "", "suffix of the target indices")
	flags.Uint("parallelism", 0, "migrations running at the same time")
	flags.Duration("poll-interval", 0, "interval between task status checks")
	flags.String("status-address", "", "serve the run status on this address")
	for flag, key := range map[string]string{
		"addresses":      "elastic.addresses",
		"user":           "elastic.user",
		"password":       "elastic.password",
		"pattern":        "reindex.index_pattern",
		"suffix":         "reindex.target_suffix",
		"parallelism":    "reindex.parallelism",
		"poll-interval":  "reindex.poll_interval",
		"status-address": "status.address",
	} {
		_ = a.v.BindPFlag(key, flags.Lookup(flag))
	}
	return cmd
}

func (a *app) reindex(ctx context.Context, dryRun bool) error {
	if err := a.cfg.ValidateReindex(); err != nil {
		return errors.WithStack(utils.NewCustomError(utils.InvalidConfig, "%s", err.Error()))
	}

	esInstance, err := es.NewESV0(a.cfg.ESConfig).GetES(ctx)
	if err != nil {
		return errors.WithStack(err)
	}

	taskCfg := &config.TaskCfg{
		Name:       "reindex",
		TaskAction: config.TaskActionReindex,
		DryRun:     dryRun,
	}
	reindexTask := task.NewTaskWithES(ctx, taskCfg, a.cfg, esInstance)

	if a.cfg.Status.Address != "" {
		board := gateway.NewBoard(a.cfg.Reindex.TargetSuffix, reindex.NewFailureLedger(a.cfg.Reindex.StateFile))
		stop, err := a.startStatus(reindexTask.GetCtx(), board)
		if err != nil {
			return errors.WithStack(err)
		}
		defer stop()
		reindexTask = reindexTask.WithObserver(board)
	}

	report, err := reindexTask.Reindex()
	if report != nil {
		logReport(reindexTask.GetCtx(), report)
	}
	return errors.WithStack(err)
}

// startStatus serves board until the returned stop func is called.
func (a *app) startStatus(ctx context.Context, board *gateway.Board) (func(), error) {
	statusGateway := gateway.NewStatusGateway(a.cfg.Status, board)
	if err := statusGateway.Start(ctx); err != nil {
		return nil, errors.WithStack(err)
	}

	return func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := statusGateway.Shutdown(shutdownCtx); err != nil {
			utils.GetLogger(ctx).Warnf("status gateway shutdown: %+v", err)
		}
	}, nil
}

func logReport(ctx context.Context, report *reindex.Report) {
	logger := utils.GetLogger(ctx).WithFields(log.Fields{
		"runId":      report.RunID,
		"discovered": report.Discovered,
		"reference":  report.Reference,
	})

	for _, outcome := range report.Outcomes {
		fields := log.Fields{
			"result":                        string(outcome.Result),
			string(utils.CtxKeySourceIndex): outcome.SourceIndex,
			string(utils.CtxKeyTargetIndex): outcome.TargetIndex,
		}
		if outcome.JobHandle != "" {
			fields[string(utils.CtxKeyJobHandle)] = outcome.JobHandle
		}
		if outcome.Reason != "" {
			fields["reason"] = outcome.Reason
		}
		if outcome.CountMismatch {
			fields["sourceCount"] = outcome.SourceCount
			fields["targetCount"] = outcome.TargetCount
		}
		logger.WithFields(fields).Info("migration outcome")
	}

	logger.Infof("%d outcomes, %d entries remaining", len(report.Outcomes), len(report.Remaining))
}
