package main

import (
	"github.com/CharellKing/ela-reindex/service/gateway"
	"github.com/CharellKing/ela-reindex/service/reindex"
	"github.com/CharellKing/ela-reindex/service/task"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

func newRunCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "run [task...]",
		Short: "Run the configured tasks in order, or only the named ones",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			taskMgr, err := task.NewTaskMgr(ctx, a.cfg)
			if err != nil {
				return errors.WithStack(err)
			}

			if a.cfg.Status.Address != "" {
				board := gateway.NewBoard(a.cfg.Reindex.TargetSuffix, reindex.NewFailureLedger(a.cfg.Reindex.StateFile))
				stop, err := a.startStatus(ctx, board)
				if err != nil {
					return errors.WithStack(err)
				}
				defer stop()
				taskMgr = taskMgr.WithObserver(board)
			}

			return errors.WithStack(taskMgr.Run(ctx, args...))
		},
	}
}
