package main

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/CharellKing/ela-reindex/service/reindex"
	"github.com/CharellKing/ela-reindex/utils"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

func newFailuresCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "failures",
		Short: "Inspect or clear the failed migrations kept next to the state file",
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "list",
			Short: "List failed migrations",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				ledger, err := a.ledger()
				if err != nil {
					return errors.WithStack(err)
				}
				records, err := ledger.List()
				if err != nil {
					return errors.WithStack(err)
				}

				w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(w, "SOURCE\tTARGET\tTASK\tFAILED AT\tREASON")
				for _, record := range records {
					fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", record.SourceIndex, record.TargetIndex,
						record.JobHandle, record.FailedAt.Format(time.RFC3339), record.Reason)
				}
				return errors.WithStack(w.Flush())
			},
		},
		&cobra.Command{
			Use:   "clear [index...]",
			Short: "Clear the given failed migrations, or all of them, so drift detection picks them up again",
			RunE: func(cmd *cobra.Command, args []string) error {
				ledger, err := a.ledger()
				if err != nil {
					return errors.WithStack(err)
				}
				cleared, err := ledger.Clear(args...)
				if err != nil {
					return errors.WithStack(err)
				}
				for _, source := range cleared {
					fmt.Fprintln(cmd.OutOrStdout(), source)
				}
				utils.GetLogger(cmd.Context()).Infof("cleared %d failed migrations", len(cleared))
				return nil
			},
		},
	)
	return cmd
}

func (a *app) ledger() (*reindex.FailureLedger, error) {
	if a.cfg.Reindex.StateFile == "" {
		return nil, errors.WithStack(utils.NewCustomError(utils.InvalidConfig, "reindex.state_file is required"))
	}
	return reindex.NewFailureLedger(a.cfg.Reindex.StateFile), nil
}
