package main

import (
	"context"

	"github.com/CharellKing/ela-reindex/config"
	"github.com/CharellKing/ela-reindex/pkg/es"
	"github.com/CharellKing/ela-reindex/service/task"
	"github.com/CharellKing/ela-reindex/utils"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

func newProvisionCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "provision",
		Short: "Manage sample indices with their template and lifecycle policy",
	}

	flags := cmd.PersistentFlags()
	flags.String("prefix", "", "name prefix of the sample indices")
	flags.Uint("count", 0, "number of sample indices")
	flags.Uint("docs", 0, "documents seeded into each index")
	_ = a.v.BindPFlag("provision.index_prefix", flags.Lookup("prefix"))
	_ = a.v.BindPFlag("provision.index_count", flags.Lookup("count"))
	_ = a.v.BindPFlag("provision.docs_per_index", flags.Lookup("docs"))

	cmd.AddCommand(
		&cobra.Command{
			Use:   "create",
			Short: "Put the index template, create and seed the indices, put the lifecycle policy",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return a.runAction(cmd.Context(), config.TaskActionProvisionCreate)
			},
		},
		&cobra.Command{
			Use:   "delete",
			Short: "Delete what create made",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return a.runAction(cmd.Context(), config.TaskActionProvisionDelete)
			},
		},
		&cobra.Command{
			Use:   "settings",
			Short: "Put provision.cluster_settings",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return a.runAction(cmd.Context(), config.TaskActionClusterSettings)
			},
		},
	)
	return cmd
}

// runAction runs a single ad hoc task with the given action.
func (a *app) runAction(ctx context.Context, action config.TaskAction) error {
	if err := a.cfg.ValidateElastic(); err != nil {
		return errors.WithStack(utils.NewCustomError(utils.InvalidConfig, "%s", err.Error()))
	}

	esInstance, err := es.NewESV0(a.cfg.ESConfig).GetES(ctx)
	if err != nil {
		return errors.WithStack(err)
	}

	taskCfg := &config.TaskCfg{Name: string(action), TaskAction: action}
	_, err = task.NewTaskWithES(ctx, taskCfg, a.cfg, esInstance).Run()
	return errors.WithStack(err)
}
