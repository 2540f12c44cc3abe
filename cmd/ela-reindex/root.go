package main

import (
	"github.com/CharellKing/ela-reindex/config"
	"github.com/CharellKing/ela-reindex/utils"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// Version is set at build time with -ldflags "-X main.Version=...".
var Version = "dev"

type app struct {
	v          *viper.Viper
	configPath string
	cfg        *config.Config
}

func newRootCmd() *cobra.Command {
	a := &app{v: config.NewViper()}

	rootCmd := &cobra.Command{
		Use:           "ela-reindex",
		Short:         "Bring drifted indices back in line with the latest mapping",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(a.v, a.configPath)
			if err != nil {
				return errors.WithStack(utils.NewCustomError(utils.InvalidConfig, "load config: %v", err))
			}
			a.cfg = cfg
			utils.InitLogger(cfg)
			return nil
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&a.configPath, "config", "c", "", "yaml config file")
	flags.String("level", "", "log level: debug, info, warn or error")
	flags.String("state-file", "", "migration state file")
	_ = a.v.BindPFlag("level", flags.Lookup("level"))
	_ = a.v.BindPFlag("reindex.state_file", flags.Lookup("state-file"))

	rootCmd.AddCommand(
		newReindexCmd(a),
		newProvisionCmd(a),
		newFailuresCmd(a),
		newRunCmd(a),
		newVersionCmd(),
	)
	return rootCmd
}
