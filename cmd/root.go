// Package cmd is the theo command line.
package cmd

import (
	"os"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	configx "github.com/tanpawarit/theo-ai/pkg/config"
	logx "github.com/tanpawarit/theo-ai/pkg/logger"
)

// Version is set at build time.
var Version = "dev"

const rootLongDesc = `Theo is a stateless chat orchestrator for enterprise ops.

Each request carries its whole conversation; Theo researches with tools,
optionally schedules a calendar event, and returns one reply.

  theo serve     Run the HTTP API
  theo models    Print the provider and model catalog`

func NewRootCmd() *cobra.Command {
	var envFile string

	cmd := &cobra.Command{
		Use:           "theo",
		Short:         "Theo - stateless chat orchestrator",
		Long:          rootLongDesc,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			configx.SetEnvFile(envFile)

			// LOG_* may come from the .env file, so the logger is rebuilt
			// once it has been applied.
			logCfg, err := configx.New[logx.Config]("LOG")
			if err != nil {
				return err
			}
			if debug, _ := cmd.Flags().GetBool("debug"); debug {
				logCfg.Debug = true
			}
			logx.Init(*logCfg)
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&envFile, "env", "", "path to .env file")
	cmd.PersistentFlags().BoolP("debug", "d", false, "enable debug logging")

	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newModelsCmd())

	return cmd
}

func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		log.Error().Err(err).Msg("theo failed")
		os.Exit(1)
	}
}
