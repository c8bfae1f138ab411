package main

import (
	"github.com/spf13/cobra"

	"hopper/internal/daemonrun"
)

func newWatchCommand(ctx *commandContext) *cobra.Command {
	var logLevel string
	var development bool
	var quiet bool

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Watch the configured folder and upload finished recordings",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			return daemonrun.Run(cmd.Context(), cfg, daemonrun.Options{
				LogLevel:    logLevel,
				Development: development,
				Transports:  ctx.transports,
				Quiet:       quiet,
			})
		},
	}

	cmd.Flags().StringVar(&logLevel, "log-level", "", "Override the configured log level (debug, info, warn, error)")
	cmd.Flags().BoolVar(&development, "dev", false, "Include source locations in log output")
	cmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "Only write logs to the log directory")
	return cmd
}
