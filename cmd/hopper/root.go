package main

import (
	"github.com/spf13/cobra"

	"hopper/internal/session"
)

func newRootCommand() *cobra.Command {
	return newRootCommandWithTransports(nil)
}

// newRootCommandWithTransports builds the CLI with the upload transport
// replaced when transports is non-nil.
func newRootCommandWithTransports(transports session.TransportFactory) *cobra.Command {
	var configFlag string

	ctx := newCommandContext(&configFlag)
	ctx.transports = transports

	rootCmd := &cobra.Command{
		Use:           "hopper",
		Short:         "Upload finished recordings from a watch folder",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if shouldSkipConfig(cmd) {
				return nil
			}
			_, err := ctx.ensureConfig()
			return err
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	rootCmd.PersistentFlags().StringVarP(&configFlag, "config", "c", "", "Configuration file path")

	rootCmd.AddCommand(newWatchCommand(ctx))
	rootCmd.AddCommand(newUploadCommand(ctx))
	rootCmd.AddCommand(newStatusCommand(ctx))
	rootCmd.AddCommand(newHistoryCommand(ctx))
	rootCmd.AddCommand(newPreflightCommand(ctx))
	rootCmd.AddCommand(newTestNotifyCommand(ctx))
	rootCmd.AddCommand(newConfigCommand(ctx))

	return rootCmd
}
