package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"hopper/internal/notifications"
)

func newTestNotifyCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "test-notify",
		Short: "Send a test notification",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if cfg.Notifications.NtfyTopic == "" && !cfg.Notifications.Email.Enabled {
				fmt.Fprintln(out, "Notifications are not configured (set notifications.ntfy_topic or enable notifications.email)")
				return nil
			}
			logger, err := ctx.commandLogger(cfg, "")
			if err != nil {
				return fmt.Errorf("init logger: %w", err)
			}
			service := notifications.NewService(cfg, logger)
			payload := notifications.Payload{notifications.KeyMessage: "Hopper can reach your notification targets."}
			if err := service.Publish(cmd.Context(), notifications.EventTest, payload); err != nil {
				return fmt.Errorf("send test notification: %w", err)
			}
			fmt.Fprintln(out, "Test notification sent")
			return nil
		},
	}
}
