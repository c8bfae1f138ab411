package main

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"hopper/internal/api"
	"hopper/internal/daemon"
	"hopper/internal/history"
	"hopper/internal/ingest"
	"hopper/internal/notifications"
	"hopper/internal/outcome"
)

func newUploadCommand(ctx *commandContext) *cobra.Command {
	var logLevel string
	var jsonOutput bool
	var skipNotify bool

	cmd := &cobra.Command{
		Use:   "upload <file>",
		Short: "Upload a single recording and exit",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			path, err := filepath.Abs(args[0])
			if err != nil {
				return fmt.Errorf("resolve path: %w", err)
			}
			if _, err := os.Stat(path); err != nil {
				return fmt.Errorf("stat %s: %w", path, err)
			}

			lock, err := daemon.AcquireLock(cfg.LockPath())
			if err != nil {
				return fmt.Errorf("upload refused: %w", err)
			}
			defer lock.Release()

			logger, err := ctx.commandLogger(cfg, logLevel)
			if err != nil {
				return fmt.Errorf("init logger: %w", err)
			}

			store, err := history.Open(cfg.HistoryPath())
			if err != nil {
				return fmt.Errorf("open history: %w", err)
			}
			defer store.Close()

			service := notifications.NewNoop()
			if !skipNotify {
				service = notifications.NewService(cfg, logger)
			}
			ctrl, err := ingest.NewFromConfig(cfg, ingest.Dependencies{
				Transports: ctx.transportFactory(cfg, logger),
				Reporter:   notifications.NewNotifier(service, logger),
				Journal:    store,
				Logger:     logger,
			})
			if err != nil {
				return err
			}
			if !ctrl.Accepts(path) {
				return fmt.Errorf("%s does not match ingest.extensions %v", filepath.Base(path), cfg.Ingest.Extensions)
			}

			runCtx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			result := ctrl.Process(runCtx, path)
			if result.Reason() == outcome.ReasonAborted {
				return errors.Join(fmt.Errorf("upload of %s interrupted", filepath.Base(path)), runCtx.Err())
			}

			if jsonOutput {
				if err := writeJSON(cmd, uploadResult(path, result)); err != nil {
					return err
				}
			} else {
				printOutcome(cmd, path, result)
			}
			if !result.IsSuccess() {
				return fmt.Errorf("upload failed: %s", result.Reason())
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&logLevel, "log-level", "", "Override the configured log level")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Print the outcome as JSON")
	cmd.Flags().BoolVar(&skipNotify, "no-notify", false, "Do not send notifications for this upload")
	return cmd
}

func uploadResult(path string, result outcome.Outcome) api.HistoryEntry {
	status := history.StatusSuccess
	if !result.IsSuccess() {
		status = history.StatusFailure
	}
	return api.HistoryEntry{
		Path:      path,
		FinalPath: result.FinalPath(),
		Status:    string(status),
		Reason:    string(result.Reason()),
		RemoteID:  result.RemoteID(),
		RemoteURL: result.RemoteURL(),
		Detail:    result.Detail(),
	}
}

func printOutcome(cmd *cobra.Command, path string, result outcome.Outcome) {
	out := cmd.OutOrStdout()
	colorize := shouldColorize(out)
	name := filepath.Base(path)
	if result.IsSuccess() {
		printLines(out, renderStatusLine("Upload", statusOK, name, colorize))
		if result.RemoteURL() != "" {
			printLines(out, renderValueLine("Remote", result.RemoteURL()))
		}
		if result.FinalPath() != "" {
			printLines(out, renderValueLine("Moved to", result.FinalPath()))
		}
		return
	}

	kind := statusError
	if result.Reason() == outcome.ReasonRelocationFailed {
		kind = statusWarn
	}
	printLines(out, renderStatusLine("Upload", kind, fmt.Sprintf("%s (%s)", name, result.Reason()), colorize))
	if result.RemoteURL() != "" {
		printLines(out, renderValueLine("Remote", result.RemoteURL()))
	}
	if result.Detail() != "" {
		printLines(out, renderValueLine("Detail", result.Detail()))
	}
	if hint := result.Reason().Hint(); hint != "" {
		printLines(out, renderValueLine("Hint", hint))
	}
}
