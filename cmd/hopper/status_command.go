package main

import (
	"fmt"
	"path/filepath"
	"strconv"

	"github.com/spf13/cobra"

	"hopper/internal/api"
	"hopper/internal/daemonrun"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the state of a running watcher",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			colorize := shouldColorize(out)

			if cfg.Paths.APIBind == "" {
				if pid, ok := daemonrun.ReadPID(cfg); ok {
					printLines(out, renderStatusLine("Daemon", statusWarn, fmt.Sprintf("pid %d, API disabled (paths.api_bind is empty)", pid), colorize))
					return nil
				}
				printLines(out, renderStatusLine("Daemon", statusInfo, "not running", colorize))
				return nil
			}

			status, err := api.NewClient(cfg.Paths.APIBind).Status(cmd.Context())
			if err != nil {
				if jsonOutput {
					return writeJSON(cmd, api.DaemonStatus{Running: false})
				}
				printLines(out, renderStatusLine("Daemon", statusInfo, "not running", colorize))
				return nil
			}
			if jsonOutput {
				return writeJSON(cmd, status)
			}
			printDaemonStatus(cmd, status, colorize)
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Print status as JSON")
	return cmd
}

func printDaemonStatus(cmd *cobra.Command, status api.DaemonStatus, colorize bool) {
	out := cmd.OutOrStdout()
	pipeline := status.Pipeline

	printLines(out, renderSectionHeader("Daemon", colorize)...)
	kind, state := statusOK, "running"
	if !status.Running {
		kind, state = statusWarn, "stopped"
	}
	printLines(out,
		renderStatusLine("State", kind, state, colorize),
		renderValueLine("PID", strconv.Itoa(status.PID)),
		renderValueLine("Started", status.StartedAt),
		renderValueLine("Watching", status.WatchDir),
		renderValueLine("Uploaded to", status.UploadedDir),
		renderValueLine("History", status.HistoryPath),
	)

	fmt.Fprintln(out)
	printLines(out, renderSectionHeader("Pipeline", colorize)...)
	current := "none"
	if pipeline.Current != nil {
		current = filepath.Base(pipeline.Current.Path)
	}
	printLines(out,
		renderValueLine("Stage", pipeline.Stage),
		renderValueLine("Current", current),
		renderValueLine("Queued", strconv.Itoa(pipeline.QueueDepth)),
		renderValueLine("Processed", strconv.FormatInt(pipeline.Processed, 10)),
		renderValueLine("Succeeded", strconv.FormatInt(pipeline.Succeeded, 10)),
		renderValueLine("Failed", strconv.FormatInt(pipeline.Failed, 10)),
		renderValueLine("Ignored", strconv.FormatInt(pipeline.Ignored, 10)),
		renderValueLine("All-time", fmt.Sprintf("%d succeeded, %d failed", status.Totals.Success, status.Totals.Failure)),
	)
	if pipeline.LastError != "" {
		printLines(out, renderStatusLine("Last error", statusError, pipeline.LastError, colorize))
	}

	if len(pipeline.Pending) > 0 {
		rows := make([][]string, 0, len(pipeline.Pending))
		for i, entry := range pipeline.Pending {
			rows = append(rows, []string{strconv.Itoa(i + 1), filepath.Base(entry.Path), entry.EnqueuedAt})
		}
		fmt.Fprintln(out)
		fmt.Fprintln(out, renderTable([]string{"#", "File", "Queued at"}, rows, []columnAlignment{alignRight, alignLeft, alignLeft}))
	}
}
