package main

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"hopper/internal/api"
	"hopper/internal/history"
)

func newHistoryCommand(ctx *commandContext) *cobra.Command {
	var limit int
	var jsonOutput bool
	var pruneDays int

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List journaled upload outcomes",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			store, err := history.Open(cfg.HistoryPath())
			if err != nil {
				return fmt.Errorf("open history: %w", err)
			}
			defer store.Close()

			out := cmd.OutOrStdout()
			if pruneDays > 0 {
				cutoff := time.Now().Add(-time.Duration(pruneDays) * 24 * time.Hour)
				removed, err := store.Prune(cmd.Context(), cutoff)
				if err != nil {
					return fmt.Errorf("prune history: %w", err)
				}
				fmt.Fprintf(out, "Removed %d entries older than %d days\n", removed, pruneDays)
				return nil
			}

			if limit <= 0 {
				limit = history.DefaultListLimit
			}
			entries, err := store.List(cmd.Context(), limit)
			if err != nil {
				return fmt.Errorf("list history: %w", err)
			}
			if jsonOutput {
				return writeJSON(cmd, api.HistoryResponse{Entries: api.FromHistoryEntries(entries)})
			}
			if len(entries) == 0 {
				fmt.Fprintln(out, "No uploads recorded")
				return nil
			}

			rows := make([][]string, 0, len(entries))
			for _, entry := range entries {
				rows = append(rows, historyRow(entry))
			}
			fmt.Fprintln(out, renderTable(
				[]string{"Finished", "Status", "File", "Reason", "Remote"},
				rows,
				[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignLeft},
			))

			counts, err := store.Counts(cmd.Context())
			if err == nil {
				fmt.Fprintf(out, "Total: %d succeeded, %d failed\n", counts.Success, counts.Failure)
			}
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", history.DefaultListLimit, "Maximum entries to show")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Print entries as JSON")
	cmd.Flags().IntVar(&pruneDays, "prune-days", 0, "Delete entries older than this many days instead of listing")
	return cmd
}

func historyRow(entry history.Entry) []string {
	finished := ""
	if !entry.FinishedAt.IsZero() {
		finished = entry.FinishedAt.Local().Format("2006-01-02 15:04:05")
	}
	remote := entry.RemoteURL
	if remote == "" {
		remote = entry.RemoteID
	}
	return []string{finished, string(entry.Status), filepath.Base(entry.Path), entry.Reason, remote}
}
