package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"hopper/internal/preflight"
)

func newPreflightCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "preflight",
		Short: "Check folders, browser, credentials and connectivity",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			results := preflight.RunAll(cmd.Context(), cfg)

			rows := make([][]string, 0, len(results))
			for _, result := range results {
				rows = append(rows, []string{result.Name, statusKindLabel(preflightKind(result)), result.Detail})
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable([]string{"Check", "Result", "Detail"}, rows, nil))
			if preflight.Failed(results) {
				return errors.New("preflight checks failed")
			}
			return nil
		},
	}
}

func preflightKind(result preflight.Result) statusKind {
	switch {
	case !result.Passed:
		return statusError
	case result.Warning:
		return statusWarn
	default:
		return statusOK
	}
}
