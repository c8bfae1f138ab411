package preflight

import (
	"context"

	"hopper/internal/config"
)

// Result reports the outcome of a single preflight check. A Warning result
// passed but needs attention.
type Result struct {
	Name    string
	Passed  bool
	Warning bool
	Detail  string
}

// RunAll executes all applicable preflight checks for the given config.
func RunAll(ctx context.Context, cfg *config.Config) []Result {
	if cfg == nil {
		return nil
	}

	results := []Result{
		CheckDirectoryAccess("Watch folder", cfg.Paths.WatchDir),
		CheckDirectoryAccess("Uploaded folder", cfg.UploadedDir()),
		CheckDirectoryAccess("State directory", cfg.Paths.StateDir),
		CheckFreeSpace("Watch volume", cfg.Paths.WatchDir, MinFreeBytes),
		CheckBrowser(cfg.Browser.ExecPath),
		CheckCredentials(cfg),
	}
	if cfg.Remote.LoginURL != "" {
		results = append(results, CheckReachable(ctx, "Remote service", cfg.Remote.LoginURL))
	}
	return results
}

// Failed reports whether any result failed outright.
func Failed(results []Result) bool {
	for _, r := range results {
		if !r.Passed {
			return true
		}
	}
	return false
}
