// Package deps locates the external executables hopper launches.
package deps

import (
	"fmt"
	"os/exec"
	"strings"
)

// Requirement names an executable by one or more interchangeable candidates.
// Candidates are tried in order.
type Requirement struct {
	Name        string
	Description string
	Candidates  []string
}

// Status reports the availability of a requirement. Command holds the
// resolved path when Available.
type Status struct {
	Name        string
	Description string
	Command     string
	Available   bool
	Detail      string
}

// Check resolves the first candidate found on PATH. Candidates containing a
// path separator are checked as given.
func Check(req Requirement) Status {
	status := Status{Name: req.Name, Description: strings.TrimSpace(req.Description)}

	tried := make([]string, 0, len(req.Candidates))
	for _, candidate := range req.Candidates {
		candidate = strings.TrimSpace(candidate)
		if candidate == "" {
			continue
		}
		tried = append(tried, candidate)
		if resolved, err := exec.LookPath(candidate); err == nil {
			status.Command = resolved
			status.Available = true
			return status
		}
	}

	switch len(tried) {
	case 0:
		status.Detail = "command not configured"
	case 1:
		status.Command = tried[0]
		status.Detail = fmt.Sprintf("%q not found", tried[0])
	default:
		status.Detail = fmt.Sprintf("none found on PATH (tried %s)", strings.Join(tried, ", "))
	}
	return status
}
