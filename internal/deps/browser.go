package deps

import (
	"errors"
	"strings"
)

// BrowserCandidates are the executable names probed when no explicit
// browser path is configured, in order.
var BrowserCandidates = []string{
	"chromium",
	"chromium-browser",
	"google-chrome",
	"google-chrome-stable",
	"headless-shell",
}

// BrowserRequirement describes the browser the upload transport launches.
// An explicit execPath replaces the candidate list.
func BrowserRequirement(execPath string) Requirement {
	candidates := BrowserCandidates
	if explicit := strings.TrimSpace(execPath); explicit != "" {
		candidates = []string{explicit}
	}
	return Requirement{
		Name:        "Browser",
		Description: "Required for remote uploads",
		Candidates:  candidates,
	}
}

// ResolveBrowser returns the path of the browser executable.
func ResolveBrowser(execPath string) (string, error) {
	status := CheckBrowser(execPath)
	if !status.Available {
		return "", errors.New("browser " + status.Detail)
	}
	return status.Command, nil
}

// CheckBrowser reports browser availability.
func CheckBrowser(execPath string) Status {
	return Check(BrowserRequirement(execPath))
}
