package notifications

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Payload keys.
const (
	KeyFile      = "file"
	KeyFinalPath = "final_path"
	KeyRemoteID  = "remote_id"
	KeyRemoteURL = "remote_url"
	KeyReason    = "reason"
	KeyDetail    = "detail"
	KeyLastState = "last_state"
	KeyElapsed   = "elapsed"
	KeyMessage   = "message"
)

type message struct {
	title    string
	body     string
	tags     []string
	priority string
	click    string
}

var titleCaser = cases.Title(language.English)

func buildMessage(event Event, payload Payload) (message, bool) {
	name := filepath.Base(payload.str(KeyFile))
	switch event {
	case EventUploadSucceeded:
		lines := []string{name}
		lines = appendField(lines, "Remote", payload.str(KeyRemoteURL))
		lines = appendField(lines, "ID", payload.str(KeyRemoteID))
		lines = appendField(lines, "Moved to", payload.str(KeyFinalPath))
		return message{
			title: "Hopper - Upload Complete",
			body:  strings.Join(lines, "\n"),
			tags:  []string{"hopper", "upload", "completed"},
			click: payload.str(KeyRemoteURL),
		}, true
	case EventUploadFailed:
		lines := []string{name}
		lines = appendField(lines, "Reason", payload.str(KeyReason))
		lines = appendField(lines, "Detail", payload.str(KeyDetail))
		lines = appendField(lines, "Last state", payload.str(KeyLastState))
		if elapsed, ok := payload[KeyElapsed].(time.Duration); ok && elapsed > 0 {
			lines = appendField(lines, "Elapsed", elapsed.Round(time.Millisecond).String())
		}
		return message{
			title:    "Hopper - " + reasonTitle(payload.str(KeyReason)),
			body:     strings.Join(lines, "\n"),
			tags:     []string{"hopper", "upload", "failed"},
			priority: "high",
		}, true
	case EventRelocationFailed:
		lines := []string{name, "Uploaded, but the file could not be moved out of the watch folder."}
		lines = appendField(lines, "Remote", payload.str(KeyRemoteURL))
		lines = appendField(lines, "ID", payload.str(KeyRemoteID))
		lines = appendField(lines, "Error", payload.str(KeyDetail))
		return message{
			title:    "Hopper - Relocation Failed",
			body:     strings.Join(lines, "\n"),
			tags:     []string{"hopper", "relocation", "warning"},
			priority: "high",
			click:    payload.str(KeyRemoteURL),
		}, true
	case EventTest:
		body := payload.str(KeyMessage)
		if body == "" {
			body = "Notification delivery is working."
		}
		return message{
			title: "Hopper - Test Notification",
			body:  body,
			tags:  []string{"hopper", "test"},
		}, true
	default:
		return message{}, false
	}
}

// reasonTitle turns "CompletionTimeout" into "Completion Timeout".
func reasonTitle(reason string) string {
	if reason == "" {
		return "Upload Failed"
	}
	var b strings.Builder
	for i, r := range reason {
		if i > 0 && unicode.IsUpper(r) {
			b.WriteByte(' ')
		}
		b.WriteRune(r)
	}
	return titleCaser.String(b.String())
}

func appendField(lines []string, label, value string) []string {
	if value == "" {
		return lines
	}
	return append(lines, fmt.Sprintf("%s: %s", label, value))
}

func (p Payload) str(key string) string {
	if p == nil {
		return ""
	}
	switch v := p[key].(type) {
	case string:
		return strings.TrimSpace(v)
	case fmt.Stringer:
		return strings.TrimSpace(v.String())
	default:
		return ""
	}
}
