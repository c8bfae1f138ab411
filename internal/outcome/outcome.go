// Package outcome defines the single result produced for every processed file.
package outcome

import (
	"fmt"
	"strings"
	"time"
)

// Reason names why a file did not complete successfully.
type Reason string

const (
	ReasonNone Reason = ""

	// Detection failures.
	ReasonTimedOut    Reason = "TimedOut"
	ReasonDeleted     Reason = "Deleted"
	ReasonAccessError Reason = "AccessError"

	// Session failures.
	ReasonUnauthenticated   Reason = "Unauthenticated"
	ReasonSubmissionError   Reason = "SubmissionError"
	ReasonInitiationTimeout Reason = "InitiationTimeout"
	ReasonCompletionTimeout Reason = "CompletionTimeout"

	// Bookkeeping failure after a successful upload.
	ReasonRelocationFailed Reason = "RelocationFailed"

	// Processing abandoned by shutdown; never reported.
	ReasonAborted Reason = "Aborted"
)

// Category groups reasons into the error taxonomy.
type Category string

const (
	CategoryNone        Category = ""
	CategoryDetection   Category = "detection"
	CategorySession     Category = "session"
	CategoryBookkeeping Category = "bookkeeping"
	CategoryShutdown    Category = "shutdown"
)

// Category returns the taxonomy bucket for the reason.
func (r Reason) Category() Category {
	switch r {
	case ReasonTimedOut, ReasonDeleted, ReasonAccessError:
		return CategoryDetection
	case ReasonUnauthenticated, ReasonSubmissionError, ReasonInitiationTimeout, ReasonCompletionTimeout:
		return CategorySession
	case ReasonRelocationFailed:
		return CategoryBookkeeping
	case ReasonAborted:
		return CategoryShutdown
	default:
		return CategoryNone
	}
}

// Hint returns operator guidance for the reason.
func (r Reason) Hint() string {
	switch r {
	case ReasonTimedOut:
		return "the file kept changing size; check the recorder finished writing and drop it again"
	case ReasonDeleted:
		return "the file was removed before it could be uploaded"
	case ReasonAccessError:
		return "check file permissions for the hopper user"
	case ReasonUnauthenticated:
		return "set remote.username and remote.password (or HOPPER_USERNAME/HOPPER_PASSWORD) and verify the account"
	case ReasonSubmissionError:
		return "the upload page may have changed; review browser.selectors and remote.upload_url"
	case ReasonInitiationTimeout:
		return "the service never accepted the file; check connectivity and retry"
	case ReasonCompletionTimeout:
		return "the service accepted the file but never confirmed processing; check the account before retrying"
	case ReasonRelocationFailed:
		return "the upload succeeded; move the file out of the watch folder manually"
	default:
		return ""
	}
}

// Outcome is the immutable result of handling one file: exactly one of
// success or failure. Construct it with Success or Failure.
type Outcome struct {
	success   bool
	reason    Reason
	remoteID  string
	remoteURL string
	detail    string
	finalPath string
	lastState string
	elapsed   time.Duration
}

// Success builds a successful outcome.
func Success(remoteID, remoteURL, detail string) Outcome {
	return Outcome{success: true, remoteID: remoteID, remoteURL: remoteURL, detail: detail}
}

// Failure builds a failed outcome with the given reason.
func Failure(reason Reason, detail string) Outcome {
	return Outcome{reason: reason, detail: detail}
}

// IsSuccess reports whether the outcome is the success variant.
func (o Outcome) IsSuccess() bool { return o.success }

// Reason is empty for successful outcomes.
func (o Outcome) Reason() Reason { return o.reason }

// RemoteID is the identifier the remote service assigned to the upload.
// Empty for failures.
func (o Outcome) RemoteID() string { return o.remoteID }

// RemoteURL is the public link to the uploaded recording. Empty for failures.
func (o Outcome) RemoteURL() string { return o.remoteURL }

// Detail is free-form text describing the result, such as the failure cause.
func (o Outcome) Detail() string { return o.detail }

// FinalPath is the relocated path, set only after a successful relocation.
func (o Outcome) FinalPath() string { return o.finalPath }

// LastState is the last session state observed before the outcome.
func (o Outcome) LastState() string { return o.lastState }

// Elapsed is the time spent producing the outcome.
func (o Outcome) Elapsed() time.Duration { return o.elapsed }

// WithDiagnostics returns a copy carrying the last observed state and elapsed time.
func (o Outcome) WithDiagnostics(lastState string, elapsed time.Duration) Outcome {
	o.lastState = lastState
	o.elapsed = elapsed
	return o
}

// Relocated returns a copy of a successful outcome recording where the file went.
func (o Outcome) Relocated(finalPath string) Outcome {
	o.finalPath = finalPath
	return o
}

// RelocationFailed converts a successful upload into a bookkeeping failure.
// The remote id and url are preserved so the operator can find the upload.
func (o Outcome) RelocationFailed(err error) Outcome {
	o.success = false
	o.reason = ReasonRelocationFailed
	o.finalPath = ""
	if err != nil {
		o.detail = err.Error()
	}
	return o
}

// String renders a one-line summary.
func (o Outcome) String() string {
	var b strings.Builder
	if o.success {
		b.WriteString("success")
		if o.remoteID != "" {
			fmt.Fprintf(&b, " id=%s", o.remoteID)
		}
		if o.remoteURL != "" {
			fmt.Fprintf(&b, " url=%s", o.remoteURL)
		}
	} else {
		fmt.Fprintf(&b, "failure reason=%s", o.reason)
		if o.lastState != "" {
			fmt.Fprintf(&b, " state=%s", o.lastState)
		}
		if o.elapsed > 0 {
			fmt.Fprintf(&b, " elapsed=%s", o.elapsed.Round(time.Millisecond))
		}
	}
	if o.detail != "" {
		fmt.Fprintf(&b, ": %s", o.detail)
	}
	return b.String()
}
