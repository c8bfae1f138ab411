package notifications

import (
	"context"
	"log/slog"
	"time"

	"hopper/internal/logging"
	"hopper/internal/outcome"
)

// Report describes one file's terminal result.
type Report struct {
	File      string
	FinalPath string
	RemoteID  string
	RemoteURL string
	Reason    outcome.Reason
	Detail    string
	LastState string
	Elapsed   time.Duration
}

// ReportFromOutcome builds a Report for the file.
func ReportFromOutcome(file string, o outcome.Outcome) Report {
	return Report{
		File:      file,
		FinalPath: o.FinalPath(),
		RemoteID:  o.RemoteID(),
		RemoteURL: o.RemoteURL(),
		Reason:    o.Reason(),
		Detail:    o.Detail(),
		LastState: o.LastState(),
		Elapsed:   o.Elapsed(),
	}
}

// Notifier is the best-effort reporting surface used by the pipeline.
// Its methods never fail; delivery errors are logged.
type Notifier struct {
	svc    Service
	logger *slog.Logger
}

// NewNotifier wraps svc. A nil svc discards reports.
func NewNotifier(svc Service, logger *slog.Logger) *Notifier {
	if svc == nil {
		svc = noopService{}
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Notifier{svc: svc, logger: logger}
}

// NotifySuccess reports an uploaded and relocated file.
func (n *Notifier) NotifySuccess(ctx context.Context, r Report) {
	n.publish(ctx, EventUploadSucceeded, Payload{
		KeyFile:      r.File,
		KeyFinalPath: r.FinalPath,
		KeyRemoteID:  r.RemoteID,
		KeyRemoteURL: r.RemoteURL,
		KeyDetail:    r.Detail,
	})
}

// NotifyFailure reports a file that stays in the watch folder.
func (n *Notifier) NotifyFailure(ctx context.Context, r Report) {
	event := EventUploadFailed
	if r.Reason == outcome.ReasonRelocationFailed {
		event = EventRelocationFailed
	}
	n.publish(ctx, event, Payload{
		KeyFile:      r.File,
		KeyRemoteID:  r.RemoteID,
		KeyRemoteURL: r.RemoteURL,
		KeyReason:    string(r.Reason),
		KeyDetail:    r.Detail,
		KeyLastState: r.LastState,
		KeyElapsed:   r.Elapsed,
	})
}

func (n *Notifier) publish(ctx context.Context, event Event, payload Payload) {
	if n == nil {
		return
	}
	// Delivery outlives caller cancellation; transports carry their own timeouts.
	ctx = context.WithoutCancel(ctx)
	if err := n.svc.Publish(ctx, event, payload); err != nil {
		logging.WarnWithContext(n.logger, "notification delivery failed", "notification_failed",
			logging.String("event", string(event)),
			logging.String(logging.FieldFile, payload.str(KeyFile)),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check notifications.ntfy_topic and notifications.email settings"),
			logging.String(logging.FieldImpact, "operator was not notified of this outcome"),
		)
		return
	}
	n.logger.Debug("notification sent", logging.Args(
		logging.String("event", string(event)),
		logging.String(logging.FieldFile, payload.str(KeyFile)),
	)...)
}
