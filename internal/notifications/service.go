package notifications

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"hopper/internal/config"
	"hopper/internal/logging"
)

const userAgent = "hopper/0.1"

// Event identifies a notification kind.
type Event string

const (
	EventUploadSucceeded  Event = "upload_succeeded"
	EventUploadFailed     Event = "upload_failed"
	EventRelocationFailed Event = "relocation_failed"
	EventTest             Event = "test"
)

// Payload carries event fields. Keys are documented next to each message
// builder in format.go.
type Payload map[string]any

// Service defines the notification surface used by the pipeline.
type Service interface {
	Publish(ctx context.Context, event Event, payload Payload) error
}

// NewService builds a Service from configuration.
func NewService(cfg *config.Config, logger *slog.Logger) Service {
	if logger == nil {
		logger = logging.NewNop()
	}
	var targets []Service
	if topic := strings.TrimSpace(cfg.Notifications.NtfyTopic); topic != "" {
		timeout := time.Duration(cfg.Notifications.RequestTimeout) * time.Second
		targets = append(targets, newNtfyService(topic, timeout))
	}
	if cfg.Notifications.Email.Enabled {
		targets = append(targets, newEmailService(cfg.Notifications.Email))
	}

	var svc Service
	switch len(targets) {
	case 0:
		return noopService{}
	case 1:
		svc = targets[0]
	default:
		svc = fanout(targets)
	}
	return &filteredService{
		next:    svc,
		success: cfg.Notifications.Success,
		failure: cfg.Notifications.Failure,
	}
}

// filteredService drops event kinds the operator switched off.
type filteredService struct {
	next    Service
	success bool
	failure bool
}

func (f *filteredService) Publish(ctx context.Context, event Event, payload Payload) error {
	switch event {
	case EventUploadSucceeded:
		if !f.success {
			return nil
		}
	case EventUploadFailed, EventRelocationFailed:
		if !f.failure {
			return nil
		}
	}
	return f.next.Publish(ctx, event, payload)
}

// fanout delivers to every target and joins their errors.
type fanout []Service

func (f fanout) Publish(ctx context.Context, event Event, payload Payload) error {
	var errs []error
	for _, svc := range f {
		if err := svc.Publish(ctx, event, payload); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

type noopService struct{}

func (noopService) Publish(context.Context, Event, Payload) error { return nil }

// NewNoop returns a Service that discards everything.
func NewNoop() Service { return noopService{} }
