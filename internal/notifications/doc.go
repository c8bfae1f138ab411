// Package notifications reports upload outcomes to the operator.
//
// Publish sends an Event with a Payload through every configured transport:
// ntfy when a topic URL is set, SMTP email when enabled. With neither
// configured a no-op service is returned. The Notifier wrapper used by the
// pipeline never returns an error; delivery failures are logged and dropped.
package notifications
