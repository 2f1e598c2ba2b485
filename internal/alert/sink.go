// Package alert delivers alert texts to operators.
package alert

import (
	"context"
	"fmt"
	"log/slog"
)

// Sink delivers a formatted alert. Send is fire-and-forget: it never blocks on
// delivery and never reports failures to the caller.
type Sink interface {
	Send(text string)
}

// DeliveryError reports an alert that could not be delivered.
type DeliveryError struct {
	AlertID string
	Err     error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("alert %s not delivered: %v", e.AlertID, e.Err)
}

func (e *DeliveryError) Unwrap() error {
	return e.Err
}

// LogSink only logs alerts. It is used for dry runs.
type LogSink struct{}

// Send logs the alert text.
func (LogSink) Send(text string) {
	slog.Info("alert_dry_run", "text", text)
}

// Close is a no-op.
func (LogSink) Close(context.Context) error {
	return nil
}
