package services

import (
	"context"
	"log/slog"
)

// Notifier delivers transactional mail. Delivery failures are reported to
// callers but never block the operation that triggered them.
type Notifier interface {
	Send(ctx context.Context, to, subject, htmlBody string) error
}

// LogNotifier records outgoing mail instead of delivering it. Used until
// a real mail provider is wired in deployment.
type LogNotifier struct{}

func (LogNotifier) Send(ctx context.Context, to, subject, htmlBody string) error {
	slog.Info("Notification sent", "to", to, "subject", subject, "body_length", len(htmlBody))
	return nil
}
