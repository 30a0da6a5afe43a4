package notifier

import (
	"context"
	"log/slog"
)

// LogMailer writes messages to the log instead of sending them. Development only:
// the text body contains the reset link.
type LogMailer struct {
	logger *slog.Logger
}

func NewLogMailer(logger *slog.Logger) *LogMailer {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogMailer{logger: logger}
}

func (m *LogMailer) Send(_ context.Context, email Email) error {
	m.logger.Info("outgoing email",
		"from", email.From,
		"to", email.To,
		"subject", email.Subject,
		"body", email.Text,
	)
	return nil
}
