package notifier

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
)

const (
	DriverLog  = "log"
	DriverSMTP = "smtp"
	DriverSES  = "ses"
)

// NewMailer builds the transport named by driver.
func NewMailer(ctx context.Context, driver string, smtpCfg SMTPConfig, sesRegion string, logger *slog.Logger) (Mailer, error) {
	switch strings.ToLower(strings.TrimSpace(driver)) {
	case "", DriverLog:
		return NewLogMailer(logger), nil
	case DriverSMTP:
		if smtpCfg.Host == "" {
			return nil, fmt.Errorf("smtp mail driver requires SMTP_HOST")
		}
		return NewSMTPMailer(smtpCfg), nil
	case DriverSES:
		return NewSESMailer(ctx, sesRegion)
	default:
		return nil, fmt.Errorf("unsupported mail driver %q", driver)
	}
}
