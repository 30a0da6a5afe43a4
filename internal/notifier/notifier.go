package notifier

import (
	"bytes"
	"context"
	"embed"
	"fmt"
	htmltemplate "html/template"
	"log/slog"
	texttemplate "text/template"
	"time"

	"github.com/samber/oops"
	"github.com/sethvargo/go-retry"

	"go-auth-service/internal/model"
)

const (
	CodeSendFailed = "NOTIFIER_SEND_FAILED"

	passwordResetSubject = "Password Reset Request"
)

//go:embed templates/*
var templateFS embed.FS

// Email is a rendered message ready for a transport.
type Email struct {
	From    string
	To      string
	Subject string
	Text    string
	HTML    string
}

type Mailer interface {
	Send(ctx context.Context, email Email) error
}

type PasswordResetMessage struct {
	User     model.User
	ResetURL string
}

// DeliveryObserver is told the outcome of every delivery ("sent" or "failed").
type DeliveryObserver interface {
	ObserveMailDelivery(kind string, outcome string)
}

type Config struct {
	From           string
	RetryAttempts  uint64
	RetryBaseDelay time.Duration
	ResetTTL       time.Duration
}

type Notifier struct {
	mailer   Mailer
	cfg      Config
	logger   *slog.Logger
	observer DeliveryObserver
	html     *htmltemplate.Template
	text     *texttemplate.Template
}

func New(mailer Mailer, cfg Config, logger *slog.Logger) (*Notifier, error) {
	if mailer == nil {
		return nil, fmt.Errorf("notifier requires a mailer")
	}
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.RetryAttempts == 0 {
		cfg.RetryAttempts = 1
	}
	if cfg.RetryBaseDelay <= 0 {
		cfg.RetryBaseDelay = 200 * time.Millisecond
	}

	html, err := htmltemplate.ParseFS(templateFS, "templates/password_reset.html")
	if err != nil {
		return nil, fmt.Errorf("parse html templates: %w", err)
	}
	text, err := texttemplate.ParseFS(templateFS, "templates/password_reset.txt")
	if err != nil {
		return nil, fmt.Errorf("parse text templates: %w", err)
	}

	return &Notifier{mailer: mailer, cfg: cfg, logger: logger, html: html, text: text}, nil
}

func (n *Notifier) WithObserver(observer DeliveryObserver) *Notifier {
	n.observer = observer
	return n
}

// SendPasswordReset renders the reset email and hands it to the mailer, retrying
// with exponential backoff until the attempts run out or ctx is done.
func (n *Notifier) SendPasswordReset(ctx context.Context, msg PasswordResetMessage) error {
	data := struct {
		User      model.User
		ResetURL  string
		ExpiresIn string
	}{msg.User, msg.ResetURL, humanDuration(n.cfg.ResetTTL)}

	var text, html bytes.Buffer
	if err := n.text.ExecuteTemplate(&text, "password_reset.txt", data); err != nil {
		return oops.Code(CodeSendFailed).With("stage", "render").Wrap(err)
	}
	if err := n.html.ExecuteTemplate(&html, "password_reset.html", data); err != nil {
		return oops.Code(CodeSendFailed).With("stage", "render").Wrap(err)
	}

	email := Email{
		From:    n.cfg.From,
		To:      msg.User.Email,
		Subject: passwordResetSubject,
		Text:    text.String(),
		HTML:    html.String(),
	}

	backoff := retry.WithMaxRetries(n.cfg.RetryAttempts-1, retry.NewExponential(n.cfg.RetryBaseDelay))
	attempt := 0
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++
		if err := n.mailer.Send(ctx, email); err != nil {
			n.logger.Warn("password reset email attempt failed",
				"user_id", msg.User.ID, "attempt", attempt, "error", err)
			return retry.RetryableError(err)
		}
		return nil
	})
	if err != nil {
		n.observe("password_reset", "failed")
		return oops.Code(CodeSendFailed).
			With("user_id", msg.User.ID).
			With("attempts", attempt).
			Wrap(err)
	}

	n.observe("password_reset", "sent")
	n.logger.Info("password reset email sent", "user_id", msg.User.ID, "attempts", attempt)
	return nil
}

func (n *Notifier) observe(kind, outcome string) {
	if n.observer != nil {
		n.observer.ObserveMailDelivery(kind, outcome)
	}
}

func humanDuration(d time.Duration) string {
	switch {
	case d <= 0:
		return "a short while"
	case d%time.Hour == 0:
		return plural(int(d/time.Hour), "hour")
	case d%time.Minute == 0:
		return plural(int(d/time.Minute), "minute")
	default:
		return d.String()
	}
}

func plural(n int, unit string) string {
	if n == 1 {
		return "1 " + unit
	}
	return fmt.Sprintf("%d %ss", n, unit)
}
