package service

import (
	"context"
	"log/slog"
	"time"

	"go-auth-service/internal/model"
	"go-auth-service/pkg/errutil"
)

type AuditRecorder interface {
	Log(ctx context.Context, entry model.AuditEntry) error
}

type EventObserver interface {
	ObserveAuthEvent(action string, status string)
}

// AuditService persists security events. Recording never fails the operation
// being audited; write errors are logged and dropped.
type AuditService struct {
	repo     AuditRecorder
	observer EventObserver
	logger   *slog.Logger
	now      func() time.Time
}

func NewAuditService(repo AuditRecorder, observer EventObserver, logger *slog.Logger) *AuditService {
	if logger == nil {
		logger = slog.Default()
	}
	return &AuditService{
		repo:     repo,
		observer: observer,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (s *AuditService) Record(ctx context.Context, action string, actor model.AuditActor, resource string, opErr error) {
	if s == nil {
		return
	}

	status := model.AuditStatusSuccess
	errText := ""
	if opErr != nil {
		status = model.AuditStatusFailure
		errText = opErr.Error()
	}
	if actor.IP == "" {
		actor.IP = ClientIPFromContext(ctx)
	}

	if s.observer != nil {
		s.observer.ObserveAuthEvent(action, status)
	}
	if s.repo == nil {
		return
	}

	entry := model.AuditEntry{
		Action:     action,
		OccurredAt: s.now(),
		Actor:      actor,
		Status:     status,
		Resource:   resource,
		Error:      errText,
	}
	// Audit rows outlive a cancelled request.
	if err := s.repo.Log(context.WithoutCancel(ctx), entry); err != nil {
		errutil.LogError(s.logger, "audit write failed", err, "action", action)
	}
}
