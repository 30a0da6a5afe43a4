package service

import (
	"context"
	"errors"
	"strings"

	"github.com/samber/oops"

	"go-auth-service/internal/model"
	"go-auth-service/internal/notifier"
	"go-auth-service/internal/security"
	"go-auth-service/pkg/apierror"
)

const (
	msgEmailRequired       = "Email is required"
	msgNewPasswordRequired = "New password is required"
)

// RequestPasswordReset mails a reset link to the active user owning email.
// An unknown email is NOT_FOUND unless uniform responses are configured, in which
// case the call succeeds without sending anything.
func (s *AuthService) RequestPasswordReset(ctx context.Context, email string) error {
	email = strings.TrimSpace(email)

	user, err := s.requestPasswordReset(ctx, email)
	s.audit.Record(ctx, model.AuditActionPasswordResetRequest, model.AuditActor{UserID: user.ID, Username: user.Username}, "email:"+email, err)
	if err != nil && s.cfg.UniformResetResponse {
		switch apierror.KindOf(err) {
		case apierror.KindNotFound:
			return nil
		case apierror.KindDelivery:
			s.logInternal("password reset delivery failed", errors.Unwrap(err), "user_id", user.ID)
			return nil
		}
	}
	return err
}

func (s *AuthService) requestPasswordReset(ctx context.Context, email string) (model.User, error) {
	if email == "" {
		return model.User{}, apierror.FieldError("email", msgEmailRequired)
	}

	user, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, model.ErrUserNotFound) {
			return model.User{}, apierror.NotFound("User not found", "")
		}
		return model.User{}, oops.Code("AUTH_RESET_REQUEST_FAILED").Wrap(err)
	}
	if !user.IsActive {
		return user, apierror.NotFound("User not found", "")
	}

	token, err := s.resets.Generate(user)
	if err != nil {
		return user, oops.Code("AUTH_RESET_REQUEST_FAILED").With("user_id", user.ID).Wrap(err)
	}

	msg := notifier.PasswordResetMessage{
		User:     user,
		ResetURL: security.ResetURL(s.cfg.FrontendURL, user, token),
	}
	if err := s.notifier.SendPasswordReset(ctx, msg); err != nil {
		return user, apierror.Delivery("Failed to send email", err)
	}

	s.logger.Info("password reset email sent", "user_id", user.ID)
	return user, nil
}

// ConfirmPasswordReset redeems a reset link. Every problem with the link itself is
// reported as the same INVALID_LINK error.
func (s *AuthService) ConfirmPasswordReset(ctx context.Context, identifier string, token string, newPassword string) error {
	user, err := s.confirmPasswordReset(ctx, identifier, token, newPassword)
	s.audit.Record(ctx, model.AuditActionPasswordResetConfirm, model.AuditActor{UserID: user.ID, Username: user.Username}, "", err)
	if err == nil {
		s.logger.Info("password reset completed", "user_id", user.ID)
	}
	return err
}

func (s *AuthService) confirmPasswordReset(ctx context.Context, identifier string, token string, newPassword string) (model.User, error) {
	userID, err := security.DecodeIdentifier(identifier)
	if err != nil {
		return model.User{}, apierror.InvalidLink()
	}

	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, model.ErrUserNotFound) {
			return model.User{}, apierror.InvalidLink()
		}
		return model.User{}, oops.Code("AUTH_RESET_CONFIRM_FAILED").Wrap(err)
	}
	if !user.IsActive {
		return user, apierror.InvalidLink()
	}
	if err := s.resets.Check(user, token); err != nil {
		return user, apierror.InvalidLink()
	}

	if newPassword == "" {
		return user, apierror.FieldError("new_password", msgNewPasswordRequired)
	}
	if msgs := s.policy.Validate(newPassword, &user); len(msgs) > 0 {
		return user, apierror.FieldError("new_password", msgs...)
	}

	if err := s.setPassword(ctx, user, newPassword); err != nil {
		if errors.Is(err, model.ErrStaleCredential) {
			return user, apierror.InvalidLink()
		}
		return user, err
	}
	return user, nil
}
