package service

import (
	"context"
	"errors"
	"strings"

	"github.com/samber/oops"

	"go-auth-service/internal/model"
	"go-auth-service/pkg/apierror"
)

const msgBlank = "This field may not be blank."

func (s *AuthService) GetProfile(ctx context.Context, userID string) (model.PublicUser, error) {
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, model.ErrUserNotFound) {
			return model.PublicUser{}, apierror.NotFound("user not found", "")
		}
		return model.PublicUser{}, oops.Code("AUTH_PROFILE_FAILED").With("user_id", userID).Wrap(err)
	}
	return user.Public(), nil
}

// UpdateProfile applies a partial change. Username and email stay unique across
// users; keeping one's own value is not a conflict.
func (s *AuthService) UpdateProfile(ctx context.Context, userID string, update model.ProfileUpdate) (model.PublicUser, error) {
	user, err := s.updateProfile(ctx, userID, update)
	s.audit.Record(ctx, model.AuditActionProfileUpdate, model.AuditActor{UserID: userID, Username: user.Username}, "user:"+userID, err)
	if err != nil {
		return model.PublicUser{}, err
	}
	return user.Public(), nil
}

func (s *AuthService) updateProfile(ctx context.Context, userID string, update model.ProfileUpdate) (model.User, error) {
	update.Username = trimmed(update.Username)
	update.Email = trimmed(update.Email)
	update.FirstName = trimmed(update.FirstName)
	update.LastName = trimmed(update.LastName)

	fields := map[string][]string{}
	if update.Username != nil && *update.Username == "" {
		fields["username"] = []string{msgBlank}
	}
	if update.Email != nil && *update.Email == "" {
		fields["email"] = []string{msgBlank}
	}
	if len(fields) > 0 {
		return model.User{}, apierror.Validation(fields)
	}

	if update.IsEmpty() {
		user, err := s.users.FindByID(ctx, userID)
		if err != nil {
			return model.User{}, s.storeError("AUTH_PROFILE_FAILED", err)
		}
		return user, nil
	}

	if err := s.ensureAvailable(ctx, update.Username, update.Email, userID); err != nil {
		return model.User{}, err
	}

	user, err := s.users.UpdateProfile(ctx, userID, update, s.now())
	if err != nil {
		return model.User{}, s.storeError("AUTH_PROFILE_FAILED", err)
	}
	return user, nil
}

// ChangePassword replaces the password of an authenticated user after checking the
// old one. Every refresh token of the user is revoked; no new pair is issued.
func (s *AuthService) ChangePassword(ctx context.Context, userID string, oldPassword string, newPassword string) error {
	username, err := s.changePassword(ctx, userID, oldPassword, newPassword)
	s.audit.Record(ctx, model.AuditActionPasswordChange, model.AuditActor{UserID: userID, Username: username}, "user:"+userID, err)
	if err == nil {
		s.logger.Info("password changed", "user_id", userID)
	}
	return err
}

func (s *AuthService) changePassword(ctx context.Context, userID string, oldPassword string, newPassword string) (string, error) {
	fields := map[string][]string{}
	requireField(fields, "old_password", oldPassword)
	requireField(fields, "new_password", newPassword)
	if len(fields) > 0 {
		return "", apierror.Validation(fields)
	}

	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return "", s.storeError("AUTH_PASSWORD_CHANGE_FAILED", err)
	}

	ok, err := s.hasher.Verify(oldPassword, user.PasswordHash)
	if err != nil {
		return user.Username, oops.Code("AUTH_PASSWORD_CHANGE_FAILED").With("user_id", userID).Wrap(err)
	}
	if !ok {
		return user.Username, apierror.WrongPassword()
	}

	if msgs := s.policy.Validate(newPassword, &user); len(msgs) > 0 {
		return user.Username, apierror.FieldError("new_password", msgs...)
	}

	if err := s.setPassword(ctx, user, newPassword); err != nil {
		if errors.Is(err, model.ErrStaleCredential) {
			return user.Username, apierror.WrongPassword()
		}
		return user.Username, err
	}
	return user.Username, nil
}

// setPassword stores a new hash for user, provided the stored hash is still the one
// user was loaded with, then ends every session the old password opened.
func (s *AuthService) setPassword(ctx context.Context, user model.User, newPassword string) error {
	hash, err := s.hasher.Hash(newPassword)
	if err != nil {
		return oops.Code("AUTH_PASSWORD_SET_FAILED").With("user_id", user.ID).Wrap(err)
	}

	changedAt := s.now()
	if err := s.users.UpdatePassword(ctx, user.ID, user.PasswordHash, hash, changedAt); err != nil {
		if errors.Is(err, model.ErrStaleCredential) {
			return err
		}
		return s.storeError("AUTH_PASSWORD_SET_FAILED", err)
	}

	// The password is already changed at this point; session cleanup runs detached
	// from the request so a disconnecting client cannot skip it.
	cleanupCtx := context.WithoutCancel(ctx)
	if err := s.tokens.RevokeAllForUser(cleanupCtx, user.ID); err != nil {
		return oops.Code("AUTH_SESSION_REVOKE_FAILED").With("user_id", user.ID).Wrap(err)
	}
	if s.revocations != nil {
		if err := s.revocations.MarkPasswordChanged(cleanupCtx, user.ID, changedAt); err != nil {
			return oops.Code("AUTH_SESSION_REVOKE_FAILED").With("user_id", user.ID).Wrap(err)
		}
	}
	return nil
}

func trimmed(v *string) *string {
	if v == nil {
		return nil
	}
	t := strings.TrimSpace(*v)
	return &t
}
