package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/samber/oops"

	"go-auth-service/internal/model"
	"go-auth-service/internal/notifier"
	"go-auth-service/internal/security"
	"go-auth-service/pkg/apierror"
	"go-auth-service/pkg/errutil"
)

const (
	msgRequired         = "This field is required."
	msgPasswordMismatch = "Password fields didn't match."
	msgUsernameTaken    = "A user with that username already exists."
	msgEmailTaken       = "A user with that email already exists."
)

type UserStore interface {
	Create(ctx context.Context, user model.User) error
	FindByID(ctx context.Context, id string) (model.User, error)
	FindByUsername(ctx context.Context, username string) (model.User, error)
	FindByEmail(ctx context.Context, email string) (model.User, error)
	ExistsByUsername(ctx context.Context, username string, excludeID string) (bool, error)
	ExistsByEmail(ctx context.Context, email string, excludeID string) (bool, error)
	UpdateProfile(ctx context.Context, id string, update model.ProfileUpdate, updatedAt time.Time) (model.User, error)
	UpdatePassword(ctx context.Context, id string, currentHash string, newHash string, changedAt time.Time) error
	TouchLastLogin(ctx context.Context, id string, at time.Time) error
}

type RefreshTokenStore interface {
	Store(ctx context.Context, token string, userID string, expiresAt time.Time) error
	Consume(ctx context.Context, token string) (string, error)
	Revoke(ctx context.Context, token string) error
	RevokeAllForUser(ctx context.Context, userID string) error
}

// RevocationStore tracks password changes so older access tokens can be refused
// before they expire.
type RevocationStore interface {
	MarkPasswordChanged(ctx context.Context, userID string, at time.Time) error
	PasswordChangedAt(ctx context.Context, userID string) (time.Time, error)
}

type ResetNotifier interface {
	SendPasswordReset(ctx context.Context, msg notifier.PasswordResetMessage) error
}

type AuthConfig struct {
	FrontendURL string
	// UniformResetResponse answers reset requests for unknown emails exactly like
	// known ones instead of returning NOT_FOUND.
	UniformResetResponse bool
}

type Dependencies struct {
	Users       UserStore
	Tokens      RefreshTokenStore
	Revocations RevocationStore
	Hasher      security.PasswordHasher
	Policy      *security.PasswordPolicy
	Issuer      *security.TokenIssuer
	Resets      *security.ResetTokenGenerator
	Notifier    ResetNotifier
	Audit       *AuditService
	Logger      *slog.Logger
}

type AuthService struct {
	users       UserStore
	tokens      RefreshTokenStore
	revocations RevocationStore
	hasher      security.PasswordHasher
	policy      *security.PasswordPolicy
	issuer      *security.TokenIssuer
	resets      *security.ResetTokenGenerator
	notifier    ResetNotifier
	audit       *AuditService
	logger      *slog.Logger
	cfg         AuthConfig
	now         func() time.Time

	// dummyHash is verified against when a login names an unknown user.
	dummyHash string
}

type RegisterInput struct {
	Username        string
	Email           string
	Password        string
	ConfirmPassword string
	FirstName       string
	LastName        string
}

func NewAuthService(deps Dependencies, cfg AuthConfig) (*AuthService, error) {
	switch {
	case deps.Users == nil:
		return nil, errors.New("auth service requires a user store")
	case deps.Tokens == nil:
		return nil, errors.New("auth service requires a refresh token store")
	case deps.Hasher == nil:
		return nil, errors.New("auth service requires a password hasher")
	case deps.Issuer == nil:
		return nil, errors.New("auth service requires a token issuer")
	case deps.Resets == nil:
		return nil, errors.New("auth service requires a reset token generator")
	case deps.Notifier == nil:
		return nil, errors.New("auth service requires a notifier")
	}
	if deps.Policy == nil {
		deps.Policy = security.DefaultPasswordPolicy(security.PolicyConfig{})
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}

	dummyHash, err := deps.Hasher.Hash(uuid.NewString())
	if err != nil {
		return nil, fmt.Errorf("prepare dummy hash: %w", err)
	}

	return &AuthService{
		users:       deps.Users,
		tokens:      deps.Tokens,
		revocations: deps.Revocations,
		hasher:      deps.Hasher,
		policy:      deps.Policy,
		issuer:      deps.Issuer,
		resets:      deps.Resets,
		notifier:    deps.Notifier,
		audit:       deps.Audit,
		logger:      deps.Logger,
		cfg:         cfg,
		now:         func() time.Time { return time.Now().UTC() },
		dummyHash:   dummyHash,
	}, nil
}

func (s *AuthService) Register(ctx context.Context, in RegisterInput) (model.PublicUser, error) {
	in.Username = strings.TrimSpace(in.Username)
	in.Email = strings.TrimSpace(in.Email)
	in.FirstName = strings.TrimSpace(in.FirstName)
	in.LastName = strings.TrimSpace(in.LastName)

	user, err := s.register(ctx, in)
	s.audit.Record(ctx, model.AuditActionRegister, model.AuditActor{UserID: user.ID, Username: in.Username}, "user:"+in.Username, err)
	if err != nil {
		return model.PublicUser{}, err
	}

	s.logger.Info("user registered", "user_id", user.ID, "username", user.Username)
	return user.Public(), nil
}

func (s *AuthService) register(ctx context.Context, in RegisterInput) (model.User, error) {
	fields := map[string][]string{}
	requireField(fields, "username", in.Username)
	requireField(fields, "email", in.Email)
	requireField(fields, "password", in.Password)
	requireField(fields, "password2", in.ConfirmPassword)
	if len(fields) > 0 {
		return model.User{}, apierror.Validation(fields)
	}

	if in.Password != in.ConfirmPassword {
		return model.User{}, apierror.FieldError("password", msgPasswordMismatch)
	}

	candidate := model.User{Username: in.Username, Email: in.Email, FirstName: in.FirstName, LastName: in.LastName}
	if msgs := s.policy.Validate(in.Password, &candidate); len(msgs) > 0 {
		return model.User{}, apierror.FieldError("password", msgs...)
	}

	if err := s.ensureAvailable(ctx, &in.Username, &in.Email, ""); err != nil {
		return model.User{}, err
	}

	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return model.User{}, oops.Code("AUTH_REGISTER_FAILED").Wrap(err)
	}

	now := s.now()
	user := model.User{
		ID:                uuid.NewString(),
		Username:          in.Username,
		Email:             in.Email,
		FirstName:         in.FirstName,
		LastName:          in.LastName,
		PasswordHash:      hash,
		IsActive:          true,
		PasswordChangedAt: now,
		CreatedAt:         now,
		UpdatedAt:         now,
	}

	if err := s.users.Create(ctx, user); err != nil {
		return model.User{}, s.storeError("AUTH_REGISTER_FAILED", err)
	}

	return user, nil
}

// Login answers every credential failure with the same INVALID_CREDENTIALS error
// and spends roughly the same time on unknown users as on wrong passwords.
func (s *AuthService) Login(ctx context.Context, username string, password string) (model.TokenPair, error) {
	username = strings.TrimSpace(username)

	pair, user, err := s.login(ctx, username, password)
	s.audit.Record(ctx, model.AuditActionLogin, model.AuditActor{UserID: user.ID, Username: username}, "user:"+username, err)
	return pair, err
}

func (s *AuthService) login(ctx context.Context, username string, password string) (model.TokenPair, model.User, error) {
	fields := map[string][]string{}
	requireField(fields, "username", username)
	requireField(fields, "password", password)
	if len(fields) > 0 {
		return model.TokenPair{}, model.User{}, apierror.Validation(fields)
	}

	user, err := s.users.FindByUsername(ctx, username)
	if err != nil {
		if !errors.Is(err, model.ErrUserNotFound) {
			return model.TokenPair{}, model.User{}, oops.Code("AUTH_LOGIN_FAILED").Wrap(err)
		}
		_, _ = s.hasher.Verify(password, s.dummyHash)
		return model.TokenPair{}, model.User{}, apierror.InvalidCredentials()
	}

	ok, err := s.hasher.Verify(password, user.PasswordHash)
	if err != nil {
		return model.TokenPair{}, user, oops.Code("AUTH_LOGIN_FAILED").With("user_id", user.ID).Wrap(err)
	}
	if !ok || !user.IsActive {
		return model.TokenPair{}, user, apierror.InvalidCredentials()
	}

	now := s.now()
	if err := s.users.TouchLastLogin(ctx, user.ID, now); err != nil {
		return model.TokenPair{}, user, s.storeError("AUTH_LOGIN_FAILED", err)
	}
	user.LastLoginAt = &now

	pair, err := s.issueSession(ctx, user)
	if err != nil {
		return model.TokenPair{}, user, err
	}
	return pair, user, nil
}

// Refresh exchanges a refresh token for a new pair. The presented token is consumed
// so it cannot be replayed.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (model.TokenPair, error) {
	pair, user, err := s.refresh(ctx, refreshToken)
	s.audit.Record(ctx, model.AuditActionRefresh, model.AuditActor{UserID: user.ID, Username: user.Username}, "", err)
	return pair, err
}

func (s *AuthService) refresh(ctx context.Context, refreshToken string) (model.TokenPair, model.User, error) {
	if strings.TrimSpace(refreshToken) == "" {
		return model.TokenPair{}, model.User{}, apierror.FieldError("refresh", msgRequired)
	}

	claims, err := s.issuer.Validate(refreshToken, security.TokenTypeRefresh)
	if err != nil {
		return model.TokenPair{}, model.User{}, err
	}

	ownerID, err := s.tokens.Consume(ctx, refreshToken)
	if err != nil {
		if errors.Is(err, model.ErrTokenNotFound) {
			return model.TokenPair{}, model.User{}, apierror.InvalidToken()
		}
		return model.TokenPair{}, model.User{}, oops.Code("AUTH_REFRESH_FAILED").Wrap(err)
	}
	if ownerID != claims.UserID {
		return model.TokenPair{}, model.User{}, apierror.InvalidToken()
	}

	user, err := s.users.FindByID(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, model.ErrUserNotFound) {
			return model.TokenPair{}, model.User{}, apierror.InvalidToken()
		}
		return model.TokenPair{}, model.User{}, oops.Code("AUTH_REFRESH_FAILED").Wrap(err)
	}
	if !user.IsActive {
		return model.TokenPair{}, user, apierror.InvalidToken()
	}

	pair, err := s.issueSession(ctx, user)
	if err != nil {
		return model.TokenPair{}, user, err
	}
	return pair, user, nil
}

// Logout revokes one refresh token of the calling user. Revoking a token that is
// already gone succeeds.
func (s *AuthService) Logout(ctx context.Context, userID string, refreshToken string) error {
	err := s.logout(ctx, userID, refreshToken)
	s.audit.Record(ctx, model.AuditActionLogout, model.AuditActor{UserID: userID}, "", err)
	return err
}

func (s *AuthService) logout(ctx context.Context, userID string, refreshToken string) error {
	if strings.TrimSpace(refreshToken) == "" {
		return apierror.FieldError("refresh", msgRequired)
	}

	claims, err := s.issuer.Validate(refreshToken, security.TokenTypeRefresh)
	if err != nil {
		if apierror.CodeOf(err) == apierror.CodeTokenExpired {
			return nil
		}
		return err
	}
	if claims.UserID != userID {
		return apierror.InvalidToken()
	}

	if err := s.tokens.Revoke(ctx, refreshToken); err != nil {
		return oops.Code("AUTH_LOGOUT_FAILED").Wrap(err)
	}
	return nil
}

// ValidateAccessToken checks an access token and, when revocation markers are
// available, refuses tokens minted before the user's last password change.
func (s *AuthService) ValidateAccessToken(ctx context.Context, token string) (*model.AuthClaims, error) {
	claims, err := s.issuer.Validate(token, security.TokenTypeAccess)
	if err != nil {
		return nil, err
	}
	if s.revocations == nil {
		return claims, nil
	}

	changedAt, err := s.revocations.PasswordChangedAt(ctx, claims.UserID)
	if err != nil {
		return nil, oops.Code("AUTH_REVOCATION_CHECK_FAILED").With("user_id", claims.UserID).Wrap(err)
	}
	if !changedAt.IsZero() && claims.IssuedAt.Before(changedAt) {
		return nil, apierror.InvalidToken()
	}
	return claims, nil
}

func (s *AuthService) issueSession(ctx context.Context, user model.User) (model.TokenPair, error) {
	pair, err := s.issuer.Issue(user)
	if err != nil {
		return model.TokenPair{}, oops.Code("AUTH_TOKEN_ISSUE_FAILED").With("user_id", user.ID).Wrap(err)
	}
	if err := s.tokens.Store(ctx, pair.RefreshToken, user.ID, pair.RefreshExpiresAt); err != nil {
		return model.TokenPair{}, oops.Code("AUTH_TOKEN_ISSUE_FAILED").With("user_id", user.ID).Wrap(err)
	}
	return pair, nil
}

// ensureAvailable checks the requested username and email against other users.
// nil pointers are skipped. The unique indexes still decide races.
func (s *AuthService) ensureAvailable(ctx context.Context, username *string, email *string, excludeID string) error {
	var conflict *apierror.APIError

	if username != nil {
		taken, err := s.users.ExistsByUsername(ctx, *username, excludeID)
		if err != nil {
			return oops.Code("AUTH_UNIQUENESS_CHECK_FAILED").Wrap(err)
		}
		if taken {
			conflict = apierror.Conflict("username", msgUsernameTaken)
		}
	}

	if email != nil {
		taken, err := s.users.ExistsByEmail(ctx, *email, excludeID)
		if err != nil {
			return oops.Code("AUTH_UNIQUENESS_CHECK_FAILED").Wrap(err)
		}
		if taken {
			if conflict == nil {
				conflict = apierror.Conflict("email", msgEmailTaken)
			} else {
				conflict.Fields["email"] = []string{msgEmailTaken}
			}
		}
	}

	if conflict != nil {
		return conflict
	}
	return nil
}

// storeError maps store sentinels onto client errors and wraps everything else.
func (s *AuthService) storeError(code string, err error) error {
	switch {
	case errors.Is(err, model.ErrUsernameTaken):
		return apierror.Conflict("username", msgUsernameTaken)
	case errors.Is(err, model.ErrEmailTaken):
		return apierror.Conflict("email", msgEmailTaken)
	case errors.Is(err, model.ErrUserNotFound):
		return apierror.NotFound("user not found", "")
	default:
		return oops.Code(code).Wrap(err)
	}
}

func (s *AuthService) logInternal(msg string, err error, attrs ...any) {
	if apierror.KindOf(err) == apierror.KindInternal {
		errutil.LogError(s.logger, msg, err, attrs...)
	}
}

func requireField(fields map[string][]string, name string, value string) {
	if strings.TrimSpace(value) == "" {
		fields[name] = append(fields[name], msgRequired)
	}
}
