package security

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"go-auth-service/internal/model"
	"go-auth-service/pkg/apierror"
)

const (
	TokenTypeAccess  = "access"
	TokenTypeRefresh = "refresh"
)

type tokenClaims struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Type     string `json:"typ"`
	// IssuedAtMillis refines iat, which only has second resolution.
	IssuedAtMillis int64 `json:"iat_ms,omitempty"`
	jwt.RegisteredClaims
}

// TokenIssuer mints and validates HS256 access/refresh pairs. It is immutable
// after construction.
type TokenIssuer struct {
	secret     []byte
	issuer     string
	accessTTL  time.Duration
	refreshTTL time.Duration
	now        func() time.Time
}

func NewTokenIssuer(secret string, issuer string, accessTTL time.Duration, refreshTTL time.Duration) (*TokenIssuer, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, errors.New("token signing secret is required")
	}
	if accessTTL <= 0 || refreshTTL <= 0 {
		return nil, fmt.Errorf("token lifetimes must be positive (access=%s refresh=%s)", accessTTL, refreshTTL)
	}

	return &TokenIssuer{
		secret:     []byte(secret),
		issuer:     issuer,
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
		now:        func() time.Time { return time.Now().UTC() },
	}, nil
}

// WithClock returns a copy of the issuer that reads time from now.
func (i *TokenIssuer) WithClock(now func() time.Time) *TokenIssuer {
	clone := *i
	clone.now = now
	return &clone
}

func (i *TokenIssuer) AccessTTL() time.Duration {
	return i.accessTTL
}

func (i *TokenIssuer) RefreshTTL() time.Duration {
	return i.refreshTTL
}

func (i *TokenIssuer) Issue(user model.User) (model.TokenPair, error) {
	issuedAt := i.now().Truncate(time.Millisecond)
	now := issuedAt.Truncate(time.Second)

	accessToken, err := i.sign(user, TokenTypeAccess, issuedAt, now.Add(i.accessTTL))
	if err != nil {
		return model.TokenPair{}, err
	}

	refreshExpiry := now.Add(i.refreshTTL)
	refreshToken, err := i.sign(user, TokenTypeRefresh, issuedAt, refreshExpiry)
	if err != nil {
		return model.TokenPair{}, err
	}

	return model.TokenPair{
		AccessToken:      accessToken,
		RefreshToken:     refreshToken,
		TokenType:        "Bearer",
		ExpiresIn:        int64(i.accessTTL.Seconds()),
		RefreshExpiresAt: refreshExpiry,
		User:             user.Public(),
	}, nil
}

// Validate checks signature, issuer, expiry and token type. Any failure rejects the
// token as a whole; an expired but otherwise valid token reports TOKEN_EXPIRED.
func (i *TokenIssuer) Validate(tokenString string, expectedType string) (*model.AuthClaims, error) {
	claims := &tokenClaims{}
	parsed, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", token.Header["alg"])
		}
		return i.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(i.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithTimeFunc(i.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, apierror.TokenExpired()
		}
		return nil, apierror.InvalidToken()
	}
	if !parsed.Valid {
		return nil, apierror.InvalidToken()
	}

	if expectedType != "" && claims.Type != expectedType {
		return nil, apierror.InvalidToken()
	}
	if _, err := uuid.Parse(claims.Subject); err != nil {
		return nil, apierror.InvalidToken()
	}
	if claims.IssuedAt == nil || claims.ExpiresAt == nil {
		return nil, apierror.InvalidToken()
	}

	issuedAt := claims.IssuedAt.Time.UTC()
	if claims.IssuedAtMillis != 0 {
		precise := time.UnixMilli(claims.IssuedAtMillis).UTC()
		if !precise.Truncate(time.Second).Equal(issuedAt) {
			return nil, apierror.InvalidToken()
		}
		issuedAt = precise
	}

	return &model.AuthClaims{
		UserID:    claims.Subject,
		Username:  claims.Username,
		Email:     claims.Email,
		Type:      claims.Type,
		TokenID:   claims.ID,
		IssuedAt:  issuedAt,
		ExpiresAt: claims.ExpiresAt.Time.UTC(),
	}, nil
}

func (i *TokenIssuer) sign(user model.User, tokenType string, issuedAt time.Time, expiresAt time.Time) (string, error) {
	claims := tokenClaims{
		Username:       user.Username,
		Email:          user.Email,
		Type:           tokenType,
		IssuedAtMillis: issuedAt.UnixMilli(),
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    i.issuer,
			Subject:   user.ID,
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			NotBefore: jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
	if err != nil {
		return "", fmt.Errorf("sign %s token: %w", tokenType, err)
	}

	return signed, nil
}
