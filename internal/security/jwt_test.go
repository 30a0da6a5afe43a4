package security

import (
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go-auth-service/internal/model"
	"go-auth-service/pkg/apierror"
)

var testUser = model.User{
	ID:       "6f1c7a52-4a8e-4b43-9f0e-0a1b2c3d4e5f",
	Username: "alice",
	Email:    "a@x.com",
	IsActive: true,
}

func newTestIssuer(t *testing.T, now time.Time) *TokenIssuer {
	t.Helper()

	issuer, err := NewTokenIssuer("test-secret", "go-auth-service", 15*time.Minute, 24*time.Hour)
	require.NoError(t, err)
	return issuer.WithClock(func() time.Time { return now })
}

func TestNewTokenIssuerValidation(t *testing.T) {
	t.Parallel()

	_, err := NewTokenIssuer("", "iss", time.Minute, time.Hour)
	assert.Error(t, err)

	_, err = NewTokenIssuer("secret", "iss", 0, time.Hour)
	assert.Error(t, err)

	_, err = NewTokenIssuer("secret", "iss", time.Minute, -time.Hour)
	assert.Error(t, err)
}

func TestTokenIssuerRoundTrip(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	issuer := newTestIssuer(t, now)

	pair, err := issuer.Issue(testUser)
	require.NoError(t, err)
	assert.Equal(t, "Bearer", pair.TokenType)
	assert.Equal(t, int64(900), pair.ExpiresIn)
	assert.Equal(t, now.Add(24*time.Hour), pair.RefreshExpiresAt)
	assert.Equal(t, "alice", pair.User.Username)

	access, err := issuer.Validate(pair.AccessToken, TokenTypeAccess)
	require.NoError(t, err)
	assert.Equal(t, testUser.ID, access.UserID)
	assert.Equal(t, "alice", access.Username)
	assert.Equal(t, TokenTypeAccess, access.Type)
	assert.Equal(t, now, access.IssuedAt)
	assert.Equal(t, time.UTC, access.IssuedAt.Location())
	assert.Equal(t, time.UTC, access.ExpiresAt.Location())
	assert.Equal(t, now.Add(15*time.Minute), access.ExpiresAt)
	assert.NotEmpty(t, access.TokenID)

	refresh, err := issuer.Validate(pair.RefreshToken, TokenTypeRefresh)
	require.NoError(t, err)
	assert.Equal(t, TokenTypeRefresh, refresh.Type)
	assert.NotEqual(t, access.TokenID, refresh.TokenID)
}

func TestTokenIssuerKeepsMillisecondIssueTime(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 1, 12, 0, 0, 250*int(time.Millisecond), time.UTC)
	issuer := newTestIssuer(t, now)

	pair, err := issuer.Issue(testUser)
	require.NoError(t, err)

	access, err := issuer.Validate(pair.AccessToken, TokenTypeAccess)
	require.NoError(t, err)
	assert.Equal(t, now, access.IssuedAt)
	assert.Equal(t, now.Truncate(time.Second).Add(15*time.Minute), access.ExpiresAt)
	assert.Equal(t, now.Truncate(time.Second).Add(24*time.Hour), pair.RefreshExpiresAt)
}

func TestTokenIssuerRejectsWrongType(t *testing.T) {
	t.Parallel()

	issuer := newTestIssuer(t, time.Now().UTC())
	pair, err := issuer.Issue(testUser)
	require.NoError(t, err)

	_, err = issuer.Validate(pair.RefreshToken, TokenTypeAccess)
	assert.Equal(t, apierror.CodeInvalidToken, apierror.CodeOf(err))

	_, err = issuer.Validate(pair.AccessToken, TokenTypeRefresh)
	assert.Equal(t, apierror.CodeInvalidToken, apierror.CodeOf(err))
}

func TestTokenIssuerExpiry(t *testing.T) {
	t.Parallel()

	issued := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	pair, err := newTestIssuer(t, issued).Issue(testUser)
	require.NoError(t, err)

	later := newTestIssuer(t, issued.Add(16*time.Minute))

	_, err = later.Validate(pair.AccessToken, TokenTypeAccess)
	assert.Equal(t, apierror.CodeTokenExpired, apierror.CodeOf(err))

	_, err = later.Validate(pair.RefreshToken, TokenTypeRefresh)
	assert.NoError(t, err)
}

func TestTokenIssuerRejectsTampering(t *testing.T) {
	t.Parallel()

	issuer := newTestIssuer(t, time.Now().UTC())
	pair, err := issuer.Issue(testUser)
	require.NoError(t, err)

	t.Run("modified signature", func(t *testing.T) {
		sigStart := strings.LastIndex(pair.AccessToken, ".") + 1
		replacement := "A"
		if pair.AccessToken[sigStart] == 'A' {
			replacement = "B"
		}
		tampered := pair.AccessToken[:sigStart] + replacement + pair.AccessToken[sigStart+1:]

		_, err := issuer.Validate(tampered, TokenTypeAccess)
		assert.Equal(t, apierror.CodeInvalidToken, apierror.CodeOf(err))
	})

	t.Run("other secret", func(t *testing.T) {
		other, err := NewTokenIssuer("another-secret", "go-auth-service", time.Minute, time.Hour)
		require.NoError(t, err)

		_, err = other.Validate(pair.AccessToken, TokenTypeAccess)
		assert.Equal(t, apierror.CodeInvalidToken, apierror.CodeOf(err))
	})

	t.Run("other issuer", func(t *testing.T) {
		other, err := NewTokenIssuer("test-secret", "someone-else", time.Minute, time.Hour)
		require.NoError(t, err)

		_, err = other.Validate(pair.AccessToken, TokenTypeAccess)
		assert.Equal(t, apierror.CodeInvalidToken, apierror.CodeOf(err))
	})

	t.Run("garbage", func(t *testing.T) {
		for _, token := range []string{"", "abc", strings.Repeat("x.", 3)} {
			_, err := issuer.Validate(token, TokenTypeAccess)
			assert.Equal(t, apierror.CodeInvalidToken, apierror.CodeOf(err), token)
		}
	})
}

func TestTokenIssuerRejectsUnsignedAlgorithm(t *testing.T) {
	t.Parallel()

	issuer := newTestIssuer(t, time.Now().UTC())
	now := time.Now().UTC()
	claims := tokenClaims{
		Type: TokenTypeAccess,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "go-auth-service",
			Subject:   testUser.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Minute)),
		},
	}
	unsigned, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	_, err = issuer.Validate(unsigned, TokenTypeAccess)
	assert.Equal(t, apierror.CodeInvalidToken, apierror.CodeOf(err))
}
