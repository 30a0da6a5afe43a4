package security

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"go-auth-service/internal/model"
)

const (
	DefaultResetTokenTTL = time.Hour

	resetKeySalt      = "go-auth-service/reset-token"
	resetDigestLength = 20
	maxResetTokenLen  = 64
)

// resetEpoch keeps the base36 timestamp short.
var resetEpoch = time.Date(2001, 1, 1, 0, 0, 0, 0, time.UTC)

// ResetTokenGenerator issues stateless password-reset tokens. A token is a MAC over
// the user's current credential state, so it stops verifying as soon as the password
// hash, last login or email changes. Nothing is stored server side.
type ResetTokenGenerator struct {
	key []byte
	ttl time.Duration
	now func() time.Time
}

func NewResetTokenGenerator(secret string, ttl time.Duration) (*ResetTokenGenerator, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, errors.New("reset token secret is required")
	}
	if ttl <= 0 {
		ttl = DefaultResetTokenTTL
	}

	key := sha256.Sum256([]byte(resetKeySalt + secret))

	return &ResetTokenGenerator{
		key: key[:],
		ttl: ttl,
		now: func() time.Time { return time.Now().UTC() },
	}, nil
}

func (g *ResetTokenGenerator) WithClock(now func() time.Time) *ResetTokenGenerator {
	clone := *g
	clone.now = now
	return &clone
}

func (g *ResetTokenGenerator) TTL() time.Duration {
	return g.ttl
}

func (g *ResetTokenGenerator) Generate(user model.User) (string, error) {
	if user.ID == "" {
		return "", errors.New("cannot generate reset token for user without id")
	}

	return g.makeToken(user, g.secondsSinceEpoch(g.now())), nil
}

// Check reports model.ErrInvalidResetToken for every kind of failure.
func (g *ResetTokenGenerator) Check(user model.User, token string) error {
	if user.ID == "" || token == "" || len(token) > maxResetTokenLen {
		return model.ErrInvalidResetToken
	}

	tsPart, _, ok := strings.Cut(token, "-")
	if !ok || tsPart == "" || len(tsPart) > 13 {
		return model.ErrInvalidResetToken
	}

	ts, err := strconv.ParseInt(tsPart, 36, 64)
	if err != nil || ts < 0 {
		return model.ErrInvalidResetToken
	}

	expected := g.makeToken(user, ts)
	if subtle.ConstantTimeCompare([]byte(expected), []byte(token)) != 1 {
		return model.ErrInvalidResetToken
	}

	now := g.secondsSinceEpoch(g.now())
	if ts > now || now-ts > int64(g.ttl/time.Second) {
		return model.ErrInvalidResetToken
	}

	return nil
}

func (g *ResetTokenGenerator) makeToken(user model.User, ts int64) string {
	tsPart := strconv.FormatInt(ts, 36)

	lastLogin := ""
	if user.LastLoginAt != nil {
		lastLogin = strconv.FormatInt(user.LastLoginAt.UTC().Unix(), 10)
	}

	mac := hmac.New(sha256.New, g.key)
	for i, part := range []string{user.ID, user.PasswordHash, lastLogin, tsPart, strings.ToLower(user.Email)} {
		if i > 0 {
			mac.Write([]byte{0})
		}
		mac.Write([]byte(part))
	}
	digest := mac.Sum(nil)[:resetDigestLength]

	return tsPart + "-" + hex.EncodeToString(digest)
}

func (g *ResetTokenGenerator) secondsSinceEpoch(t time.Time) int64 {
	return int64(t.Sub(resetEpoch) / time.Second)
}

func EncodeIdentifier(userID string) string {
	return base64.RawURLEncoding.EncodeToString([]byte(userID))
}

// DecodeIdentifier reverses EncodeIdentifier and rejects anything that is not a user id.
func DecodeIdentifier(identifier string) (string, error) {
	raw, err := base64.RawURLEncoding.DecodeString(identifier)
	if err != nil {
		return "", fmt.Errorf("decode reset identifier: %w", err)
	}

	id, err := uuid.Parse(string(raw))
	if err != nil {
		return "", fmt.Errorf("decode reset identifier: %w", err)
	}

	return id.String(), nil
}

// ResetURL builds <base>/reset-password/<identifier>/<token>/.
func ResetURL(frontendBase string, user model.User, token string) string {
	return fmt.Sprintf("%s/reset-password/%s/%s/", strings.TrimRight(frontendBase, "/"), EncodeIdentifier(user.ID), token)
}
