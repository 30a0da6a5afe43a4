package redis

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/samber/oops"
)

const passwordChangedPrefix = "auth:pwchanged:"

// RevocationStore remembers when each user last changed their password so access
// tokens minted before that moment can be refused. Markers expire after ttl, which
// should be at least the access token lifetime.
type RevocationStore struct {
	client *Client
	ttl    time.Duration
}

func NewRevocationStore(client *Client, ttl time.Duration) *RevocationStore {
	return &RevocationStore{client: client, ttl: ttl}
}

// MarkPasswordChanged stores at with millisecond resolution.
func (s *RevocationStore) MarkPasswordChanged(ctx context.Context, userID string, at time.Time) error {
	key := passwordChangedPrefix + userID
	if err := s.client.rdb.Set(ctx, key, at.UnixMilli(), s.ttl).Err(); err != nil {
		return oops.Code("REVOCATION_MARK_FAILED").With("user_id", userID).Wrap(err)
	}
	return nil
}

// PasswordChangedAt returns the zero time when no marker exists.
func (s *RevocationStore) PasswordChangedAt(ctx context.Context, userID string) (time.Time, error) {
	raw, err := s.client.rdb.Get(ctx, passwordChangedPrefix+userID).Result()
	if errors.Is(err, redis.Nil) {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, oops.Code("REVOCATION_LOOKUP_FAILED").With("user_id", userID).Wrap(err)
	}

	millis, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return time.Time{}, oops.Code("REVOCATION_LOOKUP_FAILED").With("user_id", userID).Wrap(err)
	}
	return time.UnixMilli(millis).UTC(), nil
}
