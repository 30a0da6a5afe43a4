package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/samber/oops"

	"go-auth-service/internal/model"
)

type TokenRepository struct {
	pool DBTX
}

func NewTokenRepository(pool DBTX) *TokenRepository {
	return &TokenRepository{pool: pool}
}

func (r *TokenRepository) Store(ctx context.Context, token string, userID string, expiresAt time.Time) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO refresh_tokens (token, user_id, created_at, expires_at)
		 VALUES ($1, $2, $3, $4)`,
		token, userID, time.Now().UTC(), expiresAt)
	if err != nil {
		return oops.Code("TOKEN_STORE_FAILED").With("user_id", userID).Wrap(err)
	}
	return nil
}

// Consume deletes an unexpired refresh token and returns its owner. Only one of
// several concurrent callers presenting the same token gets a user id back.
func (r *TokenRepository) Consume(ctx context.Context, token string) (string, error) {
	var userID string
	err := r.pool.QueryRow(ctx,
		`DELETE FROM refresh_tokens
		 WHERE token = $1 AND expires_at > now()
		 RETURNING user_id::text`, token).Scan(&userID)

	if errors.Is(err, pgx.ErrNoRows) {
		return "", model.ErrTokenNotFound
	}
	if err != nil {
		return "", oops.Code("TOKEN_CONSUME_FAILED").Wrap(err)
	}
	return userID, nil
}

func (r *TokenRepository) Revoke(ctx context.Context, token string) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM refresh_tokens WHERE token = $1`, token)
	if err != nil {
		return oops.Code("TOKEN_REVOKE_FAILED").Wrap(err)
	}
	return nil
}

func (r *TokenRepository) RevokeAllForUser(ctx context.Context, userID string) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM refresh_tokens WHERE user_id = $1`, userID)
	if err != nil {
		return oops.Code("TOKEN_REVOKE_FAILED").With("user_id", userID).Wrap(err)
	}
	return nil
}

func (r *TokenRepository) CleanExpired(ctx context.Context) (int64, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM refresh_tokens WHERE expires_at <= now()`)
	if err != nil {
		return 0, oops.Code("TOKEN_CLEANUP_FAILED").Wrap(err)
	}
	return tag.RowsAffected(), nil
}
