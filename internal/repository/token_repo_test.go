package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go-auth-service/internal/model"
	"go-auth-service/pkg/errutil"
)

func TestTokenRepository_Store(t *testing.T) {
	mock := newMockPool(t)
	expires := time.Date(2026, 3, 8, 0, 0, 0, 0, time.UTC)
	mock.ExpectExec(`INSERT INTO refresh_tokens`).
		WithArgs("refresh-jwt", aliceID, pgxmock.AnyArg(), expires).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, NewTokenRepository(mock).Store(context.Background(), "refresh-jwt", aliceID, expires))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTokenRepository_Consume(t *testing.T) {
	tests := []struct {
		name      string
		setupMock func(mock pgxmock.PgxPoolIface)
		wantUser  string
		wantErr   error
		wantCode  string
	}{
		{
			name: "live token",
			setupMock: func(mock pgxmock.PgxPoolIface) {
				mock.ExpectQuery(`DELETE FROM refresh_tokens`).
					WithArgs("refresh-jwt").
					WillReturnRows(pgxmock.NewRows([]string{"user_id"}).AddRow(aliceID))
			},
			wantUser: aliceID,
		},
		{
			name: "already used or expired",
			setupMock: func(mock pgxmock.PgxPoolIface) {
				mock.ExpectQuery(`DELETE FROM refresh_tokens`).
					WithArgs("refresh-jwt").
					WillReturnRows(pgxmock.NewRows([]string{"user_id"}))
			},
			wantErr: model.ErrTokenNotFound,
		},
		{
			name: "database error",
			setupMock: func(mock pgxmock.PgxPoolIface) {
				mock.ExpectQuery(`DELETE FROM refresh_tokens`).
					WithArgs("refresh-jwt").
					WillReturnError(errors.New("timeout"))
			},
			wantCode: "TOKEN_CONSUME_FAILED",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := newMockPool(t)
			tt.setupMock(mock)

			userID, err := NewTokenRepository(mock).Consume(context.Background(), "refresh-jwt")

			switch {
			case tt.wantErr != nil:
				assert.ErrorIs(t, err, tt.wantErr)
			case tt.wantCode != "":
				errutil.AssertErrorCode(t, err, tt.wantCode)
			default:
				require.NoError(t, err)
				assert.Equal(t, tt.wantUser, userID)
			}
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestTokenRepository_Revoke(t *testing.T) {
	mock := newMockPool(t)
	mock.ExpectExec(`DELETE FROM refresh_tokens WHERE token = \$1`).
		WithArgs("refresh-jwt").
		WillReturnResult(pgxmock.NewResult("DELETE", 0))
	mock.ExpectExec(`DELETE FROM refresh_tokens WHERE user_id = \$1`).
		WithArgs(aliceID).
		WillReturnResult(pgxmock.NewResult("DELETE", 3))

	repo := NewTokenRepository(mock)
	require.NoError(t, repo.Revoke(context.Background(), "refresh-jwt"))
	require.NoError(t, repo.RevokeAllForUser(context.Background(), aliceID))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTokenRepository_CleanExpired(t *testing.T) {
	mock := newMockPool(t)
	mock.ExpectExec(`DELETE FROM refresh_tokens WHERE expires_at <= now\(\)`).
		WillReturnResult(pgxmock.NewResult("DELETE", 4))

	removed, err := NewTokenRepository(mock).CleanExpired(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(4), removed)
	assert.NoError(t, mock.ExpectationsWereMet())
}
