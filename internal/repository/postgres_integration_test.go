//go:build integration

package repository_test

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"go-auth-service/internal/database"
	"go-auth-service/internal/model"
	"go-auth-service/internal/repository"
)

func startPostgres(t *testing.T) *database.DB {
	t.Helper()
	ctx := context.Background()

	container, err := postgres.Run(ctx,
		"postgres:18-alpine",
		postgres.WithDatabase("auth_test"),
		postgres.WithUsername("auth"),
		postgres.WithPassword("auth"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	testcontainers.CleanupContainer(t, container)
	require.NoError(t, err)

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	migrator, err := database.NewMigrator(connStr)
	require.NoError(t, err)
	require.NoError(t, migrator.Up())
	require.NoError(t, migrator.Close())

	db, err := database.New(ctx, database.PoolConfig{URL: connStr, MaxConns: 10, MinConns: 1}, slog.Default())
	require.NoError(t, err)
	t.Cleanup(db.Close)

	return db
}

func newUser(username, email string) model.User {
	now := time.Now().UTC().Truncate(time.Microsecond)
	return model.User{
		ID:                uuid.NewString(),
		Username:          username,
		Email:             email,
		PasswordHash:      "$2a$04$placeholderplaceholderplaceholderplaceholderplacehold",
		IsActive:          true,
		PasswordChangedAt: now,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
}

func TestPostgresRepositories(t *testing.T) {
	db := startPostgres(t)
	ctx := context.Background()
	users := repository.NewUserRepository(db.Pool)
	tokens := repository.NewTokenRepository(db.Pool)
	audit := repository.NewAuditRepository(db.Pool)

	alice := newUser("alice", "a@x.com")
	require.NoError(t, users.Create(ctx, alice))

	t.Run("lookups are case-insensitive", func(t *testing.T) {
		got, err := users.FindByUsername(ctx, "ALICE")
		require.NoError(t, err)
		assert.Equal(t, alice.ID, got.ID)

		got, err = users.FindByEmail(ctx, "A@X.COM")
		require.NoError(t, err)
		assert.Equal(t, alice.ID, got.ID)

		_, err = users.FindByID(ctx, uuid.NewString())
		assert.ErrorIs(t, err, model.ErrUserNotFound)
	})

	t.Run("duplicates are rejected by the indexes", func(t *testing.T) {
		err := users.Create(ctx, newUser("Alice", "other@x.com"))
		assert.ErrorIs(t, err, model.ErrUsernameTaken)

		err = users.Create(ctx, newUser("alice2", "A@x.com"))
		assert.ErrorIs(t, err, model.ErrEmailTaken)
	})

	t.Run("exactly one concurrent registration wins", func(t *testing.T) {
		const attempts = 8
		var wg sync.WaitGroup
		results := make(chan error, attempts)
		for i := 0; i < attempts; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				results <- users.Create(ctx, newUser("racer", uuid.NewString()+"@x.com"))
			}()
		}
		wg.Wait()
		close(results)

		var ok, taken int
		for err := range results {
			switch {
			case err == nil:
				ok++
			case errors.Is(err, model.ErrUsernameTaken):
				taken++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}
		assert.Equal(t, 1, ok)
		assert.Equal(t, attempts-1, taken)
	})

	t.Run("profile and password updates", func(t *testing.T) {
		first := "Alice"
		updated, err := users.UpdateProfile(ctx, alice.ID, model.ProfileUpdate{FirstName: &first}, time.Now().UTC())
		require.NoError(t, err)
		assert.Equal(t, "Alice", updated.FirstName)
		assert.Equal(t, "a@x.com", updated.Email)

		require.NoError(t, users.UpdatePassword(ctx, alice.ID, alice.PasswordHash, "$2a$04$new", time.Now().UTC()))
		err = users.UpdatePassword(ctx, alice.ID, alice.PasswordHash, "$2a$04$other", time.Now().UTC())
		assert.ErrorIs(t, err, model.ErrStaleCredential)
		require.NoError(t, users.TouchLastLogin(ctx, alice.ID, time.Now().UTC()))

		got, err := users.FindByID(ctx, alice.ID)
		require.NoError(t, err)
		assert.Equal(t, "$2a$04$new", got.PasswordHash)
		assert.NotNil(t, got.LastLoginAt)
	})

	t.Run("refresh tokens are single use", func(t *testing.T) {
		require.NoError(t, tokens.Store(ctx, "tok-1", alice.ID, time.Now().Add(time.Hour)))

		userID, err := tokens.Consume(ctx, "tok-1")
		require.NoError(t, err)
		assert.Equal(t, alice.ID, userID)

		_, err = tokens.Consume(ctx, "tok-1")
		assert.ErrorIs(t, err, model.ErrTokenNotFound)

		require.NoError(t, tokens.Store(ctx, "tok-2", alice.ID, time.Now().Add(time.Hour)))
		require.NoError(t, tokens.Store(ctx, "tok-3", alice.ID, time.Now().Add(-time.Minute)))
		require.NoError(t, tokens.RevokeAllForUser(ctx, alice.ID))
		_, err = tokens.Consume(ctx, "tok-2")
		assert.ErrorIs(t, err, model.ErrTokenNotFound)
	})

	t.Run("audit log", func(t *testing.T) {
		err := audit.Log(ctx, model.AuditEntry{
			Action:     model.AuditActionLogin,
			OccurredAt: time.Now().UTC(),
			Actor:      model.AuditActor{UserID: alice.ID, Username: "alice"},
			Status:     model.AuditStatusSuccess,
		})
		require.NoError(t, err)

		var count int
		require.NoError(t, db.Pool.QueryRow(ctx, `SELECT COUNT(*) FROM audit_entries`).Scan(&count))
		assert.Equal(t, 1, count)
	})
}
