//go:build integration

package redis

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

func startRedis(t *testing.T) *Client {
	t.Helper()
	ctx := context.Background()

	container, err := testcontainers.Run(ctx, "redis:7-alpine",
		testcontainers.WithExposedPorts("6379/tcp"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("Ready to accept connections").WithStartupTimeout(30*time.Second),
		),
	)
	testcontainers.CleanupContainer(t, container)
	require.NoError(t, err)

	url, err := container.PortEndpoint(ctx, "6379/tcp", "redis")
	require.NoError(t, err)

	client, err := NewClient(ctx, url)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	return client
}

func TestRevocationStore(t *testing.T) {
	client := startRedis(t)
	store := NewRevocationStore(client, time.Hour)
	ctx := context.Background()

	at, err := store.PasswordChangedAt(ctx, "user-1")
	require.NoError(t, err)
	assert.True(t, at.IsZero())

	changed := time.Date(2026, 6, 1, 12, 30, 0, 250*int(time.Millisecond), time.UTC)
	require.NoError(t, store.MarkPasswordChanged(ctx, "user-1", changed))

	at, err = store.PasswordChangedAt(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, changed, at)

	other, err := store.PasswordChangedAt(ctx, "user-2")
	require.NoError(t, err)
	assert.True(t, other.IsZero())

	require.NoError(t, client.Health(ctx))
}
