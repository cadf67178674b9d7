package revocation

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func unreachableClient(t *testing.T) *redis.Client {
	t.Helper()
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 50 * time.Millisecond,
		MaxRetries:  -1,
	})
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestRedisStoreFailsClosedWhenUnavailable(t *testing.T) {
	store := NewRedisStore(unreachableClient(t))

	revoked, err := store.IsRevoked(context.Background(), "token")
	require.Error(t, err)
	assert.False(t, revoked)

	err = store.Revoke(context.Background(), "token", time.Now().Add(time.Hour))
	require.Error(t, err)
}

func TestRedisStoreSkipsExpiredTokens(t *testing.T) {
	store := NewRedisStore(unreachableClient(t))

	err := store.Revoke(context.Background(), "token", time.Now().Add(-time.Minute))
	assert.NoError(t, err)
}
