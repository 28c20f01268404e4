package redis_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	rediscache "github.com/dnsguard/companion-service/internal/infrastructure/cache/redis"
)

func newTestCache(t *testing.T) (*rediscache.Cache, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	hostPort := strings.Split(mr.Addr(), ":")

	cache, err := rediscache.NewCache(rediscache.Config{
		Host:       hostPort[0],
		Port:       hostPort[1],
		DefaultTTL: 30 * time.Minute,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = cache.Close() })

	return cache, mr
}

func TestCache_SetAndGet(t *testing.T) {
	// Arrange
	cache, _ := newTestCache(t)
	ctx := context.Background()

	// Act
	err := cache.Set(ctx, "session_inst-1", []byte(`{"sid":"abc"}`), time.Minute)
	require.NoError(t, err)
	val, err := cache.Get(ctx, "session_inst-1")

	// Assert
	require.NoError(t, err)
	assert.Equal(t, []byte(`{"sid":"abc"}`), val)
}

func TestCache_GetMissingReturnsNil(t *testing.T) {
	// Arrange
	cache, _ := newTestCache(t)

	// Act
	val, err := cache.Get(context.Background(), "absent")

	// Assert
	require.NoError(t, err)
	assert.Nil(t, val)
}

func TestCache_TTLExpiry(t *testing.T) {
	// Arrange
	cache, mr := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, cache.Set(ctx, "masterKey_inst-1", []byte("key"), time.Minute))

	// Act
	mr.FastForward(2 * time.Minute)
	val, err := cache.Get(ctx, "masterKey_inst-1")

	// Assert
	require.NoError(t, err)
	assert.Nil(t, val)
}

func TestCache_ZeroTTLUsesDefault(t *testing.T) {
	// Arrange
	cache, mr := newTestCache(t)
	ctx := context.Background()

	// Act
	require.NoError(t, cache.Set(ctx, "k", []byte("v"), 0))

	// Assert
	assert.Greater(t, mr.TTL("k"), time.Duration(0))
}

func TestCache_Delete(t *testing.T) {
	// Arrange
	cache, _ := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, cache.Set(ctx, "k", []byte("v"), time.Minute))

	// Act
	existed, err := cache.Delete(ctx, "k")
	require.NoError(t, err)
	missing, err := cache.Delete(ctx, "k")
	require.NoError(t, err)

	// Assert
	assert.True(t, existed)
	assert.False(t, missing)
}

func TestCache_DeletePattern(t *testing.T) {
	// Arrange
	cache, _ := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, cache.Set(ctx, "masterKey_a", []byte("1"), time.Minute))
	require.NoError(t, cache.Set(ctx, "masterKey_b", []byte("2"), time.Minute))
	require.NoError(t, cache.Set(ctx, "session_a", []byte("3"), time.Minute))

	// Act
	deleted, err := cache.DeletePattern(ctx, "masterKey_*")

	// Assert
	require.NoError(t, err)
	assert.EqualValues(t, 2, deleted)

	remaining, err := cache.Get(ctx, "session_a")
	require.NoError(t, err)
	assert.NotNil(t, remaining)
}

func TestCache_Ping(t *testing.T) {
	// Arrange
	cache, mr := newTestCache(t)

	// Act / Assert
	assert.NoError(t, cache.Ping(context.Background()))

	mr.Close()
	assert.Error(t, cache.Ping(context.Background()))
}
