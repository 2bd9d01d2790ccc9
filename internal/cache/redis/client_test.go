package redis

import (
	"context"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, ttl time.Duration) (*Client, *miniredis.Miniredis) {
	t.Helper()
	srv := miniredis.RunT(t)
	port, err := strconv.Atoi(srv.Port())
	require.NoError(t, err)

	c, err := NewClient(context.Background(), srv.Host(), port, "", 0, ttl)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c, srv
}

func TestEmbeddingKey(t *testing.T) {
	k := embeddingKey("price?")
	assert.True(t, strings.HasPrefix(k, embeddingPrefix))
	assert.Equal(t, k, embeddingKey("price?"))
	assert.NotEqual(t, k, embeddingKey("price"))
	assert.NotContains(t, k, "price")
}

func TestNewClient_UnreachableServer(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	_, err := NewClient(ctx, "127.0.0.1", 1, "", 0, time.Minute)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to connect to redis")
}

func TestClient_SetThenGetExpires(t *testing.T) {
	ctx := context.Background()
	c, srv := newTestClient(t, time.Minute)

	c.Set(ctx, "price?", []float32{0.5, 1})
	vec, ok := c.Get(ctx, "price?")
	require.True(t, ok)
	assert.Equal(t, []float32{0.5, 1}, vec)
	assert.Equal(t, time.Minute, srv.TTL(embeddingKey("price?")))

	srv.FastForward(time.Minute + time.Second)
	_, ok = c.Get(ctx, "price?")
	assert.False(t, ok)
}

func TestClient_GetDegradesToMiss(t *testing.T) {
	ctx := context.Background()
	c, srv := newTestClient(t, time.Minute)

	require.NoError(t, srv.Set(embeddingKey("broken"), "not json"))
	_, ok := c.Get(ctx, "broken")
	assert.False(t, ok)

	srv.Close()
	_, ok = c.Get(ctx, "price?")
	assert.False(t, ok)
}

func TestClient_InvalidateEmbeddings(t *testing.T) {
	ctx := context.Background()
	c, srv := newTestClient(t, time.Minute)

	c.Set(ctx, "price?", []float32{1})
	c.Set(ctx, "location?", []float32{2})
	require.NoError(t, srv.Set("session:42", "keep"))

	require.NoError(t, c.InvalidateEmbeddings(ctx))

	assert.Equal(t, []string{"session:42"}, srv.Keys())
	_, ok := c.Get(ctx, "price?")
	assert.False(t, ok)
}
