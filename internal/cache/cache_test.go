package cache

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func TestMemory_SetThenGet(t *testing.T) {
	ctx := context.Background()
	c := NewMemory(DefaultTTL)

	_, ok := c.Get(ctx, "price?")
	assert.False(t, ok)

	c.Set(ctx, "price?", []float32{1, 2})
	vec, ok := c.Get(ctx, "price?")
	require.True(t, ok)
	assert.Equal(t, []float32{1, 2}, vec)
}

func TestMemory_ExpiresLazily(t *testing.T) {
	ctx := context.Background()
	clock := &fakeClock{now: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)}
	c := NewMemory(15*time.Minute, WithClock(clock.Now))

	c.Set(ctx, "k", []float32{1})
	clock.Advance(14*time.Minute + 59*time.Second)
	_, ok := c.Get(ctx, "k")
	assert.True(t, ok)

	clock.Advance(time.Second)
	_, ok = c.Get(ctx, "k")
	assert.False(t, ok)
	assert.Equal(t, 0, c.Len())
}

func TestMemory_LastWriteWinsAndRefreshes(t *testing.T) {
	ctx := context.Background()
	clock := &fakeClock{now: time.Unix(0, 0)}
	c := NewMemory(time.Minute, WithClock(clock.Now))

	c.Set(ctx, "k", []float32{1})
	clock.Advance(50 * time.Second)
	c.Set(ctx, "k", []float32{2})
	clock.Advance(50 * time.Second)

	vec, ok := c.Get(ctx, "k")
	require.True(t, ok)
	assert.Equal(t, []float32{2}, vec)
}

func TestMemory_ConcurrentAccess(t *testing.T) {
	ctx := context.Background()
	c := NewMemory(time.Minute)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			key := fmt.Sprintf("q%d", i%4)
			for j := 0; j < 100; j++ {
				c.Set(ctx, key, []float32{float32(j)})
				c.Get(ctx, key)
			}
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 4, c.Len())
}

func TestLRU_EvictsOldest(t *testing.T) {
	ctx := context.Background()
	c := NewLRU(2, time.Minute)

	c.Set(ctx, "a", []float32{1})
	c.Set(ctx, "b", []float32{2})
	c.Set(ctx, "c", []float32{3})

	_, ok := c.Get(ctx, "a")
	assert.False(t, ok)
	vec, ok := c.Get(ctx, "c")
	require.True(t, ok)
	assert.Equal(t, []float32{3}, vec)
	assert.Equal(t, 2, c.Len())
}

func TestLRU_Expires(t *testing.T) {
	ctx := context.Background()
	c := NewLRU(10, 20*time.Millisecond)

	c.Set(ctx, "a", []float32{1})
	assert.Eventually(t, func() bool {
		_, ok := c.Get(ctx, "a")
		return !ok
	}, time.Second, 10*time.Millisecond)
}

func TestInvalidateEmbeddings(t *testing.T) {
	ctx := context.Background()
	for name, c := range map[string]interface {
		Cache
		Invalidator
		Len() int
	}{
		"memory": NewMemory(time.Minute),
		"lru":    NewLRU(10, time.Minute),
	} {
		t.Run(name, func(t *testing.T) {
			c.Set(ctx, "a", []float32{1})
			c.Set(ctx, "b", []float32{2})

			require.NoError(t, c.InvalidateEmbeddings(ctx))
			assert.Zero(t, c.Len())
			_, ok := c.Get(ctx, "a")
			assert.False(t, ok)

			c.Set(ctx, "a", []float32{3})
			vec, ok := c.Get(ctx, "a")
			require.True(t, ok)
			assert.Equal(t, []float32{3}, vec)
		})
	}
}
