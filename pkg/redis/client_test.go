package redis

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/searchcore/pkg/config"
)

func newTestClient(t *testing.T) *Client {
	t.Helper()
	addr := os.Getenv("SC_REDIS_ADDR")
	if addr == "" {
		addr = "localhost:6379"
	}
	c, err := NewClient(context.Background(), config.RedisConfig{Addr: addr, PoolSize: 2, DB: 15})
	if err != nil {
		t.Skipf("redis not available at %s: %v", addr, err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

func TestSetGetDel(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()
	key := fmt.Sprintf("sc-test:%d", time.Now().UnixNano())

	require.NoError(t, c.Set(ctx, key, []byte("v"), time.Minute))
	got, err := c.Get(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, []byte("v"), got)

	require.NoError(t, c.Del(ctx, key))
	_, err = c.Get(ctx, key)
	assert.True(t, IsNilError(err))
}

func TestFlushByPattern(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()
	prefix := fmt.Sprintf("sc-flush-%d", time.Now().UnixNano())
	for i := range 150 {
		require.NoError(t, c.Set(ctx, fmt.Sprintf("%s:%d", prefix, i), []byte("x"), time.Minute))
	}
	n, err := c.FlushByPattern(ctx, prefix+":*")
	require.NoError(t, err)
	assert.Equal(t, int64(150), n)
}

func TestIsNilError(t *testing.T) {
	assert.False(t, IsNilError(errors.New("other")))
	assert.False(t, IsNilError(nil))
}
