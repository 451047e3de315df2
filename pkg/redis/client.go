// Package redis wraps go-redis/v9 with the handful of operations the query
// cache needs: get/set with TTL, pattern invalidation and a health ping.
package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Adithya-Monish-Kumar-K/searchcore/pkg/config"
)

// Client wraps a go-redis client.
type Client struct {
	rdb *redis.Client
}

// NewClient connects and verifies the connection with a PING.
func NewClient(ctx context.Context, cfg config.RedisConfig) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	})
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("redis ping %s: %w", cfg.Addr, err)
	}
	return &Client{rdb: rdb}, nil
}

// Get returns the bytes stored at key. A missing key yields an error for
// which IsNilError is true.
func (c *Client) Get(ctx context.Context, key string) ([]byte, error) {
	return c.rdb.Get(ctx, key).Bytes()
}

// Set stores a value with the given TTL.
func (c *Client) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return c.rdb.Set(ctx, key, value, ttl).Err()
}

// Del deletes one or more keys.
func (c *Client) Del(ctx context.Context, keys ...string) error {
	return c.rdb.Del(ctx, keys...).Err()
}

// FlushByPattern scans for keys matching the glob pattern and deletes them
// in batches, returning the number of keys removed.
func (c *Client) FlushByPattern(ctx context.Context, pattern string) (int64, error) {
	var deleted int64
	batch := make([]string, 0, 100)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		n, err := c.rdb.Del(ctx, batch...).Result()
		if err != nil {
			return fmt.Errorf("deleting %d keys: %w", len(batch), err)
		}
		deleted += n
		batch = batch[:0]
		return nil
	}
	iter := c.rdb.Scan(ctx, 0, pattern, 100).Iterator()
	for iter.Next(ctx) {
		batch = append(batch, iter.Val())
		if len(batch) == cap(batch) {
			if err := flush(); err != nil {
				return deleted, err
			}
		}
	}
	if err := iter.Err(); err != nil {
		return deleted, fmt.Errorf("scanning pattern %s: %w", pattern, err)
	}
	return deleted, flush()
}

// IsNilError reports whether err is a Redis nil (key-not-found) error.
func IsNilError(err error) bool {
	return errors.Is(err, redis.Nil)
}

func (c *Client) Close() error {
	return c.rdb.Close()
}

func (c *Client) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}
