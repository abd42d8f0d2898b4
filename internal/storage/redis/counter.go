// Package redis provides a Redis-backed counter store so that several
// Sandstore servers share one set of rate-limit windows.
package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/yndnr/sandstore-go/internal/core/service"
)

var _ service.CounterStore = (*CounterStore)(nil)

// ErrRedisUnavailable wraps every failed Redis call.
var ErrRedisUnavailable = errors.New("redis unavailable")

// CounterStore holds fixed-window counters in Redis.
type CounterStore struct {
	client goredis.UniversalClient
	prefix string
}

// New creates a counter store. Keys are stored under prefix.
func New(client goredis.UniversalClient, prefix string) *CounterStore {
	return &CounterStore{client: client, prefix: prefix}
}

// Incr increments key and returns the new count. The first hit of a window
// sets the expiry so the key disappears when the window ends.
func (s *CounterStore) Incr(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	key = s.prefix + key

	count, err := s.client.Incr(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	if count == 1 {
		if err := s.client.Expire(ctx, key, ttl).Err(); err != nil {
			return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}
	}

	return count, nil
}

// Ping checks the connection.
func (s *CounterStore) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// Close closes the client.
func (s *CounterStore) Close() error {
	return s.client.Close()
}

// Options configures a Redis connection.
type Options struct {
	Addr     string
	Username string
	Password string
	DB       int
	Prefix   string
}

// Dial connects to Redis and verifies the connection.
func Dial(ctx context.Context, opts Options) (*CounterStore, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     opts.Addr,
		Username: opts.Username,
		Password: opts.Password,
		DB:       opts.DB,
	})

	store := New(client, opts.Prefix)
	if err := store.Ping(ctx); err != nil {
		client.Close()
		return nil, err
	}
	return store, nil
}
