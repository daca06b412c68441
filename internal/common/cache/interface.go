package cache

import (
	"context"
	"time"
)

// Cache is the key-value surface the grading services rely on.
type Cache interface {
	// Get returns "" with a nil error when the key is absent.
	Get(ctx context.Context, key string) (string, error)

	// Set stores a value; a zero ttl keeps the key forever.
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error

	// SetNX stores the value only when the key does not exist yet.
	SetNX(ctx context.Context, key string, value interface{}, ttl time.Duration) (bool, error)

	// Incr adds one to the counter at key and returns the new value.
	Incr(ctx context.Context, key string) (int64, error)

	Del(ctx context.Context, keys ...string) error
	Expire(ctx context.Context, key string, ttl time.Duration) error
	TTL(ctx context.Context, key string) (time.Duration, error)

	Ping(ctx context.Context) error
	Close() error
}
