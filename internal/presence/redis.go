package presence

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisOptions configures the Redis connection.
type RedisOptions struct {
	Addr     string
	Password string
	DB       int
	// Prefix is prepended to every key, e.g. "kephaschat:".
	Prefix string
}

// Redis is a PresenceStore backed by Redis keys with expiry.
type Redis struct {
	client *redis.Client
	prefix string
}

// NewRedis connects to Redis and verifies the connection with PING.
func NewRedis(ctx context.Context, opts RedisOptions) (*Redis, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis at %s: %w", opts.Addr, err)
	}

	return &Redis{client: client, prefix: opts.Prefix}, nil
}

// NewRedisFromClient wraps an existing client.
func NewRedisFromClient(client *redis.Client, prefix string) *Redis {
	return &Redis{client: client, prefix: prefix}
}

// SetWithTTL sets key to value, expiring after ttl.
func (r *Redis) SetWithTTL(ctx context.Context, key, value string, ttl time.Duration) error {
	if err := r.client.Set(ctx, r.prefix+key, value, ttl).Err(); err != nil {
		return fmt.Errorf("presence set %s: %w", key, err)
	}
	return nil
}

// Delete removes key. Deleting a missing key is not an error.
func (r *Redis) Delete(ctx context.Context, key string) error {
	if err := r.client.Del(ctx, r.prefix+key).Err(); err != nil {
		return fmt.Errorf("presence delete %s: %w", key, err)
	}
	return nil
}

// Close closes the underlying client.
func (r *Redis) Close() error {
	return r.client.Close()
}
