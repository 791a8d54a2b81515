package remote

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrMalformedResponse is returned when a stored counter cannot be parsed.
var ErrMalformedResponse = errors.New("malformed remote response")

// RedisClient adapts a go-redis client to ports.RemoteClient.
// The connection lifecycle is owned by the caller.
type RedisClient struct {
	client redis.Cmdable
}

// NewRedisClient wraps any go-redis command surface (*redis.Client, cluster, ring).
func NewRedisClient(client redis.Cmdable) *RedisClient {
	return &RedisClient{client: client}
}

func (c *RedisClient) Get(ctx context.Context, key string) (int64, bool, error) {
	raw, err := c.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	value, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, false, fmt.Errorf("%w: counter %q", ErrMalformedResponse, raw)
	}
	return value, true, nil
}

// SetWithExpiry issues SET key value PX expiry.
func (c *RedisClient) SetWithExpiry(ctx context.Context, key string, value int64, expiry time.Duration) error {
	return c.client.Set(ctx, key, value, expiry).Err()
}

func (c *RedisClient) Increment(ctx context.Context, key string) (int64, error) {
	return c.client.Incr(ctx, key).Result()
}

// TTL issues PTTL. Redis reports -2 for a missing key and -1 for a key without
// expiry; both are returned as unknown.
func (c *RedisClient) TTL(ctx context.Context, key string) (time.Duration, bool, error) {
	ttl, err := c.client.PTTL(ctx, key).Result()
	if err != nil {
		return 0, false, err
	}
	if ttl <= 0 {
		return 0, false, nil
	}
	return ttl, true, nil
}
