package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

const rateLimitWindow = time.Minute

type Client struct {
	client *redis.Client
}

// RateLimit is the state of a caller's current window
type RateLimit struct {
	Exceeded  bool
	Limit     int
	Remaining int
	ResetIn   time.Duration
}

// New creates a new Redis client
func New(ctx context.Context, redisURL string) (*Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	client := redis.NewClient(opts)

	// Test connection
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("Redis ping failed: %w", err)
	}

	return &Client{client: client}, nil
}

// Close closes the Redis connection
func (c *Client) Close() error {
	return c.client.Close()
}

// Ping checks the connection, for health checks
func (c *Client) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// CheckRateLimit counts one request for the user in a fixed one-minute
// window. INCR comes first so concurrent requests never read a stale count.
func (c *Client) CheckRateLimit(ctx context.Context, userID string, limit int) (RateLimit, error) {
	key := fmt.Sprintf("ratelimit:%s:%d", userID, time.Now().Unix()/int64(rateLimitWindow.Seconds()))

	pipe := c.client.TxPipeline()
	incr := pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, rateLimitWindow)
	ttl := pipe.TTL(ctx, key)
	if _, err := pipe.Exec(ctx); err != nil {
		return RateLimit{}, fmt.Errorf("rate limit: %w", err)
	}

	count := int(incr.Val())
	rl := RateLimit{
		Exceeded:  count > limit,
		Limit:     limit,
		Remaining: max(0, limit-count),
		ResetIn:   ttl.Val(),
	}
	if rl.ResetIn <= 0 {
		rl.ResetIn = rateLimitWindow
	}
	return rl, nil
}
