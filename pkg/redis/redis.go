package redis

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/richxcame/ride-booking/pkg/config"
	"github.com/richxcame/ride-booking/pkg/resilience"
)

// Nil is returned by GetString when the key does not exist.
var Nil = redis.Nil

// Client wraps the Redis client
type Client struct {
	client *redis.Client
}

// NewRedisClient connects and pings before returning.
func NewRedisClient(cfg *config.RedisConfig) (*Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr(),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("unable to connect to redis: %w", err)
	}

	return &Client{client: client}, nil
}

// NewFromClient wraps an existing go-redis client, e.g. one from redismock.
func NewFromClient(client *redis.Client) *Client {
	return &Client{client: client}
}

// SetWithExpiration sets a key-value pair with expiration
func (c *Client) SetWithExpiration(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	return c.client.Set(ctx, key, value, expiration).Err()
}

// GetString reads a key, retrying transient connection failures.
func (c *Client) GetString(ctx context.Context, key string) (string, error) {
	result, err := resilience.RetryWithName(ctx, readRetryConfig(), func(ctx context.Context) (interface{}, error) {
		return c.client.Get(ctx, key).Result()
	}, "redis.get")
	if err != nil {
		return "", err
	}
	return result.(string), nil
}

// Delete deletes keys
func (c *Client) Delete(ctx context.Context, keys ...string) error {
	return c.client.Del(ctx, keys...).Err()
}

// Ping checks connectivity, used by the readiness probe.
func (c *Client) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Cmdable exposes the underlying client for scripts.
func (c *Client) Cmdable() redis.Cmdable {
	return c.client
}

// Close closes the Redis client
func (c *Client) Close() error {
	return c.client.Close()
}

func readRetryConfig() resilience.RetryConfig {
	cfg := resilience.DefaultRetryConfig()
	cfg.MaxAttempts = 3
	cfg.InitialBackoff = 50 * time.Millisecond
	cfg.MaxBackoff = time.Second
	cfg.RetryableChecker = isRedisRetryable
	return cfg
}

func isRedisRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if errors.Is(err, redis.Nil) {
		return false
	}

	errMsg := strings.ToLower(err.Error())
	for _, msg := range []string{
		"connection refused",
		"connection reset",
		"broken pipe",
		"i/o timeout",
		"pool timeout",
		"server closed",
		"unexpected eof",
		"loading",
		"tryagain",
	} {
		if strings.Contains(errMsg, msg) {
			return true
		}
	}
	return false
}
