package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// RedisOptions holds Redis client settings
type RedisOptions struct {
	URL        string
	Password   string
	DB         int
	MaxRetries int
	PoolSize   int
}

// RedisClient wraps the shared Redis connection used by the hot quota
// counter ledger and the sweeper's run lock.
type RedisClient struct {
	client *redis.Client
}

// NewRedisClient creates a new Redis client and verifies connectivity
func NewRedisClient(opts RedisOptions) (*RedisClient, error) {
	parsed, err := redis.ParseURL(opts.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}

	// Override with explicit option values if provided
	if opts.Password != "" {
		parsed.Password = opts.Password
	}
	if opts.DB > 0 {
		parsed.DB = opts.DB
	}
	if opts.MaxRetries > 0 {
		parsed.MaxRetries = opts.MaxRetries
	}
	if opts.PoolSize > 0 {
		parsed.PoolSize = opts.PoolSize
	}

	// Connection timeouts
	parsed.DialTimeout = 5 * time.Second
	parsed.ReadTimeout = 3 * time.Second
	parsed.WriteTimeout = 3 * time.Second
	parsed.PoolTimeout = 4 * time.Second

	client := redis.NewClient(parsed)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &RedisClient{client: client}, nil
}

// Client returns the underlying Redis client for ledger construction and
// health checks
func (c *RedisClient) Client() *redis.Client {
	return c.client
}

// Ping checks Redis connectivity
func (c *RedisClient) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// PoolStats returns connection pool statistics
func (c *RedisClient) PoolStats() *redis.PoolStats {
	return c.client.PoolStats()
}

// AcquireLock takes a named lock with a TTL so only one worker runs a
// maintenance job at a time. Returns false if another holder has it.
func (c *RedisClient) AcquireLock(ctx context.Context, name string, ttl time.Duration) (bool, error) {
	ok, err := c.client.SetNX(ctx, "lock:"+name, time.Now().UTC().Format(time.RFC3339), ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to acquire lock %s: %w", name, err)
	}
	return ok, nil
}

// ReleaseLock drops a named lock. Releasing a lock that expired or was
// never held is not an error.
func (c *RedisClient) ReleaseLock(ctx context.Context, name string) error {
	if err := c.client.Del(ctx, "lock:"+name).Err(); err != nil {
		return fmt.Errorf("failed to release lock %s: %w", name, err)
	}
	return nil
}

// Close closes the Redis connection
func (c *RedisClient) Close() error {
	return c.client.Close()
}
