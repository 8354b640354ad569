package redis

import (
	"context"
	"fmt"
	"sync"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/mintel/lpipe/logger"
)

// BodyField is the stream entry field holding the JSON record.
const BodyField = "body"

// Client wraps a go-redis client with the stream operations the QUEUE
// transport needs.
type Client struct {
	rdb    *goredis.Client
	log    *logger.Logger
	cfg    Config
	closed bool
	mu     sync.Mutex
}

// New creates a Redis client. It does not connect until first use.
func New(cfg Config, log *logger.Logger) (*Client, error) {
	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("redis config: %w", err)
	}
	if !cfg.Enabled {
		return nil, fmt.Errorf("redis is disabled")
	}
	if log == nil {
		log = logger.Nop()
	}

	opts := &goredis.Options{
		Addr:            cfg.Addr,
		Password:        cfg.Password,
		DB:              cfg.DB,
		PoolSize:        cfg.PoolSize,
		MinIdleConns:    cfg.MinIdleConns,
		MaxRetries:      cfg.MaxRetries,
		MinRetryBackoff: parseDuration(cfg.MinRetryBackoff),
		MaxRetryBackoff: parseDuration(cfg.MaxRetryBackoff),
		DialTimeout:     parseDuration(cfg.DialTimeout),
		ReadTimeout:     parseDuration(cfg.ReadTimeout),
		WriteTimeout:    parseDuration(cfg.WriteTimeout),
	}
	rdb := goredis.NewClient(opts)

	log.Info("Redis client created", logger.Fields(
		"addr", cfg.Addr,
		"db", cfg.DB,
		"pool_size", cfg.PoolSize,
	))
	return &Client{rdb: rdb, log: log, cfg: cfg}, nil
}

// Ping verifies the Redis connection is alive.
func (c *Client) Ping(ctx context.Context) error {
	pong, err := c.rdb.Ping(ctx).Result()
	if err != nil {
		return fmt.Errorf("redis ping failed: %w", err)
	}
	if pong != "PONG" {
		return fmt.Errorf("unexpected redis ping response: %s", pong)
	}
	return nil
}

// Add appends body to stream and returns the entry id.
func (c *Client) Add(ctx context.Context, stream string, body []byte) (string, error) {
	args := &goredis.XAddArgs{
		Stream: stream,
		Values: map[string]interface{}{BodyField: string(body)},
	}
	if c.cfg.MaxLen > 0 {
		args.MaxLen = c.cfg.MaxLen
		args.Approx = true
	}
	return c.rdb.XAdd(ctx, args).Result()
}

// Delete removes entries from stream and returns how many existed.
func (c *Client) Delete(ctx context.Context, stream string, ids ...string) (int64, error) {
	return c.rdb.XDel(ctx, stream, ids...).Result()
}

// Range returns every entry of stream, oldest first.
func (c *Client) Range(ctx context.Context, stream string) ([]goredis.XMessage, error) {
	return c.rdb.XRange(ctx, stream, "-", "+").Result()
}

// Close closes the connection pool. Safe to call multiple times.
func (c *Client) Close() error {
	if c == nil {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.log.Info("Closing Redis connection")
	c.closed = true
	return c.rdb.Close()
}

// Unwrap returns the underlying go-redis client.
func (c *Client) Unwrap() *goredis.Client {
	return c.rdb
}

func parseDuration(s string) time.Duration {
	d, _ := time.ParseDuration(s)
	return d
}
