package redis

import (
	"context"
	"fmt"
	"sync"

	"github.com/mintel/lpipe/component"
	"github.com/mintel/lpipe/event"
	"github.com/mintel/lpipe/logger"
	"github.com/mintel/lpipe/observability"
	"github.com/mintel/lpipe/route"
)

// Component owns the Redis client and exposes the stream queue as a
// putter and cleaner.
type Component struct {
	cfg    Config
	log    *logger.Logger
	client *Client
	queue  *Queue
	mu     sync.RWMutex
}

var _ component.Component = (*Component)(nil)

// NewComponent creates a Redis component for the component registry.
func NewComponent(cfg Config, log *logger.Logger) *Component {
	cfg.ApplyDefaults()
	if log == nil {
		log = logger.Nop()
	}
	return &Component{cfg: cfg, log: log.WithComponent("redis")}
}

// Name returns the component name.
func (c *Component) Name() string { return "redis" }

// Client returns the client, or nil if not started.
func (c *Component) Client() *Client {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.client
}

// Start creates the client and verifies connectivity.
func (c *Component) Start(ctx context.Context) error {
	client, err := New(c.cfg, c.log)
	if err != nil {
		return fmt.Errorf("redis start: %w", err)
	}
	if err := client.Ping(ctx); err != nil {
		_ = client.Close()
		return fmt.Errorf("redis start ping: %w", err)
	}

	c.mu.Lock()
	c.client = client
	c.queue = NewQueue(client, c.log)
	c.mu.Unlock()
	c.log.Info("Redis component started")
	return nil
}

// Stop closes the client.
func (c *Component) Stop(_ context.Context) error {
	c.mu.Lock()
	client := c.client
	c.client, c.queue = nil, nil
	c.mu.Unlock()
	return client.Close()
}

func (c *Component) started() (*Queue, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.queue == nil {
		return nil, fmt.Errorf("redis component not started")
	}
	return c.queue, nil
}

// Put appends record to the stream of queue.
func (c *Component) Put(ctx context.Context, queue route.Queue, record map[string]any) error {
	q, err := c.started()
	if err != nil {
		return err
	}
	return q.Put(ctx, queue, record)
}

// Cleanup deletes records from their source streams.
func (c *Component) Cleanup(ctx context.Context, kind route.Transport, records []event.Record) error {
	q, err := c.started()
	if err != nil {
		return err
	}
	return q.Cleanup(ctx, kind, records)
}

// Health pings the server.
func (c *Component) Health(ctx context.Context) observability.Health {
	h := observability.Health{Name: c.Name(), Status: observability.HealthStatusDown}
	client := c.Client()
	if client == nil {
		h.Message = "redis not initialized"
		return h
	}
	if err := client.Ping(ctx); err != nil {
		h.Message = fmt.Sprintf("ping failed: %v", err)
		return h
	}
	h.Status = observability.HealthStatusUp
	return h
}

// Describe returns summary info logged at startup.
func (c *Component) Describe() component.Description {
	return component.Description{
		Name:    "Redis",
		Type:    "redis",
		Details: fmt.Sprintf("%s db=%d pool=%d", c.cfg.Addr, c.cfg.DB, c.cfg.PoolSize),
	}
}
