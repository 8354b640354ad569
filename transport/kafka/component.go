package kafka

import (
	"context"
	"fmt"
	"sync"

	"github.com/mintel/lpipe/component"
	"github.com/mintel/lpipe/logger"
	"github.com/mintel/lpipe/observability"
	"github.com/mintel/lpipe/route"
)

// Component owns the producer for the lifetime of the service and exposes
// it as a putter.
type Component struct {
	cfg      Config
	log      *logger.Logger
	producer *Producer
	mu       sync.Mutex
	running  bool
}

var _ component.Component = (*Component)(nil)

// NewComponent creates a Kafka component for the component registry.
func NewComponent(cfg Config, log *logger.Logger) *Component {
	cfg.ApplyDefaults()
	if log == nil {
		log = logger.Nop()
	}
	return &Component{cfg: cfg, log: log.WithComponent("kafka")}
}

// SetProducer injects a producer. Must be called before Start.
func (c *Component) SetProducer(p *Producer) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.producer = p
}

// Producer returns the producer, or nil if not started.
func (c *Component) Producer() *Producer {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.producer
}

// Name returns the component name.
func (c *Component) Name() string { return "kafka" }

// Start creates the producer unless one was injected.
func (c *Component) Start(_ context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.running {
		return nil
	}
	if c.producer == nil {
		p, err := NewProducer(c.cfg, c.log)
		if err != nil {
			return fmt.Errorf("kafka start: %w", err)
		}
		c.producer = p
	}
	c.running = true
	c.log.Info("Kafka component started")
	return nil
}

// Stop closes the producer.
func (c *Component) Stop(_ context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.running {
		return nil
	}
	c.log.Info("Kafka component stopping")
	var err error
	if c.producer != nil {
		err = c.producer.Close()
		c.producer = nil
	}
	c.running = false
	return err
}

// Put delivers record through the producer.
func (c *Component) Put(ctx context.Context, queue route.Queue, record map[string]any) error {
	p := c.Producer()
	if p == nil {
		return fmt.Errorf("kafka component not started")
	}
	return p.Put(ctx, queue, record)
}

// Health checks broker connectivity by dialling the first broker.
func (c *Component) Health(ctx context.Context) observability.Health {
	c.mu.Lock()
	running := c.running
	cfg := c.cfg
	c.mu.Unlock()

	h := observability.Health{Name: c.Name(), Status: observability.HealthStatusDown}
	if !running {
		h.Message = "kafka not started"
		return h
	}
	if len(cfg.Brokers) == 0 {
		h.Message = "no brokers configured"
		return h
	}

	dialer, err := CreateDialer(&cfg)
	if err != nil {
		h.Message = fmt.Sprintf("dialer: %v", err)
		return h
	}
	conn, err := dialer.DialContext(ctx, "tcp", cfg.Brokers[0])
	if err != nil {
		h.Message = fmt.Sprintf("broker unreachable: %v", err)
		return h
	}
	defer conn.Close()

	if _, err := conn.Brokers(); err != nil {
		h.Status = observability.HealthStatusDegraded
		h.Message = fmt.Sprintf("broker metadata: %v", err)
		return h
	}
	h.Status = observability.HealthStatusUp
	return h
}

// Describe returns summary info logged at startup.
func (c *Component) Describe() component.Description {
	return component.Description{
		Name:    "Kafka",
		Type:    "kafka",
		Details: fmt.Sprintf("brokers=%v compression=%s", c.cfg.Brokers, c.cfg.Compression),
	}
}
