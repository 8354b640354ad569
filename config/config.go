package config

import (
	"fmt"

	"github.com/mintel/lpipe/dispatch"
	"github.com/mintel/lpipe/observability"
	"github.com/mintel/lpipe/resilience"
	"github.com/mintel/lpipe/route"
	"github.com/mintel/lpipe/server"
	"github.com/mintel/lpipe/transport/kafka"
	"github.com/mintel/lpipe/transport/redis"
	"github.com/mintel/lpipe/validation"
)

// Config is the complete engine configuration.
//
//	name: orders
//	source: QUEUE
//	default_path: STORE
//	redis:
//	  enabled: true
//	  addr: localhost:6379
type Config struct {
	ServiceConfig `yaml:",inline" mapstructure:",squash"`

	// Source is the kind of batch the engine receives.
	Source route.Transport `yaml:"source" mapstructure:"source" validate:"oneof=RAW STREAM QUEUE"`

	// DefaultPath, when set, is the member every record is dispatched to;
	// record bodies are then bare kwargs.
	DefaultPath string `yaml:"default_path" mapstructure:"default_path"`

	// MaxDepth bounds nested dispatch.
	MaxDepth int `yaml:"max_depth" mapstructure:"max_depth" validate:"gte=1"`

	// Delivery configures the circuit breaker and optional throttle in front
	// of every stream and queue destination.
	Delivery resilience.BreakerConfig `yaml:"delivery" mapstructure:"delivery"`

	Observability observability.Config `yaml:"observability" mapstructure:"observability"`
	Kafka         kafka.Config         `yaml:"kafka" mapstructure:"kafka"`
	Redis         redis.Config         `yaml:"redis" mapstructure:"redis"`
	Server        server.Config        `yaml:"server" mapstructure:"server"`
}

// ApplyDefaults fills zero-valued fields, including every nested config.
func (c *Config) ApplyDefaults() {
	c.ServiceConfig.ApplyDefaults()
	if c.Source == "" {
		c.Source = route.TransportRaw
	}
	if c.MaxDepth <= 0 {
		c.MaxDepth = dispatch.DefaultMaxDepth
	}
	c.Delivery.ApplyDefaults()
	c.Observability.ApplyDefaults()
	c.Kafka.ApplyDefaults()
	c.Redis.ApplyDefaults()
	c.Server.ApplyDefaults()
}

// Validate checks the configuration. Struct tags are checked first, then
// each nested config.
func (c *Config) Validate() error {
	if err := c.ServiceConfig.Validate(); err != nil {
		return err
	}
	if err := validation.Struct(c); err != nil {
		return err
	}
	for _, sub := range []struct {
		name string
		v    interface{ Validate() error }
	}{
		{"delivery", &c.Delivery},
		{"kafka", &c.Kafka},
		{"redis", &c.Redis},
		{"server", &c.Server},
	} {
		if err := sub.v.Validate(); err != nil {
			return fmt.Errorf("config.%s: %w", sub.name, err)
		}
	}
	return nil
}

// Load reads the configuration of serviceName, applies defaults and
// validates it.
func Load(serviceName string, opts ...LoaderOption) (*Config, error) {
	cfg := &Config{}
	if err := LoadConfig(serviceName, cfg, opts...); err != nil {
		return nil, err
	}
	if cfg.Name == "" {
		cfg.Name = serviceName
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
