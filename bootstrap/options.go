package bootstrap

import (
	"io"
	"time"

	"github.com/mintel/lpipe/batch"
	"github.com/mintel/lpipe/dispatch"
	"github.com/mintel/lpipe/logger"
	"github.com/mintel/lpipe/observability"
	"github.com/mintel/lpipe/route"
)

// Option configures the App during creation.
type Option func(*appOptions)

// appOptions collects all option values before applying to App.
type appOptions struct {
	logger          *logger.Logger
	gracefulTimeout *time.Duration
	putters         map[route.Transport]dispatch.Putter
	cleaner         batch.Cleaner
	metrics         *observability.Metrics
	summaryOutput   io.Writer
}

// resolveOptions applies all options and returns the collected values.
func resolveOptions(opts []Option) *appOptions {
	o := &appOptions{putters: make(map[route.Transport]dispatch.Putter)}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// WithLogger sets a custom logger for the application.
// If not set, the logger is built from the config's Logging field.
func WithLogger(l *logger.Logger) Option {
	return func(o *appOptions) {
		o.logger = l
	}
}

// WithGracefulTimeout sets the maximum duration for graceful shutdown.
func WithGracefulTimeout(d time.Duration) Option {
	return func(o *appOptions) {
		o.gracefulTimeout = &d
	}
}

// WithPutter delivers records for kind through p instead of the configured
// transport.
func WithPutter(kind route.Transport, p dispatch.Putter) Option {
	return func(o *appOptions) {
		o.putters[kind] = p
	}
}

// WithCleaner replaces the cleaner of aborted batches.
func WithCleaner(c batch.Cleaner) Option {
	return func(o *appOptions) {
		o.cleaner = c
	}
}

// WithMetrics sets the metric instruments instead of creating them on the
// global meter.
func WithMetrics(m *observability.Metrics) Option {
	return func(o *appOptions) {
		o.metrics = m
	}
}

// WithSummary writes the startup summary to w once the application has
// started.
func WithSummary(w io.Writer) Option {
	return func(o *appOptions) {
		o.summaryOutput = w
	}
}
