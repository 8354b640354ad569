package batch

import (
	"github.com/mintel/lpipe/dispatch"
	"github.com/mintel/lpipe/logger"
	"github.com/mintel/lpipe/observability"
	"github.com/mintel/lpipe/route"
)

// Option configures a Processor.
type Option func(*Processor)

// WithSource sets the kind of batch the processor decodes.
func WithSource(kind route.Transport) Option {
	return func(p *Processor) { p.source = kind }
}

// WithDefaultPath routes every record to target and treats the whole
// record body as kwargs.
func WithDefaultPath(target route.Target) Option {
	return func(p *Processor) { p.defaultPath = target }
}

// WithDebug escalates unclassified handler errors and adds the raw records
// and the log transcript to the summary.
func WithDebug(debug bool) Option {
	return func(p *Processor) { p.debug = debug }
}

// WithObserver sets the failure observer.
func WithObserver(o dispatch.Observer) Option {
	return func(p *Processor) {
		if o != nil {
			p.observer = o
		}
	}
}

// WithPutter sets the queue client used for outbound records.
func WithPutter(putter dispatch.Putter) Option {
	return func(p *Processor) { p.putter = putter }
}

// WithCleaner sets the compensating cleanup run when a batch aborts.
func WithCleaner(c Cleaner) Option {
	return func(p *Processor) { p.cleaner = c }
}

// WithLogger sets the logger.
func WithLogger(l *logger.Logger) Option {
	return func(p *Processor) {
		if l != nil {
			p.log = l
		}
	}
}

// WithMaxDepth bounds nested dispatch.
func WithMaxDepth(n int) Option {
	return func(p *Processor) { p.maxDepth = n }
}

// WithMetrics records invocation, record and handler metrics.
func WithMetrics(m *observability.Metrics) Option {
	return func(p *Processor) { p.metrics = m }
}

// WithServiceName labels invocation spans.
func WithServiceName(name string) Option {
	return func(p *Processor) { p.service = name }
}
