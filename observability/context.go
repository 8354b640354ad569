package observability

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// InvocationContext holds observability context for one batch.
type InvocationContext struct {
	ServiceName  string
	Source       string
	InvocationID string
	StartTime    time.Time
	Metrics      *Metrics
}

// NewInvocationContext creates a new invocation context.
// If metrics is nil, metric recording is silently skipped.
func NewInvocationContext(serviceName, source, invocationID string, metrics *Metrics) *InvocationContext {
	return &InvocationContext{
		ServiceName:  serviceName,
		Source:       source,
		InvocationID: invocationID,
		StartTime:    time.Now(),
		Metrics:      metrics,
	}
}

type invocationContextKey struct{}

// WithInvocationContext stores an InvocationContext in the context.
func WithInvocationContext(ctx context.Context, ic *InvocationContext) context.Context {
	return context.WithValue(ctx, invocationContextKey{}, ic)
}

// InvocationContextFromContext retrieves the InvocationContext from context, or nil.
func InvocationContextFromContext(ctx context.Context) *InvocationContext {
	if ic, ok := ctx.Value(invocationContextKey{}).(*InvocationContext); ok {
		return ic
	}
	return nil
}

// Start starts the invocation span and records the start metric.
func (ic *InvocationContext) Start(ctx context.Context) (context.Context, trace.Span) {
	ctx, span := StartSpan(ctx, SpanInvocation)
	span.SetAttributes(
		attribute.String(AttrServiceName, ic.ServiceName),
		attribute.String(AttrSource, ic.Source),
		attribute.String(AttrInvocationID, ic.InvocationID),
	)
	if ic.Metrics != nil {
		ic.Metrics.RecordInvocationStart(ctx)
	}
	return WithInvocationContext(ctx, ic), span
}

// End ends the span and records the end metrics.
func (ic *InvocationContext) End(ctx context.Context, span trace.Span, status string, err error) {
	duration := time.Since(ic.StartTime)

	if err != nil {
		span.RecordError(err)
		span.SetAttributes(attribute.String(AttrErrorMessage, err.Error()))
	}

	span.SetAttributes(
		attribute.String(AttrStatus, status),
		attribute.Int64(AttrDurationMs, duration.Milliseconds()),
	)
	span.End()

	if ic.Metrics != nil {
		ic.Metrics.RecordInvocationEnd(ctx, ic.Source, status)
	}
}

// Duration returns the elapsed time since the invocation started.
func (ic *InvocationContext) Duration() time.Duration {
	return time.Since(ic.StartTime)
}
