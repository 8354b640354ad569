package observability

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/mintel/lpipe/errors"
	"github.com/mintel/lpipe/logger"
)

// EventFailure is the span event added for every observed failure.
const EventFailure = "lpipe.failure"

// Unclassified labels errors that carry no error code.
const Unclassified = "UNCLASSIFIED"

// FailureObserver reports failures to the current span and, when set, to
// the failure counter.
type FailureObserver struct {
	metrics *Metrics
	log     *logger.Logger
}

// NewFailureObserver creates an observer. Both arguments may be nil.
func NewFailureObserver(metrics *Metrics, log *logger.Logger) *FailureObserver {
	if log == nil {
		log = logger.Nop()
	}
	return &FailureObserver{metrics: metrics, log: log}
}

// Observe records err.
func (o *FailureObserver) Observe(ctx context.Context, err error) {
	if err == nil {
		return
	}
	code, severity := Classification(err)

	span := trace.SpanFromContext(ctx)
	if span.IsRecording() {
		span.AddEvent(EventFailure, trace.WithAttributes(
			attribute.String(AttrErrorCode, code),
			attribute.String(AttrSeverity, severity),
			attribute.String(AttrErrorMessage, err.Error()),
		))
	}
	if o.metrics != nil {
		o.metrics.RecordFailure(ctx, code, severity)
	}
	o.log.Debug("failure observed", logger.Fields(logger.FieldErrorCode, code, "severity", severity))
}

// Classification returns the code and severity labels of err.
func Classification(err error) (code, severity string) {
	appErr, ok := errors.AsAppError(err)
	if !ok {
		return Unclassified, "unclassified"
	}
	return string(appErr.Code), string(appErr.Severity)
}
