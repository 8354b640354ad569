package batch

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/mintel/lpipe/dispatch"
	"github.com/mintel/lpipe/errors"
	"github.com/mintel/lpipe/event"
	"github.com/mintel/lpipe/logger"
	"github.com/mintel/lpipe/observability"
	"github.com/mintel/lpipe/route"
)

// Processor runs batches against a routing table. A Processor holds no
// per-batch state and may process batches concurrently.
type Processor struct {
	table       *route.Table
	source      route.Transport
	defaultPath route.Target
	debug       bool
	observer    dispatch.Observer
	putter      dispatch.Putter
	cleaner     Cleaner
	log         *logger.Logger
	metrics     *observability.Metrics
	maxDepth    int
	service     string

	dispatcher *dispatch.Dispatcher
}

// New creates a processor for table. The source defaults to RAW.
func New(table *route.Table, opts ...Option) *Processor {
	p := &Processor{
		table:    table,
		source:   route.TransportRaw,
		observer: dispatch.NopObserver,
		log:      logger.Nop(),
		service:  "lpipe",
	}
	for _, opt := range opts {
		opt(p)
	}
	p.dispatcher = dispatch.New(table,
		dispatch.WithPutter(p.putter),
		dispatch.WithObserver(p.observer),
		dispatch.WithMetrics(p.metrics),
		dispatch.WithDebug(p.debug),
		dispatch.WithMaxDepth(p.maxDepth),
	)
	return p
}

// ProcessEvent processes one batch with a throwaway processor.
func ProcessEvent(ctx context.Context, batch []byte, table *route.Table, opts ...Option) (*Summary, error) {
	return New(table, opts...).Process(ctx, batch)
}

// Source returns the kind of batch the processor decodes.
func (p *Processor) Source() route.Transport { return p.source }

// For returns a processor sharing p's configuration that decodes batches
// of kind.
func (p *Processor) For(kind route.Transport) *Processor {
	c := *p
	c.source = kind
	return &c
}

// Process decodes batch and dispatches every record in delivery order.
//
// Recoverable failures drop their record and the batch goes on. If any
// record fails catastrophically, the remaining records are still processed,
// the records that succeeded are handed to the Cleaner and a *BatchError is
// returned instead of the summary.
func (p *Processor) Process(ctx context.Context, batch []byte) (*Summary, error) {
	if !p.source.Valid() {
		return nil, errors.Configuration("Invalid source kind '%s'", p.source)
	}
	var defaultPath route.Target
	if p.defaultPath != nil {
		path, err := p.table.Enum().Resolve(p.defaultPath)
		if err != nil {
			return nil, errors.Configuration("invalid default path %s", p.defaultPath).WithCause(err)
		}
		defaultPath = path
	}

	inv := &invocation{
		Processor:   p,
		id:          uuid.NewString(),
		defaultPath: defaultPath,
	}
	ctx = logger.ContextWithInvocationID(ctx, inv.id)
	inv.log = p.log.WithContext(ctx).WithFields(logger.Fields(logger.FieldEventSource, p.source.String()))
	if p.debug {
		inv.rec = logger.NewRecorder()
		inv.log = inv.log.Tee(inv.rec)
	}
	inv.dispatcher = p.dispatcher.With(dispatch.WithLogger(inv.log))

	ic := observability.NewInvocationContext(p.service, p.source.String(), inv.id, p.metrics)
	ctx, span := ic.Start(ctx)

	summary, err := inv.run(ctx, batch)
	status := "ok"
	if err != nil {
		status = "aborted"
		span.SetStatus(codes.Error, "batch aborted")
	}
	ic.End(ctx, span, status, err)
	return summary, err
}

// invocation is the state of one Process call.
type invocation struct {
	*Processor
	id          string
	defaultPath route.Target
	log         *logger.Logger
	rec         *logger.Recorder
	dispatcher  *dispatch.Dispatcher
}

func (inv *invocation) run(ctx context.Context, batch []byte) (*Summary, error) {
	inv.log.Debug("Event received.", logger.Fields("size", len(batch)))

	records, err := event.RecordsFromBatch(inv.source, batch)
	if stderrors.Is(err, event.ErrNotAList) {
		inv.log.WithError(err).Error("'records' is not a list")
		return inv.finish(newSummary(0, 0)), nil
	}
	if err != nil {
		return nil, err
	}

	var (
		succeeded []event.Record
		output    []any
		failures  []Failure
		hasOutput bool
	)
	for _, rec := range records {
		value, err := inv.record(ctx, rec)
		switch dispatch.Classify(err) {
		case dispatch.OutcomeOK:
			succeeded = append(succeeded, rec)
			output = append(output, value)
			hasOutput = hasOutput || value != nil
		case dispatch.OutcomeCatastrophic:
			inv.log.WithError(err).Error("Record failed catastrophically, the invocation will abort.",
				logger.Fields(logger.FieldRecordIndex, rec.Index, logger.FieldErrorCode, string(errors.CodeOf(err))))
			inv.observer.Observe(ctx, err)
			failures = append(failures, Failure{Record: rec, Err: err})
		default:
			inv.dropped(ctx, rec, err)
		}
	}

	if len(failures) > 0 {
		inv.cleanup(ctx, succeeded)
		return nil, &BatchError{InvocationID: inv.id, Failures: failures}
	}

	summary := newSummary(len(records), len(succeeded))
	if hasOutput {
		summary.Output = output
	}
	if inv.debug {
		raw, err := json.Marshal(records)
		if err == nil {
			summary.Debug = string(raw)
		}
	}
	return inv.finish(summary), nil
}

// record decodes and dispatches one record.
func (inv *invocation) record(ctx context.Context, rec event.Record) (any, error) {
	source := event.EventSource(inv.source, rec)
	ctx, span := observability.StartSpan(ctx, observability.SpanRecord, trace.WithAttributes(
		attribute.Int(observability.AttrRecordIndex, rec.Index),
		attribute.String(observability.AttrInvocationID, inv.id),
	))
	defer span.End()

	start := time.Now()
	value, err := inv.dispatchRecord(ctx, rec, source)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	if inv.metrics != nil {
		inv.metrics.RecordRecord(ctx, inv.source.String(), dispatch.Classify(err).String(), time.Since(start))
	}
	return value, err
}

func (inv *invocation) dispatchRecord(ctx context.Context, rec event.Record, source string) (any, error) {
	env, err := event.PayloadFromRecord(inv.source, rec, inv.defaultPath != nil)
	if err != nil {
		return nil, err
	}
	target := inv.defaultPath
	if target == nil {
		target = env.Path
	}
	payload, err := route.NewPayload(target, env.Kwargs)
	if err != nil {
		return nil, err
	}
	if payload, err = payload.Resolve(inv.table.Enum()); err != nil {
		return nil, err
	}
	payload.EventSource = source

	log := inv.log.WithFields(logger.Fields(logger.FieldRecordIndex, rec.Index, logger.FieldEventSource, source))
	log.Info("Record received.", logger.Fields("payload", payload))

	state := route.NewState(inv.id, rec.Index, source, inv.debug)
	return inv.dispatcher.With(dispatch.WithLogger(log)).Dispatch(ctx, payload, state)
}

// dropped logs and observes a recoverable failure. Handler violations were
// already observed one by one.
func (inv *invocation) dropped(ctx context.Context, rec event.Record, err error) {
	fields := logger.Fields(logger.FieldRecordIndex, rec.Index, logger.FieldErrorCode, string(errors.CodeOf(err)))
	switch errors.CodeOf(err) {
	case errors.ErrCodeContinue:
		inv.log.WithError(err).Debug("Handler asked to skip the record.", fields)
	case errors.ErrCodePathNotFound:
		inv.log.WithError(err).Error("Payload specified an invalid path.", fields)
	case errors.ErrCodeHandlerFailed:
		inv.log.WithError(err).Error("Record dropped after unhandled handler errors.", fields)
		return
	default:
		inv.log.WithError(err).Error("Record dropped.", fields)
	}
	inv.observer.Observe(ctx, err)
}

func (inv *invocation) cleanup(ctx context.Context, succeeded []event.Record) {
	if inv.cleaner == nil || len(succeeded) == 0 {
		return
	}
	ctx, span := observability.StartSpan(ctx, observability.SpanCleanup)
	defer span.End()

	fields := logger.Fields("records", len(succeeded))
	inv.log.Info("Cleaning up successful records of the aborted batch.", fields)
	if err := inv.cleaner.Cleanup(ctx, inv.source, succeeded); err != nil {
		span.RecordError(err)
		inv.log.WithError(err).Error("Cleanup failed.", fields)
	}
}

// finish attaches the debug transcript.
func (inv *invocation) finish(summary *Summary) *Summary {
	inv.log.Info("Finished.", logger.Fields("received", summary.Stats.Received, "successes", summary.Stats.Successes))
	if inv.rec != nil {
		summary.Logs = inv.rec.JSON()
	}
	return summary
}
