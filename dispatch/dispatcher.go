package dispatch

import (
	"context"
	stderrors "errors"
	"fmt"
	"maps"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/mintel/lpipe/errors"
	"github.com/mintel/lpipe/logger"
	"github.com/mintel/lpipe/observability"
	"github.com/mintel/lpipe/route"
)

// DefaultMaxDepth bounds nested dispatch.
const DefaultMaxDepth = 64

var errNoPutter = stderrors.New("dispatch: no putter configured")

// Dispatcher executes payloads against a routing table.
type Dispatcher struct {
	table    *route.Table
	putter   Putter
	observer Observer
	metrics  *observability.Metrics
	log      *logger.Logger
	debug    bool
	maxDepth int
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithPutter sets the queue client.
func WithPutter(p Putter) Option {
	return func(d *Dispatcher) { d.putter = p }
}

// WithObserver sets the failure observer.
func WithObserver(o Observer) Option {
	return func(d *Dispatcher) {
		if o != nil {
			d.observer = o
		}
	}
}

// WithMetrics records handler and put metrics.
func WithMetrics(m *observability.Metrics) Option {
	return func(d *Dispatcher) { d.metrics = m }
}

// WithLogger sets the logger.
func WithLogger(l *logger.Logger) Option {
	return func(d *Dispatcher) {
		if l != nil {
			d.log = l
		}
	}
}

// WithDebug escalates handler errors outside the taxonomy to aborts.
func WithDebug(debug bool) Option {
	return func(d *Dispatcher) { d.debug = debug }
}

// WithMaxDepth bounds nested dispatch. Values below 1 keep the default.
func WithMaxDepth(n int) Option {
	return func(d *Dispatcher) {
		if n > 0 {
			d.maxDepth = n
		}
	}
}

// New creates a dispatcher for table.
func New(table *route.Table, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		table:    table,
		observer: NopObserver,
		log:      logger.Nop(),
		maxDepth: DefaultMaxDepth,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// With returns a copy of d with opts applied.
func (d *Dispatcher) With(opts ...Option) *Dispatcher {
	c := *d
	for _, opt := range opts {
		opt(&c)
	}
	return &c
}

// Table returns the routing table.
func (d *Dispatcher) Table() *route.Table { return d.table }

// Debug reports whether handler errors are escalated.
func (d *Dispatcher) Debug() bool { return d.debug }

// run carries the violations swallowed while dispatching one payload,
// including everything dispatched from it.
type run struct {
	d          *Dispatcher
	violations []error
}

// Dispatch executes p and everything it fans out to, synchronously and
// depth first. It returns the value of the last handler or sub-path.
//
// Errors in the taxonomy end the dispatch and are returned unchanged.
// Handler errors outside it are logged, observed and skipped; the dispatch
// then finishes and reports them together as HANDLER_FAILED so the record
// is not counted as a success. In debug mode they abort instead.
func (d *Dispatcher) Dispatch(ctx context.Context, p route.Payload, state *route.State) (any, error) {
	if state == nil {
		state = route.NewState("", 0, p.EventSource, d.debug)
	}
	r := &run{d: d}
	value, err := r.dispatch(ctx, p, state)
	if err != nil {
		return nil, err
	}
	if len(r.violations) > 0 {
		return value, errors.HandlerFailed(targetName(p.Target), r.violations...)
	}
	return value, nil
}

func (r *run) dispatch(ctx context.Context, p route.Payload, state *route.State) (any, error) {
	if state.Depth > r.d.maxDepth {
		return nil, errors.DepthExceeded(targetName(p.Target), r.d.maxDepth)
	}

	switch t := p.Target.(type) {
	case route.Queue:
		return nil, r.put(ctx, t, p)
	case route.Path, route.Name:
		path, err := r.d.table.Enum().Resolve(t)
		if err != nil {
			return nil, err
		}
		nodes, ok := r.d.table.Lookup(path)
		if !ok {
			return nil, errors.PathNotFound(path.String())
		}
		var value any
		for _, node := range nodes {
			if value, err = r.execute(ctx, path, node, p, state, value); err != nil {
				return nil, err
			}
		}
		return value, nil
	default:
		r.d.log.Info("Payload has no path or queue target, nothing to do.", logger.Fields(logger.FieldDepth, state.Depth))
		return nil, nil
	}
}

// execute runs one node: handlers, then sub-paths, then queues. value is
// carried over from the previous node of the same path.
func (r *run) execute(ctx context.Context, path route.Path, node *route.Node, p route.Payload, state *route.State, value any) (any, error) {
	kwargs, err := node.Binding.Bind(p.Kwargs)
	if err != nil {
		return nil, err
	}
	for _, name := range route.Reserved {
		if _, ok := kwargs[name]; ok {
			r.d.log.Warn("kwarg shadows an injected name and is only available through Call.Kwargs",
				logger.Fields(logger.FieldPath, path.String(), "kwarg", name))
		}
	}

	for _, h := range node.Handlers {
		res := r.invoke(ctx, path, h, kwargs, p, state)
		switch res.outcome {
		case OutcomeOK, OutcomeEmitted:
			value = res.value
		case OutcomeRecoverable, OutcomeCatastrophic:
			return nil, res.err
		case OutcomeSwallowed:
			r.violations = append(r.violations, res.err)
		}
	}

	for _, sub := range node.Paths {
		next := route.Payload{Target: sub, Kwargs: kwargs, EventSource: p.EventSource}
		if value, err = r.dispatch(ctx, next, state.Descend(sub)); err != nil {
			return nil, err
		}
	}
	for _, q := range node.Queues {
		next := route.Payload{Target: q, Kwargs: kwargs, EventSource: p.EventSource}
		if _, err = r.dispatch(ctx, next, state.Descend(q)); err != nil {
			return nil, err
		}
	}
	return value, nil
}

type callResult struct {
	outcome Outcome
	value   any
	err     error
}

func (r *run) invoke(ctx context.Context, path route.Path, h route.Handler, kwargs map[string]any, p route.Payload, state *route.State) callResult {
	ctx, span := observability.StartSpan(ctx, observability.SpanHandler, trace.WithAttributes(
		attribute.String(observability.AttrPath, path.String()),
		attribute.String(observability.AttrFunction, h.Name),
		attribute.Int(observability.AttrDepth, state.Depth),
	))
	defer span.End()

	var res route.Result
	start := time.Now()
	fields := logger.Fields(logger.FieldPath, path.String(), logger.FieldFunction, h.Name, logger.FieldDepth, state.Depth)
	err := r.d.log.Scope(h.Name, fields, func(l *logger.Logger) error {
		l.Info("Executing function.", logger.Fields("kwargs", kwargs))
		var callErr error
		res, callErr = call(ctx, h, route.NewCall(h, maps.Clone(kwargs), l, state, p))
		return callErr
	})
	if r.d.metrics != nil {
		r.d.metrics.RecordHandler(ctx, path.String(), h.Name, Classify(err).String(), time.Since(start))
	}

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return r.failed(ctx, path, h, err)
	}
	if res.IsNone() || len(res.Emitted()) == 0 {
		return callResult{outcome: OutcomeOK, value: res.Get()}
	}

	var value any
	for _, emitted := range res.Emitted() {
		v, err := r.dispatchEmitted(ctx, emitted, p, state)
		if err != nil {
			span.RecordError(err)
			return callResult{outcome: OutcomeRecoverable, err: err}
		}
		value = v
	}
	return callResult{outcome: OutcomeEmitted, value: value}
}

// dispatchEmitted resolves and dispatches a payload returned by a handler.
// Any failure, whatever its severity, becomes CONTINUE: fan-out from a
// handler never aborts the invocation on its own. Lost outbound records are
// still logged as errors.
func (r *run) dispatchEmitted(ctx context.Context, emitted, parent route.Payload, state *route.State) (any, error) {
	resolved, err := emitted.Resolve(r.d.table.Enum())
	if err != nil {
		return nil, errors.Continue("Something went wrong while extracting Payloads from a function return value: %s", targetName(emitted.Target)).WithCause(err)
	}
	if resolved.EventSource == "" {
		resolved.EventSource = parent.EventSource
	}
	r.d.log.Debug("Function returned a Payload. Executing.", logger.Fields(logger.FieldPath, resolved.Target.String()))
	value, err := r.dispatch(ctx, resolved, state.Descend(resolved.Target))
	if err != nil && errors.IsDeliveryFailure(err) && !errors.Is(err, errors.ErrCodeContinue) {
		r.d.log.WithError(err).Error("Outbound record from a returned Payload was lost; continuing.", logger.Fields(
			logger.FieldPath, resolved.Target.String(), logger.FieldErrorCode, errors.ReasonDeliveryFailed))
	}
	if err != nil {
		return nil, errors.Continue("Failed to execute returned Payload %s", resolved.Target).WithCause(err)
	}
	return value, nil
}

// failed handles an error returned or raised by a handler.
func (r *run) failed(ctx context.Context, path route.Path, h route.Handler, err error) callResult {
	outcome := Classify(err)
	if outcome != OutcomeSwallowed {
		return callResult{outcome: outcome, err: err}
	}

	fields := logger.Fields(logger.FieldPath, path.String(), logger.FieldFunction, h.Name)
	if r.d.debug {
		r.d.log.WithError(err).Error("Unhandled error in function, aborting in debug mode.", fields)
		return callResult{
			outcome: OutcomeCatastrophic,
			err:     errors.Abort("Unhandled error in %s %s", path, h.Name).WithCause(err),
		}
	}
	r.d.log.WithError(err).Error(fmt.Sprintf(
		"Skipped %s %s due to unhandled error. This is very serious; please update your function to handle this.",
		path, h.Name), fields)
	r.d.observer.Observe(ctx, err)
	return callResult{outcome: OutcomeSwallowed, err: fmt.Errorf("%s %s: %w", path, h.Name, err)}
}

// call runs the handler, turning a panic into an error.
func call(ctx context.Context, h route.Handler, c *route.Call) (res route.Result, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			if e, ok := rec.(error); ok {
				err = e
				return
			}
			err = fmt.Errorf("panic: %v", rec)
		}
	}()
	return h.Fn(ctx, c)
}

func (r *run) put(ctx context.Context, q route.Queue, p route.Payload) error {
	record := q.Record(p.Kwargs)
	fields := logger.Fields(
		logger.FieldQueue, q.Destination(),
		"transport", q.Transport.String(),
		logger.FieldPath, q.Path,
	)
	r.d.log.Info("Pushing record.", fields)

	ctx, span := observability.StartSpan(ctx, observability.SpanPut, trace.WithAttributes(
		attribute.String(observability.AttrQueue, q.Destination()),
		attribute.String(observability.AttrTransport, q.Transport.String()),
	))
	defer span.End()

	err := errNoPutter
	if r.d.putter != nil {
		err = r.d.putter.Put(ctx, q, record)
	}
	status := "ok"
	if err != nil {
		status = "error"
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		r.d.log.WithError(err).Error("Failed to push record.", fields)
	}
	if r.d.metrics != nil {
		r.d.metrics.RecordPut(ctx, q.Transport.String(), status)
	}
	if err != nil {
		return errors.DeliveryFailed(q.Destination(), err)
	}
	return nil
}

func targetName(t route.Target) string {
	if t == nil {
		return "<none>"
	}
	return t.String()
}
