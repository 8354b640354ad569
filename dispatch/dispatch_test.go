package dispatch

import (
	"context"
	stderrors "errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/mintel/lpipe/errors"
	"github.com/mintel/lpipe/logger"
	"github.com/mintel/lpipe/route"
	"github.com/mintel/lpipe/signature"
)

var testEnum = route.MustEnum("Path", "ECHO", "STORE", "FANOUT", "FIRST", "SECOND", "LOOP", "SHIP", "BROKEN", "FAIL")

func echo(_ context.Context, c *route.Call) (route.Result, error) {
	return route.Value(c.Value("foo")), nil
}

type puts struct {
	mu      sync.Mutex
	records []map[string]any
	queues  []route.Queue
	err     error
}

func (p *puts) Put(_ context.Context, q route.Queue, record map[string]any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.queues = append(p.queues, q)
	p.records = append(p.records, record)
	return nil
}

type observed struct {
	mu   sync.Mutex
	errs []error
}

func (o *observed) Observe(_ context.Context, err error) {
	o.mu.Lock()
	o.errs = append(o.errs, err)
	o.mu.Unlock()
}

func newDispatcher(t *testing.T, routes route.Routes, opts ...Option) *Dispatcher {
	t.Helper()
	table, err := route.Build(routes, testEnum)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	return New(table, opts...)
}

func TestDispatch_Echo(t *testing.T) {
	d := newDispatcher(t, route.Routes{
		testEnum.Must("ECHO"): {route.Func("echo", echo, signature.Required("foo", signature.String))},
	})

	got, err := d.Dispatch(context.Background(), route.To(route.Name("ECHO"), map[string]any{"foo": "bar"}), nil)
	if err != nil {
		t.Fatalf("unexpected error %v", err)
	}
	if got != "bar" {
		t.Errorf("expected bar, got %v", got)
	}
}

func TestDispatch_MissingParam(t *testing.T) {
	d := newDispatcher(t, route.Routes{
		testEnum.Must("ECHO"): {route.Func("echo", echo, signature.Required("foo", signature.String))},
	})

	_, err := d.Dispatch(context.Background(), route.To(route.Name("ECHO"), map[string]any{}), nil)
	if !errors.Is(err, errors.ErrCodeMissingParam) {
		t.Fatalf("expected MISSING_PARAM, got %v", err)
	}
	if Classify(err) != OutcomeRecoverable {
		t.Errorf("expected recoverable outcome, got %s", Classify(err))
	}
}

func TestDispatch_TypeMismatch(t *testing.T) {
	d := newDispatcher(t, route.Routes{
		testEnum.Must("ECHO"): {route.Func("echo", echo, signature.Required("foo", signature.String))},
	})

	_, err := d.Dispatch(context.Background(), route.To(route.Name("ECHO"), map[string]any{"foo": 1}), nil)
	if !errors.Is(err, errors.ErrCodeTypeMismatch) {
		t.Fatalf("expected TYPE_MISMATCH, got %v", err)
	}
}

func TestDispatch_UnknownPath(t *testing.T) {
	d := newDispatcher(t, route.Routes{
		testEnum.Must("ECHO"): {route.Func("echo", echo)},
	})

	tests := []route.Target{route.Name("NOPE"), testEnum.Must("STORE")}
	for _, target := range tests {
		_, err := d.Dispatch(context.Background(), route.To(target, nil), nil)
		if !errors.Is(err, errors.ErrCodePathNotFound) {
			t.Errorf("%v: expected PATH_NOT_FOUND, got %v", target, err)
		}
	}
}

func TestDispatch_NoTarget(t *testing.T) {
	d := newDispatcher(t, route.Routes{
		testEnum.Must("ECHO"): {route.Func("echo", echo)},
	})
	got, err := d.Dispatch(context.Background(), route.Payload{}, nil)
	if err != nil || got != nil {
		t.Errorf("expected nothing to happen, got %v, %v", got, err)
	}
}

// Sub-paths run depth first in declaration order, each with the action
// kwargs, and the last one supplies the value.
func TestDispatch_SubPathsDepthFirst(t *testing.T) {
	var mu sync.Mutex
	var order []string
	record := func(name string) route.HandlerFunc {
		return func(_ context.Context, c *route.Call) (route.Result, error) {
			mu.Lock()
			order = append(order, fmt.Sprintf("%s:%v", name, c.Value("n")))
			mu.Unlock()
			return route.Value(name), nil
		}
	}
	n := signature.Required("n", signature.Int)

	d := newDispatcher(t, route.Routes{
		testEnum.Must("FANOUT"): {route.Action{
			Functions: []route.Handler{route.Func("root", record("root"), n)},
			Paths:     []route.Target{route.Name("FIRST"), route.Name("SECOND")},
		}},
		testEnum.Must("FIRST"):  {route.Func("first", record("first"), n)},
		testEnum.Must("SECOND"): {route.Func("second", record("second"), n)},
	})

	got, err := d.Dispatch(context.Background(), route.To(route.Name("FANOUT"), map[string]any{"n": 7}), nil)
	if err != nil {
		t.Fatalf("unexpected error %v", err)
	}
	if got != "second" {
		t.Errorf("expected last sub-path value, got %v", got)
	}
	want := []string{"root:7", "first:7", "second:7"}
	if strings.Join(order, ",") != strings.Join(want, ",") {
		t.Errorf("expected order %v, got %v", want, order)
	}
}

func TestDispatch_EmittedPayloadSupersedesValue(t *testing.T) {
	d := newDispatcher(t, route.Routes{
		testEnum.Must("FIRST"): {route.Func("forward", func(_ context.Context, c *route.Call) (route.Result, error) {
			return route.Emit(route.To(route.Name("ECHO"), map[string]any{"foo": c.Value("foo")})), nil
		}, signature.Required("foo", signature.Any))},
		testEnum.Must("ECHO"): {route.Func("echo", echo, signature.Required("foo", signature.String))},
	})

	got, err := d.Dispatch(context.Background(), route.To(route.Name("FIRST"), map[string]any{"foo": "x"}), nil)
	if err != nil {
		t.Fatalf("unexpected error %v", err)
	}
	if got != "x" {
		t.Errorf("expected the emitted dispatch to supply the value, got %v", got)
	}
}

func TestDispatch_EmittedFailureBecomesContinue(t *testing.T) {
	tests := []struct {
		name  string
		emit  route.Payload
		cause errors.ErrorCode
	}{
		{"unknown path", route.To(route.Name("NOPE"), nil), errors.ErrCodePathNotFound},
		{"no target", route.To(nil, nil), errors.ErrCodeInvalidPayload},
		{"abort below", route.To(route.Name("FAIL"), nil), errors.ErrCodeAbort},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			d := newDispatcher(t, route.Routes{
				testEnum.Must("FIRST"): {route.Func("forward", func(context.Context, *route.Call) (route.Result, error) {
					return route.Emit(tc.emit), nil
				})},
				testEnum.Must("FAIL"): {route.Func("fail", func(context.Context, *route.Call) (route.Result, error) {
					return route.None(), errors.Abort("stop")
				})},
			})

			_, err := d.Dispatch(context.Background(), route.To(route.Name("FIRST"), nil), nil)
			if !errors.Is(err, errors.ErrCodeContinue) {
				t.Fatalf("expected CONTINUE, got %v", err)
			}
			if errors.IsCatastrophic(err) {
				t.Error("emitted failures must not abort the invocation")
			}
			appErr, _ := errors.AsAppError(err)
			if got := errors.CodeOf(appErr.Cause); got != tc.cause {
				t.Errorf("expected cause %s, got %s", tc.cause, got)
			}
		})
	}
}

func TestDispatch_EmittedDeliveryFailureIsLogged(t *testing.T) {
	rec := logger.NewRecorder()
	log := logger.NewWithWriter(&logger.Config{Level: "debug", Format: "json"}, rec, "lpipe")
	orders := route.Queue{Transport: route.TransportQueue, Name: "orders"}

	d := newDispatcher(t, route.Routes{
		testEnum.Must("FIRST"): {route.Func("forward", func(context.Context, *route.Call) (route.Result, error) {
			return route.Emit(route.To(orders, map[string]any{"id": 1})), nil
		})},
	}, WithPutter(&puts{err: fmt.Errorf("connection refused")}), WithLogger(log))

	_, err := d.Dispatch(context.Background(), route.To(route.Name("FIRST"), nil), nil)
	if !errors.Is(err, errors.ErrCodeContinue) {
		t.Fatalf("expected CONTINUE, got %v", err)
	}
	if !errors.IsDeliveryFailure(err) {
		t.Error("expected the delivery failure to stay in the chain")
	}

	var lost int
	for _, e := range rec.Entries() {
		if e.Level == "error" && e.Fields[logger.FieldErrorCode] == errors.ReasonDeliveryFailed {
			lost++
		}
	}
	if lost != 1 {
		t.Errorf("expected one error entry with code %s, got %d in %s", errors.ReasonDeliveryFailed, lost, rec.Transcript())
	}
}

func TestDispatch_HandlerErrors(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want errors.ErrorCode
	}{
		{"continue", errors.Continue("skip"), errors.ErrCodeContinue},
		{"abort", errors.Abort("stop"), errors.ErrCodeAbort},
		{"wrapped abort", fmt.Errorf("ctx: %w", errors.Abort("stop")), errors.ErrCodeAbort},
		{"foreign", fmt.Errorf("boom"), errors.ErrCodeHandlerFailed},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var after bool
			d := newDispatcher(t, route.Routes{
				testEnum.Must("BROKEN"): {
					route.Func("broken", func(context.Context, *route.Call) (route.Result, error) {
						return route.None(), tc.err
					}),
					route.Func("after", func(context.Context, *route.Call) (route.Result, error) {
						after = true
						return route.Value("after"), nil
					}),
				},
			})

			got, err := d.Dispatch(context.Background(), route.To(route.Name("BROKEN"), nil), nil)
			if !errors.Is(err, tc.want) {
				t.Fatalf("expected %s, got %v", tc.want, err)
			}
			foreign := tc.want == errors.ErrCodeHandlerFailed
			if after != foreign {
				t.Errorf("expected later handler to run=%v, ran=%v", foreign, after)
			}
			if foreign && got != "after" {
				t.Errorf("expected best-effort value, got %v", got)
			}
		})
	}
}

func TestDispatch_ForeignErrorObservedAndLogged(t *testing.T) {
	boom := fmt.Errorf("boom")
	obs := &observed{}
	rec := logger.NewRecorder()
	log := logger.NewWithWriter(&logger.Config{Level: "debug", Format: "json"}, rec, "lpipe")

	d := newDispatcher(t, route.Routes{
		testEnum.Must("BROKEN"): {route.Func("broken", func(context.Context, *route.Call) (route.Result, error) {
			return route.None(), boom
		})},
	}, WithObserver(obs), WithLogger(log))

	_, err := d.Dispatch(context.Background(), route.To(route.Name("BROKEN"), nil), nil)
	if !stderrors.Is(err, boom) {
		t.Errorf("expected the violation to be reachable, got %v", err)
	}
	if len(obs.errs) != 1 || obs.errs[0] != boom {
		t.Errorf("expected boom to be observed once, got %v", obs.errs)
	}

	var skipped bool
	for _, e := range rec.Entries() {
		if e.Level == "error" && strings.Contains(e.Message, "Skipped Path.BROKEN broken") {
			skipped = true
		}
	}
	if !skipped {
		t.Errorf("expected a skip message in the log, got:\n%s", rec.Transcript())
	}
}

func TestDispatch_DebugEscalates(t *testing.T) {
	boom := fmt.Errorf("boom")
	obs := &observed{}
	d := newDispatcher(t, route.Routes{
		testEnum.Must("BROKEN"): {route.Func("broken", func(context.Context, *route.Call) (route.Result, error) {
			return route.None(), boom
		})},
	}, WithDebug(true), WithObserver(obs))

	_, err := d.Dispatch(context.Background(), route.To(route.Name("BROKEN"), nil), nil)
	if !errors.Is(err, errors.ErrCodeAbort) || !errors.IsCatastrophic(err) {
		t.Fatalf("expected catastrophic ABORT, got %v", err)
	}
	if !stderrors.Is(err, boom) {
		t.Error("expected the original error as cause")
	}
	if len(obs.errs) != 0 {
		t.Errorf("escalated errors are observed by the caller, got %v", obs.errs)
	}
}

func TestDispatch_PanicRecovered(t *testing.T) {
	sentinel := fmt.Errorf("sentinel")
	tests := []struct {
		name  string
		value any
	}{
		{"string", "kaboom"},
		{"error", sentinel},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			d := newDispatcher(t, route.Routes{
				testEnum.Must("BROKEN"): {route.Func("broken", func(context.Context, *route.Call) (route.Result, error) {
					panic(tc.value)
				})},
			})
			_, err := d.Dispatch(context.Background(), route.To(route.Name("BROKEN"), nil), nil)
			if !errors.Is(err, errors.ErrCodeHandlerFailed) {
				t.Fatalf("expected HANDLER_FAILED, got %v", err)
			}
			if e, ok := tc.value.(error); ok && !stderrors.Is(err, e) {
				t.Error("expected the panic error to be reachable")
			}
		})
	}
}

func TestDispatch_DepthGuard(t *testing.T) {
	var calls int
	d := newDispatcher(t, route.Routes{
		testEnum.Must("LOOP"): {route.Func("loop", func(context.Context, *route.Call) (route.Result, error) {
			calls++
			return route.Emit(route.To(route.Name("LOOP"), nil)), nil
		})},
	}, WithMaxDepth(3))

	_, err := d.Dispatch(context.Background(), route.To(route.Name("LOOP"), nil), nil)
	if !errors.Is(err, errors.ErrCodeContinue) {
		t.Fatalf("expected CONTINUE, got %v", err)
	}
	if !strings.Contains(err.Error(), string(errors.ErrCodeDepthExceeded)) {
		t.Errorf("expected DEPTH_EXCEEDED in the chain, got %v", err)
	}
	if calls != 4 {
		t.Errorf("expected 4 calls (depth 0..3), got %d", calls)
	}
}

func TestDispatch_Queues(t *testing.T) {
	p := &puts{}
	orders := route.Queue{Transport: route.TransportQueue, Name: "orders", Path: "STORE"}
	raw := route.Queue{Transport: route.TransportStream, Name: "raw"}

	d := newDispatcher(t, route.Routes{
		testEnum.Must("SHIP"): {route.Action{
			RequiredParams: []signature.ParamSpec{signature.Keep("id"), signature.Rename("qty", "count")},
			Queues:         []route.Queue{orders, raw},
		}},
	}, WithPutter(p))

	_, err := d.Dispatch(context.Background(), route.To(route.Name("SHIP"), map[string]any{"id": "a", "qty": 2, "extra": true}), nil)
	if err != nil {
		t.Fatalf("unexpected error %v", err)
	}
	if len(p.records) != 2 {
		t.Fatalf("expected 2 puts, got %d", len(p.records))
	}
	first := p.records[0]
	if first["path"] != "STORE" {
		t.Errorf("expected path envelope, got %v", first)
	}
	kwargs, _ := first["kwargs"].(map[string]any)
	if kwargs["id"] != "a" || kwargs["count"] != 2 || kwargs["extra"] != nil {
		t.Errorf("unexpected kwargs %v", kwargs)
	}
	if _, ok := p.records[1]["path"]; ok {
		t.Errorf("expected bare kwargs for a queue without path, got %v", p.records[1])
	}
}

func TestDispatch_QueuePayload(t *testing.T) {
	p := &puts{}
	d := newDispatcher(t, route.Routes{
		testEnum.Must("ECHO"): {route.Func("echo", echo)},
	}, WithPutter(p))

	q := route.Queue{Transport: route.TransportQueue, URL: "https://queue.example.com/123/orders"}
	if _, err := d.Dispatch(context.Background(), route.To(q, map[string]any{"a": 1}), nil); err != nil {
		t.Fatalf("unexpected error %v", err)
	}
	if len(p.queues) != 1 || p.queues[0].Resource() != "orders" {
		t.Errorf("unexpected puts %v", p.queues)
	}
}

func TestDispatch_PutFailureAborts(t *testing.T) {
	refused := fmt.Errorf("connection refused")
	tests := []struct {
		name   string
		putter Putter
	}{
		{"put error", &puts{err: refused}},
		{"no putter", nil},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			opts := []Option{}
			if tc.putter != nil {
				opts = append(opts, WithPutter(tc.putter))
			}
			d := newDispatcher(t, route.Routes{
				testEnum.Must("SHIP"): {route.Action{
					Queues: []route.Queue{{Transport: route.TransportQueue, Name: "orders"}},
				}},
			}, opts...)

			_, err := d.Dispatch(context.Background(), route.To(route.Name("SHIP"), nil), nil)
			if !errors.IsCatastrophic(err) {
				t.Fatalf("expected catastrophic error, got %v", err)
			}
			appErr, _ := errors.AsAppError(err)
			if appErr.Details["queue"] != "orders" {
				t.Errorf("expected queue detail, got %v", appErr.Details)
			}
		})
	}
}

func TestDispatch_ReservedKwargWarns(t *testing.T) {
	rec := logger.NewRecorder()
	log := logger.NewWithWriter(&logger.Config{Level: "debug", Format: "json"}, rec, "lpipe")
	var seen any
	d := newDispatcher(t, route.Routes{
		testEnum.Must("ECHO"): {route.Action{
			Functions: []route.Handler{route.Func("echo", func(_ context.Context, c *route.Call) (route.Result, error) {
				seen = c.Kwargs["state"]
				if c.State == nil || c.Logger == nil {
					return route.None(), fmt.Errorf("injected values missing")
				}
				return route.None(), nil
			})},
			IncludeAllParams: true,
		}},
	}, WithLogger(log))

	if _, err := d.Dispatch(context.Background(), route.To(route.Name("ECHO"), map[string]any{"state": "mine"}), nil); err != nil {
		t.Fatalf("unexpected error %v", err)
	}
	if seen != "mine" {
		t.Errorf("expected kwarg passed through, got %v", seen)
	}
	var warned bool
	for _, e := range rec.Entries() {
		if e.Level == "warn" && e.Fields["kwarg"] == "state" {
			warned = true
		}
	}
	if !warned {
		t.Errorf("expected a warning, got:\n%s", rec.Transcript())
	}
}

func TestDispatch_HandlersGetIsolatedKwargs(t *testing.T) {
	var second any
	d := newDispatcher(t, route.Routes{
		testEnum.Must("ECHO"): {
			route.Func("mutate", func(_ context.Context, c *route.Call) (route.Result, error) {
				c.Kwargs["foo"] = "changed"
				return route.None(), nil
			}, signature.Required("foo", signature.String)),
			route.Func("read", func(_ context.Context, c *route.Call) (route.Result, error) {
				second = c.Value("foo")
				return route.None(), nil
			}, signature.Required("foo", signature.String)),
		},
	})

	if _, err := d.Dispatch(context.Background(), route.To(route.Name("ECHO"), map[string]any{"foo": "orig"}), nil); err != nil {
		t.Fatalf("unexpected error %v", err)
	}
	if second != "orig" {
		t.Errorf("expected handlers to see the original kwargs, got %v", second)
	}
}

func TestDispatch_StateDescends(t *testing.T) {
	var depth int
	var trail []string
	d := newDispatcher(t, route.Routes{
		testEnum.Must("FANOUT"): {route.Action{Paths: []route.Target{route.Name("FIRST")}}},
		testEnum.Must("FIRST"): {route.Func("first", func(_ context.Context, c *route.Call) (route.Result, error) {
			depth = c.State.Depth
			trail = c.State.Trail
			return route.None(), nil
		})},
	})

	state := route.NewState("inv", 0, "src", false)
	if _, err := d.Dispatch(context.Background(), route.To(route.Name("FANOUT"), nil), state); err != nil {
		t.Fatalf("unexpected error %v", err)
	}
	if depth != 1 || len(trail) != 1 || trail[0] != "Path.FIRST" {
		t.Errorf("unexpected state depth=%d trail=%v", depth, trail)
	}
	if state.Depth != 0 {
		t.Error("expected the caller's state to be untouched")
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		err  error
		want Outcome
	}{
		{nil, OutcomeOK},
		{errors.Continue("x"), OutcomeRecoverable},
		{errors.Configuration("x"), OutcomeCatastrophic},
		{fmt.Errorf("x"), OutcomeSwallowed},
	}
	for _, tc := range tests {
		if got := Classify(tc.err); got != tc.want {
			t.Errorf("Classify(%v) = %s, want %s", tc.err, got, tc.want)
		}
	}
}

func TestObservers_SkipsNil(t *testing.T) {
	a, b := &observed{}, &observed{}
	Observers(a, nil, b).Observe(context.Background(), fmt.Errorf("x"))
	if len(a.errs) != 1 || len(b.errs) != 1 {
		t.Errorf("expected both observers called, got %d and %d", len(a.errs), len(b.errs))
	}
}
