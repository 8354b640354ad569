package route

import (
	"context"

	"github.com/mintel/lpipe/logger"
	"github.com/mintel/lpipe/signature"
)

// Reserved names of the values injected into every Call. Caller kwargs
// with these keys are passed through but never replace them.
var Reserved = []string{"logger", "state", "payload"}

// HandlerFunc is a user function bound to a path.
type HandlerFunc func(ctx context.Context, call *Call) (Result, error)

// Handler is a named HandlerFunc with its declared parameters.
type Handler struct {
	Name   string
	Params []signature.Param
	Fn     HandlerFunc
}

// Func declares a handler.
func Func(name string, fn HandlerFunc, params ...signature.Param) Handler {
	return Handler{Name: name, Params: params, Fn: fn}
}

func (Handler) isStep() {}

// Call is what a handler receives: the validated kwargs plus context
// injected by the dispatcher.
type Call struct {
	Kwargs  map[string]any
	Logger  *logger.Logger
	State   *State
	Payload Payload

	params []signature.Param
}

// NewCall builds a call for h. Defaults declared by h are served by Get.
func NewCall(h Handler, kwargs map[string]any, log *logger.Logger, state *State, payload Payload) *Call {
	return &Call{Kwargs: kwargs, Logger: log, State: state, Payload: payload, params: h.Params}
}

// Get returns a kwarg, falling back to the handler's declared default.
func (c *Call) Get(name string) (any, bool) {
	if v, ok := c.Kwargs[name]; ok {
		return v, true
	}
	for _, p := range c.params {
		if p.Name == name && p.HasDefault {
			return p.Default, true
		}
	}
	return nil, false
}

// Value is Get without the presence flag.
func (c *Call) Value(name string) any {
	v, _ := c.Get(name)
	return v
}

// String returns a kwarg as a string, or "" if absent or not a string.
func (c *Call) String(name string) string {
	s, _ := c.Value(name).(string)
	return s
}

type resultKind int

const (
	resultNone resultKind = iota
	resultValue
	resultEmit
)

// Result is what a handler returns: nothing, a plain value, or payloads
// to dispatch before the call completes.
type Result struct {
	kind     resultKind
	value    any
	payloads []Payload
}

// None is the empty result.
func None() Result { return Result{} }

// Value wraps a plain return value.
func Value(v any) Result {
	if v == nil {
		return None()
	}
	return Result{kind: resultValue, value: v}
}

// Emit returns payloads to dispatch. Emitting nothing is None.
func Emit(payloads ...Payload) Result {
	if len(payloads) == 0 {
		return None()
	}
	return Result{kind: resultEmit, payloads: payloads}
}

// IsNone reports whether r carries nothing.
func (r Result) IsNone() bool { return r.kind == resultNone }

// Emitted returns the payloads of an Emit result.
func (r Result) Emitted() []Payload { return r.payloads }

// Get returns the plain value, nil unless r is a Value result.
func (r Result) Get() any { return r.value }
