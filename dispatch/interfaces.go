package dispatch

import (
	"context"

	"github.com/mintel/lpipe/route"
)

// Putter delivers an outbound record to a queue. A returned error aborts
// the invocation.
type Putter interface {
	Put(ctx context.Context, queue route.Queue, record map[string]any) error
}

// PutterFunc adapts a function to Putter.
type PutterFunc func(ctx context.Context, queue route.Queue, record map[string]any) error

// Put calls f.
func (f PutterFunc) Put(ctx context.Context, queue route.Queue, record map[string]any) error {
	return f(ctx, queue, record)
}

// Observer is told about every failure, recoverable or not.
type Observer interface {
	Observe(ctx context.Context, err error)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(ctx context.Context, err error)

// Observe calls f.
func (f ObserverFunc) Observe(ctx context.Context, err error) { f(ctx, err) }

type multiObserver []Observer

func (m multiObserver) Observe(ctx context.Context, err error) {
	for _, o := range m {
		o.Observe(ctx, err)
	}
}

// Observers fans out to every non-nil observer.
func Observers(obs ...Observer) Observer {
	out := make(multiObserver, 0, len(obs))
	for _, o := range obs {
		if o != nil {
			out = append(out, o)
		}
	}
	return out
}

// NopObserver ignores everything.
var NopObserver Observer = ObserverFunc(func(context.Context, error) {})
