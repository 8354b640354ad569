package transport

import (
	"context"
	"fmt"
	"sync"

	"github.com/mintel/lpipe/batch"
	"github.com/mintel/lpipe/dispatch"
	"github.com/mintel/lpipe/event"
	"github.com/mintel/lpipe/route"
)

// Router delivers outbound records to the putter registered for the
// queue's transport.
type Router struct {
	mu      sync.RWMutex
	putters map[route.Transport]dispatch.Putter
}

var _ dispatch.Putter = (*Router)(nil)

// NewRouter creates an empty router.
func NewRouter() *Router {
	return &Router{putters: make(map[route.Transport]dispatch.Putter)}
}

// Handle registers p for kind, replacing any previous putter.
func (r *Router) Handle(kind route.Transport, p dispatch.Putter) *Router {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.putters[kind] = p
	return r
}

// Transports returns the kinds with a registered putter.
func (r *Router) Transports() []route.Transport {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]route.Transport, 0, len(r.putters))
	for _, kind := range route.Transports {
		if _, ok := r.putters[kind]; ok {
			out = append(out, kind)
		}
	}
	return out
}

// Put delivers record through the putter of queue.Transport.
func (r *Router) Put(ctx context.Context, queue route.Queue, record map[string]any) error {
	r.mu.RLock()
	p, ok := r.putters[queue.Transport]
	r.mu.RUnlock()
	if !ok {
		return fmt.Errorf("transport: no putter for %s", queue.Transport)
	}
	return p.Put(ctx, queue, record)
}

// CleanupRouter compensates only queue-sourced batches. Stream records
// cannot be deleted and RAW batches have no source to delete from.
type CleanupRouter struct {
	Queue batch.Cleaner
}

var _ batch.Cleaner = CleanupRouter{}

// Cleanup hands QUEUE records to the queue cleaner and ignores the rest.
func (c CleanupRouter) Cleanup(ctx context.Context, kind route.Transport, records []event.Record) error {
	if kind != route.TransportQueue || c.Queue == nil || len(records) == 0 {
		return nil
	}
	return c.Queue.Cleanup(ctx, kind, records)
}
