package resilience

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"golang.org/x/time/rate"

	"github.com/mintel/lpipe/dispatch"
	"github.com/mintel/lpipe/logger"
	"github.com/mintel/lpipe/route"
)

// Guard is a Putter that routes every delivery through the circuit
// breaker of its destination, and through its rate limiter when the
// config sets a rate.
type Guard struct {
	kind   route.Transport
	next   dispatch.Putter
	config BreakerConfig
	log    *logger.Logger

	mu    sync.Mutex
	dests map[string]*destination
}

type destination struct {
	breaker *CircuitBreaker
	limiter *rate.Limiter
}

var _ dispatch.Putter = (*Guard)(nil)

// NewGuard wraps next, the putter for kind.
func NewGuard(kind route.Transport, next dispatch.Putter, config BreakerConfig, log *logger.Logger) *Guard {
	if log == nil {
		log = logger.Nop()
	}
	return &Guard{
		kind:   kind,
		next:   next,
		config: config,
		log:    log.WithComponent("delivery-guard"),
		dests:  make(map[string]*destination),
	}
}

// Put delivers record unless the destination's circuit is open. A
// throttled put waits for its turn; a wait that cannot finish before ctx
// ends fails without reaching the breaker.
func (g *Guard) Put(ctx context.Context, queue route.Queue, record map[string]any) error {
	dest := queue.Destination()
	d := g.destination(dest)
	if d.limiter != nil {
		if err := d.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("%s %s: throttled: %w", g.kind, dest, err)
		}
	}
	err := d.breaker.Execute(func() error {
		return g.next.Put(ctx, queue, record)
	})
	if errors.Is(err, ErrCircuitOpen) {
		return fmt.Errorf("%s %s: %w", g.kind, dest, err)
	}
	return err
}

// State returns the circuit state of dest. Unused destinations are closed.
func (g *Guard) State(dest string) State {
	g.mu.Lock()
	d, ok := g.dests[dest]
	g.mu.Unlock()
	if !ok {
		return StateClosed
	}
	return d.breaker.State()
}

func (g *Guard) destination(dest string) *destination {
	g.mu.Lock()
	defer g.mu.Unlock()

	d, ok := g.dests[dest]
	if !ok {
		d = &destination{breaker: NewCircuitBreaker(dest, g.config, g.stateChanged)}
		if g.config.RatePerSecond > 0 {
			d.limiter = rate.NewLimiter(rate.Limit(g.config.RatePerSecond), max(g.config.Burst, 1))
		}
		g.dests[dest] = d
	}
	return d
}

func (g *Guard) stateChanged(dest string, from, to State) {
	fields := logger.Fields(logger.FieldQueue, dest, "transport", g.kind.String(), "from", from.String(), "to", to.String())
	if to == StateOpen {
		g.log.Warn("Delivery circuit opened", fields)
		return
	}
	g.log.Info("Delivery circuit changed state", fields)
}
