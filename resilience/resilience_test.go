package resilience

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	apperrors "github.com/mintel/lpipe/errors"
	"github.com/mintel/lpipe/route"
)

func fastRetry(attempts int) RetryConfig {
	return RetryConfig{MaxAttempts: attempts, InitialBackoff: time.Millisecond, MaxBackoff: 2 * time.Millisecond}
}

func TestRetry(t *testing.T) {
	transient := errors.New("connection reset")
	tests := []struct {
		name      string
		errs      []error
		attempts  int
		wantCalls int
		wantErr   error
	}{
		{"first try", []error{nil}, 3, 1, nil},
		{"transient then ok", []error{transient, nil}, 3, 2, nil},
		{"exhausted", []error{transient, transient, transient, transient}, 3, 3, transient},
		{"app error is final", []error{apperrors.InvalidPayload("bad"), nil}, 3, 1, nil},
		{"canceled is final", []error{context.Canceled, nil}, 3, 1, context.Canceled},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			calls := 0
			err := Retry(context.Background(), fastRetry(tt.attempts), func(context.Context) error {
				e := tt.errs[calls]
				calls++
				return e
			})
			if calls != tt.wantCalls {
				t.Errorf("expected %d calls, got %d", tt.wantCalls, calls)
			}
			switch {
			case tt.name == "app error is final":
				if !apperrors.Is(err, apperrors.ErrCodeInvalidPayload) {
					t.Errorf("expected the app error back, got %v", err)
				}
			case !errors.Is(err, tt.wantErr) || (tt.wantErr == nil && err != nil):
				t.Errorf("Retry() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestRetry_OnRetryAndCustomPredicate(t *testing.T) {
	var waits []int
	cfg := fastRetry(4)
	cfg.RetryIf = func(err error) bool { return err.Error() == "again" }
	cfg.OnRetry = func(attempt int, _ error, _ time.Duration) { waits = append(waits, attempt) }

	calls := 0
	err := Retry(context.Background(), cfg, func(context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("again")
		}
		return errors.New("stop")
	})
	if err == nil || err.Error() != "stop" {
		t.Errorf("expected stop, got %v", err)
	}
	if fmt.Sprint(waits) != "[1 2]" {
		t.Errorf("unexpected retries %v", waits)
	}
}

func TestRetry_ContextCanceledDuringWait(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cfg := RetryConfig{MaxAttempts: 5, InitialBackoff: time.Hour, MaxBackoff: time.Hour}
	cfg.OnRetry = func(int, error, time.Duration) { cancel() }

	err := Retry(ctx, cfg, func(context.Context) error { return errors.New("down") })
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestBackoff(t *testing.T) {
	cfg := RetryConfig{InitialBackoff: 10 * time.Millisecond, MaxBackoff: 50 * time.Millisecond, BackoffFactor: 2}
	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{1, 10 * time.Millisecond},
		{2, 20 * time.Millisecond},
		{3, 40 * time.Millisecond},
		{4, 50 * time.Millisecond},
	}
	for _, tt := range tests {
		if got := Backoff(tt.attempt, cfg); got != tt.want {
			t.Errorf("Backoff(%d) = %s, want %s", tt.attempt, got, tt.want)
		}
	}

	cfg.Jitter = 0.5
	for i := 0; i < 20; i++ {
		if got := Backoff(1, cfg); got < 5*time.Millisecond || got > 15*time.Millisecond {
			t.Fatalf("jittered backoff %s out of range", got)
		}
	}
}

type clock struct{ now time.Time }

func (c *clock) Now() time.Time { return c.now }

func newTestBreaker(max int, onChange func(string, State, State)) (*CircuitBreaker, *clock) {
	c := &clock{now: time.Unix(0, 0)}
	cb := NewCircuitBreaker("q", BreakerConfig{MaxFailures: max, OpenTimeout: time.Second, HalfOpenMaxCalls: 1}, onChange)
	cb.now = c.Now
	return cb, c
}

func TestCircuitBreaker_Lifecycle(t *testing.T) {
	var transitions []string
	cb, c := newTestBreaker(2, func(_ string, from, to State) {
		transitions = append(transitions, from.String()+"->"+to.String())
	})
	boom := errors.New("boom")
	fail := func() error { return boom }
	ok := func() error { return nil }

	if cb.State() != StateClosed {
		t.Fatalf("expected closed, got %s", cb.State())
	}
	_ = cb.Execute(fail)
	_ = cb.Execute(ok)
	if cb.Failures() != 0 {
		t.Errorf("a success must reset consecutive failures, got %d", cb.Failures())
	}

	_ = cb.Execute(fail)
	_ = cb.Execute(fail)
	if cb.State() != StateOpen {
		t.Fatalf("expected open, got %s", cb.State())
	}
	if err := cb.Execute(func() error {
		t.Error("open circuit must not call through")
		return nil
	}); !errors.Is(err, ErrCircuitOpen) {
		t.Errorf("expected ErrCircuitOpen, got %v", err)
	}

	c.now = c.now.Add(time.Second)
	if cb.State() != StateHalfOpen {
		t.Fatalf("expected half-open, got %s", cb.State())
	}
	_ = cb.Execute(fail)
	if cb.State() != StateOpen {
		t.Fatalf("a failed trial must reopen, got %s", cb.State())
	}

	c.now = c.now.Add(time.Second)
	if err := cb.Execute(ok); err != nil {
		t.Fatalf("trial failed: %v", err)
	}
	if cb.State() != StateClosed {
		t.Errorf("expected closed after a good trial, got %s", cb.State())
	}

	want := "[closed->open open->half-open half-open->open open->half-open half-open->closed]"
	if fmt.Sprint(transitions) != want {
		t.Errorf("transitions = %v, want %s", transitions, want)
	}
}

func TestCircuitBreaker_HalfOpenLimitsTrials(t *testing.T) {
	cb, c := newTestBreaker(1, nil)
	_ = cb.Execute(func() error { return errors.New("boom") })
	c.now = c.now.Add(time.Second)

	if !cb.allow() {
		t.Fatal("expected the first trial to pass")
	}
	if cb.allow() {
		t.Error("expected the second trial to be rejected")
	}
	cb.Reset()
	if cb.State() != StateClosed || cb.Failures() != 0 {
		t.Errorf("expected a clean closed breaker after Reset")
	}
}

func TestBreakerConfig(t *testing.T) {
	var cfg BreakerConfig
	cfg.ApplyDefaults()
	if cfg.MaxFailures != 5 || cfg.OpenTimeout != 30*time.Second || cfg.HalfOpenMaxCalls != 1 {
		t.Errorf("unexpected defaults %+v", cfg)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults must validate: %v", err)
	}

	tests := []BreakerConfig{
		{MaxFailures: -1, OpenTimeout: time.Second, HalfOpenMaxCalls: 1},
		{MaxFailures: 1, OpenTimeout: -time.Second, HalfOpenMaxCalls: 1},
		{MaxFailures: 1, OpenTimeout: time.Second, HalfOpenMaxCalls: -1},
		{MaxFailures: 1, OpenTimeout: time.Second, HalfOpenMaxCalls: 1, RatePerSecond: -1},
		{MaxFailures: 1, OpenTimeout: time.Second, HalfOpenMaxCalls: 1, RatePerSecond: 5, Burst: -1},
	}
	for _, c := range tests {
		if err := c.Validate(); err == nil {
			t.Errorf("expected %+v to be rejected", c)
		}
	}
}

func TestBreakerConfig_RateDefaults(t *testing.T) {
	cfg := BreakerConfig{RatePerSecond: 10}
	cfg.ApplyDefaults()
	if cfg.Burst != 1 {
		t.Errorf("expected burst 1 when a rate is set, got %d", cfg.Burst)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("unexpected error: %v", err)
	}

	var unlimited BreakerConfig
	unlimited.ApplyDefaults()
	if unlimited.Burst != 0 {
		t.Errorf("expected no burst without a rate, got %d", unlimited.Burst)
	}
}

type flakyPutter struct {
	mu    sync.Mutex
	fail  map[string]bool
	calls map[string]int
}

func (p *flakyPutter) Put(_ context.Context, q route.Queue, _ map[string]any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls[q.Destination()]++
	if p.fail[q.Destination()] {
		return errors.New("unreachable")
	}
	return nil
}

func TestGuard(t *testing.T) {
	next := &flakyPutter{fail: map[string]bool{"dead": true}, calls: map[string]int{}}
	g := NewGuard(route.TransportQueue, next, BreakerConfig{MaxFailures: 2, OpenTimeout: time.Hour}, nil)
	ctx := context.Background()
	dead := route.Queue{Transport: route.TransportQueue, Name: "dead"}
	live := route.Queue{Transport: route.TransportQueue, Name: "live"}

	for i := 0; i < 2; i++ {
		if err := g.Put(ctx, dead, nil); err == nil || errors.Is(err, ErrCircuitOpen) {
			t.Fatalf("attempt %d: expected the delivery error, got %v", i, err)
		}
	}
	if g.State("dead") != StateOpen {
		t.Fatalf("expected the dead queue's circuit to open")
	}

	err := g.Put(ctx, dead, nil)
	if !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("expected ErrCircuitOpen, got %v", err)
	}
	if err.Error() != "QUEUE dead: circuit breaker is open" {
		t.Errorf("unexpected message %q", err.Error())
	}
	if next.calls["dead"] != 2 {
		t.Errorf("expected 2 calls through, got %d", next.calls["dead"])
	}

	if err := g.Put(ctx, live, nil); err != nil {
		t.Errorf("other queues must keep delivering: %v", err)
	}
	if g.State("live") != StateClosed || g.State("unused") != StateClosed {
		t.Error("expected closed circuits for healthy and unused queues")
	}
}

func TestGuard_Throttles(t *testing.T) {
	next := &flakyPutter{fail: map[string]bool{}, calls: map[string]int{}}
	g := NewGuard(route.TransportStream, next, BreakerConfig{MaxFailures: 1, OpenTimeout: time.Hour, RatePerSecond: 0.001, Burst: 1}, nil)
	orders := route.Queue{Transport: route.TransportStream, Name: "orders"}
	other := route.Queue{Transport: route.TransportStream, Name: "other"}

	if err := g.Put(context.Background(), orders, nil); err != nil {
		t.Fatalf("burst put failed: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err := g.Put(ctx, orders, nil)
	if err == nil {
		t.Fatal("expected the second put to be throttled")
	}
	if errors.Is(err, ErrCircuitOpen) {
		t.Errorf("throttling must not look like an open circuit: %v", err)
	}
	if next.calls["orders"] != 1 {
		t.Errorf("expected 1 call through, got %d", next.calls["orders"])
	}
	if g.State("orders") != StateClosed {
		t.Error("throttled puts must not count as delivery failures")
	}

	if err := g.Put(context.Background(), other, nil); err != nil {
		t.Errorf("each destination has its own budget: %v", err)
	}
}
