package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/mintel/lpipe/observability"
	"github.com/mintel/lpipe/route"
)

type fakeWriter struct {
	mu       sync.Mutex
	errs     []error
	calls    int
	messages []kafkago.Message
	closed   bool
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafkago.Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.calls++
	if len(w.errs) > 0 {
		err := w.errs[0]
		w.errs = w.errs[1:]
		if err != nil {
			return err
		}
	}
	w.messages = append(w.messages, msgs...)
	return nil
}

func (w *fakeWriter) Close() error {
	w.closed = true
	return nil
}

func testConfig() Config {
	return Config{Enabled: true, RetryBackoff: "1ms", TopicPrefix: "lpipe."}
}

func TestConfig_ApplyDefaults(t *testing.T) {
	cfg := Config{Enabled: true}
	cfg.ApplyDefaults()

	if len(cfg.Brokers) != 1 || cfg.Brokers[0] != "localhost:9092" {
		t.Errorf("Brokers = %v, want [localhost:9092]", cfg.Brokers)
	}
	if cfg.Compression != "snappy" {
		t.Errorf("Compression = %q, want snappy", cfg.Compression)
	}
	if cfg.Retries != 3 {
		t.Errorf("Retries = %d, want 3", cfg.Retries)
	}
	if cfg.BatchSize != 1 {
		t.Errorf("BatchSize = %d, want 1", cfg.BatchSize)
	}
	if cfg.RequiredAcks != -1 {
		t.Errorf("RequiredAcks = %d, want -1", cfg.RequiredAcks)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults should validate, got %v", err)
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"valid", func(*Config) {}, false},
		{"disabled skips checks", func(c *Config) { c.Enabled = false; c.DialTimeout = "bad" }, false},
		{"bad duration", func(c *Config) { c.WriteTimeout = "soon" }, true},
		{"no brokers", func(c *Config) { c.Brokers = nil }, true},
		{"bad mechanism", func(c *Config) { c.EnableSASL = true; c.SASLMechanism = "GSSAPI"; c.Username = "u" }, true},
		{"sasl without user", func(c *Config) { c.EnableSASL = true }, true},
		{"bad acks", func(c *Config) { c.RequiredAcks = 2 }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig()
			cfg.ApplyDefaults()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestResolveCompression(t *testing.T) {
	tests := []struct {
		name string
		want kafkago.Compression
	}{
		{"gzip", kafkago.Gzip},
		{"lz4", kafkago.Lz4},
		{"zstd", kafkago.Zstd},
		{"snappy", kafkago.Snappy},
		{"none", 0},
		{"unknown", kafkago.Snappy},
	}
	for _, tt := range tests {
		if got := ResolveCompression(tt.name); got != tt.want {
			t.Errorf("ResolveCompression(%q) = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestCreateTransport_SASL(t *testing.T) {
	cfg := testConfig()
	cfg.EnableSASL = true
	cfg.Username = "user"
	cfg.Password = "secret"
	cfg.ApplyDefaults()

	tr, err := CreateTransport(&cfg)
	if err != nil {
		t.Fatalf("CreateTransport: %v", err)
	}
	if tr.SASL == nil || tr.SASL.Name() != "PLAIN" {
		t.Errorf("expected PLAIN mechanism, got %v", tr.SASL)
	}

	cfg.EnableTLS = true
	cfg.TLSCAFile = "/does/not/exist.pem"
	if _, err := CreateTransport(&cfg); err == nil {
		t.Error("expected an error for a missing CA file")
	}
}

func TestIsRetryableError(t *testing.T) {
	tests := []struct {
		err  error
		want bool
	}{
		{nil, false},
		{errors.New("unknown topic"), false},
		{errors.New("dial tcp 127.0.0.1:9092: connection refused"), true},
		{errors.New("Request Timed Out"), true},
		{errors.New("not enough replicas"), true},
	}
	for _, tt := range tests {
		if got := IsRetryableError(tt.err); got != tt.want {
			t.Errorf("IsRetryableError(%v) = %v, want %v", tt.err, got, tt.want)
		}
	}
}

func TestProducer_Put(t *testing.T) {
	w := &fakeWriter{}
	p := NewProducerWithWriter(testConfig(), w, nil)

	q := route.Queue{Transport: route.TransportStream, Name: "orders", Path: "STORE"}
	if err := p.Put(context.Background(), q, map[string]any{"id": 7}); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if len(w.messages) != 1 {
		t.Fatalf("expected 1 message, got %d", len(w.messages))
	}
	msg := w.messages[0]
	if msg.Topic != "lpipe.orders" {
		t.Errorf("Topic = %q, want lpipe.orders", msg.Topic)
	}
	if len(msg.Key) != 64 {
		t.Errorf("expected a hex blake2b-256 key, got %q", msg.Key)
	}
	var body map[string]any
	if err := json.Unmarshal(msg.Value, &body); err != nil {
		t.Fatalf("value is not JSON: %v", err)
	}
	if body["id"] != float64(7) {
		t.Errorf("unexpected body %v", body)
	}
	if len(msg.Headers) != 2 || msg.Headers[1].Key != HeaderPath {
		t.Errorf("unexpected headers %v", msg.Headers)
	}

	again, err := p.Message(q, map[string]any{"id": 7})
	if err != nil {
		t.Fatalf("Message: %v", err)
	}
	if string(again.Key) != string(msg.Key) {
		t.Error("identical records should share a key")
	}
}

func TestProducer_TopicFromURL(t *testing.T) {
	p := NewProducerWithWriter(Config{}, &fakeWriter{}, nil)
	msg, err := p.Message(route.Queue{Transport: route.TransportStream, URL: "kafka://broker/events/"}, nil)
	if err != nil {
		t.Fatalf("Message: %v", err)
	}
	if msg.Topic != "events" {
		t.Errorf("Topic = %q, want events", msg.Topic)
	}
	if len(msg.Headers) != 1 {
		t.Errorf("expected no path header, got %v", msg.Headers)
	}
}

func TestProducer_Retries(t *testing.T) {
	tests := []struct {
		name      string
		errs      []error
		wantCalls int
		wantErr   bool
	}{
		{"transient then ok", []error{errors.New("leader not available"), nil}, 2, false},
		{"permanent", []error{errors.New("message too large")}, 1, true},
		{"exhausted", []error{
			errors.New("i/o timeout"), errors.New("i/o timeout"), errors.New("i/o timeout"),
		}, 3, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := &fakeWriter{errs: tt.errs}
			p := NewProducerWithWriter(testConfig(), w, nil)
			err := p.Put(context.Background(), route.Queue{Transport: route.TransportStream, Name: "q"}, map[string]any{})
			if (err != nil) != tt.wantErr {
				t.Errorf("Put() error = %v, wantErr %v", err, tt.wantErr)
			}
			if w.calls != tt.wantCalls {
				t.Errorf("expected %d writes, got %d", tt.wantCalls, w.calls)
			}
		})
	}
}

func TestProducer_Closed(t *testing.T) {
	w := &fakeWriter{}
	p := NewProducerWithWriter(testConfig(), w, nil)
	if err := p.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := p.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}
	if !w.closed {
		t.Error("writer not closed")
	}
	if err := p.Put(context.Background(), route.Queue{Name: "q"}, nil); err == nil {
		t.Error("expected an error after Close")
	}
}

func TestNewProducer_Disabled(t *testing.T) {
	if _, err := NewProducer(Config{}, nil); err == nil {
		t.Error("expected an error for a disabled config")
	}
}

func TestComponent_Lifecycle(t *testing.T) {
	ctx := context.Background()
	c := NewComponent(testConfig(), nil)

	if err := c.Put(ctx, route.Queue{Name: "q"}, nil); err == nil {
		t.Error("expected an error before Start")
	}
	if h := c.Health(ctx); h.Status != observability.HealthStatusDown {
		t.Errorf("expected down before Start, got %s", h.Status)
	}

	w := &fakeWriter{}
	c.SetProducer(NewProducerWithWriter(testConfig(), w, nil))
	if err := c.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := c.Put(ctx, route.Queue{Transport: route.TransportStream, Name: "q"}, map[string]any{"a": 1}); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if len(w.messages) != 1 {
		t.Errorf("expected 1 message, got %d", len(w.messages))
	}

	if err := c.Stop(ctx); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if !w.closed {
		t.Error("producer not closed on Stop")
	}
	if c.Producer() != nil {
		t.Error("producer should be released on Stop")
	}
	if d := c.Describe(); d.Type != "kafka" {
		t.Errorf("unexpected description %+v", d)
	}
}
