package kafka

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	kafkago "github.com/segmentio/kafka-go"
	"golang.org/x/crypto/blake2b"

	"github.com/mintel/lpipe/dispatch"
	"github.com/mintel/lpipe/logger"
	"github.com/mintel/lpipe/resilience"
	"github.com/mintel/lpipe/route"
)

// Header names set on every message.
const (
	HeaderContentType = "content-type"
	HeaderPath        = "lpipe-path"
)

// Writer is the part of a kafka-go writer the producer uses.
type Writer interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// Producer writes outbound STREAM records to Kafka. The topic is the
// queue resource and the key is a digest of the record, so identical
// records land on the same partition.
type Producer struct {
	writer Writer
	cfg    Config
	retry  resilience.RetryConfig
	log    *logger.Logger
	mu     sync.RWMutex
	closed bool
}

var _ dispatch.Putter = (*Producer)(nil)

// NewProducer creates a producer. The underlying writer connects lazily
// on the first write.
func NewProducer(cfg Config, log *logger.Logger) (*Producer, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("kafka producer config: %w", err)
	}
	if !cfg.Enabled {
		return nil, fmt.Errorf("kafka is disabled")
	}
	if log == nil {
		log = logger.Nop()
	}
	log = log.WithComponent("kafka.producer")

	transport, err := CreateTransport(&cfg)
	if err != nil {
		return nil, fmt.Errorf("kafka producer transport: %w", err)
	}
	w := &kafkago.Writer{
		Addr:                   kafkago.TCP(cfg.Brokers...),
		Transport:              transport,
		Balancer:               &kafkago.Hash{},
		BatchSize:              cfg.BatchSize,
		BatchTimeout:           ParseDuration(cfg.BatchTimeout),
		RequiredAcks:           kafkago.RequiredAcks(cfg.RequiredAcks),
		Compression:            ResolveCompression(cfg.Compression),
		WriteTimeout:           ParseDuration(cfg.WriteTimeout),
		MaxAttempts:            1,
		AllowAutoTopicCreation: false,
		ErrorLogger: kafkago.LoggerFunc(func(msg string, args ...interface{}) {
			log.Error("writer: "+fmt.Sprintf(msg, args...))
		}),
	}

	log.Info("Kafka producer initialized", logger.Fields(
		"brokers", cfg.Brokers,
		"compression", cfg.Compression,
		"retries", cfg.Retries,
	))
	return newProducer(w, cfg, log), nil
}

// NewProducerWithWriter creates a producer on top of w.
func NewProducerWithWriter(cfg Config, w Writer, log *logger.Logger) *Producer {
	cfg.ApplyDefaults()
	if log == nil {
		log = logger.Nop()
	}
	return newProducer(w, cfg, log.WithComponent("kafka.producer"))
}

func newProducer(w Writer, cfg Config, log *logger.Logger) *Producer {
	return &Producer{
		writer: w,
		cfg:    cfg,
		log:    log,
		retry: resilience.RetryConfig{
			MaxAttempts:    cfg.Retries,
			InitialBackoff: ParseDuration(cfg.RetryBackoff),
			MaxBackoff:     10 * time.Second,
			BackoffFactor:  2,
			Jitter:         0.1,
			RetryIf:        IsRetryableError,
			OnRetry: func(attempt int, err error, backoff time.Duration) {
				log.Warn("Write failed, retrying.", logger.Fields(
					"attempt", attempt, "backoff", backoff.String(), logger.FieldError, err.Error()))
			},
		},
	}
}

// Put writes record to the topic of queue.
func (p *Producer) Put(ctx context.Context, queue route.Queue, record map[string]any) error {
	msg, err := p.Message(queue, record)
	if err != nil {
		return err
	}
	return p.WriteMessages(ctx, msg)
}

// Message builds the Kafka message for record.
func (p *Producer) Message(queue route.Queue, record map[string]any) (kafkago.Message, error) {
	data, err := json.Marshal(record)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("marshal record: %w", err)
	}
	sum := blake2b.Sum256(data)
	headers := []kafkago.Header{
		{Key: HeaderContentType, Value: []byte("application/json")},
	}
	if queue.Path != "" {
		headers = append(headers, kafkago.Header{Key: HeaderPath, Value: []byte(queue.Path)})
	}
	return kafkago.Message{
		Topic:   p.cfg.Topic(queue.Resource()),
		Key:     []byte(hex.EncodeToString(sum[:])),
		Value:   data,
		Headers: headers,
	}, nil
}

// WriteMessages writes msgs, retrying transient failures with an
// exponential backoff.
func (p *Producer) WriteMessages(ctx context.Context, msgs ...kafkago.Message) error {
	p.mu.RLock()
	closed := p.closed
	p.mu.RUnlock()
	if closed {
		return fmt.Errorf("producer is closed")
	}

	err := resilience.Retry(ctx, p.retry, func(ctx context.Context) error {
		return p.writer.WriteMessages(ctx, msgs...)
	})
	if err != nil {
		return fmt.Errorf("write to kafka: %w", err)
	}
	return nil
}

// Close shuts down the producer. It is safe to call more than once.
func (p *Producer) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil
	}
	p.closed = true
	p.log.Info("Kafka producer closing")
	return p.writer.Close()
}
