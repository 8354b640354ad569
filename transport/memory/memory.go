// Package memory is an in-process transport. It keeps every outbound
// record and every cleaned-up record for inspection.
package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/mintel/lpipe/event"
	"github.com/mintel/lpipe/route"
)

// Message is one delivered record.
type Message struct {
	ID     string
	Queue  route.Queue
	Record map[string]any
}

// Body returns the record as JSON.
func (m Message) Body() ([]byte, error) {
	return json.Marshal(m.Record)
}

// Transport records puts and cleanups. The zero value is ready to use.
type Transport struct {
	mu       sync.Mutex
	messages []Message
	cleaned  []event.Record
	failPut  error
}

// New creates an empty transport.
func New() *Transport {
	return &Transport{}
}

// FailWith makes every later Put return err. A nil err restores delivery.
func (t *Transport) FailWith(err error) {
	t.mu.Lock()
	t.failPut = err
	t.mu.Unlock()
}

// Put stores record under a fresh message id. The record is copied through
// JSON so later mutation by the caller is not visible.
func (t *Transport) Put(_ context.Context, queue route.Queue, record map[string]any) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.failPut != nil {
		return t.failPut
	}

	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("memory: encoding record: %w", err)
	}
	var copied map[string]any
	if err := json.Unmarshal(data, &copied); err != nil {
		return fmt.Errorf("memory: decoding record: %w", err)
	}
	t.messages = append(t.messages, Message{ID: uuid.NewString(), Queue: queue, Record: copied})
	return nil
}

// Messages returns the delivered messages in order.
func (t *Transport) Messages() []Message {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]Message(nil), t.messages...)
}

// MessagesFor returns the messages delivered to the queue with destination dest.
func (t *Transport) MessagesFor(dest string) []Message {
	t.mu.Lock()
	defer t.mu.Unlock()
	var out []Message
	for _, m := range t.messages {
		if m.Queue.Destination() == dest {
			out = append(out, m)
		}
	}
	return out
}

// Cleanup records the records it is asked to delete.
func (t *Transport) Cleanup(_ context.Context, _ route.Transport, records []event.Record) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.cleaned = append(t.cleaned, records...)
	return nil
}

// Cleaned returns every record passed to Cleanup.
func (t *Transport) Cleaned() []event.Record {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]event.Record(nil), t.cleaned...)
}

// Reset forgets everything.
func (t *Transport) Reset() {
	t.mu.Lock()
	t.messages = nil
	t.cleaned = nil
	t.failPut = nil
	t.mu.Unlock()
}
