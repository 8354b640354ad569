package batch

import (
	"context"
	"fmt"
	"strings"

	"github.com/mintel/lpipe/event"
	"github.com/mintel/lpipe/route"
)

// EventFinished is the event label of every summary.
const EventFinished = "Finished."

// Stats counts the records of one batch.
type Stats struct {
	Received  int `json:"received"`
	Successes int `json:"successes"`
}

// Summary is the result of a batch that did not abort.
type Summary struct {
	Event string `json:"event"`
	Stats Stats  `json:"stats"`
	// Output holds one value per successful record, in order. It is only
	// set when at least one value is non-nil.
	Output []any `json:"output,omitempty"`
	// Debug is the JSON of the raw records, in debug mode.
	Debug string `json:"debug,omitempty"`
	// Logs is the JSON array of log events emitted during the batch, in
	// debug mode.
	Logs string `json:"logs,omitempty"`
}

func newSummary(received, successes int) *Summary {
	return &Summary{
		Event: EventFinished,
		Stats: Stats{Received: received, Successes: successes},
	}
}

// Failure is a catastrophic error and the record that raised it.
type Failure struct {
	Record event.Record
	Err    error
}

// BatchError aborts an invocation. It carries every catastrophic error of
// the batch; records after the first failure were still processed.
type BatchError struct {
	InvocationID string
	Failures     []Failure
}

func (e *BatchError) Error() string {
	msgs := make([]string, len(e.Failures))
	for i, f := range e.Failures {
		msgs[i] = fmt.Sprintf("record %d: %v", f.Record.Index, f.Err)
	}
	return fmt.Sprintf("batch aborted with %d catastrophic error(s): %s", len(e.Failures), strings.Join(msgs, "; "))
}

// Unwrap returns every accumulated error.
func (e *BatchError) Unwrap() []error {
	errs := make([]error, len(e.Failures))
	for i, f := range e.Failures {
		errs[i] = f.Err
	}
	return errs
}

// Cleaner compensates for the records of an aborted batch that were
// processed successfully, so that a redelivery does not repeat them.
type Cleaner interface {
	Cleanup(ctx context.Context, kind route.Transport, records []event.Record) error
}

// CleanerFunc adapts a function to Cleaner.
type CleanerFunc func(ctx context.Context, kind route.Transport, records []event.Record) error

// Cleanup calls f.
func (f CleanerFunc) Cleanup(ctx context.Context, kind route.Transport, records []event.Record) error {
	return f(ctx, kind, records)
}
