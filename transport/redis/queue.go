package redis

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"strings"

	"github.com/mintel/lpipe/batch"
	"github.com/mintel/lpipe/dispatch"
	"github.com/mintel/lpipe/event"
	"github.com/mintel/lpipe/logger"
	"github.com/mintel/lpipe/route"
)

// Queue delivers QUEUE records to Redis streams and deletes consumed
// entries when a batch has to be compensated.
type Queue struct {
	client *Client
	log    *logger.Logger
}

var (
	_ dispatch.Putter = (*Queue)(nil)
	_ batch.Cleaner   = (*Queue)(nil)
)

// NewQueue creates a queue transport on client.
func NewQueue(client *Client, log *logger.Logger) *Queue {
	if log == nil {
		log = logger.Nop()
	}
	return &Queue{client: client, log: log.WithComponent("redis.queue")}
}

// Put appends record to the stream of queue.
func (q *Queue) Put(ctx context.Context, queue route.Queue, record map[string]any) error {
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("marshal record: %w", err)
	}
	stream := q.client.cfg.Stream(queue.Resource())
	id, err := q.client.Add(ctx, stream, data)
	if err != nil {
		return fmt.Errorf("xadd %s: %w", stream, err)
	}
	q.log.Debug("Record added to stream.", logger.Fields(logger.FieldQueue, stream, "id", id))
	return nil
}

// Cleanup deletes records from the streams they were read from. The
// stream is the last segment of the record's event source and the entry
// id is its message id. Records missing either are skipped.
func (q *Queue) Cleanup(ctx context.Context, _ route.Transport, records []event.Record) error {
	byStream := make(map[string][]string)
	var order []string
	for _, rec := range records {
		name := SourceName(event.EventSource(route.TransportQueue, rec))
		id := rec.MessageID()
		if name == "" || id == "" {
			q.log.Warn("Cannot clean up record without source or message id.",
				logger.Fields(logger.FieldRecordIndex, rec.Index))
			continue
		}
		stream := q.client.cfg.Stream(name)
		if _, seen := byStream[stream]; !seen {
			order = append(order, stream)
		}
		byStream[stream] = append(byStream[stream], id)
	}

	var errs []error
	for _, stream := range order {
		ids := byStream[stream]
		n, err := q.client.Delete(ctx, stream, ids...)
		if err != nil {
			errs = append(errs, fmt.Errorf("xdel %s: %w", stream, err))
			continue
		}
		q.log.Info("Cleaned up records.", logger.Fields(logger.FieldQueue, stream, "requested", len(ids), "deleted", n))
	}
	return stderrors.Join(errs...)
}

// SourceName extracts the queue name from an event source such as an ARN
// ("arn:aws:sqs:eu-west-1:123:orders") or a URL ("https://host/123/orders").
func SourceName(source string) string {
	source = strings.TrimRight(source, "/")
	if i := strings.LastIndexAny(source, ":/"); i != -1 {
		return source[i+1:]
	}
	return source
}
