package event

import (
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/mintel/lpipe/errors"
	"github.com/mintel/lpipe/route"
)

// Body returns the {"path", "kwargs"} envelope for path.
func Body(path string, kwargs map[string]any) map[string]any {
	if kwargs == nil {
		kwargs = map[string]any{}
	}
	return map[string]any{"path": path, "kwargs": kwargs}
}

// Encode builds a batch of kind carrying bodies, as the platform would
// deliver it. source is written as the event source ARN of STREAM and
// QUEUE records; message ids and receipt handles are random.
func Encode(kind route.Transport, source string, bodies ...any) ([]byte, error) {
	records := make([]any, 0, len(bodies))
	for i, body := range bodies {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("event: encoding record %d: %w", i, err)
		}
		switch kind {
		case route.TransportRaw:
			records = append(records, json.RawMessage(data))
		case route.TransportStream:
			records = append(records, map[string]any{
				"eventID":        fmt.Sprintf("shardId-000000000000:%s", uuid.NewString()),
				"eventSource":    "stream",
				"eventSourceARN": source,
				"kinesis": map[string]any{
					"data":           base64.StdEncoding.EncodeToString(data),
					"partitionKey":   fmt.Sprintf("%d", i),
					"sequenceNumber": fmt.Sprintf("%d", i),
				},
			})
		case route.TransportQueue:
			records = append(records, map[string]any{
				"messageId":      uuid.NewString(),
				"receiptHandle":  uuid.NewString(),
				"body":           string(data),
				"eventSource":    "queue",
				"eventSourceARN": source,
			})
		default:
			return nil, errors.Configuration("Invalid source kind '%s'", kind)
		}
	}

	if kind == route.TransportRaw {
		return json.Marshal(records)
	}
	return json.Marshal(map[string]any{"Records": records})
}
