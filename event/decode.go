package event

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	stderrors "errors"
	"fmt"

	"github.com/mintel/lpipe/errors"
	"github.com/mintel/lpipe/route"
)

// ErrNotAList is returned when a batch does not hold a list of records.
// Callers treat it as an empty batch.
var ErrNotAList = stderrors.New("event: records are not a list")

// Envelope is a decoded record body.
type Envelope struct {
	// Path is set unless the pipeline has a default path.
	Path   route.Name
	Kwargs map[string]any
}

// RecordsFromBatch splits a batch into records. RAW batches are the list
// itself; STREAM and QUEUE batches carry it under "Records".
func RecordsFromBatch(kind route.Transport, batch []byte) ([]Record, error) {
	if !kind.Valid() {
		return nil, errors.Configuration("Invalid source kind '%s'", kind)
	}

	list := json.RawMessage(batch)
	if kind != route.TransportRaw {
		var wrapper struct {
			Records json.RawMessage `json:"Records"`
		}
		if err := json.Unmarshal(batch, &wrapper); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrNotAList, err)
		}
		list = wrapper.Records
	}

	var items []json.RawMessage
	if err := json.Unmarshal(list, &items); err != nil || items == nil {
		return nil, ErrNotAList
	}

	records := make([]Record, len(items))
	for i, raw := range items {
		records[i] = Record{Index: i, Raw: raw}
	}
	return records, nil
}

// PayloadFromRecord decodes the body of rec. Without a default path the
// body must carry "path" and "kwargs"; with one the whole body is kwargs.
// Every failure is INVALID_PAYLOAD. Numbers decode as json.Number.
func PayloadFromRecord(kind route.Transport, rec Record, hasDefaultPath bool) (Envelope, error) {
	body, err := recordBody(kind, rec)
	if err != nil {
		return Envelope{}, err
	}
	if hasDefaultPath {
		return Envelope{Kwargs: body}, nil
	}

	rawPath, ok := body["path"]
	if !ok {
		return Envelope{}, errors.InvalidPayload("'path' or 'kwargs' missing from payload")
	}
	path, ok := rawPath.(string)
	if !ok || path == "" {
		return Envelope{}, errors.InvalidPayload("'path' must be a non-empty string")
	}
	rawKwargs, ok := body["kwargs"]
	if !ok {
		return Envelope{}, errors.InvalidPayload("'path' or 'kwargs' missing from payload")
	}

	env := Envelope{Path: route.Name(path), Kwargs: map[string]any{}}
	switch kw := rawKwargs.(type) {
	case nil:
	case map[string]any:
		env.Kwargs = kw
	default:
		return Envelope{}, errors.InvalidPayload("'kwargs' must be an object")
	}
	return env, nil
}

func recordBody(kind route.Transport, rec Record) (map[string]any, error) {
	switch kind {
	case route.TransportRaw:
		if s, ok := asString(rec.Raw); ok {
			return decodeObject([]byte(s))
		}
		return decodeObject(rec.Raw)

	case route.TransportStream:
		var r struct {
			Kinesis struct {
				Data *string `json:"data"`
			} `json:"kinesis"`
		}
		if err := json.Unmarshal(rec.Raw, &r); err != nil || r.Kinesis.Data == nil {
			return nil, errors.InvalidPayload(fmt.Sprintf("Bad record provided for source kind %s", kind))
		}
		data, err := base64.StdEncoding.DecodeString(*r.Kinesis.Data)
		if err != nil {
			return nil, errors.InvalidPayload("record data is not base64").WithCause(err)
		}
		return decodeObject(data)

	case route.TransportQueue:
		var r struct {
			Body *string `json:"body"`
		}
		if err := json.Unmarshal(rec.Raw, &r); err != nil || r.Body == nil {
			return nil, errors.InvalidPayload(fmt.Sprintf("Bad record provided for source kind %s", kind))
		}
		return decodeObject([]byte(*r.Body))
	}
	return nil, errors.Configuration("Invalid source kind '%s'", kind)
}

func asString(raw json.RawMessage) (string, bool) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '"' {
		return "", false
	}
	var s string
	if err := json.Unmarshal(trimmed, &s); err != nil {
		return "", false
	}
	return s, true
}

func decodeObject(data []byte) (map[string]any, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var body map[string]any
	if err := dec.Decode(&body); err != nil {
		return nil, errors.InvalidPayload("Payload contained invalid json").WithCause(err)
	}
	if body == nil {
		return nil, errors.InvalidPayload("payload is not an object")
	}
	if dec.More() {
		return nil, errors.InvalidPayload("Payload contained trailing data")
	}
	return body, nil
}

// EventSource returns the source identifier of rec, such as the ARN of the
// originating queue. It returns "" when there is none.
func EventSource(kind route.Transport, rec Record) string {
	if kind == route.TransportRaw {
		if _, isString := asString(rec.Raw); isString {
			return ""
		}
	}
	m := rec.meta()
	if m.EventSourceARN != "" {
		return m.EventSourceARN
	}
	return m.EventSource
}
