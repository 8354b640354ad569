package event

import (
	"encoding/json"
	stderrors "errors"
	"testing"

	"github.com/mintel/lpipe/errors"
	"github.com/mintel/lpipe/route"
)

var kinds = []route.Transport{route.TransportRaw, route.TransportStream, route.TransportQueue}

func TestRoundTrip(t *testing.T) {
	kwargs := map[string]any{"foo": "bar", "n": json.Number("9007199254740993"), "nested": map[string]any{"ok": true}}
	for _, kind := range kinds {
		t.Run(string(kind), func(t *testing.T) {
			batch, err := Encode(kind, "arn:aws:sqs:eu-west-1:123:orders", Body("ECHO", kwargs))
			if err != nil {
				t.Fatalf("Encode: %v", err)
			}
			records, err := RecordsFromBatch(kind, batch)
			if err != nil {
				t.Fatalf("RecordsFromBatch: %v", err)
			}
			if len(records) != 1 || records[0].Index != 0 {
				t.Fatalf("unexpected records %+v", records)
			}
			env, err := PayloadFromRecord(kind, records[0], false)
			if err != nil {
				t.Fatalf("PayloadFromRecord: %v", err)
			}
			if env.Path != "ECHO" {
				t.Errorf("expected path ECHO, got %q", env.Path)
			}
			if env.Kwargs["foo"] != "bar" {
				t.Errorf("expected foo=bar, got %v", env.Kwargs["foo"])
			}
			if env.Kwargs["n"] != json.Number("9007199254740993") {
				t.Errorf("expected exact integer, got %#v", env.Kwargs["n"])
			}
			if nested, _ := env.Kwargs["nested"].(map[string]any); nested["ok"] != true {
				t.Errorf("expected nested object, got %v", env.Kwargs["nested"])
			}
		})
	}
}

func TestEmptyBatch(t *testing.T) {
	for _, kind := range kinds {
		batch, _ := Encode(kind, "")
		records, err := RecordsFromBatch(kind, batch)
		if err != nil || len(records) != 0 {
			t.Errorf("%s: expected no records, got %v, %v", kind, records, err)
		}
	}
}

func TestNotAList(t *testing.T) {
	tests := []struct {
		kind  route.Transport
		batch string
	}{
		{route.TransportRaw, `{"Records": []}`},
		{route.TransportRaw, `null`},
		{route.TransportStream, `[]`},
		{route.TransportStream, `{"Records": {"a": 1}}`},
		{route.TransportQueue, `{}`},
		{route.TransportQueue, `not json`},
	}
	for _, tc := range tests {
		_, err := RecordsFromBatch(tc.kind, []byte(tc.batch))
		if !stderrors.Is(err, ErrNotAList) {
			t.Errorf("%s %s: expected ErrNotAList, got %v", tc.kind, tc.batch, err)
		}
	}
}

func TestInvalidKind(t *testing.T) {
	_, err := RecordsFromBatch("FTP", []byte(`[]`))
	if !errors.Is(err, errors.ErrCodeConfiguration) {
		t.Errorf("expected CONFIGURATION, got %v", err)
	}
	if _, err := Encode("FTP", "", Body("A", nil)); !errors.Is(err, errors.ErrCodeConfiguration) {
		t.Errorf("expected CONFIGURATION from Encode, got %v", err)
	}
}

func TestRawStringRecord(t *testing.T) {
	records, _ := RecordsFromBatch(route.TransportRaw, []byte(`["{\"path\":\"ECHO\",\"kwargs\":{\"a\":1}}"]`))
	env, err := PayloadFromRecord(route.TransportRaw, records[0], false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if env.Path != "ECHO" || env.Kwargs["a"] != json.Number("1") {
		t.Errorf("unexpected envelope %+v", env)
	}
	if EventSource(route.TransportRaw, records[0]) != "" {
		t.Error("string records have no event source")
	}
}

func TestInvalidPayloads(t *testing.T) {
	tests := []struct {
		name   string
		kind   route.Transport
		record string
	}{
		{"missing path", route.TransportRaw, `{"kwargs": {}}`},
		{"missing kwargs", route.TransportRaw, `{"path": "ECHO"}`},
		{"numeric path", route.TransportRaw, `{"path": 1, "kwargs": {}}`},
		{"list kwargs", route.TransportRaw, `{"path": "ECHO", "kwargs": []}`},
		{"raw null", route.TransportRaw, `null`},
		{"raw bad json string", route.TransportRaw, `"{not json"`},
		{"stream no data", route.TransportStream, `{"kinesis": {}}`},
		{"stream bad base64", route.TransportStream, `{"kinesis": {"data": "%%%"}}`},
		{"queue no body", route.TransportQueue, `{"messageId": "1"}`},
		{"queue bad json", route.TransportQueue, `{"body": "{"}`},
		{"queue array body", route.TransportQueue, `{"body": "[1,2]"}`},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := PayloadFromRecord(tc.kind, Record{Raw: json.RawMessage(tc.record)}, false)
			if !errors.Is(err, errors.ErrCodeInvalidPayload) {
				t.Fatalf("expected INVALID_PAYLOAD, got %v", err)
			}
			if !errors.IsRecoverable(err) {
				t.Error("decode errors are recoverable")
			}
		})
	}
}

func TestNullKwargs(t *testing.T) {
	env, err := PayloadFromRecord(route.TransportRaw, Record{Raw: json.RawMessage(`{"path":"A","kwargs":null}`)}, false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if env.Kwargs == nil || len(env.Kwargs) != 0 {
		t.Errorf("expected empty kwargs, got %v", env.Kwargs)
	}
}

func TestDefaultPath(t *testing.T) {
	batch, _ := Encode(route.TransportQueue, "", map[string]any{"foo": "bar", "path": "ignored"})
	records, _ := RecordsFromBatch(route.TransportQueue, batch)
	env, err := PayloadFromRecord(route.TransportQueue, records[0], true)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if env.Path != "" {
		t.Errorf("expected no path, got %q", env.Path)
	}
	if env.Kwargs["foo"] != "bar" || env.Kwargs["path"] != "ignored" {
		t.Errorf("expected whole body as kwargs, got %v", env.Kwargs)
	}
}

func TestEventSourceAndIDs(t *testing.T) {
	const arn = "arn:aws:sqs:eu-west-1:123:orders"
	batch, _ := Encode(route.TransportQueue, arn, Body("A", nil), Body("B", nil))
	records, _ := RecordsFromBatch(route.TransportQueue, batch)
	for _, r := range records {
		if got := EventSource(route.TransportQueue, r); got != arn {
			t.Errorf("expected %s, got %q", arn, got)
		}
		if r.MessageID() == "" || r.ReceiptHandle() == "" {
			t.Errorf("expected message id and receipt handle on %s", r.Raw)
		}
	}
	if records[0].MessageID() == records[1].MessageID() {
		t.Error("expected distinct message ids")
	}

	stream, _ := Encode(route.TransportStream, "arn:aws:kinesis:eu-west-1:123:stream/events", Body("A", nil))
	srecs, _ := RecordsFromBatch(route.TransportStream, stream)
	if srecs[0].MessageID() == "" {
		t.Error("expected stream event id")
	}
}

func TestEventSourceFallback(t *testing.T) {
	r := Record{Raw: json.RawMessage(`{"eventSource": "aws:sqs"}`)}
	if got := EventSource(route.TransportQueue, r); got != "aws:sqs" {
		t.Errorf("expected fallback to eventSource, got %q", got)
	}
	if got := EventSource(route.TransportQueue, Record{Raw: json.RawMessage(`[1]`)}); got != "" {
		t.Errorf("expected empty source, got %q", got)
	}
}

func TestRecordMarshal(t *testing.T) {
	b, _ := json.Marshal([]Record{{Raw: json.RawMessage(`{"a":1}`)}, {}})
	if string(b) != `[{"a":1},null]` {
		t.Errorf("unexpected JSON %s", b)
	}
}
