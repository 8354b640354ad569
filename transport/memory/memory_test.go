package memory

import (
	"context"
	"fmt"
	"testing"

	"github.com/mintel/lpipe/event"
	"github.com/mintel/lpipe/route"
)

func TestTransport_Put(t *testing.T) {
	tr := New()
	q := route.Queue{Transport: route.TransportRaw, Name: "audit"}
	record := map[string]any{"path": "X", "kwargs": map[string]any{"a": 1}}

	if err := tr.Put(context.Background(), q, record); err != nil {
		t.Fatalf("Put: %v", err)
	}
	record["path"] = "changed"

	msgs := tr.MessagesFor("audit")
	if len(msgs) != 1 {
		t.Fatalf("expected 1 message, got %d", len(msgs))
	}
	if msgs[0].ID == "" {
		t.Error("expected a message id")
	}
	if msgs[0].Record["path"] != "X" {
		t.Errorf("expected an isolated copy, got %v", msgs[0].Record)
	}
	body, err := msgs[0].Body()
	if err != nil || string(body) != `{"kwargs":{"a":1},"path":"X"}` {
		t.Errorf("unexpected body %s, %v", body, err)
	}
	if len(tr.MessagesFor("other")) != 0 {
		t.Error("expected no messages for another queue")
	}
}

func TestTransport_FailWith(t *testing.T) {
	tr := New()
	tr.FailWith(fmt.Errorf("down"))
	if err := tr.Put(context.Background(), route.Queue{Name: "q"}, nil); err == nil {
		t.Error("expected put to fail")
	}
	tr.Reset()
	if err := tr.Put(context.Background(), route.Queue{Name: "q"}, nil); err != nil {
		t.Errorf("expected put to succeed after reset, got %v", err)
	}
}

func TestTransport_Cleanup(t *testing.T) {
	tr := New()
	records := []event.Record{{Index: 0}, {Index: 2}}
	if err := tr.Cleanup(context.Background(), route.TransportQueue, records); err != nil {
		t.Fatalf("Cleanup: %v", err)
	}
	if got := tr.Cleaned(); len(got) != 2 || got[1].Index != 2 {
		t.Errorf("unexpected cleaned records %v", got)
	}
}
