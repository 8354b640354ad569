package event

import (
	"encoding/json"
)

// Record is one item of an incoming batch, exactly as delivered.
type Record struct {
	Index int
	Raw   json.RawMessage
}

type recordMeta struct {
	MessageID      string `json:"messageId"`
	EventID        string `json:"eventID"`
	ReceiptHandle  string `json:"receiptHandle"`
	EventSourceARN string `json:"eventSourceARN"`
	EventSource    string `json:"eventSource"`
	Kinesis        struct {
		SequenceNumber string `json:"sequenceNumber"`
	} `json:"kinesis"`
}

// meta decodes the transport metadata of r. Records that are not JSON
// objects have none.
func (r Record) meta() recordMeta {
	var m recordMeta
	_ = json.Unmarshal(r.Raw, &m)
	return m
}

// MessageID returns the message id of a queue record, or the event id or
// sequence number of a stream record.
func (r Record) MessageID() string {
	m := r.meta()
	switch {
	case m.MessageID != "":
		return m.MessageID
	case m.EventID != "":
		return m.EventID
	default:
		return m.Kinesis.SequenceNumber
	}
}

// ReceiptHandle returns the handle needed to acknowledge a queue record.
func (r Record) ReceiptHandle() string {
	return r.meta().ReceiptHandle
}

// MarshalJSON encodes the record as delivered.
func (r Record) MarshalJSON() ([]byte, error) {
	if len(r.Raw) == 0 {
		return []byte("null"), nil
	}
	return r.Raw, nil
}
