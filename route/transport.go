package route

import (
	"strings"

	"github.com/mintel/lpipe/errors"
)

// Transport identifies how records travel: the encoding of an incoming
// batch, or the client used for an outbound Queue.
type Transport string

const (
	// TransportRaw is a plain list of records, as from a scheduled or
	// manually triggered invocation.
	TransportRaw Transport = "RAW"
	// TransportStream is a partitioned stream; record data is base64 JSON.
	TransportStream Transport = "STREAM"
	// TransportQueue is a message queue; the record body is a JSON string.
	TransportQueue Transport = "QUEUE"
)

// Transports lists every valid transport.
var Transports = []Transport{TransportRaw, TransportStream, TransportQueue}

// Valid reports whether t is a known transport.
func (t Transport) Valid() bool {
	switch t {
	case TransportRaw, TransportStream, TransportQueue:
		return true
	}
	return false
}

func (t Transport) String() string { return string(t) }

// ParseTransport accepts any casing of a transport name.
func ParseTransport(s string) (Transport, error) {
	t := Transport(strings.ToUpper(strings.TrimSpace(s)))
	if !t.Valid() {
		return "", errors.Configuration("Invalid source kind '%s'", s)
	}
	return t, nil
}
