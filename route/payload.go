package route

import (
	"encoding/json"

	"github.com/mintel/lpipe/errors"
)

// Payload is one unit of dispatch.
type Payload struct {
	Target      Target
	Kwargs      map[string]any
	EventSource string
}

// NewPayload creates a payload and checks that it has a target.
func NewPayload(target Target, kwargs map[string]any) (Payload, error) {
	p := Payload{Target: target, Kwargs: kwargs}
	if err := p.check(); err != nil {
		return Payload{}, err
	}
	return p, nil
}

// To creates a payload for a handler to emit. It is checked when the
// dispatcher resolves it.
func To(target Target, kwargs map[string]any) Payload {
	return Payload{Target: target, Kwargs: kwargs}
}

func (p Payload) check() error {
	switch t := p.Target.(type) {
	case nil:
		return errors.InvalidPayload("payload needs a path or a queue")
	case Queue:
		if err := t.Validate(); err != nil {
			return errors.InvalidPayload("invalid queue").WithCause(err)
		}
	case Name:
		if t == "" {
			return errors.InvalidPayload("payload needs a path or a queue")
		}
	case Path:
		if t.IsZero() {
			return errors.InvalidPayload("payload needs a path or a queue")
		}
	}
	return nil
}

// Resolve re-checks p and normalizes a path-like target against e.
func (p Payload) Resolve(e *Enum) (Payload, error) {
	if err := p.check(); err != nil {
		return Payload{}, err
	}
	t, err := e.Normalize(p.Target)
	if err != nil {
		return Payload{}, err
	}
	p.Target = t
	if p.Kwargs == nil {
		p.Kwargs = map[string]any{}
	}
	return p, nil
}

// IsQueue reports whether p targets a Queue.
func (p Payload) IsQueue() bool {
	_, ok := p.Target.(Queue)
	return ok
}

// MarshalJSON encodes the {"path", "kwargs"} envelope.
func (p Payload) MarshalJSON() ([]byte, error) {
	env := struct {
		Path        string         `json:"path"`
		Kwargs      map[string]any `json:"kwargs"`
		EventSource string         `json:"event_source,omitempty"`
	}{Kwargs: p.Kwargs, EventSource: p.EventSource}
	if p.Target != nil {
		env.Path = p.Target.String()
	}
	return json.Marshal(env)
}
