package route

import (
	"strings"

	"github.com/mintel/lpipe/validation"
)

// Queue is a terminal sink. It never has handlers or sub-paths of its own.
type Queue struct {
	Transport Transport `mapstructure:"transport" json:"transport" validate:"oneof=RAW STREAM QUEUE"`
	Name      string    `mapstructure:"name" json:"name,omitempty" validate:"required_without=URL"`
	URL       string    `mapstructure:"url" json:"url,omitempty" validate:"omitempty,url"`
	// Path is the label written as "path" on outbound records. When empty
	// the kwargs are sent bare.
	Path string `mapstructure:"path" json:"path,omitempty"`
}

func (Queue) isTarget() {}

func (q Queue) String() string {
	return "Queue(" + string(q.Transport) + ":" + q.Destination() + ")"
}

// Destination returns the name, or the URL when no name is set.
func (q Queue) Destination() string {
	if q.Name != "" {
		return q.Name
	}
	return q.URL
}

// Resource returns the name, or the last segment of the URL path.
func (q Queue) Resource() string {
	if q.Name != "" {
		return q.Name
	}
	u := strings.TrimRight(q.URL, "/")
	if idx := strings.LastIndex(u, "/"); idx != -1 {
		return u[idx+1:]
	}
	return u
}

// Validate checks the queue declaration.
func (q Queue) Validate() error {
	return validation.Struct(q)
}

// Record builds the outbound record for kwargs.
func (q Queue) Record(kwargs map[string]any) map[string]any {
	if kwargs == nil {
		kwargs = map[string]any{}
	}
	if q.Path == "" {
		return kwargs
	}
	return map[string]any{"path": q.Path, "kwargs": kwargs}
}
