package component

import (
	"context"

	"github.com/mintel/lpipe/observability"
)

// Component is a lifecycle-managed piece of infrastructure: an outbound
// transport or the HTTP ingress.
type Component interface {
	// Name returns the unique name of the component for registration.
	Name() string

	// Start connects or starts serving.
	Start(ctx context.Context) error

	// Stop gracefully shuts down the component and releases resources.
	Stop(ctx context.Context) error

	// Health returns the current health of the component.
	Health(ctx context.Context) observability.Health
}

// Description holds summary information logged at startup.
type Description struct {
	// Name is the human-readable display name. If empty, the component's
	// Name() is used.
	Name string
	// Type categorizes the component: "kafka", "redis", "server".
	Type string
	// Details is a one-liner such as "localhost:6379 db=0".
	Details string
	// Port is the primary port, 0 if not applicable.
	Port int
}

// Describable is optionally implemented by components to report how they
// are configured.
type Describable interface {
	Describe() Description
}

// Route is one HTTP route of a server component.
type Route struct {
	Method  string
	Path    string
	Handler string
}

// RouteProvider is optionally implemented by server components.
type RouteProvider interface {
	Routes() []Route
}
