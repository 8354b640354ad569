// Package component defines the lifecycle of the infrastructure around the
// engine: outbound transports and the HTTP ingress.
//
// Components are registered with a Registry, started in registration order,
// stopped in reverse order and report their health as observability.Health.
package component
