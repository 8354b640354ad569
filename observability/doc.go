// Package observability wires OpenTelemetry tracing and metrics into batch
// processing.
//
// Tracing:
//
//	tp, err := observability.InitTracer(ctx, cfg.Observability.Tracer("lpipe", "prod"))
//	defer tp.Shutdown(ctx)
//
// Every batch runs under an lpipe.invocation span with one lpipe.record span
// per record and lpipe.handler or lpipe.put spans below it.
//
// Metrics:
//
//	metrics, err := observability.NewMetrics(observability.Meter("lpipe"))
//	observer := observability.NewFailureObserver(metrics, log)
//
// Health rolls up from the components: one down component takes the
// service down, a degraded one degrades it.
//
//	health := observability.NewServiceHealth("lpipe", "1.0.0")
//	health.AddComponent(redisComponent.Health(ctx))
package observability
