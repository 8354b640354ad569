// Package server is the HTTP ingress of the engine.
//
// A batch is POSTed to /invoke (or /invoke/{source} to pick the source
// kind per request) exactly as the platform would deliver it. The response
// is the batch summary, or a 500 error body listing every catastrophic
// failure when the batch aborts. When an auth secret is configured the
// invoke routes require an HS256 bearer token. GET /health reports the
// health of every registered component.
//
//	srv := server.New(cfg.Server, log)
//	srv.RegisterInvoke(processor)
//	srv.RegisterHealth(func(ctx context.Context) *observability.ServiceHealth {
//	    return registry.Health(ctx, cfg.Name, cfg.Version)
//	})
//	registry.Register(server.NewComponent(srv))
package server
