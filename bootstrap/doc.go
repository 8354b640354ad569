// Package bootstrap is the composition root of an lpipe service.
//
// New takes the loaded configuration and a routing table and builds the
// logger, telemetry, outbound transports, the batch processor and, when
// enabled, the HTTP ingress. Components start in registration order and
// stop in reverse.
//
//	cfg, _ := config.Load("orders")
//	app, err := bootstrap.New(cfg, table)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if err := app.Serve(ctx); err != nil {
//	    log.Fatal(err)
//	}
//
// Function-style deployments call Invoke per batch and Shutdown on exit;
// one-shot jobs use RunOnce.
package bootstrap
