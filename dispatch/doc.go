// Package dispatch executes payloads against a routing table.
//
// A payload naming a path runs every action registered for it: the
// functions first, in order, then the sub-paths, then the queues. Nested
// work runs synchronously and depth first, so the whole tree completes
// before Dispatch returns.
//
//	d := dispatch.New(table,
//		dispatch.WithPutter(router),
//		dispatch.WithObserver(observer),
//		dispatch.WithLogger(log),
//	)
//	value, err := d.Dispatch(ctx, route.To(route.Name("ECHO"), kwargs), nil)
//
// Handler errors built with the errors package decide the fate of the
// record (recoverable) or of the invocation (catastrophic). Any other error
// is logged, reported to the observer and skipped, and the record is then
// reported as HANDLER_FAILED.
package dispatch
