// Package batch processes one invocation's worth of records.
//
// Records are decoded, dispatched and classified strictly in delivery
// order. A recoverable failure drops its record; a catastrophic one is
// accumulated while the rest of the batch still runs, after which the
// successful records are compensated and a *BatchError is returned.
//
//	p := batch.New(table,
//		batch.WithSource(route.TransportQueue),
//		batch.WithPutter(router),
//		batch.WithCleaner(cleanup),
//	)
//	summary, err := p.Process(ctx, body)
package batch
