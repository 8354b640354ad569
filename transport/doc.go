// Package transport routes outbound records and compensating cleanup to
// the broker behind each transport kind.
//
// STREAM queues are served by transport/kafka, QUEUE queues by
// transport/redis, and RAW queues by a LogPutter or transport/memory:
//
//	router := transport.NewRouter().
//		Handle(route.TransportStream, producer).
//		Handle(route.TransportQueue, streams).
//		Handle(route.TransportRaw, transport.NewLogPutter(log))
//	cleanup := transport.CleanupRouter{Queue: streams}
package transport
