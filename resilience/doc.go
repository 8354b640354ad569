// Package resilience protects outbound delivery.
//
// Retry repeats an operation with exponential backoff while its error is
// transient. CircuitBreaker fails fast once a dependency keeps failing,
// and Guard puts one breaker in front of every queue a putter delivers to,
// so a dead queue aborts batches immediately instead of timing out on
// every record. When the delivery config sets a rate, Guard also throttles
// each destination with a token bucket.
//
//	putter := resilience.NewGuard(route.TransportQueue, redisComponent, cfg, log)
package resilience
