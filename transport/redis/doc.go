// Package redis delivers QUEUE records to Redis streams through go-redis.
//
// Each queue maps to a stream keyed by its resource name. Records are
// stored under a single "body" field as JSON. When a batch read from a
// stream aborts, the records that did succeed are removed with XDEL so
// they are not processed again on redelivery.
package redis
