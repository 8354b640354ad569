// Package kafka delivers STREAM queue records to Kafka topics using
// segmentio/kafka-go, with optional TLS and SASL.
package kafka
