// Package event decodes incoming batches.
//
// Three encodings are supported, selected by route.Transport:
//
//	RAW     [record, ...]            record is an object or a JSON string
//	STREAM  {"Records": [record]}    record.kinesis.data is base64 JSON
//	QUEUE   {"Records": [record]}    record.body is a JSON string
//
// Encode produces the same shapes and is used by tests and ingress clients.
package event
