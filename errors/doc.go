// Package errors provides the failure taxonomy of the dispatch engine.
// Every error carries a machine-readable code and a severity: recoverable
// errors drop the current record, catastrophic errors abort the invocation
// after compensating cleanup.
package errors
