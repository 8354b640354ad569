package errors

// ErrorCode represents a machine-readable error code.
type ErrorCode string

// Severity decides how far an error reaches: the current record or the
// whole invocation.
type Severity string

const (
	// SeverityRecoverable drops the current record; the batch continues.
	SeverityRecoverable Severity = "recoverable"
	// SeverityCatastrophic aborts the invocation once the batch is finished.
	SeverityCatastrophic Severity = "catastrophic"
)

// Record-scoped errors (recoverable)
const (
	// ErrCodeInvalidPayload indicates a malformed or undecodable record.
	ErrCodeInvalidPayload ErrorCode = "INVALID_PAYLOAD"
	// ErrCodeMissingParam indicates a required parameter was not supplied.
	ErrCodeMissingParam ErrorCode = "MISSING_PARAM"
	// ErrCodeTypeMismatch indicates a parameter value of the wrong type.
	ErrCodeTypeMismatch ErrorCode = "TYPE_MISMATCH"
	// ErrCodePathNotFound indicates an unknown path identifier.
	ErrCodePathNotFound ErrorCode = "PATH_NOT_FOUND"
	// ErrCodeContinue is the explicit "fail but keep going" signal.
	ErrCodeContinue ErrorCode = "CONTINUE"
	// ErrCodeDepthExceeded indicates dispatch recursed past the configured limit.
	ErrCodeDepthExceeded ErrorCode = "DEPTH_EXCEEDED"
	// ErrCodeHandlerFailed indicates handlers failed outside the error contract.
	ErrCodeHandlerFailed ErrorCode = "HANDLER_FAILED"
)

// Invocation-scoped errors (catastrophic)
const (
	// ErrCodeConfiguration indicates a broken pipeline definition or setup.
	ErrCodeConfiguration ErrorCode = "CONFIGURATION"
	// ErrCodeSignatureConflict indicates handlers grouped in one action
	// declare incompatible parameters.
	ErrCodeSignatureConflict ErrorCode = "SIGNATURE_CONFLICT"
	// ErrCodeAbort is the explicit "fail the whole invocation" signal.
	ErrCodeAbort ErrorCode = "ABORT"
)

var catastrophicCodes = map[ErrorCode]bool{
	ErrCodeConfiguration:     true,
	ErrCodeSignatureConflict: true,
	ErrCodeAbort:             true,
}

// SeverityOf returns the severity attached to an error code.
func SeverityOf(code ErrorCode) Severity {
	if catastrophicCodes[code] {
		return SeverityCatastrophic
	}
	return SeverityRecoverable
}
