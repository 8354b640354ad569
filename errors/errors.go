package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
)

// AppError is the unified error type of the dispatch engine.
type AppError struct {
	// Code is a machine-readable error code.
	Code ErrorCode `json:"code"`
	// Message is a human-readable error message.
	Message string `json:"message"`
	// Severity decides between dropping the record and aborting the invocation.
	Severity Severity `json:"severity"`
	// HTTPStatus is the status the ingress answers with when this error
	// escapes an invocation.
	HTTPStatus int `json:"-"`
	// Details contains additional context for the error.
	Details map[string]any `json:"details,omitempty"`
	// Cause is the underlying error that caused this error.
	Cause error `json:"-"`
}

// Error returns the string representation of the error.
func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (cause: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause of the error.
func (e *AppError) Unwrap() error { return e.Cause }

// Catastrophic reports whether the error aborts the invocation.
func (e *AppError) Catastrophic() bool { return e.Severity == SeverityCatastrophic }

// WithCause sets the underlying cause of the error and returns the receiver.
func (e *AppError) WithCause(cause error) *AppError {
	e.Cause = cause
	return e
}

// WithDetails merges the provided details into the error and returns the receiver.
func (e *AppError) WithDetails(details map[string]any) *AppError {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	for k, v := range details {
		e.Details[k] = v
	}
	return e
}

// WithDetail sets a single detail key-value pair and returns the receiver.
func (e *AppError) WithDetail(key string, value any) *AppError {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

// New creates a new AppError; the severity is derived from the code.
func New(code ErrorCode, message string, httpStatus int) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: httpStatus,
		Severity:   SeverityOf(code),
	}
}

// --- Record-scoped constructors ---

// InvalidPayload creates an error for a record that cannot be decoded or
// does not carry the expected envelope.
func InvalidPayload(reason string) *AppError {
	return &AppError{
		Code: ErrCodeInvalidPayload, Message: fmt.Sprintf("Invalid payload: %s", reason),
		HTTPStatus: http.StatusBadRequest, Severity: SeverityRecoverable,
	}
}

// MissingParam creates an error for a required parameter absent from kwargs.
func MissingParam(name string) *AppError {
	return &AppError{
		Code: ErrCodeMissingParam, Message: fmt.Sprintf("Missing required parameter '%s'", name),
		HTTPStatus: http.StatusBadRequest, Severity: SeverityRecoverable,
		Details: map[string]any{"param": name},
	}
}

// TypeMismatch creates an error for a parameter whose runtime value does
// not satisfy its declared type.
func TypeMismatch(name, expected, actual string) *AppError {
	return &AppError{
		Code: ErrCodeTypeMismatch, Message: fmt.Sprintf("Type of %s should be %s not %s", name, expected, actual),
		HTTPStatus: http.StatusBadRequest, Severity: SeverityRecoverable,
		Details: map[string]any{"param": name, "expected": expected, "actual": actual},
	}
}

// PathNotFound creates an error for a path identifier outside the enumeration.
func PathNotFound(name string) *AppError {
	return &AppError{
		Code: ErrCodePathNotFound, Message: fmt.Sprintf("Payload specified an invalid path '%s'", name),
		HTTPStatus: http.StatusNotFound, Severity: SeverityRecoverable,
		Details: map[string]any{"path": name},
	}
}

// Continue is returned by handlers that want the current record dropped
// while the rest of the batch keeps going.
func Continue(format string, args ...any) *AppError {
	return &AppError{
		Code: ErrCodeContinue, Message: fmt.Sprintf(format, args...),
		HTTPStatus: http.StatusUnprocessableEntity, Severity: SeverityRecoverable,
	}
}

// DepthExceeded creates an error for dispatch recursing past maxDepth.
func DepthExceeded(path string, maxDepth int) *AppError {
	return &AppError{
		Code: ErrCodeDepthExceeded, Message: fmt.Sprintf("Dispatch of %s exceeded the maximum depth of %d", path, maxDepth),
		HTTPStatus: http.StatusUnprocessableEntity, Severity: SeverityRecoverable,
		Details: map[string]any{"path": path, "max_depth": maxDepth},
	}
}

// HandlerFailed reports handler-contract violations that were logged and
// skipped during dispatch.
func HandlerFailed(path string, causes ...error) *AppError {
	return &AppError{
		Code: ErrCodeHandlerFailed, Message: fmt.Sprintf("%d handler(s) on %s failed outside the error contract", len(causes), path),
		HTTPStatus: http.StatusInternalServerError, Severity: SeverityRecoverable,
		Details: map[string]any{"path": path}, Cause: stderrors.Join(causes...),
	}
}

// --- Invocation-scoped constructors ---

// Abort is returned by handlers that want the whole invocation to fail.
func Abort(format string, args ...any) *AppError {
	return &AppError{
		Code: ErrCodeAbort, Message: fmt.Sprintf(format, args...),
		HTTPStatus: http.StatusInternalServerError, Severity: SeverityCatastrophic,
	}
}

// Configuration creates an error for a broken pipeline definition.
func Configuration(format string, args ...any) *AppError {
	return &AppError{
		Code: ErrCodeConfiguration, Message: fmt.Sprintf(format, args...),
		HTTPStatus: http.StatusInternalServerError, Severity: SeverityCatastrophic,
	}
}

// SignatureConflict creates an error for two handlers declaring the same
// parameter with a different type or default.
func SignatureConflict(param, first, second string) *AppError {
	return &AppError{
		Code: ErrCodeSignatureConflict, Message: fmt.Sprintf("Incompatible handlers: %s represented as both %s and %s", param, first, second),
		HTTPStatus: http.StatusInternalServerError, Severity: SeverityCatastrophic,
		Details: map[string]any{"param": param},
	}
}

// ReasonDeliveryFailed marks the aborts raised for lost outbound records.
const ReasonDeliveryFailed = "DELIVERY_FAILED"

// DeliveryFailed creates an abort for an outbound record that could not be
// handed to its queue.
func DeliveryFailed(queue string, cause error) *AppError {
	return &AppError{
		Code: ErrCodeAbort, Message: fmt.Sprintf("Failed to send message to %s", queue),
		HTTPStatus: http.StatusBadGateway, Severity: SeverityCatastrophic,
		Details: map[string]any{"queue": queue, "reason": ReasonDeliveryFailed}, Cause: cause,
	}
}

// IsDeliveryFailure reports whether err's chain holds a DeliveryFailed
// error, however deeply it was wrapped.
func IsDeliveryFailure(err error) bool {
	for err != nil {
		if appErr, ok := err.(*AppError); ok && appErr.Details["reason"] == ReasonDeliveryFailed {
			return true
		}
		err = stderrors.Unwrap(err)
	}
	return false
}

// --- Classification ---

// CodeOf returns the code of the outermost AppError in err's chain, or ""
// when there is none.
func CodeOf(err error) ErrorCode {
	if appErr, ok := AsAppError(err); ok {
		return appErr.Code
	}
	return ""
}

// Is reports whether err's chain holds an AppError with the given code.
func Is(err error, code ErrorCode) bool {
	return CodeOf(err) == code
}

// IsCatastrophic reports whether err aborts the invocation.
func IsCatastrophic(err error) bool {
	appErr, ok := AsAppError(err)
	return ok && appErr.Catastrophic()
}

// IsRecoverable reports whether err is one of the engine's record-scoped
// error kinds. Errors outside the taxonomy are neither recoverable nor
// catastrophic.
func IsRecoverable(err error) bool {
	appErr, ok := AsAppError(err)
	return ok && !appErr.Catastrophic()
}
