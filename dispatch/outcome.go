package dispatch

import (
	"github.com/mintel/lpipe/errors"
)

// Outcome classifies how a handler call, or a whole dispatch, ended.
type Outcome int

const (
	// OutcomeOK means the call returned a value or nothing.
	OutcomeOK Outcome = iota
	// OutcomeEmitted means the call emitted payloads that were dispatched.
	OutcomeEmitted
	// OutcomeRecoverable drops the current record.
	OutcomeRecoverable
	// OutcomeCatastrophic aborts the invocation.
	OutcomeCatastrophic
	// OutcomeSwallowed is an error outside the taxonomy: logged, observed
	// and skipped.
	OutcomeSwallowed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeOK:
		return "ok"
	case OutcomeEmitted:
		return "emitted"
	case OutcomeRecoverable:
		return "recoverable"
	case OutcomeCatastrophic:
		return "catastrophic"
	case OutcomeSwallowed:
		return "swallowed"
	}
	return "unknown"
}

// Classify maps an error to its outcome.
func Classify(err error) Outcome {
	switch {
	case err == nil:
		return OutcomeOK
	case errors.IsCatastrophic(err):
		return OutcomeCatastrophic
	case errors.IsRecoverable(err):
		return OutcomeRecoverable
	default:
		return OutcomeSwallowed
	}
}
