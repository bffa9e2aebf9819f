// Package failure classifies the terminal errors raised while driving the
// add-on lifecycle. None of them is retried beyond the poll loop that
// produced it; a test case that hits one fails and its siblings keep running.
package failure

import (
	"errors"
	"fmt"
)

// Kind names one class of terminal failure.
type Kind string

const (
	ProvisioningTimeout Kind = "ProvisioningTimeout"
	TeardownTimeout     Kind = "TeardownTimeout"
	UnexpectedState     Kind = "UnexpectedState"
	ConvergenceTimeout  Kind = "ConvergenceTimeout"
	PreconditionMissing Kind = "PreconditionMissing"
)

var (
	// ErrProvisioningTimeout is returned when a creation was never acknowledged.
	ErrProvisioningTimeout = errors.New("creation was never acknowledged")
	// ErrTeardownTimeout is returned when a deletion was never confirmed.
	ErrTeardownTimeout = errors.New("deletion was never confirmed")
	// ErrUnexpectedState is returned when a state query answered neither exists nor not-found.
	ErrUnexpectedState = errors.New("unexpected state")
	// ErrConvergenceTimeout is returned when a polled predicate never held within its deadline.
	ErrConvergenceTimeout = errors.New("condition did not converge")
	// ErrPreconditionMissing is returned when an artifact of a prior step is absent.
	ErrPreconditionMissing = errors.New("precondition missing")
)

var sentinels = map[Kind]error{
	ProvisioningTimeout: ErrProvisioningTimeout,
	TeardownTimeout:     ErrTeardownTimeout,
	UnexpectedState:     ErrUnexpectedState,
	ConvergenceTimeout:  ErrConvergenceTimeout,
	PreconditionMissing: ErrPreconditionMissing,
}

// Error carries the subject of a failure and the last value observed for it.
type Error struct {
	Kind Kind
	// Subject names the resource or predicate, e.g. "managedclusterset/alpha".
	Subject string
	// LastObserved is the last value seen before giving up, if any.
	LastObserved any
	Err          error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Subject, sentinels[e.Kind])
	if e.LastObserved != nil {
		msg += fmt.Sprintf(" (last observed: %v)", e.LastObserved)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap exposes both the sentinel of the kind and the underlying cause.
func (e *Error) Unwrap() []error {
	errs := []error{sentinels[e.Kind]}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}

// New returns an *Error of the given kind.
func New(kind Kind, subject string, lastObserved any, cause error) *Error {
	return &Error{Kind: kind, Subject: subject, LastObserved: lastObserved, Err: cause}
}

// KindOf reports the kind of a failure found in err's chain.
func KindOf(err error) (Kind, bool) {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind, true
	}
	return "", false
}
