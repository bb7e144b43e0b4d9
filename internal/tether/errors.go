package tether

import "fmt"

// FailureKind identifies which terminal failure ended an Execute call.
// Everything transient is absorbed inside the controller; only these
// three kinds ever reach the caller.
type FailureKind string

const (
	FailureAuth      FailureKind = "auth"
	FailureCancelled FailureKind = "cancelled"
	FailureExhausted FailureKind = "exhausted"
)

// FatalError is the only error shape Execute returns.
type FatalError struct {
	Kind FailureKind
	Err  error
}

func (e *FatalError) Error() string {
	return fmt.Sprintf("tether: %s: %v", e.Kind, e.Err)
}

func (e *FatalError) Unwrap() error {
	return e.Err
}

func fatal(kind FailureKind, err error) *FatalError {
	return &FatalError{Kind: kind, Err: err}
}
