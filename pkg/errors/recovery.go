package errors

import (
	"fmt"
	"runtime/debug"
)

// PanicError is an error built from a recovered panic. The trainer relies on
// it to skip a candidate model whose Fit panicked without aborting the run.
type PanicError struct {
	// PanicValue is the value passed to panic().
	PanicValue interface{}

	// StackTrace is the goroutine stack at recovery time.
	StackTrace string

	// Operation names the call that was being protected.
	Operation string

	// Cause is the error the function had already set before panicking.
	Cause error
}

func (e *PanicError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("cropyield: panic in %s: %v (original error: %v)", e.Operation, e.PanicValue, e.Cause)
	}
	return fmt.Sprintf("cropyield: panic in %s: %v", e.Operation, e.PanicValue)
}

// Unwrap returns the earlier error, or the panic value when it was itself
// an error.
func (e *PanicError) Unwrap() error {
	if e.Cause != nil {
		return e.Cause
	}
	if err, ok := e.PanicValue.(error); ok {
		return err
	}
	return nil
}

// String includes the captured stack.
func (e *PanicError) String() string {
	return fmt.Sprintf("panic in %s: %v\nStack trace:\n%s",
		e.Operation, e.PanicValue, e.StackTrace)
}

// NewPanicError captures the current stack for a recovered panic value.
func NewPanicError(operation string, panicValue interface{}) *PanicError {
	return &PanicError{
		PanicValue: panicValue,
		StackTrace: string(debug.Stack()),
		Operation:  operation,
	}
}

// Recover converts a panic into an error. It must be deferred directly:
//
//	func (m *Model) Fit(X, y mat.Matrix) (err error) {
//	    defer errors.Recover(&err, "Model.Fit")
//	    ...
//	}
//
// An error already stored in *err is kept as the cause of the panic error.
func Recover(err *error, operation string) {
	if r := recover(); r != nil {
		panicErr := NewPanicError(operation, r)
		panicErr.Cause = *err
		*err = panicErr
	}
}

// SafeExecute runs fn and returns its error, or a *PanicError if it panicked.
func SafeExecute(operation string, fn func() error) (err error) {
	defer Recover(&err, operation)
	return fn()
}
