package errors

import (
	"fmt"
	"runtime/debug"
)

// RecoverPanic converts a recovered panic value into an internal error
// carrying the stack trace in Details.
func RecoverPanic(r interface{}) error {
	if r == nil {
		return nil
	}

	var err error
	switch v := r.(type) {
	case error:
		err = fmt.Errorf("panic: %w", v)
	case string:
		err = fmt.Errorf("panic: %s", v)
	default:
		err = fmt.Errorf("panic: %v", v)
	}

	return ErrInternal.
		WithCause(err).
		WithDetail("panic", true).
		WithDetail("stack_trace", string(debug.Stack())).
		AsFatal()
}

// StackTrace returns the stack captured by RecoverPanic, if any.
func StackTrace(err error) string {
	appErr, ok := err.(*Error)
	if !ok || appErr.Details == nil {
		return ""
	}
	s, _ := appErr.Details["stack_trace"].(string)
	return s
}
