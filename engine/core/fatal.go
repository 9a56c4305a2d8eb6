package core

import "fmt"

// InvariantError is the panic value raised by Fatal. It wraps one of the
// sentinel errors so callers that recover can match it with errors.Is.
type InvariantError struct {
	Err error
	Msg string
}

func (e *InvariantError) Error() string {
	if e.Msg == "" {
		return e.Err.Error()
	}
	return fmt.Sprintf("%s: %s", e.Err, e.Msg)
}

func (e *InvariantError) Unwrap() error {
	return e.Err
}

// Fatal reports a violated invariant and aborts the calling goroutine.
// Capacity exhaustion, double frees and illegal transitions are contract
// violations and are never handed back to the caller as an error value.
func Fatal(err error, msg string, args ...interface{}) {
	ie := &InvariantError{Err: err, Msg: fmt.Sprintf(msg, args...)}
	LogError("invariant violated: %s", ie.Error())
	panic(ie)
}

// Assert calls Fatal when cond is false.
func Assert(cond bool, err error, msg string, args ...interface{}) {
	if !cond {
		Fatal(err, msg, args...)
	}
}
