// internal/wire/errors.go
package wire

import "fmt"

// ProtocolError is a framing or protocol violation.
// It is raised with panic: decoding past it would deliver wrong values
// to control loops.
type ProtocolError struct {
	Op  string
	Err error
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("protocol violation (%s): %v", e.Op, e.Err)
}

func (e *ProtocolError) Unwrap() error { return e.Err }

// Fatal aborts with a ProtocolError.
func Fatal(op string, err error) {
	panic(&ProtocolError{Op: op, Err: err})
}

// Fatalf aborts with a formatted ProtocolError.
func Fatalf(op, format string, args ...any) {
	panic(&ProtocolError{Op: op, Err: fmt.Errorf(format, args...)})
}
