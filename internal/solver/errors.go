package solver

import (
	"fmt"
	"time"
)

// TimeoutError is returned when an engine does not answer in time. A
// solver-reported "unknown" is not an error; this is for calls that had to
// be abandoned.
type TimeoutError struct {
	Op    string
	After time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s timed out after %s", e.Op, e.After)
}

// UndefinedSymbolError is a name that resolves to nothing in scope
type UndefinedSymbolError struct {
	Name string
}

func (e *UndefinedSymbolError) Error() string {
	return fmt.Sprintf("undefined symbol %q", e.Name)
}

// TypeMismatchError is a term of the wrong sort, e.g. a non-boolean
// condition or comparing incompatible sorts.
type TypeMismatchError struct {
	Context  string
	Expected string
	Got      string
}

func (e *TypeMismatchError) Error() string {
	return fmt.Sprintf("%s: expected %s, got %s", e.Context, e.Expected, e.Got)
}

// ProofFailureError is a generic failure reported by a proof engine
type ProofFailureError struct {
	Message string
}

func (e *ProofFailureError) Error() string {
	return "proof failed: " + e.Message
}

// UnsupportedError is a feature the backend explicitly declines
type UnsupportedError struct {
	Backend string
	Feature string
}

func (e *UnsupportedError) Error() string {
	return fmt.Sprintf("%s does not support %s", e.Backend, e.Feature)
}

// ProtocolError is a malformed or unexpected reply from an engine process
type ProtocolError struct {
	Backend string
	Detail  string
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("%s protocol error: %s", e.Backend, e.Detail)
}
