package capture

import (
	"errors"
	"fmt"
)

// ErrInvalidTransition is returned when a Session operation is called in a
// state that does not allow it. The session state is left unchanged.
var ErrInvalidTransition = errors.New("capture: invalid session state transition")

// Direction identifies which side of the exchange a body belongs to.
type Direction string

const (
	DirectionRequest  Direction = "request"
	DirectionResponse Direction = "response"
)

// TransformError reports a transformer that failed, panicked, or returned a
// value that cannot be encoded as JSON.
type TransformError struct {
	Direction Direction // Body the transformer was applied to
	Panicked  bool      // True if the transformer panicked
	Cause     error     // Underlying error
}

// Error implements the error interface.
func (e *TransformError) Error() string {
	verb := "failed"
	if e.Panicked {
		verb = "panicked"
	}
	if e.Direction == "" {
		return fmt.Sprintf("transformer %s: %v", verb, e.Cause)
	}
	return fmt.Sprintf("%s transformer %s: %v", e.Direction, verb, e.Cause)
}

// Unwrap returns the underlying cause error.
func (e *TransformError) Unwrap() error {
	return e.Cause
}

// NewTransformError creates a new TransformError.
func NewTransformError(direction Direction, panicked bool, cause error) *TransformError {
	return &TransformError{
		Direction: direction,
		Panicked:  panicked,
		Cause:     cause,
	}
}
