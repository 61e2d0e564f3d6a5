// Package core holds the error kinds shared by every pipeline stage.
package core

import (
	"errors"
	"fmt"
)

// ErrInvalidInput is the sentinel wrapped by every invalid-input failure.
// Test with errors.Is.
var ErrInvalidInput = errors.New("invalid input")

// InputError describes an invalid-input failure detected by a stage.
//
// It unwraps to ErrInvalidInput.
type InputError struct {
	Stage  string
	Detail string
}

func (e *InputError) Error() string {
	return fmt.Sprintf("%s: %s: %s", e.Stage, ErrInvalidInput, e.Detail)
}

func (e *InputError) Unwrap() error { return ErrInvalidInput }

// Invalid builds an InputError for stage with a formatted detail message.
func Invalid(stage, format string, args ...any) error {
	return &InputError{Stage: stage, Detail: fmt.Sprintf(format, args...)}
}
