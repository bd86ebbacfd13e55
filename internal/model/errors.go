package model

import "fmt"

// ValidationError describes one malformed input item. Validation errors
// are collected per item and reported alongside partial results; only
// structural corruption (a missing project id, an unknown version)
// aborts an operation outright.
type ValidationError struct {
	// Ref identifies the offending record: a raw line id, a pay item
	// number for group-level errors, or a field name.
	Ref     string `json:"ref,omitempty"`
	Message string `json:"message"`
}

func (e ValidationError) Error() string {
	if e.Ref == "" {
		return "validation: " + e.Message
	}
	return fmt.Sprintf("validation: %s: %s", e.Ref, e.Message)
}

// Validationf builds a ValidationError with a formatted message.
func Validationf(ref, format string, args ...any) ValidationError {
	return ValidationError{Ref: ref, Message: fmt.Sprintf(format, args...)}
}
