package errors

import "fmt"

// ErrValidation is returned when user input is rejected before any external call.
type ErrValidation struct {
	Message string
	Fields  map[string]string
}

func (e *ErrValidation) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return "validation failed"
}

// NewValidation builds an ErrValidation for a single field.
func NewValidation(field, message string) *ErrValidation {
	return &ErrValidation{
		Message: fmt.Sprintf("%s: %s", field, message),
		Fields:  map[string]string{field: message},
	}
}
