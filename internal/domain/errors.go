package domain

import "errors"

// ValidationError signals that a draft or patch failed a domain rule. It is
// raised before any store call, so a failed validation never leaves partial
// state behind.
type ValidationError struct {
	Message string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return e.Message
}

// NewValidationError wraps a rule message into a ValidationError.
func NewValidationError(message string) error {
	return &ValidationError{Message: message}
}

// IsValidationError reports whether err is a ValidationError.
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// ErrAuthRequired is returned by mutating operations invoked without an
// authenticated actor. No store call is attempted.
var ErrAuthRequired = errors.New("authentification requise")

// ErrInvalidDate is returned when a planning date is not in YYYY-MM-DD form.
var ErrInvalidDate = errors.New("format de date invalide (YYYY-MM-DD)")
