package domain

import (
	"errors"
	"strings"
)

var (
	ErrInvalidOrganization    = errors.New("invalid_organization")
	ErrInvalidID              = errors.New("invalid_id")
	ErrNotFound               = errors.New("not_found")
	ErrIllegalStateTransition = errors.New("illegal_state_transition")
	ErrOccurrenceLimitReached = errors.New("occurrence_limit_reached")
	ErrNoNextGenerationDate   = errors.New("no_next_generation_date")
	ErrValidation             = errors.New("validation_failed")
)

// FieldError describes one rejected input field.
type FieldError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ValidationErrors is returned by create and update when the request is
// rejected. Nothing is persisted when it is returned.
type ValidationErrors struct {
	Errors []FieldError `json:"errors"`
}

func (e *ValidationErrors) Error() string {
	parts := make([]string, 0, len(e.Errors))
	for _, fe := range e.Errors {
		parts = append(parts, fe.Field+" "+fe.Message)
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

func (e *ValidationErrors) Is(target error) bool {
	return target == ErrValidation
}

// NewFieldError reports a single rejected field.
func NewFieldError(field, code, message string) error {
	return &ValidationErrors{Errors: []FieldError{{Field: field, Code: code, Message: message}}}
}

func (e *ValidationErrors) add(field, code, message string) {
	e.Errors = append(e.Errors, FieldError{Field: field, Code: code, Message: message})
}

func (e *ValidationErrors) orNil() error {
	if e == nil || len(e.Errors) == 0 {
		return nil
	}
	return e
}
