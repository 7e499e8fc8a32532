package services

import (
	"fmt"
	"sort"
	"strings"

	"example.com/backstage/services/charity/internal/repositories"
	"example.com/backstage/services/charity/internal/validation"

	"github.com/pkg/errors"
)

// Domain errors surfaced to the API layer
var (
	ErrNotFound           = errors.New("not found")
	ErrForbidden          = errors.New("forbidden")
	ErrDuplicateResponse  = errors.New("user already responded to this item")
	ErrCapacityExceeded   = errors.New("capacity exceeded")
	ErrInvalidToken       = errors.New("invalid or expired token")
	ErrNoMatchingResponse = errors.New("no pending response for this user")
	ErrPaymentFailed      = errors.New("payment failed")
	ErrStateConflict      = errors.New("response is not in a state that allows this")
)

// ValidationError lists field-level failures keyed by json path
type ValidationError struct {
	Fields map[string][]string
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s %s", k, strings.Join(e.Fields[k], ", ")))
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// fieldError builds a ValidationError for a single field
func fieldError(field, message string) *ValidationError {
	return &ValidationError{Fields: map[string][]string{field: {message}}}
}

// validate runs struct tag validation over a command
func validate(in interface{}) error {
	if fields := validation.Fields(in); fields != nil {
		return &ValidationError{Fields: fields}
	}
	return nil
}

// validateVar checks a single value against a validator tag
func validateVar(value interface{}, tag, field string) error {
	if err := validation.Var(value, tag); err != nil {
		return fieldError(field, "is invalid")
	}
	return nil
}

// domainError maps repository sentinels onto the domain taxonomy and wraps
// everything else.
func domainError(err error, msg string) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, repositories.ErrNotFound):
		return ErrNotFound
	case errors.Is(err, repositories.ErrDuplicateKey):
		return ErrDuplicateResponse
	case errors.Is(err, repositories.ErrCapacityExceeded):
		return ErrCapacityExceeded
	case errors.Is(err, repositories.ErrTokenInvalid):
		return ErrInvalidToken
	case errors.Is(err, repositories.ErrStateConflict):
		return ErrStateConflict
	default:
		return errors.Wrap(err, msg)
	}
}
