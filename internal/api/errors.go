package api

import (
	"net/http"

	"example.com/backstage/services/charity/internal/services"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// ErrorResponse defines the structure of an error response
type ErrorResponse struct {
	Message string              `json:"message"`
	Code    string              `json:"code,omitempty"`
	Fields  map[string][]string `json:"fields,omitempty"`
}

// Error represents an API error
type Error struct {
	Message    string
	StatusCode int
	Code       string
}

// Error implements the error interface
func (e *Error) Error() string {
	return e.Message
}

// Common API errors
var (
	ErrInvalidRequest     = &Error{Message: "Invalid request", StatusCode: http.StatusBadRequest, Code: "INVALID_REQUEST"}
	ErrNotFound           = &Error{Message: "Resource not found", StatusCode: http.StatusNotFound, Code: "NOT_FOUND"}
	ErrInternalServer     = &Error{Message: "Internal server error", StatusCode: http.StatusInternalServerError, Code: "INTERNAL_ERROR"}
	ErrUnauthorized       = &Error{Message: "Unauthorized", StatusCode: http.StatusUnauthorized, Code: "UNAUTHORIZED"}
	ErrForbidden          = &Error{Message: "Forbidden", StatusCode: http.StatusForbidden, Code: "FORBIDDEN"}
	ErrValidation         = &Error{Message: "Validation error", StatusCode: http.StatusBadRequest, Code: "VALIDATION_ERROR"}
	ErrDuplicateResponse  = &Error{Message: "You already responded to this item", StatusCode: http.StatusConflict, Code: "DUPLICATE_RESPONSE"}
	ErrCapacityExceeded   = &Error{Message: "Not enough capacity left", StatusCode: http.StatusUnprocessableEntity, Code: "CAPACITY_EXCEEDED"}
	ErrInvalidToken       = &Error{Message: "Invalid or expired token", StatusCode: http.StatusBadRequest, Code: "INVALID_TOKEN"}
	ErrNoMatchingResponse = &Error{Message: "No pending response to confirm", StatusCode: http.StatusBadRequest, Code: "NO_MATCHING_RESPONSE"}
	ErrPaymentFailed      = &Error{Message: "Payment failed", StatusCode: http.StatusBadGateway, Code: "PAYMENT_FAILED"}
	ErrStateConflict      = &Error{Message: "Resource is not in a state that allows this", StatusCode: http.StatusConflict, Code: "STATE_CONFLICT"}
	ErrTooManyRequests    = &Error{Message: "Too many requests", StatusCode: http.StatusTooManyRequests, Code: "TOO_MANY_REQUESTS"}
	ErrServiceUnavailable = &Error{Message: "Service unavailable", StatusCode: http.StatusServiceUnavailable, Code: "SERVICE_UNAVAILABLE"}
)

var domainErrors = []struct {
	err    error
	apiErr *Error
}{
	{services.ErrNotFound, ErrNotFound},
	{services.ErrForbidden, ErrForbidden},
	{services.ErrDuplicateResponse, ErrDuplicateResponse},
	{services.ErrCapacityExceeded, ErrCapacityExceeded},
	{services.ErrInvalidToken, ErrInvalidToken},
	{services.ErrNoMatchingResponse, ErrNoMatchingResponse},
	{services.ErrPaymentFailed, ErrPaymentFailed},
	{services.ErrStateConflict, ErrStateConflict},
}

// WriteError writes an error response and aborts the request
func WriteError(c *gin.Context, err error) {
	var validationErr *services.ValidationError
	if errors.As(err, &validationErr) {
		c.AbortWithStatusJSON(ErrValidation.StatusCode, ErrorResponse{
			Message: ErrValidation.Message,
			Code:    ErrValidation.Code,
			Fields:  validationErr.Fields,
		})
		return
	}

	var apiError *Error
	if errors.As(err, &apiError) {
		c.AbortWithStatusJSON(apiError.StatusCode, ErrorResponse{
			Message: apiError.Message,
			Code:    apiError.Code,
		})
		return
	}

	for _, known := range domainErrors {
		if errors.Is(err, known.err) {
			c.AbortWithStatusJSON(known.apiErr.StatusCode, ErrorResponse{
				Message: known.apiErr.Message,
				Code:    known.apiErr.Code,
			})
			return
		}
	}

	// Log unknown errors
	log.Error().Err(err).
		Str("path", c.Request.URL.Path).
		Str("request_id", c.GetString(requestIDKey)).
		Msg("Unhandled error")
	c.AbortWithStatusJSON(http.StatusInternalServerError, ErrorResponse{
		Message: ErrInternalServer.Message,
		Code:    ErrInternalServer.Code,
	})
}

// NewValidationError creates a validation error for a single field
func NewValidationError(field, message string) *services.ValidationError {
	return &services.ValidationError{Fields: map[string][]string{field: {message}}}
}

// bindError turns a body or query decoding failure into a validation error
func bindError(err error) error {
	return NewValidationError("body", "is malformed: "+err.Error())
}
