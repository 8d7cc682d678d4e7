package apierror

import (
	"encoding/json"
	"errors"
	"net/http"
)

// Machine-readable error codes returned by the property store and the scan API.
const (
	CodeBadRequest         = "BAD_REQUEST"
	CodeValidation         = "VALIDATION_ERROR"
	CodeDuplicate          = "DUPLICATE_ERROR"
	CodeNotFound           = "NOT_FOUND"
	CodeDatabase           = "DB_ERROR"
	CodeUnknown            = "UNKNOWN_ERROR"
	CodeUnauthorized       = "UNAUTHORIZED"
	CodeConflict           = "CONFLICT"
	CodeServiceUnavailable = "SERVICE_UNAVAILABLE"
)

// Error represents a structured API error response.
type Error struct {
	StatusCode int          `json:"-"`
	Code       string       `json:"code"`
	Message    string       `json:"message"`
	Suggestion string       `json:"suggestion,omitempty"`
	Details    []FieldError `json:"details,omitempty"`
}

// FieldError represents a validation error for a specific field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	return e.Message
}

// WithDetails adds field-level error details.
func (e *Error) WithDetails(details ...FieldError) *Error {
	e.Details = details
	return e
}

// WithSuggestion attaches a remediation hint shown to the user.
func (e *Error) WithSuggestion(suggestion string) *Error {
	e.Suggestion = suggestion
	return e
}

// ToJSON converts the error to JSON bytes.
func (e *Error) ToJSON() []byte {
	body := map[string]interface{}{
		"code":    e.Code,
		"message": e.Message,
	}
	if e.Suggestion != "" {
		body["suggestion"] = e.Suggestion
	}
	if len(e.Details) > 0 {
		body["details"] = e.Details
	}

	data, _ := json.Marshal(map[string]interface{}{
		"success": false,
		"error":   body,
	})
	return data
}

// As extracts an *Error from err's chain.
func As(err error) (*Error, bool) {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr, true
	}
	return nil, false
}

// CodeOf returns the machine code carried by err, or UNKNOWN_ERROR.
func CodeOf(err error) string {
	if apiErr, ok := As(err); ok {
		return apiErr.Code
	}
	return CodeUnknown
}

// New creates an error with an arbitrary status and code.
func New(statusCode int, code, message string) *Error {
	return &Error{
		StatusCode: statusCode,
		Code:       code,
		Message:    message,
	}
}

// BadRequest creates a 400 Bad Request error.
func BadRequest(message string) *Error {
	return New(http.StatusBadRequest, CodeBadRequest, message)
}

// ValidationError creates a 400 error with validation details.
func ValidationError(message string, details ...FieldError) *Error {
	return &Error{
		StatusCode: http.StatusBadRequest,
		Code:       CodeValidation,
		Message:    message,
		Details:    details,
	}
}

// Duplicate creates a 409 error for a unique-key collision.
func Duplicate(message string) *Error {
	if message == "" {
		message = "Record already exists"
	}
	return New(http.StatusConflict, CodeDuplicate, message)
}

// Unauthorized creates a 401 Unauthorized error.
func Unauthorized(message string) *Error {
	if message == "" {
		message = "Authentication required"
	}
	return New(http.StatusUnauthorized, CodeUnauthorized, message)
}

// NotFound creates a 404 Not Found error.
func NotFound(message string) *Error {
	if message == "" {
		message = "Resource not found"
	}
	return New(http.StatusNotFound, CodeNotFound, message)
}

// Conflict creates a 409 Conflict error.
func Conflict(message string) *Error {
	return New(http.StatusConflict, CodeConflict, message)
}

// Database creates a 500 error for storage failures.
func Database(message string) *Error {
	if message == "" {
		message = "Database operation failed"
	}
	return New(http.StatusInternalServerError, CodeDatabase, message)
}

// Unknown creates a 500 error for unclassified failures.
func Unknown(message string) *Error {
	if message == "" {
		message = "An unexpected error occurred"
	}
	return New(http.StatusInternalServerError, CodeUnknown, message)
}

// ServiceUnavailable creates a 503 Service Unavailable error.
func ServiceUnavailable(message string) *Error {
	if message == "" {
		message = "Service temporarily unavailable"
	}
	return New(http.StatusServiceUnavailable, CodeServiceUnavailable, message)
}
