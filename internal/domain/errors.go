package domain

import "fmt"

// APIError represents a standardized API error with HTTP status code
type APIError struct {
	Type   string            `json:"type"`
	Title  string            `json:"title"`
	Status int               `json:"status"`
	Detail string            `json:"detail,omitempty"`
	Errors map[string]string `json:"errors,omitempty"`
}

// Error implements the error interface
func (e *APIError) Error() string {
	if e.Detail != "" {
		return e.Detail
	}
	return e.Title
}

// ValidationMessages provides human-readable validation error messages
// These map validator tags to user-friendly messages
var ValidationMessages = map[string]string{
	"required": "This field is required",
	"email":    "Must be a valid email address",
	"max":      "Exceeds maximum length",
	"min":      "Below minimum length",
	"gte":      "Must be greater than or equal to minimum value",
	"lte":      "Must be less than or equal to maximum value",
	"oneof":    "Must be one of the allowed values",
	"datetime": "Must be a date in the format YYYY-MM-DD",
	"hexcolor": "Must be a hex color such as #1A4314",
	"url":      "Must be a valid URL",
}

// GetValidationMessage returns a human-readable message for a validation tag
func GetValidationMessage(tag string) string {
	if msg, ok := ValidationMessages[tag]; ok {
		return msg
	}
	return "Validation failed: " + tag
}

// Common error types for RFC 7807 Problem Details
const (
	ErrorTypeValidation   = "validation_error"
	ErrorTypeNotFound     = "not_found"
	ErrorTypeBadRequest   = "bad_request"
	ErrorTypeConflict     = "conflict"
	ErrorTypeUnauthorized = "unauthorized"
	ErrorTypeForbidden    = "forbidden"
	ErrorTypeUnavailable  = "unavailable"
	ErrorTypeInternal     = "internal_error"
)

// ErrorCategory groups failures by how they are presented to the user
type ErrorCategory string

const (
	CategoryConnectivity  ErrorCategory = "connectivity"
	CategoryAuthorization ErrorCategory = "authorization"
	CategoryInvalidInput  ErrorCategory = "invalid_input"
	CategoryNotFound      ErrorCategory = "not_found"
	CategoryConflict      ErrorCategory = "conflict"
	CategoryGeneric       ErrorCategory = "generic"
)

// UserMessage returns the Norwegian message shown for a failed operation.
// operation is an infinitive phrase such as "hente tilbud".
func UserMessage(category ErrorCategory, operation string) string {
	switch category {
	case CategoryConnectivity:
		return "Nettverksfeil: Sjekk internettforbindelsen."
	case CategoryAuthorization:
		return fmt.Sprintf("Ingen tilgang: Du har ikke tilgang til å %s.", operation)
	case CategoryInvalidInput:
		return "Ugyldig input: Sjekk data som sendes inn."
	case CategoryNotFound:
		return fmt.Sprintf("Fant ikke data: Kunne ikke %s.", operation)
	case CategoryConflict:
		return fmt.Sprintf("Konflikt: Kunne ikke %s.", operation)
	default:
		return fmt.Sprintf("Kunne ikke %s.", operation)
	}
}
