package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/timnaher/ds8r/internal/command"
	"github.com/timnaher/ds8r/internal/stimulator"
)

// APIError represents an API-layer error with HTTP status code.
type APIError struct {
	Code       string
	Message    string
	Details    interface{}
	StatusCode int
}

// API error codes for transport and lookup conditions
var (
	ErrBadRequest = errors.New("BAD_REQUEST")
	ErrNotFound   = errors.New("NOT_FOUND")
)

// NewAPIError creates a new API error.
func NewAPIError(code string, message string, statusCode int, details interface{}) *APIError {
	return &APIError{
		Code:       code,
		Message:    message,
		Details:    details,
		StatusCode: statusCode,
	}
}

// Error implements the error interface for APIError.
func (e *APIError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// ToAPIError converts an error to an HTTP status code and JSON body.
func ToAPIError(err error) (int, []byte) {
	if err == nil {
		return http.StatusOK, nil
	}

	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode, marshalErrorResponse(apiErr.Code, apiErr.Message, apiErr.Details)
	}

	// Safety limit before range: it wraps ErrInvalidRange.
	if errors.Is(err, command.ErrSafetyLimit) {
		return http.StatusBadRequest, marshalErrorResponse("SAFETY_LIMIT", err.Error(), nil)
	}

	if fields := stimulator.FieldErrors(err); fields != nil {
		return http.StatusBadRequest, marshalErrorResponse("INVALID_RANGE", err.Error(), map[string]interface{}{"fields": fields})
	}

	var vendorErr *stimulator.VendorError
	if errors.As(err, &vendorErr) {
		code, status := mapStimulatorError(vendorErr.Code)
		var details interface{}
		if vendorErr.Details != nil {
			details = map[string]interface{}{"vendor": vendorErr.Details}
		}
		return status, marshalErrorResponse(code, getErrorMessage(vendorErr.Code, vendorErr.Original), details)
	}

	switch {
	case errors.Is(err, stimulator.ErrInvalidRange),
		errors.Is(err, stimulator.ErrBusy),
		errors.Is(err, stimulator.ErrUnavailable),
		errors.Is(err, stimulator.ErrInternal):
		code, status := mapStimulatorError(err)
		return status, marshalErrorResponse(code, getErrorMessage(err, err), nil)
	case errors.Is(err, ErrBadRequest):
		return http.StatusBadRequest, marshalErrorResponse("BAD_REQUEST", err.Error(), nil)
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound, marshalErrorResponse("NOT_FOUND", "Resource not found", nil)
	}

	return http.StatusInternalServerError, marshalErrorResponse("INTERNAL", "Internal server error", map[string]interface{}{
		"original": err.Error(),
	})
}

// mapStimulatorError maps normalized error codes to API error codes and HTTP status codes.
func mapStimulatorError(code error) (string, int) {
	switch {
	case errors.Is(code, stimulator.ErrInvalidRange):
		return "INVALID_RANGE", http.StatusBadRequest
	case errors.Is(code, stimulator.ErrBusy):
		return "BUSY", http.StatusServiceUnavailable
	case errors.Is(code, stimulator.ErrUnavailable):
		return "UNAVAILABLE", http.StatusServiceUnavailable
	default:
		return "INTERNAL", http.StatusInternalServerError
	}
}

func getErrorMessage(code error, original error) string {
	switch {
	case errors.Is(code, stimulator.ErrInvalidRange):
		return "Parameter value is outside the allowed range"
	case errors.Is(code, stimulator.ErrBusy):
		return "Device is busy, please retry with backoff"
	case errors.Is(code, stimulator.ErrUnavailable):
		return "Device is unavailable"
	case errors.Is(code, stimulator.ErrInternal):
		return "Internal device error"
	default:
		if original != nil {
			return original.Error()
		}
		return "Unknown error"
	}
}

// marshalErrorResponse creates a JSON error response with correlation ID.
func marshalErrorResponse(code, message string, details interface{}) []byte {
	body, err := json.Marshal(ErrorResponse(code, message, details))
	if err != nil {
		body, _ = json.Marshal(ErrorResponse("INTERNAL", "Failed to marshal error response", nil))
	}
	return body
}
