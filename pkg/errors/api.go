package errors

import (
	"context"
	"net/http"
)

// Machine-readable error codes returned to API clients
const (
	CodeValidation          = "validation_error"
	CodeTickerNotFound      = "ticker_not_found"
	CodeUpstreamUnavailable = "upstream_unavailable"
	CodeDeadlineExceeded    = "deadline_exceeded"
	CodeInternal            = "internal_error"
)

// APIError is the error body shared by every endpoint
type APIError struct {
	Code       string                 `json:"error"`
	Message    string                 `json:"message"`
	Details    map[string]interface{} `json:"details,omitempty"`
	Suggestion string                 `json:"suggestion,omitempty"`
	Status     int                    `json:"-"`
	Retryable  bool                   `json:"-"`
}

// Error implements the error interface
func (e *APIError) Error() string {
	return e.Code + ": " + e.Message
}

// ToAPIError classifies err into the public error shape
func ToAPIError(err error) *APIError {
	if err == nil {
		return nil
	}

	var apiErr *APIError
	if As(err, &apiErr) {
		return apiErr
	}

	var verrs ValidationErrors
	if As(err, &verrs) {
		fields := make(map[string]interface{}, len(verrs))
		for field, msg := range verrs.Fields() {
			fields[field] = msg
		}
		return &APIError{
			Code:       CodeValidation,
			Message:    "request failed validation",
			Details:    map[string]interface{}{"fields": fields},
			Suggestion: "fix the listed fields and resend the request",
			Status:     http.StatusBadRequest,
		}
	}

	var verr *ValidationError
	if As(err, &verr) {
		return &APIError{
			Code:    CodeValidation,
			Message: "request failed validation",
			Details: map[string]interface{}{"fields": map[string]interface{}{verr.Field: verr.Message}},
			Status:  http.StatusBadRequest,
		}
	}

	switch {
	case Is(err, ErrTickerNotFound):
		return &APIError{
			Code:       CodeTickerNotFound,
			Message:    err.Error(),
			Suggestion: "add the ticker to the watchlist and wait for the next collection cycle",
			Status:     http.StatusNotFound,
		}
	case Is(err, context.DeadlineExceeded), Is(err, context.Canceled), Is(err, ErrTimeout):
		return &APIError{
			Code:       CodeDeadlineExceeded,
			Message:    "query aborted before completion",
			Suggestion: "narrow the lookback window or the strike set and retry",
			Status:     http.StatusGatewayTimeout,
			Retryable:  true,
		}
	case Is(err, ErrUpstreamUnavailable), Is(err, ErrUnavailable):
		return &APIError{
			Code:       CodeUpstreamUnavailable,
			Message:    "premium record store is unavailable",
			Suggestion: "retry shortly",
			Status:     http.StatusServiceUnavailable,
			Retryable:  true,
		}
	case Is(err, ErrInvalidInput):
		return &APIError{
			Code:    CodeValidation,
			Message: err.Error(),
			Status:  http.StatusBadRequest,
		}
	}

	return &APIError{
		Code:    CodeInternal,
		Message: "internal error",
		Status:  http.StatusInternalServerError,
	}
}
