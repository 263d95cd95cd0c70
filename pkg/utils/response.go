package utils

import (
	"time"

	pkgError "github.com/AzielCF/az-users/pkg/error"
)

// ResponseData is the success envelope returned by every JSON endpoint.
type ResponseData struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Message string `json:"message,omitempty"`
}

// ErrorBody is the error part of ErrorResponse.
type ErrorBody struct {
	Message    string                `json:"message"`
	StatusCode int                   `json:"statusCode"`
	Code       string                `json:"code"`
	Timestamp  string                `json:"timestamp"`
	Path       string                `json:"path"`
	Details    []pkgError.FieldError `json:"details,omitempty"`
}

// ErrorResponse is the failure envelope returned by every JSON endpoint.
type ErrorResponse struct {
	Success bool      `json:"success"`
	Error   ErrorBody `json:"error"`
}

// NewErrorResponse builds the failure envelope for the given request path.
func NewErrorResponse(status int, code, message, path string) ErrorResponse {
	return ErrorResponse{
		Success: false,
		Error: ErrorBody{
			Message:    message,
			StatusCode: status,
			Code:       code,
			Timestamp:  time.Now().UTC().Format(time.RFC3339Nano),
			Path:       path,
		},
	}
}
