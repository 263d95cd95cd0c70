package error

import (
	"errors"
	"net/http"
	"sort"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// FieldError describes a single invalid input field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError carries the message shown to the client and, when the
// failure came from ozzo-validation, the per-field details.
type ValidationError struct {
	Message string
	Details []FieldError
}

func (err ValidationError) Error() string {
	return err.Message
}

func (err ValidationError) ErrCode() string {
	return "VALIDATION_ERROR"
}

func (err ValidationError) StatusCode() int {
	return http.StatusBadRequest
}

// NewValidationError converts an ozzo-validation result into a ValidationError.
// Field details are sorted by field name so responses are stable.
func NewValidationError(err error) ValidationError {
	var fieldErrs validation.Errors
	if !errors.As(err, &fieldErrs) {
		return ValidationError{Message: err.Error()}
	}

	details := make([]FieldError, 0, len(fieldErrs))
	for field, fe := range fieldErrs {
		details = append(details, FieldError{Field: field, Message: fe.Error()})
	}
	sort.Slice(details, func(i, j int) bool { return details[i].Field < details[j].Field })

	return ValidationError{Message: "Validation failed", Details: details}
}
