package rest

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"

	pkgError "github.com/AzielCF/az-users/pkg/error"
)

// CreateUserRequest representa la petición para registrar un usuario
type CreateUserRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Validate checks the request shape. Strength rules of the password belong to
// the domain and are enforced there.
func (r CreateUserRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Email,
			validation.Required.Error("Email is required"),
			validation.Length(1, 255).Error("Email must not exceed 255 characters"),
			is.EmailFormat.Error("Email must be a valid email address"),
		),
		validation.Field(&r.Password,
			validation.Required.Error("Password is required"),
			validation.RuneLength(8, 0).Error("Password must be at least 8 characters long"),
		),
	)
}

// decodeStrict parses body into dst rejecting unknown fields and trailing data.
func decodeStrict(body []byte, dst any) error {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return pkgError.ValidationError{Message: fmt.Sprintf("Invalid request body: %v", err)}
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return pkgError.ValidationError{Message: "Invalid request body: unexpected data after JSON object"}
	}
	return nil
}
