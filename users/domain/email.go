package domain

import (
	"regexp"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	pkgError "github.com/AzielCF/az-users/pkg/error"
)

var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// Email is a normalized (trimmed, lowercase) email address.
type Email struct {
	value string
}

// NewEmail valida y normaliza una dirección de email.
func NewEmail(raw string) (Email, error) {
	trimmed := strings.TrimSpace(raw)
	err := validation.Validate(trimmed,
		validation.Required.Error("Email cannot be empty"),
		validation.Match(emailPattern).Error("Invalid email format"),
	)
	if err != nil {
		return Email{}, pkgError.ValidationError{Message: err.Error()}
	}
	return Email{value: strings.ToLower(trimmed)}, nil
}

func (e Email) String() string {
	return e.value
}

func (e Email) Equals(other Email) bool {
	return e.value == other.value
}
