package domain

import (
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"

	pkgError "github.com/AzielCF/az-users/pkg/error"
)

const (
	PasswordMinLength = 8
	DefaultBcryptCost = 10
)

// Password holds only the bcrypt hash; the plain text never leaves NewPassword.
type Password struct {
	hash string
}

// NewPassword validates the strength rules and hashes the password.
func NewPassword(plain string, cost int) (Password, error) {
	if err := validatePassword(plain); err != nil {
		return Password{}, err
	}
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = DefaultBcryptCost
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(plain), cost)
	if err != nil {
		return Password{}, fmt.Errorf("failed to hash password: %w", err)
	}
	return Password{hash: string(hash)}, nil
}

// PasswordFromHash rebuilds a Password read from storage.
func PasswordFromHash(hash string) Password {
	return Password{hash: hash}
}

func validatePassword(plain string) error {
	if strings.TrimSpace(plain) == "" {
		return pkgError.ValidationError{Message: "Password cannot be empty"}
	}
	if len(plain) < PasswordMinLength {
		return pkgError.ValidationError{Message: fmt.Sprintf("Password must be at least %d characters long", PasswordMinLength)}
	}

	var upper, lower, digit bool
	for _, r := range plain {
		switch {
		case r >= 'A' && r <= 'Z':
			upper = true
		case r >= 'a' && r <= 'z':
			lower = true
		case r >= '0' && r <= '9':
			digit = true
		}
	}

	switch {
	case !upper:
		return pkgError.ValidationError{Message: "Password must contain at least one uppercase letter"}
	case !lower:
		return pkgError.ValidationError{Message: "Password must contain at least one lowercase letter"}
	case !digit:
		return pkgError.ValidationError{Message: "Password must contain at least one number"}
	}
	return nil
}

// Compare reports whether plain matches the stored hash.
func (p Password) Compare(plain string) bool {
	return bcrypt.CompareHashAndPassword([]byte(p.hash), []byte(plain)) == nil
}

func (p Password) Hash() string {
	return p.hash
}
