package domain

import (
	"strings"
	"time"

	pkgError "github.com/AzielCF/az-users/pkg/error"
)

// User is a registered account.
type User struct {
	ID        string
	Email     Email
	Password  Password
	CreatedAt time.Time
}

// PublicUser is the projection of a User that may leave the service.
type PublicUser struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"createdAt"`
}

// NewUser crea un usuario; el ID no puede estar vacío.
func NewUser(id string, email Email, password Password, createdAt time.Time) (*User, error) {
	if strings.TrimSpace(id) == "" {
		return nil, pkgError.ValidationError{Message: "User ID cannot be empty"}
	}
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	return &User{
		ID:        id,
		Email:     email,
		Password:  password,
		CreatedAt: createdAt,
	}, nil
}

func (u *User) VerifyPassword(plain string) bool {
	return u.Password.Compare(plain)
}

func (u *User) Public() PublicUser {
	return PublicUser{
		ID:        u.ID,
		Email:     u.Email.String(),
		CreatedAt: u.CreatedAt,
	}
}
