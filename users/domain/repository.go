package domain

import "context"

// UserRepository defines the persistence of users.
type UserRepository interface {
	// Save persists a new user. It returns ErrEmailAlreadyExists when the
	// email is taken, also when a concurrent insert won the race.
	Save(ctx context.Context, user *User) error
	ExistsByEmail(ctx context.Context, email Email) (bool, error)
	FindByEmail(ctx context.Context, email Email) (*User, error)
	FindByID(ctx context.Context, id string) (*User, error)
}
