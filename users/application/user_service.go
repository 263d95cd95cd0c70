package application

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/AzielCF/az-users/users/domain"
)

// CreateUserCommand carries the raw registration input.
type CreateUserCommand struct {
	Email    string
	Password string
}

// UserService contiene la lógica de negocio para el registro de usuarios
type UserService struct {
	repo       domain.UserRepository
	bcryptCost int
}

func NewUserService(repo domain.UserRepository, bcryptCost int) *UserService {
	if bcryptCost == 0 {
		bcryptCost = domain.DefaultBcryptCost
	}
	return &UserService{repo: repo, bcryptCost: bcryptCost}
}

// CreateUser registers a new user. The uniqueness check runs before hashing
// so a duplicate costs no bcrypt round.
func (s *UserService) CreateUser(ctx context.Context, cmd CreateUserCommand) (*domain.User, error) {
	email, err := domain.NewEmail(cmd.Email)
	if err != nil {
		return nil, err
	}

	exists, err := s.repo.ExistsByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("failed to check email: %w", err)
	}
	if exists {
		return nil, domain.ErrEmailAlreadyExists
	}

	password, err := domain.NewPassword(cmd.Password, s.bcryptCost)
	if err != nil {
		return nil, err
	}

	user, err := domain.NewUser(uuid.New().String(), email, password, time.Now().UTC())
	if err != nil {
		return nil, err
	}

	if err := s.repo.Save(ctx, user); err != nil {
		return nil, err
	}

	logrus.WithField("user_id", user.ID).Info("[USERS] user registered")
	return user, nil
}

// GetByID returns the user with the given id.
func (s *UserService) GetByID(ctx context.Context, id string) (*domain.User, error) {
	return s.repo.FindByID(ctx, id)
}
