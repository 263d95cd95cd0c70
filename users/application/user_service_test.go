package application

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	pkgError "github.com/AzielCF/az-users/pkg/error"
	"github.com/AzielCF/az-users/users/domain"
)

type memoryRepo struct {
	mu      sync.Mutex
	byEmail map[string]*domain.User
	saves   int
	failErr error
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{byEmail: map[string]*domain.User{}}
}

func (r *memoryRepo) Save(ctx context.Context, u *domain.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.saves++
	if r.failErr != nil {
		return r.failErr
	}
	if _, ok := r.byEmail[u.Email.String()]; ok {
		return domain.ErrEmailAlreadyExists
	}
	r.byEmail[u.Email.String()] = u
	return nil
}

func (r *memoryRepo) ExistsByEmail(ctx context.Context, e domain.Email) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.byEmail[e.String()]
	return ok, nil
}

func (r *memoryRepo) FindByEmail(ctx context.Context, e domain.Email) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if u, ok := r.byEmail[e.String()]; ok {
		return u, nil
	}
	return nil, domain.ErrUserNotFound
}

func (r *memoryRepo) FindByID(ctx context.Context, id string) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.byEmail {
		if u.ID == id {
			return u, nil
		}
	}
	return nil, domain.ErrUserNotFound
}

func TestCreateUser(t *testing.T) {
	ctx := context.Background()
	repo := newMemoryRepo()
	svc := NewUserService(repo, bcrypt.MinCost)

	u, err := svc.CreateUser(ctx, CreateUserCommand{Email: " New@Example.com", Password: "Secret123"})
	require.NoError(t, err)
	assert.NotEmpty(t, u.ID)
	assert.Equal(t, "new@example.com", u.Email.String())
	assert.True(t, u.VerifyPassword("Secret123"))
	assert.False(t, u.CreatedAt.IsZero())

	found, err := svc.GetByID(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, u, found)
}

func TestCreateUser_Duplicate(t *testing.T) {
	ctx := context.Background()
	repo := newMemoryRepo()
	svc := NewUserService(repo, bcrypt.MinCost)

	_, err := svc.CreateUser(ctx, CreateUserCommand{Email: "a@example.com", Password: "Secret123"})
	require.NoError(t, err)

	_, err = svc.CreateUser(ctx, CreateUserCommand{Email: "A@example.com", Password: "Secret123"})
	assert.ErrorIs(t, err, domain.ErrEmailAlreadyExists)
	assert.Equal(t, 1, repo.saves, "duplicate rejected before save")
}

func TestCreateUser_InvalidInput(t *testing.T) {
	ctx := context.Background()
	repo := newMemoryRepo()
	svc := NewUserService(repo, bcrypt.MinCost)

	_, err := svc.CreateUser(ctx, CreateUserCommand{Email: "bad", Password: "Secret123"})
	var vErr pkgError.ValidationError
	assert.ErrorAs(t, err, &vErr)

	_, err = svc.CreateUser(ctx, CreateUserCommand{Email: "a@example.com", Password: "weak"})
	assert.ErrorAs(t, err, &vErr)
	assert.Equal(t, 0, repo.saves)
}

func TestCreateUser_SaveFailure(t *testing.T) {
	repo := newMemoryRepo()
	repo.failErr = errors.New("database is locked")
	svc := NewUserService(repo, bcrypt.MinCost)

	_, err := svc.CreateUser(context.Background(), CreateUserCommand{Email: "a@example.com", Password: "Secret123"})
	assert.EqualError(t, err, "database is locked")
}
