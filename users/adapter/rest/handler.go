package rest

import (
	"github.com/gofiber/fiber/v2"

	pkgError "github.com/AzielCF/az-users/pkg/error"
	"github.com/AzielCF/az-users/pkg/utils"
	"github.com/AzielCF/az-users/users/application"
)

// UserHandler maneja las peticiones REST de usuarios
type UserHandler struct {
	service *application.UserService
}

func NewUserHandler(service *application.UserService) *UserHandler {
	return &UserHandler{service: service}
}

// RegisterRoutes mounts the user routes. guards run before the handler of
// sensitive write endpoints (the strict rate limiter).
func (h *UserHandler) RegisterRoutes(router fiber.Router, guards ...fiber.Handler) {
	handlers := append(append([]fiber.Handler{}, guards...), h.CreateUser)
	router.Post("/users", handlers...)
}

// CreateUser registers a user and answers 201 with its public projection.
func (h *UserHandler) CreateUser(c *fiber.Ctx) error {
	var req CreateUserRequest
	if err := decodeStrict(c.Body(), &req); err != nil {
		return err
	}
	if err := req.Validate(); err != nil {
		return pkgError.NewValidationError(err)
	}

	user, err := h.service.CreateUser(c.UserContext(), application.CreateUserCommand{
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		return err
	}

	return c.Status(fiber.StatusCreated).JSON(utils.ResponseData{
		Success: true,
		Data:    user.Public(),
	})
}
