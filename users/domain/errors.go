package domain

import pkgError "github.com/AzielCF/az-users/pkg/error"

var (
	// ErrEmailAlreadyExists se retorna cuando el email ya está registrado
	ErrEmailAlreadyExists = pkgError.ConflictError("Email already exists")

	// ErrUserNotFound se retorna cuando no se encuentra un usuario
	ErrUserNotFound = pkgError.NotFoundError("User not found")
)
