package middleware

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"

	pkgError "github.com/AzielCF/az-users/pkg/error"
	"github.com/AzielCF/az-users/pkg/utils"
)

// ErrorHandler renders every error returned by a handler as the JSON error
// envelope. It is installed as fiber.Config.ErrorHandler.
func ErrorHandler(c *fiber.Ctx, err error) error {
	status := fiber.StatusInternalServerError
	code := "INTERNAL_SERVER_ERROR"
	message := "Internal Server Error"
	var details []pkgError.FieldError

	var validationErr pkgError.ValidationError
	var genericErr pkgError.GenericError
	var fiberErr *fiber.Error

	switch {
	case errors.As(err, &validationErr):
		status = validationErr.StatusCode()
		code = validationErr.ErrCode()
		message = validationErr.Error()
		details = validationErr.Details
	case errors.As(err, &genericErr):
		status = genericErr.StatusCode()
		code = genericErr.ErrCode()
		message = genericErr.Error()
	case errors.As(err, &fiberErr):
		status = fiberErr.Code
		code = statusCode(status)
		message = fiberErr.Message
	}

	entry := logrus.WithError(err).WithFields(logrus.Fields{
		"method": c.Method(),
		"path":   c.Path(),
		"status": status,
	})
	if status >= fiber.StatusInternalServerError {
		entry.Error("[REST] request failed")
	} else {
		entry.Debug("[REST] request rejected")
	}

	res := utils.NewErrorResponse(status, code, message, c.Path())
	res.Error.Details = details
	return c.Status(status).JSON(res)
}

// NotFound answers every request that matched no route.
func NotFound(c *fiber.Ctx) error {
	return pkgError.NotFoundError(fmt.Sprintf("Route %s %s not found", c.Method(), c.Path()))
}

// statusCode turns 413 into "REQUEST_ENTITY_TOO_LARGE".
func statusCode(status int) string {
	text := http.StatusText(status)
	if text == "" {
		return "ERROR"
	}
	return strings.ToUpper(strings.NewReplacer(" ", "_", "-", "_", "'", "").Replace(text))
}
