package middleware

import (
	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"

	pkgError "github.com/AzielCF/az-users/pkg/error"
	"github.com/AzielCF/az-users/pkg/utils"
)

// Recovery turns a panic in any later handler into a JSON error response.
func Recovery() fiber.Handler {
	return func(ctx *fiber.Ctx) (err error) {
		defer func() {
			r := recover()
			if r == nil {
				return
			}

			logrus.Errorf("[REST] panic recovered on %s %s: %v", ctx.Method(), ctx.Path(), r)

			res := utils.NewErrorResponse(fiber.StatusInternalServerError, "INTERNAL_SERVER_ERROR", "Internal Server Error", ctx.Path())
			if genericErr, ok := r.(pkgError.GenericError); ok {
				res = utils.NewErrorResponse(genericErr.StatusCode(), genericErr.ErrCode(), genericErr.Error(), ctx.Path())
			}

			err = ctx.Status(res.Error.StatusCode).JSON(res)
		}()

		return ctx.Next()
	}
}
