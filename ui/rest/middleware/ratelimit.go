package middleware

import (
	"context"
	"math"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"

	"github.com/AzielCF/az-users/pkg/utils"
	"github.com/AzielCF/az-users/resilience/domain"
	"github.com/AzielCF/az-users/resilience/ratelimit"
)

// Admitter is the part of a rate limiter the middleware needs.
type Admitter interface {
	Admit(ctx context.Context, clientKey string) domain.Decision
	Name() string
}

// RateLimitConfig configures the RateLimit middleware.
type RateLimitConfig struct {
	// IPv6Prefix groups IPv6 clients by network prefix.
	IPv6Prefix int
	// Message is returned with 429 responses.
	Message string
	// Next skips the limiter when it returns true.
	Next func(c *fiber.Ctx) bool
}

const defaultRateLimitMessage = "Too many requests, please try again later."

// RateLimit admits each request through limiter and answers 429 when the
// client exhausted its quota. Standard RateLimit-* headers are always set.
func RateLimit(limiter Admitter, cfg RateLimitConfig) fiber.Handler {
	if cfg.Message == "" {
		cfg.Message = defaultRateLimitMessage
	}

	return func(c *fiber.Ctx) error {
		if cfg.Next != nil && cfg.Next(c) {
			return c.Next()
		}

		clientKey := ratelimit.ClientKey(c.IP(), cfg.IPv6Prefix)
		d := limiter.Admit(c.UserContext(), clientKey)

		c.Set("RateLimit-Limit", strconv.Itoa(d.Limit))
		c.Set("RateLimit-Remaining", strconv.Itoa(d.Remaining))
		c.Set("RateLimit-Reset", strconv.Itoa(ceilSeconds(time.Until(d.ResetAt))))

		if d.Allowed {
			return c.Next()
		}

		logrus.WithFields(logrus.Fields{
			"limiter":  limiter.Name(),
			"ip":       c.IP(),
			"path":     c.Path(),
			"method":   c.Method(),
			"degraded": d.Degraded,
		}).Warn("[RATELIMIT] rate limit exceeded")

		c.Set(fiber.HeaderRetryAfter, strconv.Itoa(ceilSeconds(d.RetryAfter)))
		return c.Status(fiber.StatusTooManyRequests).JSON(
			utils.NewErrorResponse(fiber.StatusTooManyRequests, "TOO_MANY_REQUESTS", cfg.Message, c.Path()),
		)
	}
}

// ceilSeconds rounds d up to whole seconds, never below zero.
func ceilSeconds(d time.Duration) int {
	if d <= 0 {
		return 0
	}
	return int(math.Ceil(d.Seconds()))
}
