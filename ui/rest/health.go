package rest

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/AzielCF/az-users/resilience/domain"
)

type Health struct {
	Store      domain.AvailabilityChecker
	InstanceID string
}

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Success     bool   `json:"success"`
	Message     string `json:"message"`
	Timestamp   string `json:"timestamp"`
	Instance    string `json:"instance,omitempty"`
	SharedStore string `json:"sharedStore"`
}

func InitRestHealth(app fiber.Router, store domain.AvailabilityChecker, instanceID string) Health {
	handler := Health{Store: store, InstanceID: instanceID}
	app.Get("/health", handler.GetStatus)
	return handler
}

// GetStatus always answers 200: a degraded shared store does not stop the
// service from serving requests.
func (h *Health) GetStatus(c *fiber.Ctx) error {
	state := "available"
	if h.Store != nil && !h.Store.IsAvailable() {
		state = "degraded"
	}
	return c.JSON(HealthResponse{
		Success:     true,
		Message:     "Server is running",
		Timestamp:   time.Now().UTC().Format(time.RFC3339Nano),
		Instance:    h.InstanceID,
		SharedStore: state,
	})
}
