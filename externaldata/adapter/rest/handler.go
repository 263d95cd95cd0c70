package rest

import (
	"github.com/gofiber/fiber/v2"

	"github.com/AzielCF/az-users/externaldata/application"
	"github.com/AzielCF/az-users/pkg/utils"
	"github.com/AzielCF/az-users/resilience/domain"
)

// CacheHeader tells clients whether the payload came from the cache.
const CacheHeader = "X-Cache"

type ExternalDataHandler struct {
	service *application.ExternalDataService
}

func NewExternalDataHandler(service *application.ExternalDataService) *ExternalDataHandler {
	return &ExternalDataHandler{service: service}
}

// RegisterRoutes mounts the data route and the cache clear route. guards run
// before ClearCache only.
func (h *ExternalDataHandler) RegisterRoutes(router fiber.Router, guards ...fiber.Handler) {
	router.Get("/extra-api", h.GetExternalData)

	handlers := make([]fiber.Handler, 0, len(guards)+1)
	handlers = append(handlers, guards...)
	handlers = append(handlers, h.ClearCache)
	router.Post("/extra-api/cache/clear", handlers...)
}

// GetExternalData answers 200 with the payload, or 503 through the error
// handler when the source failed and nothing is cached.
func (h *ExternalDataHandler) GetExternalData(c *fiber.Ctx) error {
	out, err := h.service.Get(c.UserContext())
	if err != nil {
		return err
	}

	c.Set(CacheHeader, cacheStatus(out.Source))
	return c.JSON(utils.ResponseData{
		Success: true,
		Data:    out.Data,
	})
}

// ClearCache drops the cached payload so the next GET refreshes it. The
// last-known-good copy survives, so stale fallback keeps working.
func (h *ExternalDataHandler) ClearCache(c *fiber.Ctx) error {
	if err := h.service.Refresh(c.UserContext()); err != nil {
		return err
	}
	return c.JSON(utils.ResponseData{
		Success: true,
		Message: "Cache cleared",
	})
}

func cacheStatus(source domain.FetchSource) string {
	switch source {
	case domain.SourceCache:
		return "HIT"
	case domain.SourceStale:
		return "STALE"
	default:
		return "MISS"
	}
}
