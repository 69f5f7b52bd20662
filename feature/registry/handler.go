package registry

import (
	"errors"

	"mapping-registry/core/logger"
	"mapping-registry/core/packages"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// Handler handles HTTP requests for the registry read API.
type Handler struct {
	service *Service
}

// NewHandler creates a new HTTP handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// RegisterRoutes registers the registry routes.
func (h *Handler) RegisterRoutes(app fiber.Router) {
	group := app.Group("/registry")
	group.Get("/mappings", h.HandleListMappings)
	group.Get("/mappings/:key", h.HandleGetMapping)
	group.Post("/mappings/:key/refresh", h.HandleRefreshMapping)
	group.Get("/aliases", h.HandleAliases)
	group.Get("/status", h.HandleStatus)
	group.Get("/packages", h.HandleListPackageEntries)
	group.Get("/packages/resolve", h.HandleResolvePackageEntry)
}

// HandleListMappings returns all mapping summaries.
func (h *Handler) HandleListMappings(c *fiber.Ctx) error {
	return c.JSON(h.service.ListMappings())
}

// HandleGetMapping returns one mapping entry.
func (h *Handler) HandleGetMapping(c *fiber.Ctx) error {
	key := c.Params("key")
	entry, ok := h.service.GetMapping(key)
	if !ok {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "mapping not found"})
	}
	return c.JSON(fiber.Map{
		"key":            entry.Key,
		"payload":        entry.Payload,
		"source_type":    entry.SourceType,
		"source_locator": entry.SourceLocator,
		"display_name":   entry.DisplayName,
		"canonical_url":  entry.CanonicalURL,
	})
}

// HandleRefreshMapping triggers a focused refresh for one key.
func (h *Handler) HandleRefreshMapping(c *fiber.Ctx) error {
	key := c.Params("key")
	l := logger.WithRayID(h.service.logger, c)
	l.Info("Focused refresh requested", zap.String("key", key))

	if err := h.service.Refresh(c.Context(), key); err != nil {
		l.Warn("Focused refresh failed", zap.String("key", key), zap.Error(err))
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{"error": err.Error()})
	}

	entry, ok := h.service.GetMapping(key)
	if !ok {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "mapping not found"})
	}
	return c.JSON(fiber.Map{
		"key":         entry.Key,
		"source_type": entry.SourceType,
	})
}

// HandleAliases returns the merged alias dictionary.
func (h *Handler) HandleAliases(c *fiber.Ctx) error {
	return c.JSON(h.service.Aliases())
}

// HandleStatus returns engine health and counts.
func (h *Handler) HandleStatus(c *fiber.Ctx) error {
	return c.JSON(h.service.Status())
}

// HandleListPackageEntries lists package repository entries.
// Supports ?package=, ?version=, ?key= and ?type= filters.
func (h *Handler) HandleListPackageEntries(c *fiber.Ctx) error {
	records, err := h.service.PackageEntries(c.Context(), packages.Filter{
		Package: c.Query("package"),
		Version: c.Query("version"),
		Key:     c.Query("key"),
		Type:    c.Query("type"),
	})
	if err != nil {
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{"error": err.Error()})
	}
	if records == nil {
		records = []packages.Record{}
	}
	return c.JSON(records)
}

// HandleResolvePackageEntry resolves exactly one package entry and returns
// its content alongside the record metadata.
func (h *Handler) HandleResolvePackageEntry(c *fiber.Ctx) error {
	rec, content, err := h.service.PackageContent(c.Context(), packages.Filter{
		Package: c.Query("package"),
		Version: c.Query("version"),
		Key:     c.Query("key"),
		Type:    c.Query("type"),
	})
	switch {
	case errors.Is(err, packages.ErrNotFound):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "no matching package entry"})
	case errors.Is(err, packages.ErrAmbiguous):
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": err.Error()})
	case err != nil:
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{"error": err.Error()})
	}

	return c.JSON(fiber.Map{
		"record":  rec,
		"content": string(content),
	})
}
