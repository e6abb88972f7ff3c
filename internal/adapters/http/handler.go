package http

import (
	"errors"
	"log/slog"

	"github.com/gofiber/fiber/v2"

	"github.com/melih/lighthouse-hook/internal/core/domain"
	"github.com/melih/lighthouse-hook/internal/core/ports"
)

// HookHandler maps webhook routes onto the build orchestrator.
type HookHandler struct {
	orchestrator ports.BuildOrchestrator
	logger       *slog.Logger
}

func NewHookHandler(orchestrator ports.BuildOrchestrator, logger *slog.Logger) *HookHandler {
	return &HookHandler{orchestrator: orchestrator, logger: logger}
}

// Health is the public liveness probe.
func (h *HookHandler) Health(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"status": "ok"})
}

// TriggerBuild runs the whole pipeline for the slug in the path and renders
// the structured outcome. The response status tells the operator where to
// look: 200 clean, 207 mixed, 502 nothing got through, 409 a run is already
// in flight, 404 unknown slug.
func (h *HookHandler) TriggerBuild(c *fiber.Ctx) error {
	slug := c.Params("slug")
	run, err := h.orchestrator.Trigger(c.Context(), slug)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrUnknownProject):
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"error": err.Error(),
			})
		case errors.Is(err, domain.ErrAlreadyBuilding):
			return c.Status(fiber.StatusConflict).JSON(fiber.Map{
				"error": err.Error(),
			})
		default:
			h.logger.Error("trigger failed", "project", slug, "error", err)
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": err.Error(),
			})
		}
	}
	return c.Status(statusFor(run)).JSON(run)
}

func statusFor(run domain.BuildRun) int {
	switch {
	case run.Succeeded():
		return fiber.StatusOK
	case run.AnyImageSucceeded():
		// Some images or resources made it, some did not.
		return fiber.StatusMultiStatus
	default:
		// Fetch failed or every build failed: nothing reached the cluster.
		return fiber.StatusBadGateway
	}
}
