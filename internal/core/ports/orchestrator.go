package ports

import (
	"context"

	"github.com/melih/lighthouse-hook/internal/core/domain"
)

// BuildOrchestrator runs the whole fetch/build/rollout pipeline for one
// configured project. This is the surface the HTTP layer talks to.
type BuildOrchestrator interface {
	// Trigger returns domain.ErrUnknownProject for an unconfigured slug and
	// domain.ErrAlreadyBuilding when a run for the slug is in flight; any
	// pipeline failure is reported inside the returned BuildRun instead.
	Trigger(ctx context.Context, slug string) (domain.BuildRun, error)
}
