package ports

import (
	"context"

	"github.com/melih/lighthouse-hook/internal/core/domain"
)

// RolloutTrigger issues rolling restarts against the cluster workloads of a
// deployment spec. Completion means the control plane acknowledged the
// restart, not that the rollout has converged. Failures are
// *domain.RolloutError.
type RolloutTrigger interface {
	Restart(ctx context.Context, deployment domain.DeploymentSpec) error
}
