package ports

import (
	"context"

	"github.com/melih/lighthouse-hook/internal/core/domain"
)

// ImageBuilder builds and pushes one tagged image from a source checkout
// via the remote build engine. Failures are *domain.BuildError.
type ImageBuilder interface {
	Build(ctx context.Context, image domain.ImageSpec, sourcePath string, registry string) error
}
