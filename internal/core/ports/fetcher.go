package ports

import (
	"context"

	"github.com/melih/lighthouse-hook/internal/core/domain"
)

// SourceFetcher materializes a project's source tree at the tip of its
// configured branch. The checkout under workdir is a disposable cache:
// a fetcher may wipe and re-clone it whenever it cannot be fast-forwarded.
type SourceFetcher interface {
	// Fetch returns the local path of the checkout, or a *domain.FetchError.
	Fetch(ctx context.Context, source domain.SourceSpec, workdir string) (string, error)
}
