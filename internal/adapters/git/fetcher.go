// Package git implements the source fetcher on go-git. Each project slug
// owns one checkout directory; the directory is a cache of the remote and
// is wiped and re-cloned whenever it cannot be brought up to date.
package git

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	gogit "github.com/go-git/go-git/v5"
	gitconfig "github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/transport"

	"github.com/melih/lighthouse-hook/internal/core/domain"
)

const remoteName = "origin"

// Fetcher implements ports.SourceFetcher. It is not internally
// synchronized: the orchestrator's per-slug lock already guarantees a
// checkout directory is only touched by one run at a time.
type Fetcher struct {
	logger *slog.Logger
}

func NewFetcher(logger *slog.Logger) *Fetcher {
	return &Fetcher{logger: logger}
}

// Fetch brings workdir to the tip of the configured branch. An existing
// checkout of the same remote is fetched and hard-reset; anything else is
// wiped and cloned fresh. Failures are classified *domain.FetchError.
func (f *Fetcher) Fetch(ctx context.Context, source domain.SourceSpec, workdir string) (string, error) {
	repo, openErr := gogit.PlainOpen(workdir)
	if openErr == nil && f.originMatches(repo, source.RepositoryURL) {
		err := f.update(ctx, repo, source)
		if err == nil {
			return workdir, nil
		}
		// Remote-side failures will not be fixed by a re-clone.
		var ferr *domain.FetchError
		if errors.As(err, &ferr) && ferr.Kind != domain.FetchCorrupt {
			return "", err
		}
		f.logger.Warn("checkout unusable, re-cloning", "workdir", workdir, "error", err)
		return f.clone(ctx, source, workdir, true)
	}
	if openErr == nil {
		f.logger.Warn("checkout points at a different remote, re-cloning", "workdir", workdir)
		return f.clone(ctx, source, workdir, false)
	}
	if !errors.Is(openErr, gogit.ErrRepositoryNotExists) {
		f.logger.Warn("checkout cannot be opened, re-cloning", "workdir", workdir, "error", openErr)
	}
	return f.clone(ctx, source, workdir, false)
}

func (f *Fetcher) originMatches(repo *gogit.Repository, url string) bool {
	remote, err := repo.Remote(remoteName)
	if err != nil {
		return false
	}
	urls := remote.Config().URLs
	return len(urls) > 0 && urls[0] == url
}

// update fetches the branch tip and hard-resets the worktree to it. Local
// divergence and untracked files are discarded: the checkout is never a
// source of truth.
func (f *Fetcher) update(ctx context.Context, repo *gogit.Repository, source domain.SourceSpec) error {
	refSpec := gitconfig.RefSpec(fmt.Sprintf("+refs/heads/%s:refs/remotes/%s/%s",
		source.Branch, remoteName, source.Branch))
	err := repo.FetchContext(ctx, &gogit.FetchOptions{
		RemoteName: remoteName,
		RefSpecs:   []gitconfig.RefSpec{refSpec},
		Force:      true,
		Tags:       gogit.NoTags,
	})
	if err != nil && !errors.Is(err, gogit.NoErrAlreadyUpToDate) {
		if kind, ok := classifyRemoteError(err); ok {
			return &domain.FetchError{Kind: kind, Err: err}
		}
		return &domain.FetchError{Kind: domain.FetchCorrupt, Err: err}
	}
	return f.resetToRemoteTip(repo, source.Branch)
}

// resetToRemoteTip forces the worktree onto the remote-tracking ref of
// branch, dropping local commits and untracked files.
func (f *Fetcher) resetToRemoteTip(repo *gogit.Repository, branch string) error {
	ref, err := repo.Reference(plumbing.NewRemoteReferenceName(remoteName, branch), true)
	if err != nil {
		return &domain.FetchError{Kind: domain.FetchCorrupt, Err: err}
	}
	wt, err := repo.Worktree()
	if err != nil {
		return &domain.FetchError{Kind: domain.FetchCorrupt, Err: err}
	}
	if err := wt.Reset(&gogit.ResetOptions{Mode: gogit.HardReset, Commit: ref.Hash()}); err != nil {
		return &domain.FetchError{Kind: domain.FetchCorrupt, Err: err}
	}
	if err := wt.Clean(&gogit.CleanOptions{Dir: true}); err != nil {
		return &domain.FetchError{Kind: domain.FetchCorrupt, Err: err}
	}
	return nil
}

// clone wipes workdir and performs a fresh shallow single-branch clone.
// recovering marks that an existing checkout already failed; an unclassified
// clone failure then means the cache could not be repaired at all.
func (f *Fetcher) clone(ctx context.Context, source domain.SourceSpec, workdir string, recovering bool) (string, error) {
	if err := os.RemoveAll(workdir); err != nil {
		return "", &domain.FetchError{Kind: domain.FetchCorrupt, Err: err}
	}
	f.logger.Info("cloning", "url", source.RepositoryURL, "branch", source.Branch, "workdir", workdir)
	_, err := gogit.PlainCloneContext(ctx, workdir, false, &gogit.CloneOptions{
		URL:           source.RepositoryURL,
		ReferenceName: plumbing.NewBranchReferenceName(source.Branch),
		SingleBranch:  true,
		Depth:         1,
		Tags:          gogit.NoTags,
	})
	if err != nil {
		if kind, ok := classifyRemoteError(err); ok {
			return "", &domain.FetchError{Kind: kind, Err: err}
		}
		if recovering {
			return "", &domain.FetchError{Kind: domain.FetchCorrupt, Err: err}
		}
		return "", &domain.FetchError{Kind: domain.FetchUnreachable, Err: err}
	}
	return workdir, nil
}

// classifyRemoteError maps remote-side failures onto fetch error kinds.
func classifyRemoteError(err error) (domain.FetchErrorKind, bool) {
	var noMatch gogit.NoMatchingRefSpecError
	if errors.As(err, &noMatch) || errors.Is(err, plumbing.ErrReferenceNotFound) {
		return domain.FetchBranchNotFound, true
	}
	// go-git reports a missing single branch from the remote as a plain
	// "couldn't find remote ref" error.
	if strings.Contains(err.Error(), "couldn't find remote ref") {
		return domain.FetchBranchNotFound, true
	}
	if errors.Is(err, transport.ErrRepositoryNotFound) ||
		errors.Is(err, transport.ErrAuthenticationRequired) ||
		errors.Is(err, transport.ErrAuthorizationFailed) ||
		errors.Is(err, context.DeadlineExceeded) {
		return domain.FetchUnreachable, true
	}
	var netLike interface{ Timeout() bool }
	if errors.As(err, &netLike) {
		return domain.FetchUnreachable, true
	}
	if strings.Contains(err.Error(), "connection refused") ||
		strings.Contains(err.Error(), "no such host") {
		return domain.FetchUnreachable, true
	}
	return "", false
}
