// Package orchestrator drives the build-and-deploy pipeline for one
// project trigger: acquire the project's slot, fetch source, build every
// configured image in order, then restart the deployment targets. Work for
// the same slug never runs twice at once; unrelated slugs run freely in
// parallel.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/melih/lighthouse-hook/internal/core/domain"
	"github.com/melih/lighthouse-hook/internal/core/ports"
	"github.com/melih/lighthouse-hook/internal/core/registry"
)

// Timeouts bound each external stage of a run. Builds run against a shared
// remote engine and can take minutes, so they get the longest budget.
type Timeouts struct {
	Fetch   time.Duration
	Build   time.Duration
	Rollout time.Duration
}

// Orchestrator implements ports.BuildOrchestrator.
type Orchestrator struct {
	registry     *registry.Registry
	fetcher      ports.SourceFetcher
	builder      ports.ImageBuilder
	rollout      ports.RolloutTrigger
	registryHost string
	checkoutRoot string
	timeouts     Timeouts
	logger       *slog.Logger

	// slots maps slug -> its exclusive build lock. Entries are created on
	// first use and kept for the life of the process.
	mu    sync.Mutex
	slots map[string]*sync.Mutex
}

// New wires the orchestrator. registryHost is the image registry prefix for
// built references; checkoutRoot is where per-slug source caches live.
func New(
	reg *registry.Registry,
	fetcher ports.SourceFetcher,
	builder ports.ImageBuilder,
	rollout ports.RolloutTrigger,
	registryHost string,
	checkoutRoot string,
	timeouts Timeouts,
	logger *slog.Logger,
) *Orchestrator {
	return &Orchestrator{
		registry:     reg,
		fetcher:      fetcher,
		builder:      builder,
		rollout:      rollout,
		registryHost: registryHost,
		checkoutRoot: checkoutRoot,
		timeouts:     timeouts,
		logger:       logger,
		slots:        make(map[string]*sync.Mutex),
	}
}

// Trigger runs the pipeline for slug and returns the structured outcome.
// Pipeline failures (fetch, per-image build, per-resource rollout) are
// reported inside the BuildRun; only unknown-slug and already-building
// come back as errors, both before any side effect.
func (o *Orchestrator) Trigger(ctx context.Context, slug string) (domain.BuildRun, error) {
	project, err := o.registry.Resolve(slug)
	if err != nil {
		return domain.BuildRun{}, err
	}

	slot := o.slot(project.Slug)
	if !slot.TryLock() {
		o.logger.Warn("build already in progress", "project", project.Slug)
		return domain.BuildRun{}, fmt.Errorf("%w for project %q", domain.ErrAlreadyBuilding, project.Slug)
	}
	defer slot.Unlock()

	run := domain.BuildRun{
		ProjectSlug: project.Slug,
		StartedAt:   time.Now().UTC(),
	}
	o.logger.Info("build run started", "project", project.Slug, "branch", project.Source.Branch)

	sourcePath, err := o.fetch(ctx, project)
	if err != nil {
		run.Fetch = domain.FailedWith(err)
		o.logger.Error("source fetch failed", "project", project.Slug, "error", err)
		return run, nil
	}
	run.Fetch = domain.Succeeded()

	run.Images = o.buildImages(ctx, project, sourcePath)
	if !run.AnyImageSucceeded() {
		o.logger.Error("all image builds failed, skipping rollout", "project", project.Slug)
		return run, nil
	}

	run.Rollout = o.restart(ctx, project)
	o.logger.Info("build run finished", "project", project.Slug, "success", run.Succeeded())
	return run, nil
}

// slot returns the lock for slug, creating it on first use.
func (o *Orchestrator) slot(slug string) *sync.Mutex {
	o.mu.Lock()
	defer o.mu.Unlock()
	s, ok := o.slots[slug]
	if !ok {
		s = &sync.Mutex{}
		o.slots[slug] = s
	}
	return s
}

func (o *Orchestrator) fetch(ctx context.Context, project domain.Project) (string, error) {
	ctx, cancel := o.stageContext(ctx, o.timeouts.Fetch)
	defer cancel()
	workdir := filepath.Join(o.checkoutRoot, project.Slug)
	return o.fetcher.Fetch(ctx, project.Source, workdir)
}

// buildImages builds every configured image sequentially, in declaration
// order. A failed image never skips its siblings: the outcome list always
// has one entry per configured image.
func (o *Orchestrator) buildImages(ctx context.Context, project domain.Project, sourcePath string) []domain.ImageOutcome {
	outcomes := make([]domain.ImageOutcome, 0, len(project.Images))
	for _, img := range project.Images {
		outcome := domain.ImageOutcome{
			Repository: img.Repository,
			Reference:  img.Reference(o.registryHost),
		}
		bctx, cancel := o.stageContext(ctx, o.timeouts.Build)
		err := o.builder.Build(bctx, img, sourcePath, o.registryHost)
		cancel()
		if err != nil {
			outcome.Outcome = domain.FailedWith(err)
			o.logger.Error("image build failed", "project", project.Slug, "image", img.Repository, "error", err)
		} else {
			outcome.Outcome = domain.Succeeded()
			o.logger.Info("image built and pushed", "project", project.Slug, "reference", outcome.Reference)
		}
		outcomes = append(outcomes, outcome)
	}
	return outcomes
}

// restart triggers the rollout and folds the result into per-resource
// outcomes. Every configured resource appears exactly once.
func (o *Orchestrator) restart(ctx context.Context, project domain.Project) *domain.RolloutOutcome {
	ctx, cancel := o.stageContext(ctx, o.timeouts.Rollout)
	defer cancel()

	err := o.rollout.Restart(ctx, project.Deployment)

	outcome := &domain.RolloutOutcome{
		Resources: make([]domain.ResourceOutcome, 0, len(project.Deployment.Resources)),
	}
	failed := failedResources(err)
	for _, res := range project.Deployment.Resources {
		ro := domain.ResourceOutcome{Resource: res, Outcome: domain.Succeeded()}
		if reason, ok := failed[res]; ok {
			ro.Outcome = domain.Outcome{Success: false, Reason: reason}
		} else if reason, ok := failed["*"]; ok {
			ro.Outcome = domain.Outcome{Success: false, Reason: reason}
		}
		outcome.Resources = append(outcome.Resources, ro)
	}
	if err != nil {
		o.logger.Error("rollout restart failed", "project", project.Slug, "error", err)
	}
	return outcome
}

// failedResources flattens a rollout error into resource -> reason. For
// cluster-unreachable there is no per-resource detail, so the caller marks
// every resource with the same reason via the wildcard entry.
func failedResources(err error) map[string]string {
	if err == nil {
		return nil
	}
	var rerr *domain.RolloutError
	if !errors.As(err, &rerr) {
		return map[string]string{"*": err.Error()}
	}
	switch rerr.Kind {
	case domain.RolloutPartialFailure:
		failed := make(map[string]string, len(rerr.Failed))
		for _, res := range rerr.Failed {
			reason := rerr.Reasons[res]
			if reason == "" {
				reason = "restart not acknowledged by the control plane"
			}
			failed[res] = reason
		}
		return failed
	default:
		return map[string]string{"*": rerr.Error()}
	}
}

func (o *Orchestrator) stageContext(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, timeout)
}
