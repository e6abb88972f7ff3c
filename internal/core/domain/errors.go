package domain

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors surfaced before a run even starts.
var (
	ErrUnknownProject  = errors.New("unknown project")
	ErrAlreadyBuilding = errors.New("build already in progress")
)

// FetchErrorKind classifies source acquisition failures.
type FetchErrorKind string

const (
	FetchUnreachable    FetchErrorKind = "unreachable"
	FetchBranchNotFound FetchErrorKind = "branch_not_found"
	FetchCorrupt        FetchErrorKind = "corrupt"
)

// FetchError is a classified failure from the source fetcher.
type FetchError struct {
	Kind FetchErrorKind
	Err  error
}

func (e *FetchError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("fetch failed (%s)", e.Kind)
	}
	return fmt.Sprintf("fetch failed (%s): %v", e.Kind, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// BuildErrorKind classifies image build failures.
type BuildErrorKind string

const (
	BuildDockerfileMissing BuildErrorKind = "dockerfile_missing"
	BuildEngineUnreachable BuildErrorKind = "engine_unreachable"
	BuildFailed            BuildErrorKind = "build_failed"
	BuildPushFailed        BuildErrorKind = "push_failed"
)

// BuildError is a classified failure from the image builder. For
// BuildFailed, Status carries the engine's error code and Output the tail
// of the captured build log.
type BuildError struct {
	Kind   BuildErrorKind
	Status int
	Output string
	Err    error
}

func (e *BuildError) Error() string {
	msg := fmt.Sprintf("build failed (%s)", e.Kind)
	if e.Kind == BuildFailed && e.Status != 0 {
		msg = fmt.Sprintf("%s, status %d", msg, e.Status)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *BuildError) Unwrap() error { return e.Err }

// RolloutErrorKind classifies restart failures.
type RolloutErrorKind string

const (
	// RolloutClusterUnreachable means the control plane could not be
	// contacted at all; no restart was issued.
	RolloutClusterUnreachable RolloutErrorKind = "cluster_unreachable"
	// RolloutPartialFailure means connectivity was fine but some resources
	// failed to restart; Failed lists their "{kind}/{name}" ids.
	RolloutPartialFailure RolloutErrorKind = "partial_failure"
)

// RolloutError is a classified failure from the rollout trigger. For
// partial failures, Reasons optionally carries the per-resource cause keyed
// by the same "{kind}/{name}" ids listed in Failed.
type RolloutError struct {
	Kind    RolloutErrorKind
	Failed  []string
	Reasons map[string]string
	Err     error
}

func (e *RolloutError) Error() string {
	switch e.Kind {
	case RolloutPartialFailure:
		return fmt.Sprintf("rollout failed for: %s", strings.Join(e.Failed, ", "))
	default:
		if e.Err != nil {
			return fmt.Sprintf("rollout failed (%s): %v", e.Kind, e.Err)
		}
		return fmt.Sprintf("rollout failed (%s)", e.Kind)
	}
}

func (e *RolloutError) Unwrap() error { return e.Err }
