package domain

import "time"

// Outcome records success or failure of one pipeline step.
type Outcome struct {
	Success bool   `json:"success"`
	Reason  string `json:"reason,omitempty"`
}

// Succeeded is the success outcome.
func Succeeded() Outcome {
	return Outcome{Success: true}
}

// FailedWith wraps an error into a failed outcome.
func FailedWith(err error) Outcome {
	return Outcome{Success: false, Reason: err.Error()}
}

// ImageOutcome is the per-image build result, reported in declaration order.
type ImageOutcome struct {
	Repository string `json:"repository"`
	Reference  string `json:"reference"`
	Outcome
}

// ResourceOutcome is the per-resource restart result.
type ResourceOutcome struct {
	Resource string `json:"resource"`
	Outcome
}

// RolloutOutcome covers the restart phase. It is only present on a BuildRun
// when the rollout was actually attempted.
type RolloutOutcome struct {
	Resources []ResourceOutcome `json:"resources"`
}

// BuildRun is the result of one end-to-end orchestration for a project.
// It lives for a single trigger and is handed back to the caller; nothing
// about it is persisted.
type BuildRun struct {
	ProjectSlug string         `json:"project"`
	StartedAt   time.Time      `json:"started_at"`
	Fetch       Outcome        `json:"fetch"`
	Images      []ImageOutcome `json:"images"`
	// Rollout is nil when the restart phase was skipped (fetch failed or
	// every image build failed).
	Rollout *RolloutOutcome `json:"rollout,omitempty"`
}

// AnyImageSucceeded reports whether at least one image was built and pushed.
func (r BuildRun) AnyImageSucceeded() bool {
	for _, img := range r.Images {
		if img.Success {
			return true
		}
	}
	return false
}

// Succeeded reports whether every phase of the run completed cleanly.
func (r BuildRun) Succeeded() bool {
	if !r.Fetch.Success {
		return false
	}
	for _, img := range r.Images {
		if !img.Success {
			return false
		}
	}
	if r.Rollout != nil {
		for _, res := range r.Rollout.Resources {
			if !res.Success {
				return false
			}
		}
	}
	return true
}
