// Package registry holds the validated, immutable set of configured
// projects. All config invariants are checked once here at startup; the
// runtime path never re-validates.
package registry

import (
	"fmt"
	"net/url"
	"sort"
	"strings"

	"github.com/melih/lighthouse-hook/internal/core/domain"
)

// Registry resolves slugs to projects. Read-only after construction, safe
// for unsynchronized concurrent reads.
type Registry struct {
	projects map[string]domain.Project
}

// New validates the parsed project list and builds the registry. Any
// violation fails the whole load; callers are expected to treat that as
// fatal at startup.
func New(projects []domain.Project) (*Registry, error) {
	bySlug := make(map[string]domain.Project, len(projects))
	for _, p := range projects {
		if err := validateProject(p); err != nil {
			return nil, fmt.Errorf("project %q: %w", p.Slug, err)
		}
		if _, dup := bySlug[p.Slug]; dup {
			return nil, fmt.Errorf("duplicate project slug %q", p.Slug)
		}
		bySlug[p.Slug] = p
	}
	return &Registry{projects: bySlug}, nil
}

// Resolve returns the project for slug, or domain.ErrUnknownProject.
func (r *Registry) Resolve(slug string) (domain.Project, error) {
	p, ok := r.projects[slug]
	if !ok {
		return domain.Project{}, fmt.Errorf("%w: %q", domain.ErrUnknownProject, slug)
	}
	return p, nil
}

// Slugs returns all configured slugs, sorted.
func (r *Registry) Slugs() []string {
	slugs := make([]string, 0, len(r.projects))
	for slug := range r.projects {
		slugs = append(slugs, slug)
	}
	sort.Strings(slugs)
	return slugs
}

func validateProject(p domain.Project) error {
	if strings.TrimSpace(p.Slug) == "" {
		return fmt.Errorf("slug must not be empty")
	}
	if strings.TrimSpace(p.DisplayName) == "" {
		return fmt.Errorf("display name must not be empty")
	}
	if err := validateHTTPSURL(p.Source.RepositoryURL); err != nil {
		return fmt.Errorf("source url: %w", err)
	}
	if strings.TrimSpace(p.Source.Branch) == "" {
		return fmt.Errorf("source branch must not be empty")
	}
	if len(p.Images) == 0 {
		return fmt.Errorf("at least one image must be configured")
	}
	for i, img := range p.Images {
		if err := validateImage(img); err != nil {
			return fmt.Errorf("image %d: %w", i, err)
		}
	}
	return validateDeployment(p.Deployment)
}

func validateImage(img domain.ImageSpec) error {
	if strings.TrimSpace(img.Repository) == "" {
		return fmt.Errorf("repository must not be empty")
	}
	if strings.TrimSpace(img.Tag) == "" {
		return fmt.Errorf("tag must not be empty")
	}
	return validateDockerfilePath(img.DockerfilePath)
}

// validateDockerfilePath rejects anything that could escape the checkout:
// absolute paths and parent-directory segments.
func validateDockerfilePath(p string) error {
	if strings.TrimSpace(p) == "" {
		return fmt.Errorf("dockerfile path must not be empty")
	}
	if strings.HasPrefix(p, "/") || strings.HasPrefix(p, "\\") {
		return fmt.Errorf("dockerfile path must be relative")
	}
	for _, seg := range strings.FieldsFunc(p, func(r rune) bool { return r == '/' || r == '\\' }) {
		if seg == ".." {
			return fmt.Errorf("dockerfile path must not contain parent segments")
		}
	}
	return nil
}

func validateDeployment(d domain.DeploymentSpec) error {
	// An empty resource list is fine: the project redeploys itself.
	if len(d.Resources) == 0 {
		return nil
	}
	if strings.TrimSpace(d.Namespace) == "" {
		return fmt.Errorf("deployment namespace must not be empty")
	}
	for _, res := range d.Resources {
		kind, name, ok := strings.Cut(res, "/")
		if !ok || strings.TrimSpace(kind) == "" || strings.TrimSpace(name) == "" {
			return fmt.Errorf("deployment resource %q must be in kind/name form", res)
		}
	}
	return nil
}

func validateHTTPSURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%q is not a valid URL", raw)
	}
	if u.Scheme != "https" {
		return fmt.Errorf("%q must use https", raw)
	}
	if u.Host == "" {
		return fmt.Errorf("%q must have a host", raw)
	}
	return nil
}
