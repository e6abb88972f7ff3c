package domain

import "fmt"

// Project is one configured build target. Projects are validated once at
// startup by the registry and never change afterwards.
type Project struct {
	Slug        string         `json:"slug"`
	DisplayName string         `json:"display_name"`
	Source      SourceSpec     `json:"source"`
	Images      []ImageSpec    `json:"images"`
	Deployment  DeploymentSpec `json:"deployment"`
}

// SourceSpec describes where the project code lives and which branch is
// built. No credentials: the remote is public or pre-authorized.
type SourceSpec struct {
	RepositoryURL string `json:"repository_url"`
	Branch        string `json:"branch"`
}

// ImageSpec is one image produced from the project's checkout.
type ImageSpec struct {
	Repository     string `json:"repository"`
	DockerfilePath string `json:"dockerfile_path"`
	Tag            string `json:"tag"`
}

// Reference returns the fully-qualified image reference under the given
// registry, e.g. "registry.example.com/team/web:latest".
func (s ImageSpec) Reference(registry string) string {
	return fmt.Sprintf("%s/%s:%s", registry, s.Repository, s.Tag)
}

// DeploymentSpec names the cluster workloads restarted after a build.
// Resources are "{kind}/{name}" identifiers; an empty list means the
// project manages its own redeployment.
type DeploymentSpec struct {
	Namespace string   `json:"namespace"`
	Resources []string `json:"resources"`
}
