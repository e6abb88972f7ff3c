// Package config loads the service configuration file. It only parses;
// project invariants are enforced by the registry, so a config that parses
// here can still be rejected at startup.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/melih/lighthouse-hook/internal/core/domain"
)

// Duration parses YAML scalars like "30m" or "90s".
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

type Config struct {
	App      AppConfig       `yaml:"app"`
	Projects []ProjectConfig `yaml:"projects"`
}

type AppConfig struct {
	// Registry is the base of every pushed image reference,
	// e.g. "registry.example.com".
	Registry string `yaml:"registry"`
	// BuildEngine is the remote Docker Engine API endpoint,
	// e.g. "tcp://buildkitd.build.svc:2375".
	BuildEngine string `yaml:"build_engine"`
	// CheckoutDir is where per-project source caches live.
	CheckoutDir string        `yaml:"checkout_dir"`
	Listen      string        `yaml:"listen"`
	Timeouts    TimeoutConfig `yaml:"timeouts"`
}

type TimeoutConfig struct {
	Fetch   Duration `yaml:"fetch"`
	Build   Duration `yaml:"build"`
	Rollout Duration `yaml:"rollout"`
}

type ProjectConfig struct {
	Slug       string           `yaml:"slug"`
	Name       string           `yaml:"name"`
	Source     SourceConfig     `yaml:"source"`
	Images     []ImageConfig    `yaml:"images"`
	Deployment DeploymentConfig `yaml:"deployment"`
}

type SourceConfig struct {
	URL    string `yaml:"url"`
	Branch string `yaml:"branch"`
}

type ImageConfig struct {
	Repository string `yaml:"repository"`
	Dockerfile string `yaml:"dockerfile"`
	Tag        string `yaml:"tag"`
}

type DeploymentConfig struct {
	Namespace string   `yaml:"namespace"`
	Resources []string `yaml:"resources"`
}

// Load reads and parses the config file at path, filling defaults for
// optional app settings.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %q: %w", path, err)
	}
	var cfg Config
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %q: %w", path, err)
	}
	cfg.applyDefaults()
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.App.Listen == "" {
		c.App.Listen = ":5000"
	}
	if c.App.CheckoutDir == "" {
		c.App.CheckoutDir = filepath.Join(os.TempDir(), "lighthouse-checkouts")
	}
	if c.App.Timeouts.Fetch == 0 {
		c.App.Timeouts.Fetch = Duration(2 * time.Minute)
	}
	if c.App.Timeouts.Build == 0 {
		c.App.Timeouts.Build = Duration(30 * time.Minute)
	}
	if c.App.Timeouts.Rollout == 0 {
		c.App.Timeouts.Rollout = Duration(1 * time.Minute)
	}
}

// DomainProjects converts the parsed project list into domain values for
// the registry to validate.
func (c *Config) DomainProjects() []domain.Project {
	projects := make([]domain.Project, 0, len(c.Projects))
	for _, p := range c.Projects {
		images := make([]domain.ImageSpec, 0, len(p.Images))
		for _, img := range p.Images {
			images = append(images, domain.ImageSpec{
				Repository:     img.Repository,
				DockerfilePath: img.Dockerfile,
				Tag:            img.Tag,
			})
		}
		projects = append(projects, domain.Project{
			Slug:        p.Slug,
			DisplayName: p.Name,
			Source: domain.SourceSpec{
				RepositoryURL: p.Source.URL,
				Branch:        p.Source.Branch,
			},
			Images: images,
			Deployment: domain.DeploymentSpec{
				Namespace: p.Deployment.Namespace,
				Resources: p.Deployment.Resources,
			},
		})
	}
	return projects
}

// BearerTokensFromEnv reads the comma-separated token list the webhook
// endpoints are protected with.
func BearerTokensFromEnv() ([]string, error) {
	raw := os.Getenv("BEARER_TOKENS")
	if strings.TrimSpace(raw) == "" {
		return nil, fmt.Errorf("BEARER_TOKENS environment variable is not set")
	}
	var tokens []string
	for _, tok := range strings.Split(raw, ",") {
		if tok = strings.TrimSpace(tok); tok != "" {
			tokens = append(tokens, tok)
		}
	}
	if len(tokens) == 0 {
		return nil, fmt.Errorf("BEARER_TOKENS contains no tokens")
	}
	return tokens, nil
}
