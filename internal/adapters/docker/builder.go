// Package docker implements the image builder against a remote Docker
// Engine API endpoint. The engine is a shared, previously-provisioned
// builder reachable over the network; this process never talks to a local
// daemon socket, so several orchestrator instances can share one backend.
package docker

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/registry"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/archive"
	"github.com/docker/docker/pkg/jsonmessage"

	"github.com/melih/lighthouse-hook/internal/core/domain"
)

// outputTailLines bounds how much build output is kept for failure reports.
const outputTailLines = 25

// RegistryAuth carries optional push credentials for the target registry.
type RegistryAuth struct {
	Username string
	Password string
}

// Builder implements ports.ImageBuilder.
type Builder struct {
	cli    *client.Client
	auth   string // base64 X-Registry-Auth payload for pushes
	logger *slog.Logger
}

// NewBuilder connects to the remote build engine at host, e.g.
// "tcp://buildkitd.build.svc:2375". An empty host is a configuration error:
// falling back to the local socket would silently couple builds to this
// process's own machine.
func NewBuilder(host string, auth RegistryAuth, logger *slog.Logger) (*Builder, error) {
	if strings.TrimSpace(host) == "" {
		return nil, fmt.Errorf("build engine endpoint must be configured")
	}
	cli, err := client.NewClientWithOpts(
		client.WithHost(host),
		client.WithAPIVersionNegotiation(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create build engine client: %w", err)
	}
	encoded, err := encodeAuth(auth)
	if err != nil {
		return nil, err
	}
	return &Builder{cli: cli, auth: encoded, logger: logger}, nil
}

// Build produces {registry}/{repository}:{tag} from the checkout at
// sourcePath and pushes it. Build and push failures stay distinct so the
// caller can tell a broken Dockerfile from a broken registry.
func (b *Builder) Build(ctx context.Context, image domain.ImageSpec, sourcePath string, registryHost string) error {
	dockerfile := filepath.ToSlash(filepath.Clean(image.DockerfilePath))
	if _, err := os.Stat(filepath.Join(sourcePath, filepath.FromSlash(dockerfile))); err != nil {
		return &domain.BuildError{Kind: domain.BuildDockerfileMissing, Err: err}
	}

	ref := image.Reference(registryHost)
	b.logger.Info("building image", "reference", ref, "dockerfile", dockerfile)

	buildCtx, err := archive.TarWithOptions(sourcePath, &archive.TarOptions{})
	if err != nil {
		return &domain.BuildError{Kind: domain.BuildFailed, Err: fmt.Errorf("failed to create build context: %w", err)}
	}
	defer buildCtx.Close()

	resp, err := b.cli.ImageBuild(ctx, buildCtx, types.ImageBuildOptions{
		Tags:        []string{ref},
		Dockerfile:  dockerfile,
		Remove:      true,
		ForceRemove: true,
	})
	if err != nil {
		return &domain.BuildError{Kind: domain.BuildEngineUnreachable, Err: err}
	}
	defer resp.Body.Close()

	if tail, err := drainStream(resp.Body); err != nil {
		var jerr *jsonmessage.JSONError
		if errors.As(err, &jerr) {
			return &domain.BuildError{Kind: domain.BuildFailed, Status: jerr.Code, Output: tail, Err: jerr}
		}
		return &domain.BuildError{Kind: domain.BuildEngineUnreachable, Output: tail, Err: err}
	}

	b.logger.Info("pushing image", "reference", ref)
	push, err := b.cli.ImagePush(ctx, ref, types.ImagePushOptions{RegistryAuth: b.auth})
	if err != nil {
		return &domain.BuildError{Kind: domain.BuildPushFailed, Err: err}
	}
	defer push.Close()

	if tail, err := drainStream(push); err != nil {
		return &domain.BuildError{Kind: domain.BuildPushFailed, Output: tail, Err: err}
	}

	b.logger.Info("image built and pushed", "reference", ref)
	return nil
}

// drainStream consumes an engine progress stream until EOF, keeping a
// bounded tail of output lines. An error frame in the stream aborts and is
// returned alongside the tail collected so far.
func drainStream(r io.Reader) (string, error) {
	dec := json.NewDecoder(r)
	var tail []string
	for {
		var msg jsonmessage.JSONMessage
		if err := dec.Decode(&msg); err != nil {
			if errors.Is(err, io.EOF) {
				return strings.Join(tail, "\n"), nil
			}
			return strings.Join(tail, "\n"), err
		}
		if msg.Error != nil {
			return strings.Join(tail, "\n"), msg.Error
		}
		line := strings.TrimRight(msg.Stream, "\n")
		if line == "" {
			line = msg.Status
		}
		if line == "" {
			continue
		}
		tail = append(tail, line)
		if len(tail) > outputTailLines {
			tail = tail[1:]
		}
	}
}

func encodeAuth(auth RegistryAuth) (string, error) {
	payload, err := json.Marshal(registry.AuthConfig{
		Username: auth.Username,
		Password: auth.Password,
	})
	if err != nil {
		return "", fmt.Errorf("failed to encode registry auth: %w", err)
	}
	return base64.URLEncoding.EncodeToString(payload), nil
}
