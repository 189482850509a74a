package docker

import (
	"context"
	"fmt"
	"io"

	"github.com/docker/docker/api/types/build"
	"github.com/docker/docker/client"
	"github.com/melih/bpimage/internal/core/domain"
	"github.com/melih/bpimage/internal/core/ports"
)

// Adapter implements ports.Daemon using the Docker SDK
type Adapter struct {
	cli *client.Client
}

var _ ports.Daemon = (*Adapter)(nil)

// NewAdapter creates a Docker adapter for the given connection options.
// Options left empty are taken from the environment.
func NewAdapter(opts domain.DaemonOptions) (*Adapter, error) {
	clientOpts := []client.Opt{client.FromEnv}
	if opts.Host != "" {
		clientOpts = append(clientOpts, client.WithHost(opts.Host))
	}
	if opts.APIVersion != "" {
		clientOpts = append(clientOpts, client.WithVersion(opts.APIVersion))
	} else {
		clientOpts = append(clientOpts, client.WithAPIVersionNegotiation())
	}

	cli, err := client.NewClientWithOpts(clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create docker client: %w", err)
	}
	return &Adapter{cli: cli}, nil
}

// Factory matches ports.DaemonFactory.
func Factory(opts domain.DaemonOptions) (ports.Daemon, error) {
	return NewAdapter(opts)
}

// Ping checks that the Docker daemon answers
func (a *Adapter) Ping(ctx context.Context) error {
	if _, err := a.cli.Ping(ctx); err != nil {
		return fmt.Errorf("failed to ping docker daemon: %w", err)
	}
	return nil
}

// ImageBuild starts an image build and returns the daemon's JSON message stream.
// The build context is streamed to the daemon as it is read.
func (a *Adapter) ImageBuild(ctx context.Context, buildContext io.Reader, tag string) (io.ReadCloser, error) {
	resp, err := a.cli.ImageBuild(ctx, buildContext, build.ImageBuildOptions{
		Tags:       []string{tag},
		Dockerfile: "Dockerfile",
		Remove:     true, // Remove intermediate containers
	})
	if err != nil {
		return nil, fmt.Errorf("failed to build image: %w", err)
	}
	return resp.Body, nil
}

// Close releases the underlying client connection
func (a *Adapter) Close() error {
	return a.cli.Close()
}
