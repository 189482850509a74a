package ports

import (
	"context"
	"io"

	"github.com/melih/bpimage/internal/core/domain"
)

// Daemon defines the container-build daemon operations a Build needs.
// This interface allows us to switch between Docker and any compatible
// build service without changing the orchestration logic.
type Daemon interface {
	// Ping checks the daemon is reachable.
	Ping(ctx context.Context) error
	// ImageBuild submits a tar build context and returns the live JSON event stream.
	// It returns as soon as the daemon accepted the request.
	ImageBuild(ctx context.Context, buildContext io.Reader, tag string) (io.ReadCloser, error)
	Close() error
}

// DaemonFactory opens a daemon connection for a new Build.
type DaemonFactory func(opts domain.DaemonOptions) (Daemon, error)

// TagResolver looks up the most recent known base image tag.
type TagResolver interface {
	LatestTag(ctx context.Context) (string, error)
}

// NameGenerator produces human-readable build names.
type NameGenerator interface {
	Generate() string
}

// RepositorySource fetches a bot export kept in a git repository into dir
// and returns it as a tar stream.
type RepositorySource interface {
	Fetch(ctx context.Context, url, ref, dir string) (io.ReadCloser, error)
}
