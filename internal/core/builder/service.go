package builder

import (
	"context"
	"errors"
	"io"

	"github.com/melih/bpimage/internal/core/domain"
	"github.com/melih/bpimage/internal/core/ports"
	"github.com/melih/bpimage/internal/logging"
	"github.com/samber/lo"
)

// ErrNoSource is returned when a build request names no export source.
var ErrNoSource = errors.New("an archive path, pull url or repository url is required")

// Service implements ports.BuilderService on top of a Manager.
type Service struct {
	manager *Manager
	daemon  domain.DaemonOptions
}

var _ ports.BuilderService = (*Service)(nil)

// ServiceOption customizes a Service.
type ServiceOption func(*Service)

// WithDaemonDefaults sets the daemon connection used for requests that leave
// Host or APIVersion empty.
func WithDaemonDefaults(opts domain.DaemonOptions) ServiceOption {
	return func(s *Service) { s.daemon = opts }
}

func NewService(manager *Manager, opts ...ServiceOption) *Service {
	s := &Service{manager: manager}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// BuildImage creates a build, opens the requested export source and runs the
// build to completion. The build's daemon connection is closed afterwards;
// the build stays registered for listing.
func (s *Service) BuildImage(ctx context.Context, req ports.BuildRequest) (string, error) {
	if req.ArchivePath == "" && req.Pull == nil && req.RepoURL == "" {
		return "", ErrNoSource
	}

	logger := logging.From(ctx)

	b, err := s.manager.Create(s.daemonOptions(req.Daemon), req.Name)
	if err != nil {
		logger.Error("failed to create build", "error", err)
		return "", err
	}
	defer b.Close()
	logger.Info("build started", "build", b.Name())

	source, err := s.open(ctx, b, req)
	if err != nil {
		b.fail(err)
		return "", err
	}
	defer source.Close()

	tag, err := b.Build(ctx, source, req.Options)
	if err != nil {
		return "", err
	}
	logger.Info("build finished", "build", b.Name(), "tag", tag)
	return tag, nil
}

func (s *Service) daemonOptions(opts domain.DaemonOptions) domain.DaemonOptions {
	if opts.Host == "" {
		opts.Host = s.daemon.Host
	}
	if opts.APIVersion == "" {
		opts.APIVersion = s.daemon.APIVersion
	}
	return opts
}

func (s *Service) open(ctx context.Context, b *Build, req ports.BuildRequest) (io.ReadCloser, error) {
	switch {
	case req.ArchivePath != "":
		return b.ReadLocal(req.ArchivePath)
	case req.Pull != nil:
		return b.ReadRemote(ctx, *req.Pull)
	default:
		return b.ReadRepository(ctx, req.RepoURL, req.Ref)
	}
}

// ListBuilds summarizes every registered build.
func (s *Service) ListBuilds() []ports.BuildSummary {
	return lo.Map(s.manager.Builds(), func(b *Build, _ int) ports.BuildSummary {
		tag, err := b.Result()
		summary := ports.BuildSummary{
			Name:  b.Name(),
			Dir:   b.Dir(),
			State: b.State().String(),
			Tag:   tag,
		}
		if err != nil {
			summary.Error = err.Error()
		}
		return summary
	})
}

// Purge empties the manager's work tree.
func (s *Service) Purge() error {
	return s.manager.PurgeDir()
}
