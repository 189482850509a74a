package builder

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"sync"

	"github.com/melih/bpimage/internal/core/domain"
	"github.com/melih/bpimage/internal/core/ports"
)

// OutputTagPrefix prefixes default output tags, followed by the build name.
const OutputTagPrefix = "bpexport:"

// Build is one image build unit bound to its own work directory and daemon
// connection. Created by Manager.Create.
type Build struct {
	dir    string
	name   string
	daemon ports.Daemon
	tags   ports.TagResolver
	repos  ports.RepositorySource
	http   *http.Client
	logger *slog.Logger

	mu       sync.Mutex
	state    domain.State
	tag      string
	err      error
	closed   bool
	fetching int
}

// Dir is the build's work directory.
func (b *Build) Dir() string { return b.dir }

// Name is the build's unique name.
func (b *Build) Name() string { return b.name }

// State returns where the build currently is.
func (b *Build) State() domain.State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Result returns the output tag of a succeeded build or the failure of a failed one.
func (b *Build) Result() (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.tag, b.err
}

// Build turns the decompressed export tar in source into an image and returns
// its tag. Empty options are resolved: the base tag from the tag resolver,
// the output tag as "bpexport:<name>". Any failure is final for this run.
func (b *Build) Build(ctx context.Context, source io.Reader, opts domain.BuildOptions) (string, error) {
	if err := b.start(); err != nil {
		return "", err
	}
	if err := b.daemon.Ping(ctx); err != nil {
		return "", b.fail(domain.NewError(domain.KindDaemonUnreachable, "could not communicate with the docker daemon", err))
	}

	b.transition(domain.StateResolvingTags)
	outputTag := opts.OutputTag
	if outputTag == "" {
		outputTag = OutputTagPrefix + b.name
	}
	baseTag := opts.BaseImageTag
	if baseTag == "" {
		latest, err := b.tags.LatestTag(ctx)
		if err != nil {
			if !errors.Is(err, domain.ErrTagResolution) {
				err = domain.NewError(domain.KindTagResolution, "failed to resolve latest base image tag", err)
			}
			return "", b.fail(err)
		}
		baseTag = latest
	}
	b.logger.Info("creating docker image", "tag", outputTag, "base", baseTag)

	b.transition(domain.StatePackaging)
	buildContext := ProcessTar(source, MakeDockerfile(baseTag), b.logger.With("component", "build"))
	defer buildContext.Close()

	b.transition(domain.StateSubmitting)
	b.logger.Info("building image")
	stream, err := b.daemon.ImageBuild(ctx, buildContext, outputTag)
	if err != nil {
		if pkgErr := buildContext.Err(); pkgErr != nil {
			return "", b.fail(pkgErr)
		}
		return "", b.fail(domain.NewError(domain.KindBuild, "failed to submit build", err))
	}
	monitor := Watch(stream, b.logger.With("component", "docker"))

	b.transition(domain.StateMonitoring)
	latched, completionErr := monitor.Wait()
	switch {
	case buildContext.Err() != nil:
		return "", b.fail(buildContext.Err())
	case latched != "":
		return "", b.fail(&domain.Error{Kind: domain.KindBuild, Message: latched, Err: completionErr})
	case completionErr != nil:
		return "", b.fail(domain.NewError(domain.KindBuild, "build did not complete", completionErr))
	}

	b.mu.Lock()
	b.state, b.tag, b.err = domain.StateSucceeded, outputTag, nil
	b.mu.Unlock()
	b.logger.Info("image built", "tag", outputTag)
	return outputTag, nil
}

// start moves the build to Pinging unless it has been released.
func (b *Build) start() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return b.fail(domain.NewError(domain.KindDirectory, "build has been released", nil))
	}
	b.state = domain.StatePinging
	b.mu.Unlock()
	b.logger.Debug("build state", "state", domain.StatePinging.String())
	return nil
}

// acquire marks the build directory as in use until release is called.
func (b *Build) acquire() (release func(), err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, domain.NewError(domain.KindDirectory, "build has been released", nil)
	}
	b.fetching++
	return func() {
		b.mu.Lock()
		b.fetching--
		b.mu.Unlock()
	}, nil
}

// activeLocked reports whether the build is using its directory. b.mu must be held.
func (b *Build) activeLocked() bool {
	return b.state.Active() || b.fetching > 0
}

func (b *Build) transition(s domain.State) {
	b.mu.Lock()
	b.state = s
	b.mu.Unlock()
	b.logger.Debug("build state", "state", s.String())
}

func (b *Build) fail(err error) error {
	b.mu.Lock()
	b.state, b.err = domain.StateFailed, err
	b.mu.Unlock()
	b.logger.Error("build failed", "error", err)
	return err
}

// Close releases the daemon connection. It is safe to call more than once.
func (b *Build) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	return b.daemon.Close()
}
