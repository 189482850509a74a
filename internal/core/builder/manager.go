package builder

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/melih/bpimage/internal/core/domain"
	"github.com/melih/bpimage/internal/core/ports"
	"github.com/samber/lo"
)

const (
	// WorkDirName is the directory under the base dir holding all build dirs.
	WorkDirName = "bp_image_builder"

	defaultPullTimeout = 500 * time.Second
	nameAttempts       = 16
)

// Manager creates builds and owns the directory tree they work in.
type Manager struct {
	root    string
	daemons ports.DaemonFactory
	tags    ports.TagResolver
	repos   ports.RepositorySource
	names   ports.NameGenerator
	http    *http.Client
	logger  *slog.Logger
	max     int

	mu     sync.Mutex
	builds []*Build
}

// ManagerOption customizes a Manager.
type ManagerOption func(*Manager)

// WithNameGenerator replaces the generator used for unnamed builds.
func WithNameGenerator(g ports.NameGenerator) ManagerOption {
	return func(m *Manager) { m.names = g }
}

func WithLogger(l *slog.Logger) ManagerOption {
	return func(m *Manager) { m.logger = l }
}

// WithRepositorySource enables Build.ReadRepository.
func WithRepositorySource(s ports.RepositorySource) ManagerOption {
	return func(m *Manager) { m.repos = s }
}

// WithPullTimeout bounds each remote export download.
func WithPullTimeout(d time.Duration) ManagerOption {
	return func(m *Manager) { m.http = &http.Client{Timeout: d} }
}

// WithMaxBuilds bounds the registry. When full, the oldest build is dropped
// and its daemon connection closed; its directory is left alone.
// Zero means unbounded.
func WithMaxBuilds(n int) ManagerOption {
	return func(m *Manager) { m.max = n }
}

// NewManager creates a manager rooted at <baseDir>/bp_image_builder.
// An empty baseDir means the OS temp directory.
func NewManager(baseDir string, daemons ports.DaemonFactory, tags ports.TagResolver, opts ...ManagerOption) *Manager {
	if baseDir == "" {
		baseDir = os.TempDir()
	}
	m := &Manager{
		root:    filepath.Join(baseDir, WorkDirName),
		daemons: daemons,
		tags:    tags,
		names:   PetNames{},
		http:    &http.Client{Timeout: defaultPullTimeout},
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Root is the directory holding every build directory.
func (m *Manager) Root() string { return m.root }

// Initialize prepares the work tree, purging it first when purge is set.
func (m *Manager) Initialize(purge bool) error {
	if purge {
		return m.PurgeDir()
	}
	return nil
}

// PurgeDir deletes and recreates the root directory and forgets every
// registered build. It fails while any build is running.
func (m *Manager) PurgeDir() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, b := range m.builds {
		b.mu.Lock()
	}
	if active, ok := lo.Find(m.builds, (*Build).activeLocked); ok {
		m.unlockBuilds()
		return domain.NewError(domain.KindDirectory,
			fmt.Sprintf("unable to purge build directory while build %q is running", active.name), domain.ErrBuildActive)
	}
	for _, b := range m.builds {
		if b.closed {
			continue
		}
		b.closed = true
		if err := b.daemon.Close(); err != nil {
			m.logger.Warn("failed to close daemon connection", "build", b.name, "error", err)
		}
	}
	m.unlockBuilds()
	m.builds = nil

	if err := os.RemoveAll(m.root); err != nil {
		return domain.NewError(domain.KindDirectory, "unable to purge build directory", err)
	}
	if err := os.MkdirAll(m.root, 0o755); err != nil {
		return domain.NewError(domain.KindDirectory, "unable to create temporary build directory", err)
	}
	m.logger.Info("purged build directory", "dir", m.root)
	return nil
}

func (m *Manager) unlockBuilds() {
	for _, b := range m.builds {
		b.mu.Unlock()
	}
}

// Create registers a new build in its own directory. An empty name gets a
// generated one.
func (m *Manager) Create(opts domain.DaemonOptions, name string) (*Build, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := os.MkdirAll(m.root, 0o755); err != nil {
		return nil, domain.NewError(domain.KindDirectory, "unable to create temporary build directory", err)
	}

	if name == "" {
		generated, err := m.uniqueName()
		if err != nil {
			return nil, err
		}
		name = generated
	} else if err := m.checkName(name, false); err != nil {
		return nil, err
	}

	dir := filepath.Join(m.root, name)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, domain.NewError(domain.KindDirectory, fmt.Sprintf("unable to create build directory %s", dir), err)
	}

	daemon, err := m.daemons(opts)
	if err != nil {
		return nil, domain.NewError(domain.KindDaemonUnreachable, "could not create docker client", err)
	}

	b := &Build{
		dir:    dir,
		name:   name,
		daemon: daemon,
		tags:   m.tags,
		repos:  m.repos,
		http:   m.http,
		logger: m.logger.With("build", name),
	}
	m.register(b)
	m.logger.Debug("build created", "build", name, "dir", dir)
	return b, nil
}

func (m *Manager) register(b *Build) {
	m.builds = append(m.builds, b)
	if m.max <= 0 || len(m.builds) <= m.max {
		return
	}
	evicted := m.builds[:len(m.builds)-m.max]
	m.builds = append([]*Build(nil), m.builds[len(evicted):]...)
	for _, old := range evicted {
		m.logger.Debug("evicting build", "build", old.name)
		old.Close()
	}
}

func (m *Manager) uniqueName() (string, error) {
	for i := 0; i < nameAttempts; i++ {
		name := m.names.Generate()
		if m.checkName(name, true) == nil {
			return name, nil
		}
	}
	return "", domain.NewError(domain.KindDirectory, "could not generate an unused build name", nil)
}

// checkName rejects names that escape the root or are already registered.
// With fresh set, a leftover directory of that name also counts as taken.
func (m *Manager) checkName(name string, fresh bool) error {
	if name == "." || name == ".." || strings.ContainsAny(name, `/\`) {
		return domain.NewError(domain.KindDirectory, fmt.Sprintf("invalid build name %q", name), nil)
	}
	if _, taken := m.lookup(name); taken {
		return domain.NewError(domain.KindDirectory, fmt.Sprintf("build %q already exists", name), nil)
	}
	if !fresh {
		return nil
	}
	if _, err := os.Stat(filepath.Join(m.root, name)); err == nil {
		return domain.NewError(domain.KindDirectory, fmt.Sprintf("build directory for %q already exists", name), nil)
	} else if !errors.Is(err, os.ErrNotExist) {
		return domain.NewError(domain.KindDirectory, "unable to inspect build directory", err)
	}
	return nil
}

func (m *Manager) lookup(name string) (*Build, bool) {
	return lo.Find(m.builds, func(b *Build) bool { return b.name == name })
}

// Get returns the registered build called name.
func (m *Manager) Get(name string) (*Build, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lookup(name)
}

// Builds returns the registered builds in creation order.
func (m *Manager) Builds() []*Build {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*Build(nil), m.builds...)
}

// Close releases every build's daemon connection.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return errors.Join(lo.Map(m.builds, func(b *Build, _ int) error { return b.Close() })...)
}
