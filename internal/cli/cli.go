package cli

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/melih/bpimage/internal/adapters/docker"
	"github.com/melih/bpimage/internal/adapters/gitsource"
	"github.com/melih/bpimage/internal/adapters/registry"
	"github.com/melih/bpimage/internal/config"
	"github.com/melih/bpimage/internal/core/builder"
	"github.com/melih/bpimage/internal/core/ports"
	"github.com/melih/bpimage/internal/logging"
	"github.com/spf13/cobra"
)

// ServiceFactory wires a builder service from configuration. The returned
// func releases it.
type ServiceFactory func(cfg *config.Config, logger *slog.Logger, purge bool) (ports.BuilderService, func(), error)

// App represents the CLI application with all wired dependencies
type App struct {
	rootCmd    *cobra.Command
	newService ServiceFactory

	verbose bool

	version string
	commit  string
}

// New creates a new CLI application
func New() *App {
	app := &App{newService: DefaultServiceFactory}
	app.setupRootCmd()
	return app
}

// Execute runs the CLI application
func (a *App) Execute() error {
	return a.rootCmd.Execute()
}

// SetVersion sets the version string for the version command
func (a *App) SetVersion(version, commit string) {
	a.version = version
	a.commit = commit
}

func (a *App) setupRootCmd() {
	a.rootCmd = &cobra.Command{
		Use:   "bpimage",
		Short: "Build container images from Botpress exports",
		Long: `bpimage packages a Botpress export, pulled from a running server,
read from disk or cloned from git, into a Docker image based on botpress/server.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	a.rootCmd.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false,
		"Verbose output")

	a.rootCmd.AddCommand(
		a.newBuildCmd(),
		a.newPurgeCmd(),
		a.newVersionCmd(),
	)
}

func (a *App) setOutput(out, errOut io.Writer) {
	a.rootCmd.SetOut(out)
	a.rootCmd.SetErr(errOut)
}

func (a *App) setArgs(args []string) {
	a.rootCmd.SetArgs(args)
}

// load reads configuration and builds the logger for a command.
func (a *App) load() (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	if a.verbose {
		cfg.LogLevel = "debug"
	}
	logger := logging.NewLogger(cfg.ServiceName, cfg.LogLevel, cfg.Environment)
	slog.SetDefault(logger)
	return cfg, logger, nil
}

func (a *App) newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "bpimage %s (%s)\n", a.version, a.commit)
		},
	}
}

// DefaultServiceFactory wires the Docker daemon, Docker Hub and git adapters.
func DefaultServiceFactory(cfg *config.Config, logger *slog.Logger, purge bool) (ports.BuilderService, func(), error) {
	tags := registry.NewDockerHub(cfg.RegistryURL, cfg.BaseImage, cfg.TagTimeout)
	manager := builder.NewManager(cfg.WorkDir, docker.Factory, tags,
		builder.WithLogger(logger),
		builder.WithPullTimeout(cfg.PullTimeout),
		builder.WithMaxBuilds(cfg.MaxBuilds),
		builder.WithRepositorySource(gitsource.NewAdapter(logger)),
	)
	if err := manager.Initialize(purge); err != nil {
		return nil, nil, err
	}
	svc := builder.NewService(manager, builder.WithDaemonDefaults(cfg.DaemonOptions()))
	return svc, func() { manager.Close() }, nil
}
