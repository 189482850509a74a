package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"github.com/melih/bpimage/internal/adapters/docker"
	"github.com/melih/bpimage/internal/adapters/gitsource"
	"github.com/melih/bpimage/internal/adapters/http"
	"github.com/melih/bpimage/internal/adapters/registry"
	"github.com/melih/bpimage/internal/config"
	"github.com/melih/bpimage/internal/core/builder"
	"github.com/melih/bpimage/internal/logging"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	logger := logging.NewLogger(cfg.ServiceName, cfg.LogLevel, cfg.Environment)
	slog.SetDefault(logger)

	// 1. Initialize Adapters (Infrastructure)
	tags := registry.NewDockerHub(cfg.RegistryURL, cfg.BaseImage, cfg.TagTimeout)
	manager := builder.NewManager(cfg.WorkDir, docker.Factory, tags,
		builder.WithLogger(logger),
		builder.WithPullTimeout(cfg.PullTimeout),
		builder.WithMaxBuilds(cfg.MaxBuilds),
		builder.WithRepositorySource(gitsource.NewAdapter(logger)),
	)
	if err := manager.Initialize(cfg.PurgeOnStart); err != nil {
		logger.Error("failed to initialize work directory", "error", err)
		os.Exit(1)
	}
	defer manager.Close()

	// 2. Initialize HTTP Handlers, injecting the builder service
	svc := builder.NewService(manager, builder.WithDaemonDefaults(cfg.DaemonOptions()))
	buildHandler := http.NewBuildHandler(svc, logger)

	// 3. Setup Framework (Fiber)
	app := fiber.New(fiber.Config{DisableStartupMessage: true})
	buildHandler.Register(app.Group("/api").Group("/v1"))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go func() {
		<-ctx.Done()
		logger.Info("shutting down")
		app.Shutdown()
	}()

	// 4. Start Server
	logger.Info("server starting", "addr", cfg.HTTPAddr, "work_dir", manager.Root())
	if err := app.Listen(cfg.HTTPAddr); err != nil {
		logger.Error("server failed", "error", err)
		os.Exit(1)
	}
}
