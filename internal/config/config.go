package config

import (
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/melih/bpimage/internal/core/domain"
)

// Config holds the builder configuration, read from the environment.
type Config struct {
	ServiceName string `env:"SERVICE_NAME" envDefault:"bpimage"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`
	Environment string `env:"ENVIRONMENT" envDefault:"development"` // development, production

	WorkDir      string        `env:"BPIMAGE_WORK_DIR"` // Parent of bp_image_builder, defaults to the OS temp dir
	PurgeOnStart bool          `env:"BPIMAGE_PURGE_ON_START" envDefault:"true"`
	MaxBuilds    int           `env:"BPIMAGE_MAX_BUILDS" envDefault:"0"` // 0 keeps every build
	BaseImage    string        `env:"BPIMAGE_BASE_IMAGE" envDefault:"botpress/server"`
	RegistryURL  string        `env:"BPIMAGE_REGISTRY_URL" envDefault:"https://registry.hub.docker.com"`
	PullTimeout  time.Duration `env:"BPIMAGE_PULL_TIMEOUT" envDefault:"500s"`
	TagTimeout   time.Duration `env:"BPIMAGE_TAG_TIMEOUT" envDefault:"30s"`
	HTTPAddr     string        `env:"BPIMAGE_HTTP_ADDR" envDefault:":3000"`

	// Daemon connection. Empty values fall back to DOCKER_HOST / DOCKER_API_VERSION.
	DockerHost       string `env:"BPIMAGE_DOCKER_HOST"`
	DockerAPIVersion string `env:"BPIMAGE_DOCKER_API_VERSION"`
}

// Load parses the configuration from the environment
func Load() (*Config, error) {
	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if cfg.WorkDir == "" {
		cfg.WorkDir = os.TempDir()
	}
	if cfg.MaxBuilds < 0 {
		return nil, fmt.Errorf("BPIMAGE_MAX_BUILDS must not be negative, got %d", cfg.MaxBuilds)
	}

	return &cfg, nil
}

// DaemonOptions returns the configured daemon connection.
func (c *Config) DaemonOptions() domain.DaemonOptions {
	return domain.DaemonOptions{Host: c.DockerHost, APIVersion: c.DockerAPIVersion}
}
