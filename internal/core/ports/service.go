package ports

import (
	"context"

	"github.com/melih/bpimage/internal/core/domain"
)

// BuildRequest selects the export source and tags for BuilderService.BuildImage.
// Sources are tried in order: ArchivePath, Pull, RepoURL.
type BuildRequest struct {
	Name        string
	ArchivePath string
	Pull        *domain.PullConfig
	RepoURL     string
	Ref         string
	Daemon      domain.DaemonOptions
	Options     domain.BuildOptions
}

// BuildSummary is a read-only view of a registered build.
type BuildSummary struct {
	Name  string `json:"name"`
	Dir   string `json:"dir"`
	State string `json:"state"`
	Tag   string `json:"tag,omitempty"`
	Error string `json:"error,omitempty"`
}

// BuilderService defines operations for building images from Botpress exports.
type BuilderService interface {
	// BuildImage resolves the export and builds an image from it.
	// It returns the tag of the built image or an error.
	BuildImage(ctx context.Context, req BuildRequest) (string, error)
	ListBuilds() []BuildSummary
	Purge() error
}
