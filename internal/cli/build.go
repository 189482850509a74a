package cli

import (
	"errors"
	"fmt"

	"github.com/melih/bpimage/internal/core/domain"
	"github.com/melih/bpimage/internal/core/ports"
	"github.com/melih/bpimage/internal/logging"
	"github.com/spf13/cobra"
)

// BuildOptions holds flags for the build command
type BuildOptions struct {
	Archive string
	URL     string
	Token   string
	Repo    string
	Ref     string
	BaseTag string
	Tag     string
	Name    string
	NoPurge bool

	DockerHost       string
	DockerAPIVersion string
}

// Validate checks that exactly one export source is selected
func (o BuildOptions) Validate() error {
	sources := 0
	for _, s := range []string{o.Archive, o.URL, o.Repo} {
		if s != "" {
			sources++
		}
	}
	switch {
	case sources == 0:
		return errors.New("one of --archive, --url or --repo is required")
	case sources > 1:
		return errors.New("--archive, --url and --repo are mutually exclusive")
	case o.URL != "" && o.Token == "":
		return errors.New("--token is required with --url")
	case o.Ref != "" && o.Repo == "":
		return errors.New("--ref only applies to --repo")
	}
	return nil
}

func (o BuildOptions) request() ports.BuildRequest {
	req := ports.BuildRequest{
		Name:        o.Name,
		ArchivePath: o.Archive,
		RepoURL:     o.Repo,
		Ref:         o.Ref,
		Daemon:      domain.DaemonOptions{Host: o.DockerHost, APIVersion: o.DockerAPIVersion},
		Options:     domain.BuildOptions{BaseImageTag: o.BaseTag, OutputTag: o.Tag},
	}
	if o.URL != "" {
		req.Pull = &domain.PullConfig{URL: o.URL, AuthToken: o.Token}
	}
	return req
}

func (a *App) newBuildCmd() *cobra.Command {
	opts := BuildOptions{}

	cmd := &cobra.Command{
		Use:   "build",
		Short: "Build an image from a Botpress export",
		Example: `  bpimage build --archive ./export.tgz
  bpimage build --url https://bp.example.com --token $BP_TOKEN --tag mybot:1.0
  bpimage build --repo https://git.example.com/bots.git --ref v3`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := opts.Validate(); err != nil {
				return err
			}

			cfg, logger, err := a.load()
			if err != nil {
				return err
			}
			svc, release, err := a.newService(cfg, logger, cfg.PurgeOnStart && !opts.NoPurge)
			if err != nil {
				return err
			}
			defer release()

			ctx := logging.With(cmd.Context(), logger)
			tag, err := svc.BuildImage(ctx, opts.request())
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), tag)
			return nil
		},
	}

	cmd.Flags().StringVar(&opts.Archive, "archive", "", "Path to a local export archive (.tgz or .tar)")
	cmd.Flags().StringVar(&opts.URL, "url", "", "Botpress server to pull the export from")
	cmd.Flags().StringVar(&opts.Token, "token", "", "Admin bearer token for --url")
	cmd.Flags().StringVar(&opts.Repo, "repo", "", "Git repository holding an export")
	cmd.Flags().StringVar(&opts.Ref, "ref", "", "Branch, tag or commit of --repo")
	cmd.Flags().StringVar(&opts.BaseTag, "base-tag", "", "botpress/server tag to build on (default: latest release)")
	cmd.Flags().StringVarP(&opts.Tag, "tag", "t", "", "Output image tag (default: bpexport:<name>)")
	cmd.Flags().StringVar(&opts.Name, "name", "", "Build name (default: generated)")
	cmd.Flags().BoolVar(&opts.NoPurge, "no-purge", false, "Keep previous build directories")
	cmd.Flags().StringVar(&opts.DockerHost, "docker-host", "", "Docker daemon address (default: BPIMAGE_DOCKER_HOST, then DOCKER_HOST)")
	cmd.Flags().StringVar(&opts.DockerAPIVersion, "docker-api-version", "", "Docker API version (default: negotiated)")

	return cmd
}

func (a *App) newPurgeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "purge",
		Short: "Remove all build directories",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := a.load()
			if err != nil {
				return err
			}
			svc, release, err := a.newService(cfg, logger, false)
			if err != nil {
				return err
			}
			defer release()
			return svc.Purge()
		},
	}
}
