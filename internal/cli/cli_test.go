package cli

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/melih/bpimage/internal/config"
	"github.com/melih/bpimage/internal/core/domain"
	"github.com/melih/bpimage/internal/core/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeService struct {
	cfg    *config.Config
	req    ports.BuildRequest
	purged bool
}

func (f *fakeService) BuildImage(_ context.Context, req ports.BuildRequest) (string, error) {
	f.req = req
	return "bpexport:test", nil
}

func (f *fakeService) ListBuilds() []ports.BuildSummary { return nil }

func (f *fakeService) Purge() error {
	f.purged = true
	return nil
}

func newTestApp(t *testing.T, svc *fakeService, purge *bool) (*App, *bytes.Buffer) {
	t.Helper()
	t.Setenv("BPIMAGE_WORK_DIR", t.TempDir())
	app := New()
	app.newService = func(cfg *config.Config, _ *slog.Logger, p bool) (ports.BuilderService, func(), error) {
		svc.cfg = cfg
		if purge != nil {
			*purge = p
		}
		return svc, func() {}, nil
	}
	var out bytes.Buffer
	app.setOutput(&out, &out)
	return app, &out
}

func TestBuildOptions_Validate(t *testing.T) {
	tests := []struct {
		name    string
		opts    BuildOptions
		wantErr string
	}{
		{"archive", BuildOptions{Archive: "x.tgz"}, ""},
		{"url", BuildOptions{URL: "http://bp", Token: "t"}, ""},
		{"repo with ref", BuildOptions{Repo: "https://g/r.git", Ref: "main"}, ""},
		{"none", BuildOptions{}, "is required"},
		{"two", BuildOptions{Archive: "x", URL: "http://bp", Token: "t"}, "mutually exclusive"},
		{"url without token", BuildOptions{URL: "http://bp"}, "--token"},
		{"ref without repo", BuildOptions{Archive: "x", Ref: "main"}, "--ref"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.opts.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestBuildCmd_Pull(t *testing.T) {
	svc := &fakeService{}
	var purge bool
	app, out := newTestApp(t, svc, &purge)
	app.setArgs([]string{"build", "--url", "http://bp:3000", "--token", "secret", "--base-tag", "v12_26_7", "--name", "demo"})

	require.NoError(t, app.Execute())
	assert.Equal(t, "bpexport:test\n", out.String())
	require.NotNil(t, svc.req.Pull)
	assert.Equal(t, "http://bp:3000", svc.req.Pull.URL)
	assert.Equal(t, "secret", svc.req.Pull.AuthToken)
	assert.Equal(t, "v12_26_7", svc.req.Options.BaseImageTag)
	assert.Equal(t, "demo", svc.req.Name)
	assert.True(t, purge)
}

func TestBuildCmd_NoPurge(t *testing.T) {
	svc := &fakeService{}
	purge := true
	app, _ := newTestApp(t, svc, &purge)
	app.setArgs([]string{"build", "--archive", "export.tgz", "--no-purge"})

	require.NoError(t, app.Execute())
	assert.False(t, purge)
	assert.Equal(t, "export.tgz", svc.req.ArchivePath)
}

func TestBuildCmd_DockerFlags(t *testing.T) {
	svc := &fakeService{}
	app, _ := newTestApp(t, svc, nil)
	app.setArgs([]string{"build", "--archive", "export.tgz", "--docker-host", "tcp://docker:2375", "--docker-api-version", "1.43"})

	require.NoError(t, app.Execute())
	assert.Equal(t, domain.DaemonOptions{Host: "tcp://docker:2375", APIVersion: "1.43"}, svc.req.Daemon)
}

func TestBuildCmd_DockerHostFromEnv(t *testing.T) {
	svc := &fakeService{}
	app, _ := newTestApp(t, svc, nil)
	t.Setenv("BPIMAGE_DOCKER_HOST", "unix:///run/docker.sock")
	app.setArgs([]string{"build", "--archive", "export.tgz"})

	require.NoError(t, app.Execute())
	assert.Empty(t, svc.req.Daemon.Host)
	require.NotNil(t, svc.cfg)
	assert.Equal(t, "unix:///run/docker.sock", svc.cfg.DaemonOptions().Host)
}

func TestBuildCmd_InvalidFlags(t *testing.T) {
	app, _ := newTestApp(t, &fakeService{}, nil)
	app.setArgs([]string{"build"})

	err := app.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "is required")
}

func TestPurgeCmd(t *testing.T) {
	svc := &fakeService{}
	app, _ := newTestApp(t, svc, nil)
	app.setArgs([]string{"purge"})

	require.NoError(t, app.Execute())
	assert.True(t, svc.purged)
}

func TestVersionCmd(t *testing.T) {
	app, out := newTestApp(t, &fakeService{}, nil)
	app.SetVersion("1.2.3", "abc")
	app.setArgs([]string{"version"})

	require.NoError(t, app.Execute())
	assert.Equal(t, "bpimage 1.2.3 (abc)\n", out.String())
}
