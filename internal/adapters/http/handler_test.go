package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/melih/bpimage/internal/core/domain"
	"github.com/melih/bpimage/internal/core/ports"
	"github.com/melih/bpimage/internal/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeBuilder struct {
	req    ports.BuildRequest
	tag    string
	err    error
	purged   bool
	purgeErr error
	builds   []ports.BuildSummary
}

func (f *fakeBuilder) BuildImage(_ context.Context, req ports.BuildRequest) (string, error) {
	f.req = req
	return f.tag, f.err
}

func (f *fakeBuilder) ListBuilds() []ports.BuildSummary { return f.builds }

func (f *fakeBuilder) Purge() error {
	f.purged = true
	return f.purgeErr
}

func newApp(b ports.BuilderService) *fiber.App {
	app := fiber.New()
	NewBuildHandler(b, logging.Discard()).Register(app.Group("/api/v1"))
	return app
}

func decode(t *testing.T, body io.Reader) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.NewDecoder(body).Decode(&out))
	return out
}

func TestCreateBuild_Pull(t *testing.T) {
	b := &fakeBuilder{tag: "bpexport:x"}
	app := newApp(b)

	req := httptest.NewRequest("POST", "/api/v1/builds", strings.NewReader(`{"url":"http://bp:3000","token":"t","tag":"mine:1"}`))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	require.NoError(t, err)

	assert.Equal(t, fiber.StatusCreated, resp.StatusCode)
	assert.Equal(t, "bpexport:x", decode(t, resp.Body)["tag"])
	require.NotNil(t, b.req.Pull)
	assert.Equal(t, "http://bp:3000", b.req.Pull.URL)
	assert.Equal(t, "t", b.req.Pull.AuthToken)
	assert.Equal(t, "mine:1", b.req.Options.OutputTag)
}

func TestCreateBuild_Repo(t *testing.T) {
	b := &fakeBuilder{tag: "bpexport:x"}
	app := newApp(b)

	req := httptest.NewRequest("POST", "/api/v1/builds", strings.NewReader(`{"repo_url":"https://git.example.com/bots.git","ref":"main"}`))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	require.NoError(t, err)

	assert.Equal(t, fiber.StatusCreated, resp.StatusCode)
	assert.Nil(t, b.req.Pull)
	assert.Equal(t, "main", b.req.Ref)
}

func TestCreateBuild_MissingSource(t *testing.T) {
	app := newApp(&fakeBuilder{})

	req := httptest.NewRequest("POST", "/api/v1/builds", strings.NewReader(`{}`))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
}

func TestCreateBuild_ErrorKinds(t *testing.T) {
	tests := []struct {
		err    error
		status int
	}{
		{domain.NewRemoteFetchError(401, "invalid token"), fiber.StatusBadGateway},
		{domain.NewError(domain.KindDaemonUnreachable, "down", nil), fiber.StatusServiceUnavailable},
		{&domain.Error{Kind: domain.KindBuild, Message: "COPY failed"}, fiber.StatusUnprocessableEntity},
		{errors.New("other"), fiber.StatusInternalServerError},
	}
	for _, tt := range tests {
		app := newApp(&fakeBuilder{err: tt.err})
		req := httptest.NewRequest("POST", "/api/v1/builds", strings.NewReader(`{"url":"http://bp"}`))
		req.Header.Set("Content-Type", "application/json")
		resp, err := app.Test(req)
		require.NoError(t, err)

		assert.Equal(t, tt.status, resp.StatusCode, tt.err.Error())
		assert.Contains(t, decode(t, resp.Body)["error"], tt.err.Error())
	}
}

func TestListAndPurge(t *testing.T) {
	b := &fakeBuilder{builds: []ports.BuildSummary{{Name: "a", State: "succeeded"}}}
	app := newApp(b)

	resp, err := app.Test(httptest.NewRequest("GET", "/api/v1/builds", nil))
	require.NoError(t, err)
	var list []ports.BuildSummary
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&list))
	assert.Equal(t, b.builds, list)

	resp, err = app.Test(httptest.NewRequest("DELETE", "/api/v1/builds", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusNoContent, resp.StatusCode)
	assert.True(t, b.purged)
}

func TestPurge_RunningBuildConflicts(t *testing.T) {
	b := &fakeBuilder{purgeErr: domain.NewError(domain.KindDirectory, `build "busy" is running`, domain.ErrBuildActive)}
	app := newApp(b)

	resp, err := app.Test(httptest.NewRequest("DELETE", "/api/v1/builds", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusConflict, resp.StatusCode)
	body := decode(t, resp.Body)
	assert.Equal(t, string(domain.KindDirectory), body["kind"])
	assert.Contains(t, body["error"], "busy")
}
