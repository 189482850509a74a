package http

import (
	"errors"
	"log/slog"

	"github.com/gofiber/fiber/v2"
	"github.com/melih/bpimage/internal/core/domain"
	"github.com/melih/bpimage/internal/core/ports"
	"github.com/melih/bpimage/internal/logging"
)

type BuildHandler struct {
	builder ports.BuilderService
	logger  *slog.Logger
}

func NewBuildHandler(builder ports.BuilderService, logger *slog.Logger) *BuildHandler {
	return &BuildHandler{builder: builder, logger: logger}
}

// Register mounts the build routes on router.
func (h *BuildHandler) Register(router fiber.Router) {
	builds := router.Group("/builds")
	builds.Get("/", h.ListBuilds)
	builds.Post("/", h.CreateBuild)
	builds.Delete("/", h.PurgeBuilds)
}

type CreateBuildRequest struct {
	Name    string `json:"name"`
	URL     string `json:"url"` // Botpress server to pull the export from
	Token   string `json:"token"`
	RepoURL string `json:"repo_url"` // Git repository holding an export
	Ref     string `json:"ref"`
	BaseTag string `json:"base_tag"`
	Tag     string `json:"tag"`
}

func (h *BuildHandler) CreateBuild(c *fiber.Ctx) error {
	var req CreateBuildRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}
	if req.URL == "" && req.RepoURL == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "url or repo_url is required",
		})
	}

	buildReq := ports.BuildRequest{
		Name:    req.Name,
		RepoURL: req.RepoURL,
		Ref:     req.Ref,
		Options: domain.BuildOptions{BaseImageTag: req.BaseTag, OutputTag: req.Tag},
	}
	if req.URL != "" {
		buildReq.Pull = &domain.PullConfig{URL: req.URL, AuthToken: req.Token}
	}

	// Note: This is a blocking operation and might take minutes.
	ctx := logging.With(c.UserContext(), h.logger.With("remote", c.IP()))
	tag, err := h.builder.BuildImage(ctx, buildReq)
	if err != nil {
		return c.Status(statusFor(err)).JSON(fiber.Map{
			"error": err.Error(),
			"kind":  domain.KindOf(err),
		})
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"tag": tag,
	})
}

func (h *BuildHandler) ListBuilds(c *fiber.Ctx) error {
	return c.JSON(h.builder.ListBuilds())
}

func (h *BuildHandler) PurgeBuilds(c *fiber.Ctx) error {
	if err := h.builder.Purge(); err != nil {
		return c.Status(statusFor(err)).JSON(fiber.Map{
			"error": err.Error(),
			"kind":  domain.KindOf(err),
		})
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// statusFor maps pipeline failures to HTTP statuses.
func statusFor(err error) int {
	if errors.Is(err, domain.ErrBuildActive) {
		return fiber.StatusConflict
	}
	var e *domain.Error
	if !errors.As(err, &e) {
		return fiber.StatusInternalServerError
	}
	switch e.Kind {
	case domain.KindNotFound:
		return fiber.StatusNotFound
	case domain.KindRemoteFetch, domain.KindTagResolution:
		return fiber.StatusBadGateway
	case domain.KindDaemonUnreachable:
		return fiber.StatusServiceUnavailable
	case domain.KindBuild, domain.KindPackaging:
		return fiber.StatusUnprocessableEntity
	default:
		return fiber.StatusInternalServerError
	}
}
