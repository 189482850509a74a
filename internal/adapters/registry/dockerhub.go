package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	masterminds "github.com/Masterminds/semver/v3"
	"github.com/melih/bpimage/internal/core/domain"
	"github.com/melih/bpimage/internal/core/ports"
	"github.com/samber/lo"
)

// DefaultURL is the public Docker Hub API.
const DefaultURL = "https://registry.hub.docker.com"

// tagsResponse matches the Docker Hub v2 tags list API.
type tagsResponse struct {
	Results []tagResult `json:"results"`
}

type tagResult struct {
	Name string `json:"name"`
}

// DockerHub resolves the latest released tag of an image repository.
type DockerHub struct {
	baseURL string
	image   string
	client  *http.Client
}

var _ ports.TagResolver = (*DockerHub)(nil)

// NewDockerHub creates a resolver for image (e.g. "botpress/server") against baseURL.
func NewDockerHub(baseURL, image string, timeout time.Duration) *DockerHub {
	if baseURL == "" {
		baseURL = DefaultURL
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &DockerHub{
		baseURL: strings.TrimRight(baseURL, "/"),
		image:   image,
		client:  &http.Client{Timeout: timeout},
	}
}

// LatestTag returns the highest stable version tag published for the image.
func (d *DockerHub) LatestTag(ctx context.Context) (string, error) {
	namespace, repo := splitNamespace(d.image)
	url := fmt.Sprintf("%s/v2/repositories/%s/%s/tags?page_size=100&ordering=-last_updated", d.baseURL, namespace, repo)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", domain.NewError(domain.KindTagResolution, "create tags request", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		return "", domain.NewError(domain.KindTagResolution, "GET "+url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", domain.NewError(domain.KindTagResolution, fmt.Sprintf("GET %s: status %d", url, resp.StatusCode), nil)
	}

	var tags tagsResponse
	if err := json.NewDecoder(resp.Body).Decode(&tags); err != nil {
		return "", domain.NewError(domain.KindTagResolution, "decode tags", err)
	}

	latest, ok := Latest(lo.Map(tags.Results, func(r tagResult, _ int) string {
		return r.Name
	}))
	if !ok {
		return "", domain.NewError(domain.KindTagResolution, fmt.Sprintf("no released version tag found for %s", d.image), nil)
	}
	return latest, nil
}

// Latest picks the highest stable semver tag, returning it in its raw form.
// Botpress style tags ("v12_26_7") are understood.
func Latest(tags []string) (string, bool) {
	var (
		best    *masterminds.Version
		bestRaw string
	)
	for _, raw := range tags {
		v := parseTag(raw)
		if v == nil || v.Prerelease() != "" {
			continue
		}
		if best == nil || v.GreaterThan(best) {
			best, bestRaw = v, raw
		}
	}
	return bestRaw, best != nil
}

func parseTag(tag string) *masterminds.Version {
	clean := strings.TrimPrefix(tag, "v")
	clean = strings.ReplaceAll(clean, "_", ".")
	v, err := masterminds.StrictNewVersion(clean)
	if err != nil {
		return nil
	}
	return v
}

// splitNamespace splits "botpress/server" into ("botpress", "server").
// Official images live under "library".
func splitNamespace(image string) (string, string) {
	image = strings.TrimPrefix(image, "docker.io/")
	image = strings.TrimPrefix(image, "index.docker.io/")

	parts := strings.SplitN(image, "/", 2)
	if len(parts) == 1 {
		return "library", parts[0]
	}
	return parts[0], parts[1]
}
