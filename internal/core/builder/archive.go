package builder

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/gzip"
	"github.com/melih/bpimage/internal/core/domain"
)

// ExportEndpoint is the Botpress admin API path serving the versioned export.
const ExportEndpoint = "/api/v2/admin/management/versioning/export"

// ReadLocal opens the archive at path as a decompressed stream.
func (b *Build) ReadLocal(path string) (io.ReadCloser, error) {
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, domain.NewError(domain.KindNotFound, fmt.Sprintf("path %s does not exist", path), nil)
		}
		return nil, domain.NewError(domain.KindNotFound, fmt.Sprintf("cannot access %s", path), err)
	}

	b.logger.Info("reading archive", "path", path)
	f, err := os.Open(path)
	if err != nil {
		return nil, domain.NewError(domain.KindNotFound, fmt.Sprintf("cannot open %s", path), err)
	}
	return gunzipMaybe(f)
}

// ReadRemote downloads the export of the Botpress server described by cfg.
// A single attempt is made; non-success responses are reported with the
// server supplied message.
func (b *Build) ReadRemote(ctx context.Context, cfg domain.PullConfig) (io.ReadCloser, error) {
	endpoint, err := exportURL(cfg.URL)
	if err != nil {
		return nil, domain.NewError(domain.KindRemoteFetch, "invalid server url", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, domain.NewError(domain.KindRemoteFetch, "create export request", err)
	}
	req.Header.Set("Authorization", "Bearer "+cfg.AuthToken)

	b.logger.Info("downloading export", "url", cfg.URL)
	resp, err := b.http.Do(req)
	if err != nil {
		return nil, domain.NewError(domain.KindRemoteFetch, "GET "+endpoint, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		return nil, domain.NewRemoteFetchError(resp.StatusCode, serverMessage(resp))
	}
	return gunzipMaybe(resp.Body)
}

// ReadRepository clones a git repository holding an export into the build
// directory and streams its working tree.
func (b *Build) ReadRepository(ctx context.Context, repoURL, ref string) (io.ReadCloser, error) {
	if b.repos == nil {
		return nil, domain.NewError(domain.KindNotFound, "no repository source configured", nil)
	}
	release, err := b.acquire()
	if err != nil {
		return nil, err
	}
	defer release()

	stream, err := b.repos.Fetch(ctx, repoURL, ref, filepath.Join(b.dir, "source"))
	if err != nil {
		return nil, domain.NewError(domain.KindRemoteFetch, "fetch export repository", err)
	}
	return stream, nil
}

func exportURL(base string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", err
	}
	if u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("%q is not an absolute url", base)
	}
	return u.ResolveReference(&url.URL{Path: ExportEndpoint}).String(), nil
}

// serverMessage extracts the "message" field of an error response, falling
// back to the status text.
func serverMessage(resp *http.Response) string {
	var body struct {
		Message string `json:"message"`
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&body); err != nil || body.Message == "" {
		return http.StatusText(resp.StatusCode)
	}
	return body.Message
}

// gunzipMaybe returns r decompressed when it starts with the gzip magic
// number and unchanged otherwise. Closing the result closes r.
func gunzipMaybe(r io.ReadCloser) (io.ReadCloser, error) {
	br := bufio.NewReader(r)
	magic, err := br.Peek(2)
	if err != nil && !errors.Is(err, io.EOF) {
		r.Close()
		return nil, domain.NewError(domain.KindPackaging, "failed to read archive header", err)
	}
	if len(magic) < 2 || magic[0] != 0x1f || magic[1] != 0x8b {
		return &readCloser{Reader: br, closers: []io.Closer{r}}, nil
	}

	gz, err := gzip.NewReader(br)
	if err != nil {
		r.Close()
		return nil, domain.NewError(domain.KindPackaging, "failed to open gzip stream", err)
	}
	return &readCloser{Reader: gz, closers: []io.Closer{gz, r}}, nil
}

type readCloser struct {
	io.Reader
	closers []io.Closer
}

func (rc *readCloser) Close() error {
	var errs []error
	for _, c := range rc.closers {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
