package builder

import (
	"archive/tar"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/melih/bpimage/internal/core/domain"
	"github.com/moby/go-archive"
)

const (
	// DockerfileName is the build descriptor entry added to every context.
	DockerfileName = "Dockerfile"
	// BaseImage is the repository bare base tags refer to.
	BaseImage = "botpress/server"
	// DataDir is where the export lands inside the image.
	DataDir = "/botpress/data"
)

// MakeDockerfile renders the build descriptor for baseImage. A bare tag
// ("v12_26_7") refers to BaseImage; a full reference is used as is.
func MakeDockerfile(baseImage string) string {
	ref := baseImage
	if !strings.ContainsAny(ref, ":/@") {
		ref = BaseImage + ":" + ref
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "FROM %s\n", ref)
	fmt.Fprintf(&sb, "COPY . %s/\n", DataDir)
	fmt.Fprintf(&sb, "RUN rm -f %s/%s\n", DataDir, DockerfileName)
	return sb.String()
}

// ContextStream is a tar build context produced by ProcessTar.
// Reads fail with a Packaging error once the source stream or its tar
// framing fails; Err reports that error afterwards.
type ContextStream struct {
	rc io.ReadCloser

	mu  sync.Mutex
	err error
}

// ProcessTar re-streams the tar entries of source in order and appends a
// Dockerfile entry holding dockerfile. An existing Dockerfile entry is
// replaced in place. Nothing is buffered beyond a single tar block.
func ProcessTar(source io.Reader, dockerfile string, logger *slog.Logger) *ContextStream {
	rc, ok := source.(io.ReadCloser)
	if !ok {
		rc = io.NopCloser(source)
	}

	mods := map[string]archive.TarModifierFunc{
		DockerfileName: func(path string, header *tar.Header, _ io.Reader) (*tar.Header, []byte, error) {
			if header != nil {
				logger.Warn("replacing Dockerfile found in export", "path", path)
			}
			logger.Debug("adding build descriptor", "path", path, "size", len(dockerfile))
			return &tar.Header{
				Name:     path,
				Mode:     0o644,
				Typeflag: tar.TypeReg,
				ModTime:  time.Now(),
			}, []byte(dockerfile), nil
		},
	}

	return &ContextStream{rc: archive.ReplaceFileTarWrapper(rc, mods)}
}

func (c *ContextStream) Read(p []byte) (int, error) {
	n, err := c.rc.Read(p)
	if err != nil && !errors.Is(err, io.EOF) {
		err = c.fail(err)
	}
	return n, err
}

func (c *ContextStream) fail(err error) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err == nil {
		if !errors.Is(err, domain.ErrPackaging) {
			err = domain.NewError(domain.KindPackaging, "failed to assemble build context", err)
		}
		c.err = err
	}
	return c.err
}

// Err returns the first packaging failure, if any.
func (c *ContextStream) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

func (c *ContextStream) Close() error {
	return c.rc.Close()
}
