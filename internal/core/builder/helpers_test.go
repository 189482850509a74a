package builder

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"testing"

	"github.com/melih/bpimage/internal/core/domain"
	"github.com/melih/bpimage/internal/core/ports"
	"github.com/melih/bpimage/internal/logging"
	"github.com/stretchr/testify/require"
)

type entry struct {
	name, body string
}

func makeTar(t *testing.T, entries ...entry) []byte {
	t.Helper()
	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)
	for _, e := range entries {
		require.NoError(t, tw.WriteHeader(&tar.Header{
			Name:     e.name,
			Mode:     0o644,
			Size:     int64(len(e.body)),
			Typeflag: tar.TypeReg,
		}))
		_, err := tw.Write([]byte(e.body))
		require.NoError(t, err)
	}
	require.NoError(t, tw.Close())
	return buf.Bytes()
}

func gzipBytes(t *testing.T, data []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	_, err := zw.Write(data)
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func readTar(t *testing.T, r io.Reader) []entry {
	t.Helper()
	var out []entry
	tr := tar.NewReader(r)
	for {
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			return out
		}
		require.NoError(t, err)
		body, err := io.ReadAll(tr)
		require.NoError(t, err)
		out = append(out, entry{name: hdr.Name, body: string(body)})
	}
}

// fakeDaemon reads the whole build context, then replays events.
type fakeDaemon struct {
	pingErr  error
	buildErr error
	events   string
	// streamErr is returned by the event stream after events are drained.
	streamErr error

	mu      sync.Mutex
	pinged  int
	builds  int
	tag     string
	context []byte
	closed  int
}

var _ ports.Daemon = (*fakeDaemon)(nil)

func (d *fakeDaemon) Ping(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.pinged++
	return d.pingErr
}

func (d *fakeDaemon) ImageBuild(ctx context.Context, buildContext io.Reader, tag string) (io.ReadCloser, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.builds++
	d.tag = tag
	data, err := io.ReadAll(buildContext)
	d.context = data
	if err != nil {
		return nil, fmt.Errorf("upload build context: %w", err)
	}
	if d.buildErr != nil {
		return nil, d.buildErr
	}
	var r io.Reader = bytes.NewBufferString(d.events)
	if d.streamErr != nil {
		r = io.MultiReader(r, &errReader{err: d.streamErr})
	}
	return io.NopCloser(r), nil
}

func (d *fakeDaemon) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed++
	return nil
}

func (d *fakeDaemon) factory() ports.DaemonFactory {
	return func(domain.DaemonOptions) (ports.Daemon, error) { return d, nil }
}

type errReader struct{ err error }

func (r *errReader) Read([]byte) (int, error) { return 0, r.err }

type fakeTags struct {
	tag   string
	err   error
	calls int
}

func (f *fakeTags) LatestTag(context.Context) (string, error) {
	f.calls++
	return f.tag, f.err
}

// sequenceNames hands out names in order, repeating the last one.
type sequenceNames struct {
	names []string
	i     int
}

func (s *sequenceNames) Generate() string {
	n := s.names[min(s.i, len(s.names)-1)]
	s.i++
	return n
}

func newTestManager(t *testing.T, d *fakeDaemon, tags ports.TagResolver, opts ...ManagerOption) *Manager {
	t.Helper()
	opts = append([]ManagerOption{WithLogger(logging.Discard())}, opts...)
	return NewManager(t.TempDir(), d.factory(), tags, opts...)
}
