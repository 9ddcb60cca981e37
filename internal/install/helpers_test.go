package install

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/uniconv/uniconv/internal/depcheck"
	"github.com/uniconv/uniconv/internal/errdefs"
	"github.com/uniconv/uniconv/internal/manifest"
	"github.com/uniconv/uniconv/internal/userdata"
)

type archiveFile struct {
	name string
	body string
	mode int64
}

func tarGz(t *testing.T, files ...archiveFile) []byte {
	t.Helper()
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gz)
	for _, f := range files {
		mode := f.mode
		if mode == 0 {
			mode = 0644
		}
		require.NoError(t, tw.WriteHeader(&tar.Header{
			Name:     f.name,
			Mode:     mode,
			Size:     int64(len(f.body)),
			Typeflag: tar.TypeReg,
		}))
		_, err := tw.Write([]byte(f.body))
		require.NoError(t, err)
	}
	require.NoError(t, tw.Close())
	require.NoError(t, gz.Close())
	return buf.Bytes()
}

// cliPlugin builds a CLI plugin archive wrapped in a top-level directory.
func cliPlugin(t *testing.T, name, version string) []byte {
	return tarGz(t,
		archiveFile{name: name + "-" + version + "/plugin.json", body: fmt.Sprintf(`{"name": %q, "version": %q, "interface": "cli", "executable": "bin/%s"}`, name, version, name)},
		archiveFile{name: name + "-" + version + "/bin/" + name, body: "#!/bin/sh\necho " + version + "\n", mode: 0644},
	)
}

func nativePlugin(t *testing.T, name, version string) []byte {
	return tarGz(t,
		archiveFile{name: "plugin.yaml", body: fmt.Sprintf("name: %s\nversion: %s\ninterface: native\nlibrary: lib%s.so\n", name, version, name)},
		archiveFile{name: "lib" + name + ".so", body: "\x7fELF"},
	)
}

func digest(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// artifactServer serves artifacts by path and counts downloads.
type artifactServer struct {
	*httptest.Server
	mu    sync.Mutex
	files map[string][]byte
	hits  map[string]int
}

func newArtifactServer(t *testing.T) *artifactServer {
	s := &artifactServer{files: make(map[string][]byte), hits: make(map[string]int)}
	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		body, ok := s.files[r.URL.Path]
		s.hits[r.URL.Path]++
		s.mu.Unlock()
		if !ok {
			http.NotFound(w, r)
			return
		}
		w.Write(body)
	}))
	t.Cleanup(s.Close)
	return s
}

// publish serves data at /<file> and returns the artifact pointing at it.
func (s *artifactServer) publish(file string, data []byte) manifest.Artifact {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.files["/"+file] = data
	return manifest.Artifact{URL: s.URL + "/" + file, SHA256: digest(data)}
}

func (s *artifactServer) totalHits() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, h := range s.hits {
		n += h
	}
	return n
}

// fakeManifests is an in-memory ManifestSource.
type fakeManifests struct {
	mu        sync.Mutex
	manifests map[string]*manifest.Manifest
}

func (f *fakeManifests) GetManifest(_ context.Context, name string) (*manifest.Manifest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := f.manifests[name]
	if !ok {
		return nil, errdefs.Kind(errdefs.ErrNotFound, "%s", name)
	}
	return m, nil
}

func (f *fakeManifests) add(m *manifest.Manifest) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.manifests == nil {
		f.manifests = make(map[string]*manifest.Manifest)
	}
	f.manifests[m.Name] = m
}

type fakeChecker struct {
	status depcheck.Status
}

func (f fakeChecker) Check(_ context.Context, deps []manifest.Dependency) depcheck.Report {
	report := make(depcheck.Report, len(deps))
	for i, d := range deps {
		report[i] = depcheck.Result{Dependency: d, Status: f.status}
	}
	return report
}

type fixture struct {
	layout    userdata.Layout
	server    *artifactServer
	manifests *fakeManifests
	engine    *Engine
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	root := t.TempDir()
	f := &fixture{
		layout:    userdata.NewLayout(filepath.Join(root, "plugins"), filepath.Join(root, "cache")),
		server:    newArtifactServer(t),
		manifests: &fakeManifests{},
	}
	opts = append([]Option{
		WithHTTPClient(f.server.Client()),
		WithPlatform("linux-x86_64"),
		WithClientVersion("0.6.0"),
		WithChecker(fakeChecker{status: depcheck.StatusSatisfied}),
	}, opts...)
	f.engine = New(f.layout, f.manifests, opts...)
	return f
}

// publishASCII registers ascii with releases 1.2.0 and 1.1.0 (newest first).
func (f *fixture) publishASCII(t *testing.T) {
	t.Helper()
	f.manifests.add(&manifest.Manifest{
		Name: "ascii",
		Releases: []manifest.Release{
			{
				Version:   "1.2.0",
				Interface: manifest.InterfaceCLI,
				Dependencies: []manifest.Dependency{
					{Name: "python3", Kind: manifest.KindSystem},
				},
				Artifacts: map[string]manifest.Artifact{
					manifest.PlatformAny: f.server.publish("ascii-1.2.0.tar.gz", cliPlugin(t, "ascii", "1.2.0")),
				},
			},
			{
				Version:   "1.1.0",
				Interface: manifest.InterfaceCLI,
				Artifacts: map[string]manifest.Artifact{
					manifest.PlatformAny: f.server.publish("ascii-1.1.0.tar.gz", cliPlugin(t, "ascii", "1.1.0")),
				},
			},
		},
	})
}
