package install

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/uniconv/uniconv/internal/cleanhttp"
	"github.com/uniconv/uniconv/internal/depcheck"
	"github.com/uniconv/uniconv/internal/errdefs"
	"github.com/uniconv/uniconv/internal/manifest"
)

func assertStagingEmpty(t *testing.T, f *fixture) {
	t.Helper()
	entries, err := os.ReadDir(f.layout.StagingRoot())
	if errors.Is(err, os.ErrNotExist) {
		return
	}
	require.NoError(t, err)
	assert.Empty(t, entries, "staging directory should be empty")
}

func TestInstallAndUninstallRoundTrip(t *testing.T) {
	f := newFixture(t)
	f.publishASCII(t)
	ctx := context.Background()

	res, err := f.engine.Install(ctx, "ascii", "", Options{})
	require.NoError(t, err)
	assert.True(t, res.Changed)
	assert.Equal(t, "1.2.0", res.Record.Version)
	assert.Equal(t, manifest.InterfaceCLI, res.Record.Interface)
	assert.Equal(t, manifest.PlatformAny, res.Record.Platform)
	assert.Equal(t, f.layout.PluginDir("ascii"), res.Record.Path)

	// The wrapping directory is flattened.
	exe := filepath.Join(f.layout.PluginDir("ascii"), "bin", "ascii")
	info, err := os.Stat(exe)
	require.NoError(t, err)
	if os.PathSeparator == '/' {
		assert.NotZero(t, info.Mode().Perm()&0100, "entrypoint should be executable")
	}
	require.Len(t, res.Deps, 1)
	assert.True(t, res.Deps.OK())

	records, err := f.engine.List()
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "ascii", records[0].Name)

	_, err = f.engine.Uninstall(ctx, "ascii")
	require.NoError(t, err)

	_, err = os.Stat(f.layout.PluginDir("ascii"))
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(f.layout.RecordPath("ascii"))
	assert.True(t, os.IsNotExist(err))
	records, err = f.engine.List()
	require.NoError(t, err)
	assert.Empty(t, records)
	assertStagingEmpty(t, f)
}

func TestInstallPinnedVersion(t *testing.T) {
	f := newFixture(t)
	f.publishASCII(t)

	res, err := f.engine.Install(context.Background(), "ascii", "1.1.0", Options{})
	require.NoError(t, err)
	assert.Equal(t, "1.1.0", res.Record.Version)

	_, err = f.engine.Install(context.Background(), "ascii", "9.9.9", Options{})
	assert.True(t, errors.Is(err, errdefs.ErrNotFound))
}

func TestInstallSameVersionIsNoop(t *testing.T) {
	f := newFixture(t)
	f.publishASCII(t)
	ctx := context.Background()

	first, err := f.engine.Install(ctx, "ascii", "", Options{})
	require.NoError(t, err)
	hits := f.server.totalHits()

	again, err := f.engine.Install(ctx, "ascii", "latest", Options{})
	require.NoError(t, err)
	assert.False(t, again.Changed)
	assert.Equal(t, first.Record.InstalledAt.Unix(), again.Record.InstalledAt.Unix())
	assert.Equal(t, hits, f.server.totalHits())

	forced, err := f.engine.Install(ctx, "ascii", "", Options{Force: true})
	require.NoError(t, err)
	assert.True(t, forced.Changed)
	assert.Equal(t, hits+1, f.server.totalHits())
}

func TestUpdateScenario(t *testing.T) {
	f := newFixture(t)
	f.publishASCII(t)
	ctx := context.Background()

	_, err := f.engine.Install(ctx, "ascii", "1.1.0", Options{})
	require.NoError(t, err)

	res, err := f.engine.Update(ctx, "ascii", Options{})
	require.NoError(t, err)
	assert.True(t, res.Changed)
	assert.Equal(t, "1.1.0", res.Previous)
	assert.Equal(t, "1.2.0", res.Record.Version)

	rec, err := f.engine.Get("ascii")
	require.NoError(t, err)
	assert.Equal(t, "1.2.0", rec.Version)

	body, err := os.ReadFile(filepath.Join(rec.Path, "bin", "ascii"))
	require.NoError(t, err)
	assert.Contains(t, string(body), "1.2.0")
	assertStagingEmpty(t, f)
}

func TestUpdateTwiceIsIdempotent(t *testing.T) {
	f := newFixture(t)
	f.publishASCII(t)
	ctx := context.Background()

	_, err := f.engine.Install(ctx, "ascii", "1.1.0", Options{})
	require.NoError(t, err)
	first, err := f.engine.Update(ctx, "ascii", Options{})
	require.NoError(t, err)

	hits := f.server.totalHits()
	before, err := os.Stat(f.layout.RecordPath("ascii"))
	require.NoError(t, err)

	second, err := f.engine.Update(ctx, "ascii", Options{})
	require.NoError(t, err)
	assert.False(t, second.Changed)
	assert.Equal(t, first.Record.Version, second.Record.Version)
	assert.Equal(t, first.Record.InstalledAt.Unix(), second.Record.InstalledAt.Unix())
	assert.Equal(t, hits, f.server.totalHits())

	after, err := os.Stat(f.layout.RecordPath("ascii"))
	require.NoError(t, err)
	assert.Equal(t, before.ModTime(), after.ModTime())
}

func TestUpdateNotInstalled(t *testing.T) {
	f := newFixture(t)
	f.publishASCII(t)

	_, err := f.engine.Update(context.Background(), "ascii", Options{})
	assert.True(t, errors.Is(err, errdefs.ErrNotInstalled))
}

func TestCorruptedArtifactLeavesNothingBehind(t *testing.T) {
	f := newFixture(t)
	data := cliPlugin(t, "ascii", "1.2.0")
	art := f.server.publish("ascii-1.2.0.tar.gz", data)

	corrupted := append([]byte(nil), data...)
	corrupted[len(corrupted)/2] ^= 0xff
	f.server.publish("ascii-1.2.0.tar.gz", corrupted)

	f.manifests.add(&manifest.Manifest{
		Name: "ascii",
		Releases: []manifest.Release{{
			Version:   "1.2.0",
			Interface: manifest.InterfaceCLI,
			Artifacts: map[string]manifest.Artifact{manifest.PlatformAny: art},
		}},
	})

	_, err := f.engine.Install(context.Background(), "ascii", "", Options{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errdefs.ErrIntegrityMismatch), err.Error())
	assert.Contains(t, err.Error(), "install ascii")

	_, err = os.Stat(f.layout.PluginDir("ascii"))
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(f.layout.RecordPath("ascii"))
	assert.True(t, os.IsNotExist(err))
	assertStagingEmpty(t, f)
}

func TestFailedUpdateKeepsPreviousVersion(t *testing.T) {
	f := newFixture(t)
	f.publishASCII(t)
	ctx := context.Background()

	_, err := f.engine.Install(ctx, "ascii", "1.1.0", Options{})
	require.NoError(t, err)

	// 1.2.0's artifact now fails verification.
	f.server.publish("ascii-1.2.0.tar.gz", []byte("not the published bytes"))

	_, err = f.engine.Update(ctx, "ascii", Options{})
	assert.True(t, errors.Is(err, errdefs.ErrIntegrityMismatch))

	rec, err := f.engine.Get("ascii")
	require.NoError(t, err)
	assert.Equal(t, "1.1.0", rec.Version)
	body, err := os.ReadFile(filepath.Join(rec.Path, "bin", "ascii"))
	require.NoError(t, err)
	assert.Contains(t, string(body), "1.1.0")
	assertStagingEmpty(t, f)
}

func TestInstallRejectsInterfaceMismatch(t *testing.T) {
	f := newFixture(t)
	// The archive says native, the registry says cli.
	data := tarGz(t,
		archiveFile{name: "plugin.json", body: `{"name": "ascii", "interface": "native", "library": "libascii.so"}`},
		archiveFile{name: "libascii.so", body: "lib"},
	)
	f.manifests.add(&manifest.Manifest{
		Name: "ascii",
		Releases: []manifest.Release{{
			Version:   "1.0.0",
			Interface: manifest.InterfaceCLI,
			Artifacts: map[string]manifest.Artifact{manifest.PlatformAny: f.server.publish("ascii.tar.gz", data)},
		}},
	})

	_, err := f.engine.Install(context.Background(), "ascii", "", Options{})
	assert.True(t, errors.Is(err, errdefs.ErrMalformedData), err)
	_, err = os.Stat(f.layout.PluginDir("ascii"))
	assert.True(t, os.IsNotExist(err))
	assertStagingEmpty(t, f)
}

func TestInstallRejectsMissingEntrypoint(t *testing.T) {
	f := newFixture(t)
	data := tarGz(t, archiveFile{name: "plugin.json", body: `{"name": "ascii", "interface": "cli", "executable": "ascii"}`})
	f.manifests.add(&manifest.Manifest{
		Name: "ascii",
		Releases: []manifest.Release{{
			Version:   "1.0.0",
			Interface: manifest.InterfaceCLI,
			Artifacts: map[string]manifest.Artifact{manifest.PlatformAny: f.server.publish("ascii.tar.gz", data)},
		}},
	})

	_, err := f.engine.Install(context.Background(), "ascii", "", Options{})
	assert.True(t, errors.Is(err, errdefs.ErrMalformedData), err)
}

func TestInstallSingleFileArtifact(t *testing.T) {
	f := newFixture(t)
	f.manifests.add(&manifest.Manifest{
		Name: "hello",
		Releases: []manifest.Release{{
			Version:   "0.1.0",
			Interface: manifest.InterfaceCLI,
			Artifacts: map[string]manifest.Artifact{
				manifest.PlatformAny: f.server.publish("hello.py", []byte("#!/usr/bin/env python3\nprint('hi')\n")),
			},
		}},
	})

	res, err := f.engine.Install(context.Background(), "hello", "", Options{})
	require.NoError(t, err)

	pm, err := manifest.ParsePluginFile(filepath.Join(res.Record.Path, "plugin.json"))
	require.NoError(t, err)
	assert.Equal(t, "hello", pm.Name)
	assert.Equal(t, "hello.py", pm.Executable)
	assert.Equal(t, "0.1.0", pm.Version)
}

func TestInstallNativeUsesPlatformArtifact(t *testing.T) {
	f := newFixture(t, WithPlatform("darwin-aarch64"))
	f.manifests.add(&manifest.Manifest{
		Name: "image-filter",
		Releases: []manifest.Release{{
			Version:   "0.4.1",
			Interface: manifest.InterfaceNative,
			Artifacts: map[string]manifest.Artifact{
				"linux-x86_64":   f.server.publish("image-filter-linux.tar.gz", []byte("wrong platform")),
				"darwin-aarch64": f.server.publish("image-filter-darwin.tar.gz", nativePlugin(t, "image-filter", "0.4.1")),
			},
		}},
	})

	res, err := f.engine.Install(context.Background(), "image-filter", "", Options{})
	require.NoError(t, err)
	assert.Equal(t, "darwin-aarch64", res.Record.Platform)
	_, err = os.Stat(filepath.Join(res.Record.Path, "libimage-filter.so"))
	assert.NoError(t, err)
}

func TestInstallCancelled(t *testing.T) {
	f := newFixture(t)
	f.publishASCII(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.engine.Install(ctx, "ascii", "", Options{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errdefs.ErrCancelled), err.Error())
	_, err = os.Stat(f.layout.PluginDir("ascii"))
	assert.True(t, os.IsNotExist(err))
	assertStagingEmpty(t, f)
}

func TestConcurrentInstallsConverge(t *testing.T) {
	f := newFixture(t)
	f.publishASCII(t)

	var wg sync.WaitGroup
	errs := make([]error, 4)
	for i := range errs {
		i := i // per-iteration copy (go 1.22 loopvar semantics)
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = f.engine.Install(context.Background(), "ascii", "", Options{})
		}()
	}
	wg.Wait()

	for _, err := range errs {
		require.NoError(t, err)
	}
	// Only the first install downloads; the rest find it installed.
	assert.Equal(t, 1, f.server.totalHits())
	rec, err := f.engine.Get("ascii")
	require.NoError(t, err)
	assert.Equal(t, "1.2.0", rec.Version)
	assertStagingEmpty(t, f)
}

func TestFailFastReportsInProgress(t *testing.T) {
	f := newFixture(t, WithFailFast(true))
	f.publishASCII(t)

	release, err := f.engine.acquire(context.Background(), "ascii")
	require.NoError(t, err)

	_, err = f.engine.Install(context.Background(), "ascii", "", Options{})
	assert.True(t, errors.Is(err, errdefs.ErrInstallInProgress))

	release()
	_, err = f.engine.Install(context.Background(), "ascii", "", Options{})
	assert.NoError(t, err)
}

func TestUninstallNotInstalled(t *testing.T) {
	f := newFixture(t)
	_, err := f.engine.Uninstall(context.Background(), "ascii")
	assert.True(t, errors.Is(err, errdefs.ErrNotInstalled))
}

func TestUninstallDirectoryWithoutRecord(t *testing.T) {
	f := newFixture(t)
	dir := f.layout.PluginDir("ascii")
	require.NoError(t, os.MkdirAll(dir, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "leftover"), []byte("x"), 0644))

	orphans, err := f.engine.Orphans()
	require.NoError(t, err)
	assert.Equal(t, []string{"ascii"}, orphans)

	_, err = f.engine.Uninstall(context.Background(), "ascii")
	require.NoError(t, err)
	_, err = os.Stat(dir)
	assert.True(t, os.IsNotExist(err))
}

func TestDependencyGapsAreAdvisory(t *testing.T) {
	f := newFixture(t, WithChecker(fakeChecker{status: depcheck.StatusMissing}))
	f.publishASCII(t)

	res, err := f.engine.Install(context.Background(), "ascii", "", Options{})
	require.NoError(t, err)
	assert.False(t, res.Deps.OK())
	assert.True(t, errors.Is(res.Deps.Err(), errdefs.ErrDependencyCheckFailed))

	report, err := f.engine.CheckDependencies(context.Background(), "ascii")
	require.NoError(t, err)
	assert.Len(t, report, 1)

	f2 := newFixture(t, WithChecker(fakeChecker{status: depcheck.StatusMissing}))
	f2.publishASCII(t)
	res, err = f2.engine.Install(context.Background(), "ascii", "", Options{SkipDepsCheck: true})
	require.NoError(t, err)
	assert.Nil(t, res.Deps)
}

func TestIncompatibleReleasesSkippedForLatest(t *testing.T) {
	f := newFixture(t, WithClientVersion("0.4.0"))
	f.manifests.add(&manifest.Manifest{
		Name: "ascii",
		Releases: []manifest.Release{
			{
				Version:       "2.0.0",
				UniconvCompat: ">=0.5.0",
				Interface:     manifest.InterfaceCLI,
				Artifacts:     map[string]manifest.Artifact{manifest.PlatformAny: f.server.publish("ascii-2.tar.gz", cliPlugin(t, "ascii", "2.0.0"))},
			},
			{
				Version:   "1.0.0",
				Interface: manifest.InterfaceCLI,
				Artifacts: map[string]manifest.Artifact{manifest.PlatformAny: f.server.publish("ascii-1.tar.gz", cliPlugin(t, "ascii", "1.0.0"))},
			},
		},
	})

	res, err := f.engine.Install(context.Background(), "ascii", "", Options{})
	require.NoError(t, err)
	assert.Equal(t, "1.0.0", res.Record.Version)

	// Pinning an incompatible release is allowed.
	res, err = f.engine.Install(context.Background(), "ascii", "2.0.0", Options{})
	require.NoError(t, err)
	assert.Equal(t, "2.0.0", res.Record.Version)
}

func TestUpdateReinstallsMissingDirectory(t *testing.T) {
	f := newFixture(t)
	f.publishASCII(t)
	ctx := context.Background()

	_, err := f.engine.Install(ctx, "ascii", "", Options{})
	require.NoError(t, err)
	require.NoError(t, os.RemoveAll(f.layout.PluginDir("ascii")))

	res, err := f.engine.Update(ctx, "ascii", Options{})
	require.NoError(t, err)
	assert.True(t, res.Changed)
	assert.Equal(t, "1.2.0", res.Record.Version)
	assert.FileExists(t, filepath.Join(f.layout.PluginDir("ascii"), "bin", "ascii"))
}

func TestSlowDownloadOutlivesHeaderTimeout(t *testing.T) {
	archive := cliPlugin(t, "ascii", "1.2.0")
	slow := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", strconv.Itoa(len(archive)))
		w.WriteHeader(http.StatusOK)
		chunk := len(archive)/10 + 1
		for off := 0; off < len(archive); off += chunk {
			end := min(off+chunk, len(archive))
			w.Write(archive[off:end])
			w.(http.Flusher).Flush()
			time.Sleep(100 * time.Millisecond)
		}
	}))
	defer slow.Close()

	f := newFixture(t, WithHTTPClient(cleanhttp.NewStreamingClient(300*time.Millisecond)))
	f.manifests.add(&manifest.Manifest{
		Name: "ascii",
		Releases: []manifest.Release{{
			Version:   "1.2.0",
			Interface: manifest.InterfaceCLI,
			Artifacts: map[string]manifest.Artifact{
				manifest.PlatformAny: {URL: slow.URL + "/ascii-1.2.0.tar.gz", SHA256: digest(archive)},
			},
		}},
	})

	res, err := f.engine.Install(context.Background(), "ascii", "", Options{})
	require.NoError(t, err)
	assert.Equal(t, "1.2.0", res.Record.Version)
	assertStagingEmpty(t, f)
}
