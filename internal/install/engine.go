package install

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/uniconv/uniconv/internal/cleanhttp"
	"github.com/uniconv/uniconv/internal/depcheck"
	"github.com/uniconv/uniconv/internal/errdefs"
	"github.com/uniconv/uniconv/internal/integrity"
	"github.com/uniconv/uniconv/internal/lockfile"
	"github.com/uniconv/uniconv/internal/logging"
	"github.com/uniconv/uniconv/internal/manifest"
	"github.com/uniconv/uniconv/internal/platform"
	"github.com/uniconv/uniconv/internal/userdata"
)

// ManifestSource provides per-plugin registry manifests.
type ManifestSource interface {
	GetManifest(ctx context.Context, name string) (*manifest.Manifest, error)
}

// DependencyChecker reports on a release's declared dependencies.
type DependencyChecker interface {
	Check(ctx context.Context, deps []manifest.Dependency) depcheck.Report
}

// Options control a single install or update.
type Options struct {
	// Force reinstalls even when the selected version is already installed.
	Force bool
	// SkipDepsCheck skips the advisory dependency check.
	SkipDepsCheck bool
}

// Result describes the outcome of an install, update or uninstall.
type Result struct {
	Record   *Record
	Previous string // version replaced, empty for a fresh install
	Changed  bool   // false when nothing on disk was touched
	Deps     depcheck.Report
}

// Engine is the InstallEngine. It is safe for concurrent use.
type Engine struct {
	layout        userdata.Layout
	manifests     ManifestSource
	checker       DependencyChecker
	records       recordStore
	client        *http.Client
	platformKey   string
	clientVersion string
	userAgent     string
	progress      io.Writer
	failFast      bool
	log           logrus.FieldLogger

	mu       sync.Mutex
	inflight map[string]chan struct{}
}

// Option configures an Engine.
type Option func(*Engine)

// DefaultHeaderTimeout bounds how long a download waits for the server to
// answer. The transfer itself is bounded only by the context.
const DefaultHeaderTimeout = time.Minute

// WithHTTPClient sets the client used for artifact downloads. Its Timeout
// should be zero: a whole-request timeout fails large downloads that are
// still making progress.
func WithHTTPClient(c *http.Client) Option {
	return func(e *Engine) {
		e.client = c
	}
}

// WithPlatform overrides the detected platform key.
func WithPlatform(key string) Option {
	return func(e *Engine) {
		e.platformKey = key
	}
}

// WithClientVersion sets the uniconv version used to filter releases by
// uniconv_compat.
func WithClientVersion(v string) Option {
	return func(e *Engine) {
		e.clientVersion = v
	}
}

// WithUserAgent sets the User-Agent sent with downloads.
func WithUserAgent(ua string) Option {
	return func(e *Engine) {
		e.userAgent = ua
	}
}

// WithChecker sets the dependency checker run after installs.
func WithChecker(c DependencyChecker) Option {
	return func(e *Engine) {
		e.checker = c
	}
}

// WithProgress renders download progress bars to w.
func WithProgress(w io.Writer) Option {
	return func(e *Engine) {
		e.progress = w
	}
}

// WithFailFast makes a second install of a plugin that is already being
// installed fail with ErrInstallInProgress instead of waiting.
func WithFailFast(v bool) Option {
	return func(e *Engine) {
		e.failFast = v
	}
}

// WithLogger sets the engine logger.
func WithLogger(log logrus.FieldLogger) Option {
	return func(e *Engine) {
		e.log = log
	}
}

// New creates an Engine installing into layout.
func New(layout userdata.Layout, manifests ManifestSource, opts ...Option) *Engine {
	e := &Engine{
		layout:      layout,
		manifests:   manifests,
		records:     recordStore{layout: layout},
		client:      cleanhttp.NewStreamingClient(DefaultHeaderTimeout),
		platformKey: platform.Current(),
		log:         logging.Discard(),
		inflight:    make(map[string]chan struct{}),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.checker == nil {
		e.checker = depcheck.New(depcheck.WithLogger(e.log))
	}
	return e
}

// Platform returns the platform key artifacts are selected for.
func (e *Engine) Platform() string {
	return e.platformKey
}

// Install installs name at version ("" or "latest" for the newest
// compatible release). Installing the version already present is a no-op
// unless opts.Force is set.
func (e *Engine) Install(ctx context.Context, name, version string, opts Options) (*Result, error) {
	if !userdata.ValidPluginName(name) {
		return nil, errdefs.Op("install", name, errdefs.Kind(errdefs.ErrNotFound, "invalid plugin name"))
	}
	release, err := e.acquire(ctx, name)
	if err != nil {
		return nil, errdefs.Op("install", name, err)
	}
	defer release()

	res, err := e.install(ctx, name, version, opts)
	return res, errdefs.Op("install", name, err)
}

// Update installs the newest compatible release of an installed plugin. When
// the installed version is already the newest it returns the current record
// and touches nothing.
func (e *Engine) Update(ctx context.Context, name string, opts Options) (*Result, error) {
	if !userdata.ValidPluginName(name) {
		return nil, errdefs.Op("update", name, errdefs.Kind(errdefs.ErrNotInstalled, "invalid plugin name"))
	}
	release, err := e.acquire(ctx, name)
	if err != nil {
		return nil, errdefs.Op("update", name, err)
	}
	defer release()

	current, err := e.records.Load(name)
	if err != nil {
		return nil, errdefs.Op("update", name, err)
	}
	m, err := e.manifests.GetManifest(ctx, name)
	if err != nil {
		return nil, errdefs.Op("update", name, err)
	}
	latest, err := m.LatestCompatible(e.clientVersion)
	if err != nil {
		return nil, errdefs.Op("update", name, err)
	}
	if manifest.SameVersion(current.Version, latest.Version) && !opts.Force {
		if _, err := os.Stat(current.Path); err == nil {
			e.log.WithField("plugin", name).WithField("version", current.Version).Debug("already at latest")
			return &Result{Record: current, Previous: current.Version}, nil
		}
		e.log.WithField("plugin", name).Warn("plugin directory is missing, reinstalling")
	}

	res, err := e.installRelease(ctx, m, latest, current, opts)
	return res, errdefs.Op("update", name, err)
}

// Uninstall removes a plugin's directory and record. A directory left
// without a record is removed with a warning; with neither present it fails
// with ErrNotInstalled.
func (e *Engine) Uninstall(ctx context.Context, name string) (*Result, error) {
	if !userdata.ValidPluginName(name) {
		return nil, errdefs.Op("uninstall", name, errdefs.Kind(errdefs.ErrNotInstalled, "invalid plugin name"))
	}
	release, err := e.acquire(ctx, name)
	if err != nil {
		return nil, errdefs.Op("uninstall", name, err)
	}
	defer release()

	log := e.log.WithField("plugin", name)
	dir := e.layout.PluginDir(name)
	_, statErr := os.Stat(dir)
	dirExists := statErr == nil

	rec, err := e.records.Load(name)
	switch {
	case errors.Is(err, errdefs.ErrNotInstalled) && !dirExists:
		return nil, errdefs.Op("uninstall", name, err)
	case errors.Is(err, errdefs.ErrNotInstalled):
		log.Warn("plugin directory has no install record, removing it anyway")
	case errors.Is(err, errdefs.ErrMalformedData):
		log.WithError(err).Warn("install record is unreadable, removing it")
	case err != nil:
		return nil, errdefs.Op("uninstall", name, err)
	case !dirExists:
		log.Warn("install record points at a missing directory, removing the record")
	}

	if dirExists {
		if err := e.removeDir(dir, name); err != nil {
			return nil, errdefs.Op("uninstall", name, err)
		}
	}
	if err := e.records.Remove(name); err != nil {
		return nil, errdefs.Op("uninstall", name, err)
	}
	log.Info("plugin uninstalled")
	return &Result{Record: rec, Changed: true}, nil
}

// List returns the install records without contacting the registry.
func (e *Engine) List() ([]*Record, error) {
	return e.records.List(func(file string, err error) {
		e.log.WithError(err).WithField("record", file).Warn("skipping unreadable install record")
	})
}

// Get returns the install record for name, or ErrNotInstalled.
func (e *Engine) Get(name string) (*Record, error) {
	if !userdata.ValidPluginName(name) {
		return nil, errdefs.Kind(errdefs.ErrNotInstalled, "%s", name)
	}
	return e.records.Load(name)
}

// Orphans lists plugin directories that have no install record.
func (e *Engine) Orphans() ([]string, error) {
	dirs, err := e.layout.PluginDirs()
	if err != nil {
		return nil, err
	}
	var out []string
	for _, d := range dirs {
		if _, err := os.Stat(e.layout.RecordPath(d)); errors.Is(err, os.ErrNotExist) {
			out = append(out, d)
		}
	}
	return out, nil
}

// CheckDependencies reruns the dependency check for an installed plugin
// against its installed release.
func (e *Engine) CheckDependencies(ctx context.Context, name string) (depcheck.Report, error) {
	rec, err := e.Get(name)
	if err != nil {
		return nil, err
	}
	m, err := e.manifests.GetManifest(ctx, name)
	if err != nil {
		return nil, err
	}
	rel, err := m.Release(rec.Version)
	if err != nil {
		return nil, err
	}
	return e.checker.Check(ctx, rel.Dependencies), nil
}

// acquire serializes work on one plugin: first within the process, then
// across processes through the plugin's lock file.
func (e *Engine) acquire(ctx context.Context, name string) (func(), error) {
	e.mu.Lock()
	slot, ok := e.inflight[name]
	if !ok {
		slot = make(chan struct{}, 1)
		e.inflight[name] = slot
	}
	e.mu.Unlock()

	log := e.log.WithField("plugin", name)
	select {
	case slot <- struct{}{}:
	default:
		if e.failFast {
			return nil, errdefs.Kind(errdefs.ErrInstallInProgress, "%s is already being installed", name)
		}
		log.Debug("waiting for in-flight operation")
		select {
		case slot <- struct{}{}:
		case <-ctx.Done():
			return nil, errdefs.FromContext(ctx.Err())
		}
	}

	if err := e.layout.Ensure(); err != nil {
		<-slot
		return nil, err
	}
	unlock, err := lockfile.Take(ctx, e.layout.LockPath(name), lockfile.Options{
		NoWait:  e.failFast,
		Log:     e.log,
		Waiting: func() { log.Info("waiting for another uniconv process") },
	})
	if err != nil {
		<-slot
		if errors.Is(err, lockfile.ErrLocked) {
			return nil, errdefs.Kind(errdefs.ErrInstallInProgress, "%v", err)
		}
		return nil, err
	}
	return func() {
		unlock()
		<-slot
	}, nil
}

func (e *Engine) install(ctx context.Context, name, version string, opts Options) (*Result, error) {
	m, err := e.manifests.GetManifest(ctx, name)
	if err != nil {
		return nil, err
	}
	rel, err := m.SelectRelease(version, e.clientVersion)
	if err != nil {
		return nil, err
	}
	if !rel.CompatibleWith(e.clientVersion) {
		e.log.WithField("plugin", name).Warnf("release %s requires uniconv %s, running %s", rel.Version, rel.UniconvCompat, e.clientVersion)
	}

	current, err := e.records.Load(name)
	if err != nil && !errors.Is(err, errdefs.ErrNotInstalled) {
		e.log.WithError(err).WithField("plugin", name).Warn("ignoring unreadable install record")
	}
	if current != nil && !opts.Force && manifest.SameVersion(current.Version, rel.Version) {
		if _, err := os.Stat(current.Path); err == nil {
			e.log.WithField("plugin", name).WithField("version", rel.Version).Debug("already installed")
			return &Result{Record: current, Previous: current.Version}, nil
		}
	}
	return e.installRelease(ctx, m, rel, current, opts)
}

// installRelease runs the staged pipeline for one release. Nothing outside
// the staging directory changes until swap.
func (e *Engine) installRelease(ctx context.Context, m *manifest.Manifest, rel *manifest.Release, current *Record, opts Options) (*Result, error) {
	name := m.Name
	log := e.log.WithField("plugin", name).WithField("version", rel.Version)

	art, key, err := platform.Select(rel, e.platformKey)
	if err != nil {
		return nil, err
	}
	digest, err := integrity.NormalizeDigest(art.SHA256)
	if err != nil {
		return nil, err
	}

	stage, err := os.MkdirTemp(e.layout.StagingRoot(), name+"-")
	if err != nil {
		return nil, fmt.Errorf("creating staging directory: %w", err)
	}
	defer func() {
		if err := os.RemoveAll(stage); err != nil {
			log.WithError(err).Warn("removing staging directory")
		}
	}()

	log.WithField("url", art.URL).Info("downloading")
	archive, err := e.download(ctx, name, art.URL, digest, stage)
	if err != nil {
		return nil, err
	}

	// The staged file is checked again right before it is unpacked.
	if err := integrity.VerifyFile(archive, digest); err != nil {
		return nil, err
	}
	root, err := unpack(archive, filepath.Join(stage, "content"), rel, name)
	if err != nil {
		return nil, err
	}
	if _, err := validatePlugin(root, name, rel); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, errdefs.FromContext(err)
	}

	rec := &Record{
		Name:        name,
		Version:     rel.Version,
		Interface:   rel.Interface,
		Path:        e.layout.PluginDir(name),
		InstalledAt: time.Now().UTC(),
		Platform:    key,
		URL:         art.URL,
		SHA256:      digest,
	}
	if err := e.swap(root, stage, rec); err != nil {
		return nil, err
	}
	log.Info("installed")

	res := &Result{Record: rec, Changed: true}
	if current != nil {
		res.Previous = current.Version
	}
	if !opts.SkipDepsCheck && len(rel.Dependencies) > 0 {
		res.Deps = e.checker.Check(ctx, rel.Dependencies)
	}
	return res, nil
}

// swap moves root into the plugin directory and writes rec. The previous
// directory is parked inside stage and put back if either step fails.
func (e *Engine) swap(root, stage string, rec *Record) error {
	final := rec.Path
	parked := filepath.Join(stage, "previous")

	hadPrevious := false
	if _, err := os.Stat(final); err == nil {
		if err := os.Rename(final, parked); err != nil {
			return fmt.Errorf("moving previous version aside: %w", err)
		}
		hadPrevious = true
	}

	restore := func() {
		if !hadPrevious {
			return
		}
		if err := os.Rename(parked, final); err != nil {
			e.log.WithError(err).WithField("plugin", rec.Name).Error("restoring previous version failed")
		}
	}

	if err := os.Rename(root, final); err != nil {
		restore()
		return fmt.Errorf("moving plugin into place: %w", err)
	}
	if err := e.records.Save(rec); err != nil {
		os.RemoveAll(final)
		restore()
		return err
	}
	return nil
}

// removeDir renames dir into staging before deleting it, so a partially
// deleted tree is never left at the plugin path.
func (e *Engine) removeDir(dir, name string) error {
	trash, err := os.MkdirTemp(e.layout.StagingRoot(), name+"-remove-")
	if err != nil {
		return fmt.Errorf("creating staging directory: %w", err)
	}
	target := filepath.Join(trash, name)
	if err := os.Rename(dir, target); err != nil {
		os.Remove(trash)
		return fmt.Errorf("removing plugin directory: %w", err)
	}
	if err := os.RemoveAll(trash); err != nil {
		e.log.WithError(err).WithField("plugin", name).Warn("cleaning up removed plugin")
	}
	return nil
}
