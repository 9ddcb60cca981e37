package registry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"github.com/uniconv/uniconv/internal/errdefs"
	"github.com/uniconv/uniconv/internal/logging"
	"github.com/uniconv/uniconv/internal/manifest"
	"github.com/uniconv/uniconv/internal/userdata"
)

// DefaultMaxAge is how long a cached document is served without revalidation.
const DefaultMaxAge = time.Hour

const memoryCacheSize = 128

// Store is the ManifestStore: cached, revalidating access to the index, the
// per-plugin manifests and the collections document. It is safe for
// concurrent use.
type Store struct {
	source  Source
	disk    *diskCache
	memory  *expirable.LRU[string, any]
	flights singleflight.Group
	log     logrus.FieldLogger

	maxAge   time.Duration
	retries  uint64
	interval time.Duration
	offline  bool
	refresh  bool
	now      func() time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger used for cache and revalidation diagnostics.
func WithLogger(log logrus.FieldLogger) Option {
	return func(s *Store) {
		s.log = log
	}
}

// WithMaxAge sets how long cached documents are used without revalidation.
func WithMaxAge(d time.Duration) Option {
	return func(s *Store) {
		s.maxAge = d
	}
}

// WithRetries sets how many times a failed fetch is retried and the first
// backoff interval.
func WithRetries(n int, initial time.Duration) Option {
	return func(s *Store) {
		if n < 0 {
			n = 0
		}
		s.retries = uint64(n)
		if initial > 0 {
			s.interval = initial
		}
	}
}

// WithOffline serves documents from the disk cache only.
func WithOffline(offline bool) Option {
	return func(s *Store) {
		s.offline = offline
	}
}

// WithRefresh revalidates every cached document on first use regardless of
// its age.
func WithRefresh(refresh bool) Option {
	return func(s *Store) {
		s.refresh = refresh
	}
}

// NewStore creates a Store reading from source and caching under cacheDir.
func NewStore(source Source, cacheDir string, opts ...Option) *Store {
	s := &Store{
		source:   source,
		disk:     &diskCache{dir: cacheDir},
		log:      logging.Discard(),
		maxAge:   DefaultMaxAge,
		retries:  3,
		interval: defaultInitialInterval,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.memory = expirable.NewLRU[string, any](memoryCacheSize, nil, s.maxAge)
	return s
}

// GetIndex returns the registry index.
func (s *Store) GetIndex(ctx context.Context) (*manifest.Index, error) {
	v, err := s.get(ctx, IndexPath, func(data []byte) (any, error) {
		return manifest.DecodeIndex(data)
	})
	if err != nil {
		return nil, errdefs.Op("fetch index", "", err)
	}
	return v.(*manifest.Index), nil
}

// GetCollections returns the collections document.
func (s *Store) GetCollections(ctx context.Context) (*manifest.Collections, error) {
	v, err := s.get(ctx, CollectionsPath, func(data []byte) (any, error) {
		return manifest.DecodeCollections(data)
	})
	if err != nil {
		return nil, errdefs.Op("fetch collections", "", err)
	}
	return v.(*manifest.Collections), nil
}

// GetManifest returns the full manifest of the named plugin. The index is
// consulted first: a name it does not list fails with ErrNotFound unless a
// manifest for it is already cached.
func (s *Store) GetManifest(ctx context.Context, name string) (*manifest.Manifest, error) {
	if !userdata.ValidPluginName(name) {
		return nil, errdefs.Op("fetch manifest", name, errdefs.Kind(errdefs.ErrNotFound, "invalid plugin name"))
	}

	path := ManifestPath(name)
	idx, err := s.GetIndex(ctx)
	switch {
	case errors.Is(err, errdefs.ErrCancelled):
		return nil, errdefs.Op("fetch manifest", name, err)
	case err != nil:
		s.log.WithError(err).Debug("index unavailable, fetching manifest directly")
	default:
		if _, ok := idx.Lookup(name); !ok {
			entry, _ := s.disk.Load(s.source.URL(path))
			if entry == nil {
				return nil, errdefs.Op("fetch manifest", name, errdefs.Kind(errdefs.ErrNotFound, "plugin is not in the registry index"))
			}
			s.log.WithField("plugin", name).Debug("plugin missing from index, using cached manifest")
			m, err := s.decodeCached(path, entry, decodeManifest)
			if err != nil {
				return nil, errdefs.Op("fetch manifest", name, err)
			}
			return m.(*manifest.Manifest), nil
		}
	}

	v, err := s.get(ctx, path, decodeManifest)
	if err != nil {
		return nil, errdefs.Op("fetch manifest", name, err)
	}
	m := v.(*manifest.Manifest)
	if m.Name != name {
		return nil, errdefs.Op("fetch manifest", name, errdefs.Kind(errdefs.ErrMalformedData, "manifest is for %q", m.Name))
	}
	return m, nil
}

// CachedIndex returns the index from the disk cache without any network
// access, regardless of age.
func (s *Store) CachedIndex() (*manifest.Index, bool) {
	entry, err := s.disk.Load(s.source.URL(IndexPath))
	if err != nil || entry == nil {
		return nil, false
	}
	idx, err := manifest.DecodeIndex(entry.Body)
	if err != nil {
		return nil, false
	}
	return idx, true
}

// Clean drops every cached document, on disk and in memory.
func (s *Store) Clean() (int, error) {
	s.memory.Purge()
	return s.disk.Clean()
}

func decodeManifest(data []byte) (any, error) {
	return manifest.DecodeManifest(data)
}

type decodeFunc func([]byte) (any, error)

// get returns the decoded document at path, from memory, the disk cache or
// the source, in that order. Concurrent callers for the same path share one
// load. The shared load runs detached from any single caller's
// cancellation; each caller stops waiting when its own ctx is done.
func (s *Store) get(ctx context.Context, path string, decode decodeFunc) (any, error) {
	if v, ok := s.memory.Get(path); ok {
		return v, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, errdefs.FromContext(err)
	}

	loadCtx := context.WithoutCancel(ctx)
	ch := s.flights.DoChan(path, func() (any, error) {
		v, err := s.load(loadCtx, path, decode)
		if err != nil {
			return nil, err
		}
		s.memory.Add(path, v)
		return v, nil
	})
	select {
	case r := <-ch:
		return r.Val, r.Err
	case <-ctx.Done():
		return nil, errdefs.FromContext(ctx.Err())
	}
}

func (s *Store) load(ctx context.Context, path string, decode decodeFunc) (any, error) {
	url := s.source.URL(path)
	log := s.log.WithField("url", url)

	entry, err := s.disk.Load(url)
	if err != nil {
		log.WithError(err).Warn("ignoring unreadable cache entry")
	}

	if entry != nil {
		if s.offline || (!s.refresh && !entry.IsStale(s.maxAge, s.now())) {
			log.Debug("registry cache hit")
			return s.decodeCached(path, entry, decode)
		}
	} else if s.offline {
		return nil, errdefs.Kind(errdefs.ErrNetwork, "offline and %s is not cached", path)
	}

	var validators Validators
	if entry != nil {
		validators = entry.Validators()
	}
	resp, err := s.fetch(ctx, path, validators)
	if err != nil {
		if entry != nil && !errors.Is(err, errdefs.ErrCancelled) {
			log.WithError(err).Warn("registry unreachable, using cached copy")
			return s.decodeCached(path, entry, decode)
		}
		return nil, err
	}

	if resp.NotModified {
		if entry == nil {
			return nil, errdefs.Kind(errdefs.ErrMalformedData, "%s: not modified but nothing is cached", path)
		}
		log.Debug("registry cache revalidated")
		entry.FetchedAt = s.now()
		if err := s.disk.Save(entry); err != nil {
			log.WithError(err).Warn("updating cache entry")
		}
		return s.decodeCached(path, entry, decode)
	}

	v, err := decode(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("decoding %s: %w", path, err)
	}
	log.Debug("registry cache refreshed")
	if err := s.disk.Save(&CacheEntry{
		URL:          url,
		ETag:         resp.ETag,
		LastModified: resp.LastModified,
		FetchedAt:    s.now(),
		Body:         resp.Body,
	}); err != nil {
		log.WithError(err).Warn("writing cache entry")
	}
	return v, nil
}

func (s *Store) decodeCached(path string, entry *CacheEntry, decode decodeFunc) (any, error) {
	v, err := decode(entry.Body)
	if err != nil {
		return nil, fmt.Errorf("decoding cached %s: %w", path, err)
	}
	return v, nil
}

// fetch retrieves path with exponential backoff on network errors. Other
// failures, such as a missing document, are returned immediately.
func (s *Store) fetch(ctx context.Context, path string, v Validators) (*Response, error) {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = s.interval
	b := backoff.WithContext(backoff.WithMaxRetries(policy, s.retries), ctx)

	var resp *Response
	attempt := 0
	err := backoff.Retry(func() error {
		attempt++
		r, err := s.source.Fetch(ctx, path, v)
		if err != nil {
			if !retryable(err) {
				return backoff.Permanent(err)
			}
			s.log.WithError(err).WithField("attempt", attempt).Debug("registry fetch failed")
			return err
		}
		resp = r
		return nil
	}, b)
	if err != nil {
		if ctx.Err() != nil {
			return nil, errdefs.FromContext(ctx.Err())
		}
		return nil, err
	}
	return resp, nil
}
