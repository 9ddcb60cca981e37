package registry

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/uniconv/uniconv/internal/integrity"
)

// CacheEntry is one cached registry document.
type CacheEntry struct {
	URL          string          `json:"url"`
	ETag         string          `json:"etag,omitempty"`
	LastModified string          `json:"last_modified,omitempty"`
	FetchedAt    time.Time       `json:"fetched_at"`
	Body         json.RawMessage `json:"body"`
}

// Validators returns the entry's revalidation headers.
func (e *CacheEntry) Validators() Validators {
	return Validators{ETag: e.ETag, LastModified: e.LastModified}
}

// IsStale returns true if the entry is older than maxAge or nil.
func (e *CacheEntry) IsStale(maxAge time.Duration, now time.Time) bool {
	if e == nil {
		return true
	}
	return now.Sub(e.FetchedAt) > maxAge
}

// diskCache stores one JSON file per source URL under dir.
type diskCache struct {
	dir string
}

const cacheExt = ".json"

func (c *diskCache) path(url string) string {
	sum, _ := integrity.Sum(strings.NewReader(url))
	return filepath.Join(c.dir, sum[:32]+cacheExt)
}

// Load returns the entry for url, or nil when none is cached. Unreadable
// entries are treated as absent.
func (c *diskCache) Load(url string) (*CacheEntry, error) {
	data, err := os.ReadFile(c.path(url))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading registry cache: %w", err)
	}

	var e CacheEntry
	if err := json.Unmarshal(data, &e); err != nil || e.URL != url || len(e.Body) == 0 {
		return nil, nil
	}
	return &e, nil
}

// Save writes e atomically: readers see either the old entry or the new one.
func (c *diskCache) Save(e *CacheEntry) error {
	if err := os.MkdirAll(c.dir, 0755); err != nil {
		return fmt.Errorf("creating cache directory: %w", err)
	}
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshaling cache entry: %w", err)
	}

	tmp, err := os.CreateTemp(c.dir, ".entry-*")
	if err != nil {
		return fmt.Errorf("creating cache entry: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("writing cache entry: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("writing cache entry: %w", err)
	}
	if err := os.Rename(tmp.Name(), c.path(e.URL)); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("replacing cache entry: %w", err)
	}
	return nil
}

// Clean removes every cached entry and returns how many were removed.
func (c *diskCache) Clean() (int, error) {
	entries, err := os.ReadDir(c.dir)
	if errors.Is(err, fs.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("reading cache directory: %w", err)
	}

	removed := 0
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != cacheExt {
			continue
		}
		if err := os.Remove(filepath.Join(c.dir, entry.Name())); err != nil {
			return removed, fmt.Errorf("removing cache entry: %w", err)
		}
		removed++
	}
	return removed, nil
}
