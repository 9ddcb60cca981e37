package registry

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/uniconv/uniconv/internal/errdefs"
)

// Registry document paths, relative to the registry base.
const (
	IndexPath       = "index.json"
	CollectionsPath = "collections.json"
	manifestDir     = "plugins"
)

// ManifestPath returns the registry path of a plugin's manifest.
func ManifestPath(name string) string {
	return manifestDir + "/" + name + ".json"
}

// Validators are the cache validators sent on revalidation and returned by
// the registry with a fresh body.
type Validators struct {
	ETag         string
	LastModified string
}

// Response is the outcome of a Source fetch. When NotModified is set Body is
// empty and the cached copy is still current.
type Response struct {
	Body        []byte
	NotModified bool
	Validators
}

// Source fetches raw registry documents.
type Source interface {
	// URL returns the absolute location of path, used as the cache key.
	URL(path string) string
	// Fetch retrieves path. A missing document yields errdefs.ErrNotFound;
	// an unreachable registry yields errdefs.ErrNetwork.
	Fetch(ctx context.Context, path string, v Validators) (*Response, error)
}

// NewSource returns an HTTP source for http(s) URLs and a directory source
// for file:// URLs and plain paths.
func NewSource(base string, client *http.Client, userAgent string) (Source, error) {
	if base == "" {
		return nil, errors.New("registry URL is empty")
	}
	u, err := url.Parse(base)
	if err == nil && (u.Scheme == "http" || u.Scheme == "https") {
		if client == nil {
			client = http.DefaultClient
		}
		return &httpSource{base: strings.TrimRight(base, "/"), client: client, userAgent: userAgent}, nil
	}
	dir := base
	if err == nil && u.Scheme == "file" {
		dir = u.Path
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolving registry path %s: %w", dir, err)
	}
	return &dirSource{root: abs}, nil
}

type httpSource struct {
	base      string
	client    *http.Client
	userAgent string
}

func (s *httpSource) URL(path string) string {
	return s.base + "/" + path
}

func (s *httpSource) Fetch(ctx context.Context, path string, v Validators) (*Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.URL(path), nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if s.userAgent != "" {
		req.Header.Set("User-Agent", s.userAgent)
	}
	if v.ETag != "" {
		req.Header.Set("If-None-Match", v.ETag)
	}
	if v.LastModified != "" {
		req.Header.Set("If-Modified-Since", v.LastModified)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, errdefs.FromContext(ctx.Err())
		}
		return nil, errdefs.Kind(errdefs.ErrNetwork, "fetching %s: %v", req.URL, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotModified:
		return &Response{NotModified: true, Validators: v}, nil
	case resp.StatusCode == http.StatusNotFound:
		return nil, errdefs.Kind(errdefs.ErrNotFound, "%s returned 404", req.URL)
	case resp.StatusCode != http.StatusOK:
		return nil, errdefs.Kind(errdefs.ErrNetwork, "%s returned status %d", req.URL, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		if ctx.Err() != nil {
			return nil, errdefs.FromContext(ctx.Err())
		}
		return nil, errdefs.Kind(errdefs.ErrNetwork, "reading %s: %v", req.URL, err)
	}
	return &Response{
		Body: body,
		Validators: Validators{
			ETag:         resp.Header.Get("ETag"),
			LastModified: resp.Header.Get("Last-Modified"),
		},
	}, nil
}

// dirSource serves a registry checkout on the local filesystem. The file
// modification time stands in for Last-Modified.
type dirSource struct {
	root string
}

func (s *dirSource) URL(path string) string {
	return "file://" + filepath.ToSlash(filepath.Join(s.root, filepath.FromSlash(path)))
}

func (s *dirSource) Fetch(ctx context.Context, path string, v Validators) (*Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, errdefs.FromContext(err)
	}
	p := filepath.Join(s.root, filepath.FromSlash(path))
	info, err := os.Stat(p)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, errdefs.Kind(errdefs.ErrNotFound, "%s does not exist", p)
	}
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", p, err)
	}

	modified := info.ModTime().UTC().Format(http.TimeFormat)
	if v.LastModified != "" && v.LastModified == modified {
		return &Response{NotModified: true, Validators: v}, nil
	}
	body, err := os.ReadFile(p)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", p, err)
	}
	return &Response{Body: body, Validators: Validators{LastModified: modified}}, nil
}

// retryable reports whether a fetch error may succeed on another attempt.
func retryable(err error) bool {
	return errors.Is(err, errdefs.ErrNetwork)
}

// defaultInitialInterval is the first retry delay for registry fetches.
const defaultInitialInterval = 250 * time.Millisecond
