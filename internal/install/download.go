package install

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"time"

	pb "github.com/schollz/progressbar/v3"

	"github.com/uniconv/uniconv/internal/errdefs"
	"github.com/uniconv/uniconv/internal/integrity"
)

// artifactFileName returns the file name an artifact is saved under. It keeps
// the URL's extension so the decompressor can be picked from it.
func artifactFileName(rawURL, fallback string) string {
	u, err := url.Parse(rawURL)
	if err == nil {
		if base := path.Base(u.Path); base != "." && base != "/" && base != "" {
			return base
		}
	}
	return fallback
}

// download streams rawURL into destDir, hashing while it writes, and fails
// with ErrIntegrityMismatch when the digest differs from expected. Network
// failures are not retried.
func (e *Engine) download(ctx context.Context, name, rawURL, expected, destDir string) (string, error) {
	dest := filepath.Join(destDir, artifactFileName(rawURL, name))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", fmt.Errorf("creating download request: %w", err)
	}
	if e.userAgent != "" {
		req.Header.Set("User-Agent", e.userAgent)
	}

	resp, err := e.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return "", errdefs.FromContext(ctx.Err())
		}
		return "", errdefs.Kind(errdefs.ErrNetwork, "downloading %s: %v", rawURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", errdefs.Kind(errdefs.ErrNetwork, "download returned status %d for %s", resp.StatusCode, rawURL)
	}

	f, err := os.Create(dest)
	if err != nil {
		return "", fmt.Errorf("creating download file: %w", err)
	}
	defer f.Close()

	hw := integrity.NewWriter()
	var w io.Writer = io.MultiWriter(f, hw)
	if bar := e.progressBar(resp.ContentLength, "Downloading "+name); bar != nil {
		defer bar.Close()
		w = io.MultiWriter(w, bar)
	}

	if _, err := io.Copy(w, resp.Body); err != nil {
		if ctx.Err() != nil {
			return "", errdefs.FromContext(ctx.Err())
		}
		return "", errdefs.Kind(errdefs.ErrNetwork, "reading download stream: %v", err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("writing download: %w", err)
	}

	ok, err := hw.Matches(expected)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", errdefs.Kind(errdefs.ErrIntegrityMismatch, "expected sha256 %s, got %s", expected, hw.Sum())
	}
	return dest, nil
}

func (e *Engine) progressBar(total int64, desc string) *pb.ProgressBar {
	if e.progress == nil {
		return nil
	}
	return pb.NewOptions64(
		total,
		pb.OptionSetDescription(desc),
		pb.OptionSetWriter(e.progress),
		pb.OptionSetWidth(20),
		pb.OptionThrottle(65*time.Millisecond),
		pb.OptionShowBytes(true),
		pb.OptionOnCompletion(func() {
			fmt.Fprint(e.progress, "\n")
		}),
	)
}
