// Package integrity verifies downloaded artifacts against the SHA-256 digests
// published in the registry. Digests are computed incrementally so artifacts
// of any size are checked without buffering them in memory.
package integrity

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"hash"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/uniconv/uniconv/internal/errdefs"
)

// DigestLen is the length of a hex-encoded SHA-256 digest.
const DigestLen = sha256.Size * 2

// NormalizeDigest lowercases and trims a hex digest and checks its format.
func NormalizeDigest(digest string) (string, error) {
	d := strings.ToLower(strings.TrimSpace(digest))
	if len(d) != DigestLen {
		return "", errdefs.Kind(errdefs.ErrMalformedData, "digest %q is not %d hex characters", digest, DigestLen)
	}
	if _, err := hex.DecodeString(d); err != nil {
		return "", errdefs.Kind(errdefs.ErrMalformedData, "digest %q is not hex", digest)
	}
	return d, nil
}

// Sum computes the hex SHA-256 of everything read from r.
func Sum(r io.Reader) (string, error) {
	h := sha256.New()
	if _, err := io.Copy(h, r); err != nil {
		return "", fmt.Errorf("computing checksum: %w", err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// Verify reports whether the SHA-256 of r equals expected. A malformed
// expected digest is an error, not a mismatch.
func Verify(r io.Reader, expected string) (bool, error) {
	want, err := NormalizeDigest(expected)
	if err != nil {
		return false, err
	}
	got, err := Sum(r)
	if err != nil {
		return false, err
	}
	return got == want, nil
}

// VerifyFile checks the file at path against expected and returns
// ErrIntegrityMismatch when the digests differ.
func VerifyFile(path, expected string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("opening %s for checksum: %w", path, err)
	}
	defer f.Close()

	ok, err := Verify(f, expected)
	if err != nil {
		return err
	}
	if !ok {
		return errdefs.Kind(errdefs.ErrIntegrityMismatch, "%s does not match sha256 %s", filepath.Base(path), strings.ToLower(expected))
	}
	return nil
}

// Writer hashes everything written through it. Wrap a download destination
// with it to compute the digest in the same pass as the copy.
type Writer struct {
	h hash.Hash
}

// NewWriter returns an empty hashing writer.
func NewWriter() *Writer {
	return &Writer{h: sha256.New()}
}

func (w *Writer) Write(p []byte) (int, error) {
	return w.h.Write(p)
}

// Sum returns the hex digest of the bytes written so far.
func (w *Writer) Sum() string {
	return hex.EncodeToString(w.h.Sum(nil))
}

// Matches compares the running digest with expected, case-insensitively.
func (w *Writer) Matches(expected string) (bool, error) {
	want, err := NormalizeDigest(expected)
	if err != nil {
		return false, err
	}
	return w.Sum() == want, nil
}
