package install

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/uniconv/uniconv/internal/errdefs"
	"github.com/uniconv/uniconv/internal/manifest"
	"github.com/uniconv/uniconv/internal/userdata"
)

// Record is the LocalInstallRecord persisted for every installed plugin.
type Record struct {
	Name        string             `json:"name" yaml:"name"`
	Version     string             `json:"version" yaml:"version"`
	Interface   manifest.Interface `json:"interface" yaml:"interface"`
	Path        string             `json:"path" yaml:"path"`
	InstalledAt time.Time          `json:"installed_at" yaml:"installed_at"`
	Platform    string             `json:"platform,omitempty" yaml:"platform,omitempty"`
	URL         string             `json:"url,omitempty" yaml:"url,omitempty"`
	SHA256      string             `json:"sha256,omitempty" yaml:"sha256,omitempty"`
}

// recordStore keeps one JSON file per plugin under the records directory.
type recordStore struct {
	layout userdata.Layout
}

// Load returns the record for name, or ErrNotInstalled.
func (s recordStore) Load(name string) (*Record, error) {
	data, err := os.ReadFile(s.layout.RecordPath(name))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, errdefs.Kind(errdefs.ErrNotInstalled, "%s", name)
	}
	if err != nil {
		return nil, fmt.Errorf("reading install record: %w", err)
	}

	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, errdefs.Kind(errdefs.ErrMalformedData, "install record for %s: %v", name, err)
	}
	return &rec, nil
}

// Save writes rec through a temp file and rename.
func (s recordStore) Save(rec *Record) error {
	dir := s.layout.RecordsRoot()
	if err := os.MkdirAll(dir, userdata.DirPermNormal); err != nil {
		return fmt.Errorf("creating records directory: %w", err)
	}
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling install record: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "."+rec.Name+"-*")
	if err != nil {
		return fmt.Errorf("creating install record: %w", err)
	}
	_, werr := tmp.Write(append(data, '\n'))
	cerr := tmp.Close()
	if err := errors.Join(werr, cerr); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("writing install record: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.layout.RecordPath(rec.Name)); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("replacing install record: %w", err)
	}
	return nil
}

// Remove deletes the record for name. A missing record is not an error.
func (s recordStore) Remove(name string) error {
	err := os.Remove(s.layout.RecordPath(name))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("removing install record: %w", err)
	}
	return nil
}

// List returns every record, sorted by name. Unreadable records are skipped
// and reported through skipped.
func (s recordStore) List(skipped func(name string, err error)) ([]*Record, error) {
	entries, err := os.ReadDir(s.layout.RecordsRoot())
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading records directory: %w", err)
	}

	var out []*Record
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || strings.HasPrefix(name, ".") || filepath.Ext(name) != userdata.RecordExt {
			continue
		}
		rec, err := s.Load(strings.TrimSuffix(name, userdata.RecordExt))
		if err != nil {
			if skipped != nil {
				skipped(name, err)
			}
			continue
		}
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}
