package userdata

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Directory names under the plugins root. Dot-prefixed names are reserved
// for engine state and never collide with plugin directories.
const (
	RecordsDir = ".records"
	StagingDir = ".staging"
	LocksDir   = ".locks"

	RecordExt = ".json"
)

// Permission constants.
const (
	DirPermNormal  os.FileMode = 0755
	FilePermNormal os.FileMode = 0644
)

// Layout resolves every on-disk location used by the plugin engine.
type Layout struct {
	PluginsDir string // one subdirectory per installed plugin
	CacheDir   string // registry response cache
}

// NewLayout returns a Layout rooted at the given directories.
func NewLayout(pluginsDir, cacheDir string) Layout {
	return Layout{PluginsDir: pluginsDir, CacheDir: cacheDir}
}

// PluginDir returns the final install directory for a plugin.
func (l Layout) PluginDir(name string) string {
	return filepath.Join(l.PluginsDir, name)
}

// RecordsRoot returns the directory holding install records.
func (l Layout) RecordsRoot() string {
	return filepath.Join(l.PluginsDir, RecordsDir)
}

// RecordPath returns the install record file for a plugin.
func (l Layout) RecordPath(name string) string {
	return filepath.Join(l.RecordsRoot(), name+RecordExt)
}

// StagingRoot returns the staging area. It sits inside PluginsDir so the
// final swap is a same-filesystem rename.
func (l Layout) StagingRoot() string {
	return filepath.Join(l.PluginsDir, StagingDir)
}

// LockPath returns the advisory lock file for a plugin.
func (l Layout) LockPath(name string) string {
	return filepath.Join(l.PluginsDir, LocksDir, name+".lock")
}

// Ensure creates the plugins root and its engine subdirectories.
func (l Layout) Ensure() error {
	for _, dir := range []string{l.PluginsDir, l.RecordsRoot(), l.StagingRoot(), filepath.Join(l.PluginsDir, LocksDir)} {
		if err := os.MkdirAll(dir, DirPermNormal); err != nil {
			return fmt.Errorf("creating %s: %w", dir, err)
		}
	}
	return nil
}

// PluginDirs lists plugin subdirectories present on disk, skipping reserved
// engine directories.
func (l Layout) PluginDirs() ([]string, error) {
	entries, err := os.ReadDir(l.PluginsDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading plugins directory: %w", err)
	}

	var names []string
	for _, entry := range entries {
		if entry.IsDir() && !strings.HasPrefix(entry.Name(), ".") {
			names = append(names, entry.Name())
		}
	}
	return names, nil
}

// ValidPluginName reports whether name is safe to use as a path component.
func ValidPluginName(name string) bool {
	if name == "" || name == "." || name == ".." || strings.HasPrefix(name, ".") {
		return false
	}
	return !strings.ContainsAny(name, `/\`) && filepath.Base(name) == name
}
