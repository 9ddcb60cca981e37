package manifest

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"go.yaml.in/yaml/v3"
)

// Interface is how a plugin is invoked once installed.
type Interface string

// Interface kinds. Registry data may spell them in any case.
const (
	InterfaceCLI    Interface = "cli"
	InterfaceNative Interface = "native"
)

// UnmarshalJSON normalizes the interface kind to lowercase.
func (i *Interface) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	*i = Interface(strings.ToLower(s))
	return nil
}

// UnmarshalYAML normalizes the interface kind to lowercase.
func (i *Interface) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	*i = Interface(strings.ToLower(s))
	return nil
}

// Valid reports whether i is a known interface kind.
func (i Interface) Valid() bool {
	return i == InterfaceCLI || i == InterfaceNative
}

// PlatformAny is the artifact key for platform-independent artifacts.
const PlatformAny = "any"

// IndexEntry is one plugin row in the lightweight registry index.
type IndexEntry struct {
	Name        string    `json:"name" yaml:"name"`
	Description string    `json:"description,omitempty" yaml:"description,omitempty"`
	Keywords    []string  `json:"keywords,omitempty" yaml:"keywords,omitempty"`
	Latest      string    `json:"latest" yaml:"latest"`
	Author      string    `json:"author,omitempty" yaml:"author,omitempty"`
	Interface   Interface `json:"interface" yaml:"interface"`
}

// Index lists every plugin in the registry with its latest version.
// It is always replaced wholesale, never patched.
type Index struct {
	Plugins   []IndexEntry `json:"plugins"`
	UpdatedAt string       `json:"updated_at,omitempty"`

	byName map[string]int
}

// Lookup returns the index entry for name.
func (idx *Index) Lookup(name string) (IndexEntry, bool) {
	if idx.byName == nil {
		for _, p := range idx.Plugins {
			if p.Name == name {
				return p, true
			}
		}
		return IndexEntry{}, false
	}
	i, ok := idx.byName[name]
	if !ok {
		return IndexEntry{}, false
	}
	return idx.Plugins[i], true
}

func (idx *Index) buildLookup() {
	idx.byName = make(map[string]int, len(idx.Plugins))
	for i, p := range idx.Plugins {
		idx.byName[p.Name] = i
	}
}

// Updated parses UpdatedAt. The zero time is returned when absent or invalid.
func (idx *Index) Updated() time.Time {
	t, err := time.Parse(time.RFC3339, idx.UpdatedAt)
	if err != nil {
		return time.Time{}
	}
	return t
}

// Search returns entries whose name or description contains query
// (case-insensitive) and, when keyword is set, that carry the keyword.
func (idx *Index) Search(query, keyword string) []IndexEntry {
	query = strings.ToLower(query)
	keyword = strings.ToLower(keyword)

	var out []IndexEntry
	for _, p := range idx.Plugins {
		if query != "" &&
			!strings.Contains(strings.ToLower(p.Name), query) &&
			!strings.Contains(strings.ToLower(p.Description), query) {
			continue
		}
		if keyword != "" && !hasKeyword(p.Keywords, keyword) {
			continue
		}
		out = append(out, p)
	}
	return out
}

func hasKeyword(keywords []string, want string) bool {
	for _, k := range keywords {
		if strings.ToLower(k) == want {
			return true
		}
	}
	return false
}

// Manifest is the full per-plugin registry record.
type Manifest struct {
	Name        string    `json:"name" yaml:"name"`
	Description string    `json:"description,omitempty" yaml:"description,omitempty"`
	Author      string    `json:"author,omitempty" yaml:"author,omitempty"`
	License     string    `json:"license,omitempty" yaml:"license,omitempty"`
	Repository  string    `json:"repository,omitempty" yaml:"repository,omitempty"`
	Keywords    []string  `json:"keywords,omitempty" yaml:"keywords,omitempty"`
	Releases    []Release `json:"releases" yaml:"releases"`
}

// Release is one published version of a plugin.
type Release struct {
	Version       string              `json:"version" yaml:"version"`
	UniconvCompat string              `json:"uniconv_compat,omitempty" yaml:"uniconv_compat,omitempty"`
	Interface     Interface           `json:"interface" yaml:"interface"`
	Dependencies  []Dependency        `json:"dependencies,omitempty" yaml:"dependencies,omitempty"`
	Artifacts     map[string]Artifact `json:"artifact" yaml:"artifact"`
}

// Artifact is a downloadable package and its expected SHA-256 digest.
type Artifact struct {
	URL    string `json:"url" yaml:"url"`
	SHA256 string `json:"sha256" yaml:"sha256"`
}

// DependencyKind tags how a dependency is probed. The set is open: unknown
// kinds are reported as check-failed rather than rejected.
type DependencyKind string

// Known dependency kinds.
const (
	KindSystem DependencyKind = "system"
	KindPython DependencyKind = "python"
	KindNode   DependencyKind = "node"
)

// Dependency is an external requirement declared by a release.
type Dependency struct {
	Name    string         `json:"name" yaml:"name"`
	Kind    DependencyKind `json:"type" yaml:"type"`
	Version string         `json:"version,omitempty" yaml:"version,omitempty"`
	Check   string         `json:"check,omitempty" yaml:"check,omitempty"`
}

func (d Dependency) String() string {
	if d.Version == "" {
		return fmt.Sprintf("%s (%s)", d.Name, d.Kind)
	}
	return fmt.Sprintf("%s %s (%s)", d.Name, d.Version, d.Kind)
}

// Collection is a named, ordered group of plugins installable as a unit.
type Collection struct {
	Name        string   `json:"name" yaml:"name"`
	Description string   `json:"description,omitempty" yaml:"description,omitempty"`
	Plugins     []string `json:"plugins" yaml:"plugins"`
}

// Collections is the collections.json document.
type Collections struct {
	Version     int          `json:"version"`
	Collections []Collection `json:"collections"`
}

// Lookup returns the collection called name.
func (c *Collections) Lookup(name string) (Collection, bool) {
	for _, col := range c.Collections {
		if col.Name == name {
			return col, true
		}
	}
	return Collection{}, false
}

// PluginManifest is the manifest shipped inside an installed plugin
// (plugin.json or plugin.yaml).
type PluginManifest struct {
	Name         string    `json:"name" yaml:"name"`
	Version      string    `json:"version,omitempty" yaml:"version,omitempty"`
	Description  string    `json:"description,omitempty" yaml:"description,omitempty"`
	Interface    Interface `json:"interface" yaml:"interface"`
	Executable   string    `json:"executable,omitempty" yaml:"executable,omitempty"`
	Library      string    `json:"library,omitempty" yaml:"library,omitempty"`
	Targets      []string  `json:"targets,omitempty" yaml:"targets,omitempty"`
	InputFormats []string  `json:"input_formats,omitempty" yaml:"input_formats,omitempty"`
}

// Entrypoint returns the file that runs the plugin: the executable for CLI
// plugins, the shared library for native ones.
func (p *PluginManifest) Entrypoint() string {
	if p.Interface == InterfaceNative {
		return p.Library
	}
	return p.Executable
}

// Local manifest file names, in lookup order.
var PluginManifestNames = []string{"plugin.json", "plugin.yaml", "plugin.yml"}
