package manifest

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.yaml.in/yaml/v3"

	"github.com/uniconv/uniconv/internal/errdefs"
)

// DecodeIndex validates and decodes an index document.
func DecodeIndex(data []byte) (*Index, error) {
	var idx Index
	if err := decodeValidated(SchemaIndex, data, &idx); err != nil {
		return nil, err
	}

	seen := make(map[string]bool, len(idx.Plugins))
	for _, p := range idx.Plugins {
		if seen[p.Name] {
			return nil, errdefs.Kind(errdefs.ErrMalformedData, "index lists plugin %q more than once", p.Name)
		}
		seen[p.Name] = true
	}
	idx.buildLookup()
	return &idx, nil
}

// DecodeManifest validates and decodes a per-plugin manifest. A manifest that
// fails any check is rejected whole.
func DecodeManifest(data []byte) (*Manifest, error) {
	var m Manifest
	if err := decodeValidated(SchemaManifest, data, &m); err != nil {
		return nil, err
	}
	if err := m.check(); err != nil {
		return nil, err
	}
	return &m, nil
}

// DecodeCollections validates and decodes a collections document.
func DecodeCollections(data []byte) (*Collections, error) {
	var c Collections
	if err := decodeValidated(SchemaCollections, data, &c); err != nil {
		return nil, err
	}

	seen := make(map[string]bool, len(c.Collections))
	for _, col := range c.Collections {
		if seen[col.Name] {
			return nil, errdefs.Kind(errdefs.ErrMalformedData, "collection %q is defined more than once", col.Name)
		}
		seen[col.Name] = true
	}
	return &c, nil
}

// ParsePluginFile reads a local plugin.json / plugin.yaml.
func ParsePluginFile(path string) (*PluginManifest, error) {
	data, err := readFile(path)
	if err != nil {
		return nil, err
	}

	var (
		result *ValidationResult
		pm     PluginManifest
	)
	if isYAML(path) {
		result, err = ValidateYAML(SchemaPlugin, data)
		if err == nil && result.Valid {
			err = yaml.Unmarshal(data, &pm)
		}
	} else {
		result, err = Validate(SchemaPlugin, data)
		if err == nil && result.Valid {
			err = json.Unmarshal(data, &pm)
		}
	}
	if err != nil {
		return nil, errdefs.Kind(errdefs.ErrMalformedData, "%s: %v", filepath.Base(path), err)
	}
	if !result.Valid {
		return nil, errdefs.Kind(errdefs.ErrMalformedData, "%s: %s", filepath.Base(path), result.Summary())
	}
	return &pm, nil
}

// FindPluginFile returns the path of the local plugin manifest in dir.
func FindPluginFile(dir string) (string, error) {
	for _, name := range PluginManifestNames {
		p := filepath.Join(dir, name)
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}
	return "", fmt.Errorf("no plugin manifest (%s) found in %s", strings.Join(PluginManifestNames, ", "), dir)
}

// decodeValidated checks data against the schema before unmarshaling into v,
// so a structurally invalid document is never partially interpreted.
func decodeValidated(schemaName string, data []byte, v any) error {
	result, err := Validate(schemaName, data)
	if err != nil {
		return errdefs.Kind(errdefs.ErrMalformedData, "%v", err)
	}
	if !result.Valid {
		return errdefs.Kind(errdefs.ErrMalformedData, "%s", result.Summary())
	}
	if err := json.Unmarshal(data, v); err != nil {
		return errdefs.Kind(errdefs.ErrMalformedData, "%v", err)
	}
	return nil
}

// check enforces the invariants the schema cannot express.
func (m *Manifest) check() error {
	seen := make(map[string]bool, len(m.Releases))
	for i := range m.Releases {
		r := &m.Releases[i]
		if _, err := parseSemver(r.Version); err != nil {
			return errdefs.Kind(errdefs.ErrMalformedData, "%s: release %q is not a semantic version", m.Name, r.Version)
		}
		if seen[r.Version] {
			return errdefs.Kind(errdefs.ErrMalformedData, "%s: release %s is listed more than once", m.Name, r.Version)
		}
		seen[r.Version] = true

		switch r.Interface {
		case InterfaceCLI:
			if _, ok := r.Artifacts[PlatformAny]; !ok {
				return errdefs.Kind(errdefs.ErrMalformedData, "%s %s: cli release has no %q artifact", m.Name, r.Version, PlatformAny)
			}
		case InterfaceNative:
			if !hasConcretePlatform(r.Artifacts) {
				return errdefs.Kind(errdefs.ErrMalformedData, "%s %s: native release has no platform-specific artifact", m.Name, r.Version)
			}
		default:
			return errdefs.Kind(errdefs.ErrMalformedData, "%s %s: unknown interface %q", m.Name, r.Version, r.Interface)
		}

		for key, a := range r.Artifacts {
			a.SHA256 = strings.ToLower(a.SHA256)
			r.Artifacts[key] = a
		}

		if r.UniconvCompat != "" {
			if _, err := ParseConstraint(r.UniconvCompat); err != nil {
				return errdefs.Kind(errdefs.ErrMalformedData, "%s %s: uniconv_compat %q: %v", m.Name, r.Version, r.UniconvCompat, err)
			}
		}
	}
	return nil
}

func hasConcretePlatform(artifacts map[string]Artifact) bool {
	for key := range artifacts {
		if key != PlatformAny {
			return true
		}
	}
	return false
}

func isYAML(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".yaml" || ext == ".yml"
}

// readFile reads the contents of a file at the given path.
func readFile(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading file %s: %w", path, err)
	}
	return data, nil
}
