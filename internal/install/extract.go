package install

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	getter "github.com/hashicorp/go-getter"

	"github.com/uniconv/uniconv/internal/errdefs"
	"github.com/uniconv/uniconv/internal/manifest"
	"github.com/uniconv/uniconv/internal/platform"
	"github.com/uniconv/uniconv/internal/userdata"
)

// decompressorFor picks the decompressor whose extension is the longest
// suffix of file, so "x.tar.gz" selects "tar.gz" rather than "gz".
func decompressorFor(file string) (getter.Decompressor, bool) {
	var (
		archive    string
		matchedLen int
	)
	lower := strings.ToLower(file)
	for k := range getter.Decompressors {
		if strings.HasSuffix(lower, "."+k) && len(k) > matchedLen {
			archive = k
			matchedLen = len(k)
		}
	}
	if archive == "" {
		return nil, false
	}
	return getter.Decompressors[archive], true
}

// singleFileArchives decompress to one file rather than a tree.
var singleFileArchives = map[string]bool{"gz": true, "bz2": true, "xz": true, "zst": true}

func isSingleFileArchive(file string) bool {
	lower := strings.ToLower(file)
	ext := strings.TrimPrefix(filepath.Ext(lower), ".")
	return singleFileArchives[ext] && !strings.HasSuffix(strings.TrimSuffix(lower, "."+ext), ".tar")
}

// unpack extracts archive into dir (which must not exist yet) and returns
// the plugin root inside it. A tree holding a single top-level directory and
// no plugin manifest is flattened to that directory. An artifact that is not
// an archive is copied as the plugin's only file and gets a generated
// manifest.
func unpack(archive, dir string, rel *manifest.Release, name string) (string, error) {
	if err := os.MkdirAll(dir, userdata.DirPermNormal); err != nil {
		return "", fmt.Errorf("creating extraction directory: %w", err)
	}

	base := filepath.Base(archive)
	dec, ok := decompressorFor(base)
	if !ok {
		return dir, placeSingleFile(archive, dir, base, rel, name)
	}

	if isSingleFileArchive(base) {
		file := strings.TrimSuffix(base, filepath.Ext(base))
		if err := dec.Decompress(filepath.Join(dir, file), archive, false, 0); err != nil {
			return "", errdefs.Kind(errdefs.ErrMalformedData, "decompressing %s: %v", base, err)
		}
		return dir, writeSynthesized(dir, file, rel, name)
	}

	if err := dec.Decompress(dir, archive, true, 0); err != nil {
		return "", errdefs.Kind(errdefs.ErrMalformedData, "extracting %s: %v", base, err)
	}
	return pluginRoot(dir)
}

// pluginRoot flattens a single wrapping directory.
func pluginRoot(dir string) (string, error) {
	if _, err := manifest.FindPluginFile(dir); err == nil {
		return dir, nil
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", fmt.Errorf("reading extracted artifact: %w", err)
	}
	if len(entries) == 1 && entries[0].IsDir() {
		return filepath.Join(dir, entries[0].Name()), nil
	}
	return dir, nil
}

func placeSingleFile(src, dir, file string, rel *manifest.Release, name string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("opening artifact: %w", err)
	}
	defer in.Close()

	out, err := os.OpenFile(filepath.Join(dir, file), os.O_CREATE|os.O_WRONLY|os.O_TRUNC, userdata.FilePermNormal)
	if err != nil {
		return fmt.Errorf("creating plugin file: %w", err)
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return fmt.Errorf("copying plugin file: %w", err)
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("copying plugin file: %w", err)
	}
	return writeSynthesized(dir, file, rel, name)
}

// writeSynthesized writes plugin.json for a plugin shipped as a bare file.
func writeSynthesized(dir, file string, rel *manifest.Release, name string) error {
	pm := manifest.PluginManifest{
		Name:      name,
		Version:   rel.Version,
		Interface: rel.Interface,
	}
	if rel.Interface == manifest.InterfaceNative {
		pm.Library = file
	} else {
		pm.Executable = file
	}
	data, err := json.MarshalIndent(pm, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling plugin manifest: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, manifest.PluginManifestNames[0]), data, userdata.FilePermNormal); err != nil {
		return fmt.Errorf("writing plugin manifest: %w", err)
	}
	return nil
}

// validatePlugin checks the unpacked plugin against the registry release:
// same name, same interface kind, and an entrypoint that exists inside root.
func validatePlugin(root, name string, rel *manifest.Release) (*manifest.PluginManifest, error) {
	file, err := manifest.FindPluginFile(root)
	if err != nil {
		return nil, errdefs.Kind(errdefs.ErrMalformedData, "%v", err)
	}
	pm, err := manifest.ParsePluginFile(file)
	if err != nil {
		return nil, err
	}

	if pm.Name != name {
		return nil, errdefs.Kind(errdefs.ErrMalformedData, "plugin manifest names %q, registry names %q", pm.Name, name)
	}
	if pm.Interface != rel.Interface {
		return nil, errdefs.Kind(errdefs.ErrMalformedData, "plugin manifest declares interface %q, release declares %q", pm.Interface, rel.Interface)
	}

	entry := pm.Entrypoint()
	if entry == "" {
		return nil, errdefs.Kind(errdefs.ErrMalformedData, "plugin manifest has no entrypoint for a %s plugin", pm.Interface)
	}
	p := filepath.Join(root, filepath.FromSlash(entry))
	if rel, err := filepath.Rel(root, p); err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return nil, errdefs.Kind(errdefs.ErrMalformedData, "entrypoint %q escapes the plugin directory", entry)
	}
	info, err := os.Stat(p)
	if err != nil || info.IsDir() {
		return nil, errdefs.Kind(errdefs.ErrMalformedData, "entrypoint %q not found in artifact", entry)
	}
	if pm.Interface == manifest.InterfaceCLI {
		if err := platform.MakeExecutable(p); err != nil {
			return nil, fmt.Errorf("marking entrypoint executable: %w", err)
		}
	}
	return pm, nil
}
