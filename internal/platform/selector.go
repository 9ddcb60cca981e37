package platform

import (
	"sort"
	"strings"

	"github.com/uniconv/uniconv/internal/errdefs"
	"github.com/uniconv/uniconv/internal/manifest"
)

// Select returns the artifact a release publishes for platformKey.
//
// Lookup order is the exact key, then "any". A different concrete platform is
// never substituted, so a native plugin cannot be installed with another
// platform's binary.
func Select(release *manifest.Release, platformKey string) (manifest.Artifact, string, error) {
	if a, ok := release.Artifacts[platformKey]; ok {
		return a, platformKey, nil
	}
	if a, ok := release.Artifacts[manifest.PlatformAny]; ok {
		return a, manifest.PlatformAny, nil
	}
	return manifest.Artifact{}, "", errdefs.Kind(errdefs.ErrNoArtifactForPlatform,
		"release %s has no artifact for %s (available: %s)", release.Version, platformKey, strings.Join(Available(release), ", "))
}

// Available lists the platform keys a release publishes, sorted.
func Available(release *manifest.Release) []string {
	keys := make([]string, 0, len(release.Artifacts))
	for k := range release.Artifacts {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
