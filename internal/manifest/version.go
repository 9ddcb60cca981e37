package manifest

import (
	"fmt"
	"strings"

	"github.com/Masterminds/semver/v3"

	"github.com/uniconv/uniconv/internal/errdefs"
)

// VersionLatest selects the newest compatible release.
const VersionLatest = "latest"

// CompareVersions compares two version strings using semver.
// Returns -1 if a < b, 0 if equal, 1 if a > b. A leading "v" is tolerated.
func CompareVersions(a, b string) (int, error) {
	av, err := parseSemver(a)
	if err != nil {
		return 0, fmt.Errorf("parsing version %q: %w", a, err)
	}
	bv, err := parseSemver(b)
	if err != nil {
		return 0, fmt.Errorf("parsing version %q: %w", b, err)
	}
	return av.Compare(bv), nil
}

// IsNewer returns true if candidate is newer than current.
func IsNewer(current, candidate string) (bool, error) {
	cmp, err := CompareVersions(current, candidate)
	if err != nil {
		return false, err
	}
	return cmp == -1, nil
}

// parseSemver strips a leading "v" and parses the version string.
func parseSemver(version string) (*semver.Version, error) {
	version = strings.TrimPrefix(version, "v")
	return semver.NewVersion(version)
}

// ParseConstraint parses a version constraint such as uniconv_compat or a
// dependency version. A bare version is read as a minimum ("0.3.0" means
// ">=0.3.0").
func ParseConstraint(compat string) (*semver.Constraints, error) {
	compat = strings.TrimSpace(compat)
	if _, err := parseSemver(compat); err == nil {
		compat = ">=" + strings.TrimPrefix(compat, "v")
	}
	return semver.NewConstraint(compat)
}

// CompatibleWith reports whether the release supports the given client
// version. Releases without uniconv_compat, and unparseable client versions
// such as "dev", are always compatible.
func (r *Release) CompatibleWith(clientVersion string) bool {
	if r.UniconvCompat == "" {
		return true
	}
	cv, err := parseSemver(clientVersion)
	if err != nil {
		return true
	}
	c, err := ParseConstraint(r.UniconvCompat)
	if err != nil {
		return false
	}
	return c.Check(cv)
}

// Latest returns the first release. Release order in the manifest is
// authoritative, newest first.
func (m *Manifest) Latest() (*Release, error) {
	if len(m.Releases) == 0 {
		return nil, errdefs.Kind(errdefs.ErrNotFound, "%s has no releases", m.Name)
	}
	return &m.Releases[0], nil
}

// LatestCompatible returns the first release compatible with clientVersion.
func (m *Manifest) LatestCompatible(clientVersion string) (*Release, error) {
	for i := range m.Releases {
		if m.Releases[i].CompatibleWith(clientVersion) {
			return &m.Releases[i], nil
		}
	}
	return nil, errdefs.Kind(errdefs.ErrNotFound, "%s has no release compatible with client %s", m.Name, clientVersion)
}

// Release returns the release with the given version. "v1.2.0" and "1.2.0"
// name the same release.
func (m *Manifest) Release(version string) (*Release, error) {
	want, err := parseSemver(version)
	if err != nil {
		return nil, fmt.Errorf("parsing version %q: %w", version, err)
	}
	for i := range m.Releases {
		v, err := parseSemver(m.Releases[i].Version)
		if err == nil && v.Equal(want) {
			return &m.Releases[i], nil
		}
	}
	return nil, errdefs.Kind(errdefs.ErrNotFound, "%s has no release %s", m.Name, version)
}

// SelectRelease resolves a version selector: "" or "latest" picks the newest
// release compatible with clientVersion, anything else pins that release.
func (m *Manifest) SelectRelease(selector, clientVersion string) (*Release, error) {
	if selector == "" || selector == VersionLatest {
		return m.LatestCompatible(clientVersion)
	}
	return m.Release(selector)
}

// ParseTarget splits "name@version" into its parts. A missing version
// yields VersionLatest.
func ParseTarget(target string) (name, version string) {
	name, version, found := strings.Cut(target, "@")
	if !found || version == "" {
		return name, VersionLatest
	}
	return name, version
}

// SameVersion reports whether a and b denote the same semantic version,
// falling back to string equality when either fails to parse.
func SameVersion(a, b string) bool {
	cmp, err := CompareVersions(a, b)
	if err != nil {
		return a == b
	}
	return cmp == 0
}
