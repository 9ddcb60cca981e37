package manifest

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/uniconv/uniconv/internal/errdefs"
)

func TestCompareVersions(t *testing.T) {
	tests := []struct {
		a, b string
		want int
	}{
		{"1.0.0", "1.1.0", -1},
		{"v1.2.0", "1.2.0", 0},
		{"2.0.0", "1.9.9", 1},
		{"1.0.0-beta.1", "1.0.0", -1},
	}
	for _, tt := range tests {
		got, err := CompareVersions(tt.a, tt.b)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got, "%s vs %s", tt.a, tt.b)
	}

	_, err := CompareVersions("dev", "1.0.0")
	assert.Error(t, err)
}

func TestIsNewer(t *testing.T) {
	newer, err := IsNewer("1.1.0", "1.2.0")
	require.NoError(t, err)
	assert.True(t, newer)

	newer, err = IsNewer("1.2.0", "1.2.0")
	require.NoError(t, err)
	assert.False(t, newer)
}

func TestCompatibleWith(t *testing.T) {
	tests := []struct {
		name   string
		compat string
		client string
		want   bool
	}{
		{"no constraint", "", "0.1.0", true},
		{"constraint satisfied", ">=0.5.0", "0.6.0", true},
		{"constraint violated", ">=0.5.0", "0.4.9", false},
		{"bare version is a minimum", "0.5.0", "0.5.1", true},
		{"bare version rejects older", "0.5.0", "0.4.0", false},
		{"dev client", ">=9.0.0", "dev", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := Release{UniconvCompat: tt.compat}
			assert.Equal(t, tt.want, r.CompatibleWith(tt.client))
		})
	}
}

func TestSelectRelease(t *testing.T) {
	m := &Manifest{
		Name: "ascii",
		Releases: []Release{
			{Version: "1.2.0", UniconvCompat: ">=0.5.0"},
			{Version: "1.1.0"},
		},
	}

	r, err := m.SelectRelease("", "0.6.0")
	require.NoError(t, err)
	assert.Equal(t, "1.2.0", r.Version)

	r, err = m.SelectRelease(VersionLatest, "0.4.0")
	require.NoError(t, err)
	assert.Equal(t, "1.1.0", r.Version, "incompatible releases are skipped when choosing latest")

	r, err = m.SelectRelease("v1.1.0", "0.6.0")
	require.NoError(t, err)
	assert.Equal(t, "1.1.0", r.Version)

	_, err = m.SelectRelease("3.0.0", "0.6.0")
	assert.True(t, errors.Is(err, errdefs.ErrNotFound))

	_, err = (&Manifest{Name: "empty"}).Latest()
	assert.True(t, errors.Is(err, errdefs.ErrNotFound))
}

func TestParseTarget(t *testing.T) {
	name, version := ParseTarget("ascii@1.1.0")
	assert.Equal(t, "ascii", name)
	assert.Equal(t, "1.1.0", version)

	name, version = ParseTarget("ascii")
	assert.Equal(t, "ascii", name)
	assert.Equal(t, VersionLatest, version)

	_, version = ParseTarget("ascii@")
	assert.Equal(t, VersionLatest, version)
}

func TestSameVersion(t *testing.T) {
	assert.True(t, SameVersion("v1.2.0", "1.2.0"))
	assert.False(t, SameVersion("1.2.0", "1.2.1"))
	assert.True(t, SameVersion("dev", "dev"))
}
