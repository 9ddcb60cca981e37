package install

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/uniconv/uniconv/internal/errdefs"
	"github.com/uniconv/uniconv/internal/manifest"
	"github.com/uniconv/uniconv/internal/userdata"
)

func TestRecordStore(t *testing.T) {
	root := t.TempDir()
	s := recordStore{layout: userdata.NewLayout(filepath.Join(root, "plugins"), filepath.Join(root, "cache"))}

	_, err := s.Load("ascii")
	assert.True(t, errors.Is(err, errdefs.ErrNotInstalled))

	list, err := s.List(nil)
	require.NoError(t, err)
	assert.Empty(t, list)

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	for _, name := range []string{"video-convert", "ascii"} {
		require.NoError(t, s.Save(&Record{
			Name:        name,
			Version:     "1.0.0",
			Interface:   manifest.InterfaceCLI,
			Path:        filepath.Join(root, "plugins", name),
			InstalledAt: now,
		}))
	}

	rec, err := s.Load("ascii")
	require.NoError(t, err)
	assert.Equal(t, "1.0.0", rec.Version)
	assert.True(t, now.Equal(rec.InstalledAt))

	// Garbage records are skipped by List and reported.
	require.NoError(t, os.WriteFile(s.layout.RecordPath("broken"), []byte("{"), 0644))
	var skipped []string
	list, err = s.List(func(name string, err error) { skipped = append(skipped, name) })
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "ascii", list[0].Name)
	assert.Equal(t, "video-convert", list[1].Name)
	assert.Equal(t, []string{"broken.json"}, skipped)

	_, err = s.Load("broken")
	assert.True(t, errors.Is(err, errdefs.ErrMalformedData))

	require.NoError(t, s.Remove("ascii"))
	require.NoError(t, s.Remove("ascii"))
	_, err = s.Load("ascii")
	assert.True(t, errors.Is(err, errdefs.ErrNotInstalled))
}
