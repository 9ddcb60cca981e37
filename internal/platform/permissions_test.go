package platform

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChmod(t *testing.T) {
	path := filepath.Join(t.TempDir(), "plugin.json")
	require.NoError(t, os.WriteFile(path, []byte("{}"), 0644))
	require.NoError(t, Chmod(path, 0600))

	if !IsWindows() {
		info, err := os.Stat(path)
		require.NoError(t, err)
		assert.Equal(t, os.FileMode(0600), info.Mode().Perm())
	}
}

func TestMakeExecutable(t *testing.T) {
	tmp := t.TempDir()
	path := filepath.Join(tmp, "ascii")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"), 0640))
	require.NoError(t, MakeExecutable(path))

	if !IsWindows() {
		info, err := os.Stat(path)
		require.NoError(t, err)
		assert.Equal(t, os.FileMode(0750), info.Mode().Perm())
	}

	assert.Error(t, MakeExecutable(filepath.Join(tmp, "missing")))
}
