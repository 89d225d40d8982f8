package utils

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnsureFileDirectory(t *testing.T) {
	root := t.TempDir()
	target := filepath.Join(root, "a", "b", "report.csv")

	require.NoError(t, EnsureFileDirectory(target))
	info, err := os.Stat(filepath.Join(root, "a", "b"))
	require.NoError(t, err)
	assert.True(t, info.IsDir())

	require.NoError(t, EnsureFileDirectory(target), "second call is a no-op")
	assert.NoError(t, EnsureFileDirectory("report.csv"))
}

func TestEnsureDirectoryExistsOverFile(t *testing.T) {
	file := filepath.Join(t.TempDir(), "taken")
	require.NoError(t, os.WriteFile(file, nil, 0644))

	err := EnsureDirectoryExists(file)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not a directory")
}
