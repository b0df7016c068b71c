package fsutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCopyFile(t *testing.T) {
	src := filepath.Join(t.TempDir(), "src")
	require.NoError(t, os.WriteFile(src, []byte("content"), 0640))

	dst := filepath.Join(t.TempDir(), "dst")
	require.NoError(t, CopyFile(src, dst))

	data, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.EqualValues(t, "content", string(data))

	info, err := os.Stat(dst)
	require.NoError(t, err)
	assert.EqualValues(t, os.FileMode(0640), info.Mode().Perm())

	assert.FileExists(t, src)

	t.Run("missing source", func(t *testing.T) {
		assert.Error(t, CopyFile(filepath.Join(t.TempDir(), "nope"), dst))
	})
}

func TestMoveFile(t *testing.T) {
	src := filepath.Join(t.TempDir(), "src")
	require.NoError(t, os.WriteFile(src, []byte("content"), 0644))

	dst := filepath.Join(t.TempDir(), "dst")
	require.NoError(t, MoveFile(src, dst))

	assert.NoFileExists(t, src)
	data, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.EqualValues(t, "content", string(data))
}
