package history

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadFile_Missing(t *testing.T) {
	data, err := ReadFile(filepath.Join(t.TempDir(), "fish_history"))
	require.NoError(t, err, "a missing history file is an empty history")
	assert.Nil(t, data)
}

func TestReadFile_Exists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fish_history")
	require.NoError(t, os.WriteFile(path, []byte("- cmd: ls\n  when: 1\n"), 0o600))

	data, err := ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, []byte("- cmd: ls\n  when: 1\n"), data)
}

func TestWriteFileAtomic_Creates(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fish_history")

	require.NoError(t, WriteFileAtomic(path, []byte("- cmd: ls\n  when: 1\n")))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, []byte("- cmd: ls\n  when: 1\n"), data)
}

func TestWriteFileAtomic_Replaces(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "fish_history")
	require.NoError(t, os.WriteFile(path, []byte("old\n"), 0o600))

	require.NoError(t, WriteFileAtomic(path, []byte("new\n")))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, []byte("new\n"), data)

	// No temp residue left beside the file.
	names, err := os.ReadDir(dir)
	require.NoError(t, err)
	for _, entry := range names {
		assert.False(t, strings.HasSuffix(entry.Name(), ".tmp"),
			"temp file %s left behind", entry.Name())
	}
}

func TestWriteFileAtomic_MissingDirectory(t *testing.T) {
	err := WriteFileAtomic(filepath.Join(t.TempDir(), "no", "such", "dir", "f"), []byte("x"))
	require.Error(t, err)
}
