package fileutil

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileExists(t *testing.T) {
	dir := t.TempDir()
	assert.True(t, FileExists(dir))
	assert.False(t, FileExists(filepath.Join(dir, "nope")))
}

func TestSubDirs_SkipsFilesAndFilteredNames(t *testing.T) {
	dir := t.TempDir()
	for _, d := range []string{"zeta", "alpha", ".hidden"} {
		require.NoError(t, os.Mkdir(filepath.Join(dir, d), 0755))
	}
	require.NoError(t, os.WriteFile(filepath.Join(dir, "db.json"), []byte("{}"), 0644))

	all, err := SubDirs(dir, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{".hidden", "alpha", "zeta"}, all)

	visible, err := SubDirs(dir, func(name string) bool { return !strings.HasPrefix(name, ".") })
	require.NoError(t, err)
	assert.Equal(t, []string{"alpha", "zeta"}, visible)

	_, err = SubDirs(filepath.Join(dir, "missing"), nil)
	assert.Error(t, err)
}
