// Convenience utilities for testing.
package testutils

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/otiai10/copy"
	"github.com/stretchr/testify/require"
)

// SkipIfShort causes the test to be skipped when running with -short.
func SkipIfShort(t testing.TB) {
	if testing.Short() {
		t.Skip("Skipping test with -short")
	}
}

// TestDataDir returns the path to the caller's testdata directory, which
// is assumed to be "<path to caller dir>/testdata".
func TestDataDir(t testing.TB) string {
	_, thisFile, _, ok := runtime.Caller(0)
	require.True(t, ok, "runtime.Caller() failed")
	for skip := 1; ; skip++ {
		_, file, _, ok := runtime.Caller(skip)
		require.True(t, ok, "could not find caller outside of testutils")
		if file != thisFile {
			return filepath.Join(filepath.Dir(file), "testdata")
		}
	}
}

// CopyTestData copies <caller's testdata>/<name> into a new temporary
// directory and returns the path of the copy, so tests can modify it freely.
func CopyTestData(t testing.TB, name string) string {
	src := filepath.Join(TestDataDir(t), name)
	dst := filepath.Join(t.TempDir(), name)
	require.NoError(t, copy.Copy(src, dst), "copying %s", src)
	return dst
}

// ReadFile reads a file from the caller's testdata directory.
func ReadFile(t testing.TB, name string) string {
	b, err := os.ReadFile(filepath.Join(TestDataDir(t), name))
	require.NoError(t, err)
	return string(b)
}
