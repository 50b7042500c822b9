package util

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateCommit(t *testing.T) {
	assert.True(t, ValidateCommit(strings.Repeat("a", 40)))
	assert.True(t, ValidateCommit("0123456789ABCDEFabcdef0123456789abcdef01"))
	assert.False(t, ValidateCommit(strings.Repeat("a", 39)))
	assert.False(t, ValidateCommit(strings.Repeat("g", 40)))
	assert.False(t, ValidateCommit(""))
}

func TestWithWriteFile_Success_ReplacesContentsAndLeavesNoTemp(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "sub", "db.json")
	require.NoError(t, WithWriteFile(file, func(w io.Writer) error {
		_, err := w.Write([]byte("first"))
		return err
	}))
	require.NoError(t, WithWriteFile(file, func(w io.Writer) error {
		_, err := w.Write([]byte("second"))
		return err
	}))
	b, err := os.ReadFile(file)
	require.NoError(t, err)
	assert.Equal(t, "second", string(b))

	entries, err := os.ReadDir(filepath.Dir(file))
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestWithWriteFile_WriteFnFails_OriginalUntouched(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "db.json")
	require.NoError(t, os.WriteFile(file, []byte("original"), 0644))

	err := WithWriteFile(file, func(w io.Writer) error {
		_, _ = w.Write([]byte("partial"))
		return errors.New("boom")
	})
	require.Error(t, err)
	b, err := os.ReadFile(file)
	require.NoError(t, err)
	assert.Equal(t, "original", string(b))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestWithReadFile(t *testing.T) {
	file := filepath.Join(t.TempDir(), "f")
	require.NoError(t, os.WriteFile(file, []byte("hello"), 0644))
	var got string
	require.NoError(t, WithReadFile(file, func(r io.Reader) error {
		b, err := io.ReadAll(r)
		got = string(b)
		return err
	}))
	assert.Equal(t, "hello", got)
	assert.Error(t, WithReadFile(filepath.Join(t.TempDir(), "missing"), func(io.Reader) error { return nil }))
}

func TestWriteFileAtomic(t *testing.T) {
	file := filepath.Join(t.TempDir(), "a", "b", "db.json")
	require.NoError(t, WriteFileAtomic(file, []byte("{}\n")))
	b, err := os.ReadFile(file)
	require.NoError(t, err)
	assert.Equal(t, "{}\n", string(b))
}

func TestRemove_MissingFile_NoPanic(t *testing.T) {
	Remove(filepath.Join(t.TempDir(), "nope"))
}
