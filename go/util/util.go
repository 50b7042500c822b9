// Package util holds small file helpers shared by the bench tools.
package util

import (
	"io"
	"os"
	"path/filepath"

	"go.benchtrack.dev/infra/go/skerr"
	"go.benchtrack.dev/infra/go/sklog"
)

// Close closes c and logs, rather than returns, any error.
func Close(c io.Closer) {
	if err := c.Close(); err != nil {
		sklog.ErrorfWithDepth(1, "Failed to Close(): %v", err)
	}
}

// Remove removes the named file and logs any error.
func Remove(name string) {
	if err := os.Remove(name); err != nil && !os.IsNotExist(err) {
		sklog.ErrorfWithDepth(1, "Failed to Remove(%s): %v", name, err)
	}
}

// ValidateCommit returns true iff hash is a full 40 character hex object
// name. It says nothing about whether the commit exists anywhere.
func ValidateCommit(hash string) bool {
	if len(hash) != 40 {
		return false
	}
	for _, char := range hash {
		if !((char >= '0' && char <= '9') || (char >= 'a' && char <= 'f') || (char >= 'A' && char <= 'F')) {
			return false
		}
	}
	return true
}

// WithWriteFile writes file through a hidden temporary sibling which is
// synced and renamed over file only if writeFn succeeds. Readers see either
// the old contents or the new ones, never a partial write. Parent directories
// are created as needed.
func WithWriteFile(file string, writeFn func(io.Writer) error) error {
	dir := filepath.Dir(file)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return skerr.Wrapf(err, "creating directory for %s", file)
	}
	f, err := os.CreateTemp(dir, "."+filepath.Base(file)+".*")
	if err != nil {
		return skerr.Wrapf(err, "creating temporary file for %s", file)
	}
	tmp := f.Name()
	if err := writeFn(f); err != nil {
		Close(f)
		Remove(tmp)
		return err
	}
	if err := f.Sync(); err != nil {
		Close(f)
		Remove(tmp)
		return skerr.Wrapf(err, "syncing %s", tmp)
	}
	if err := f.Close(); err != nil {
		Remove(tmp)
		return skerr.Wrapf(err, "closing %s", tmp)
	}
	if err := os.Chmod(tmp, 0644); err != nil {
		Remove(tmp)
		return skerr.Wrapf(err, "chmod %s", tmp)
	}
	if err := os.Rename(tmp, file); err != nil {
		Remove(tmp)
		return skerr.Wrapf(err, "renaming %s to %s", tmp, file)
	}
	return nil
}

// WriteFileAtomic is WithWriteFile for contents already in memory.
func WriteFileAtomic(file string, b []byte) error {
	return WithWriteFile(file, func(w io.Writer) error {
		_, err := w.Write(b)
		return err
	})
}

// WithReadFile opens file and hands it to fn, closing it afterwards.
func WithReadFile(file string, fn func(f io.Reader) error) error {
	f, err := os.Open(file)
	if err != nil {
		return err
	}
	defer Close(f)
	return fn(f)
}
