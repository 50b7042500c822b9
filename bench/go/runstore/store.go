// Package runstore stores benchmark runs on disk, one directory per
// (commit, run name) pair:
//
//	<db>/<commit>/<run>/run.json
//	<db>/<commit>/<run>/<group>/<leaf>.json
//	<db>/<commit>/<run>/<group>/group.json
//
// A run is written into a hidden staging directory next to its final
// location and renamed into place by Run.Commit, so readers never see a
// partially written run. A crashed process leaves at most a stale staging
// directory, which the next BeginRun for the same run removes.
//
// The store assumes a single writer. Nothing guards against two processes
// writing the same database.
package runstore

import (
	"bytes"
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"go.benchtrack.dev/infra/bench/go/types"
	"go.benchtrack.dev/infra/go/jsonschema"
	"go.benchtrack.dev/infra/go/skerr"
	"go.benchtrack.dev/infra/go/sklog"
)

const (
	// ManifestFile is the name of the manifest in each run directory.
	ManifestFile = "run.json"

	// LegacySystemInfoFile held the system info before it was inlined into
	// the manifest. Older runs may still have it.
	LegacySystemInfoFile = "system_info.json"

	// GroupFile holds the group-complete message in each group directory.
	GroupFile = "group.json"

	// ResultExt is the extension of every result file.
	ResultExt = ".json"

	// IndexFile is the name of the global index in the database root.
	IndexFile = "db.json"

	stagingSuffix = ".staging"
)

// ErrAlreadyExists is returned by BeginRun if the run is already in the
// database and force was not given.
var ErrAlreadyExists = errors.New("run already exists")

//go:embed schema.json
var rawManifestSchema []byte

var manifestSchema = jsonschema.MustCompile(rawManifestSchema)

// Store is a benchmark database rooted at a directory.
type Store struct {
	root string
}

// New returns a Store rooted at dbRoot. The directory is created lazily.
func New(dbRoot string) *Store {
	return &Store{root: dbRoot}
}

// Root returns the database directory.
func (s *Store) Root() string {
	return s.root
}

// IndexPath returns the location of the global index.
func (s *Store) IndexPath() string {
	return filepath.Join(s.root, IndexFile)
}

// CommitDir returns the directory holding every run of the given commit.
func (s *Store) CommitDir(commit types.CommitHash) string {
	return filepath.Join(s.root, string(commit))
}

// RunDir returns the final location of the given run.
func (s *Store) RunDir(commit types.CommitHash, run types.RunName) string {
	return filepath.Join(s.root, string(commit), string(run))
}

// Exists returns true if a completed run directory exists.
func (s *Store) Exists(commit types.CommitHash, run types.RunName) bool {
	fi, err := os.Stat(s.RunDir(commit, run))
	return err == nil && fi.IsDir()
}

// isStagingDir returns true if name is a staging directory of run, i.e.
// ".<run>.<uuid>.staging". Run names may contain dots, so the middle must
// parse as a uuid for the name to belong to run and not to "<run>.<x>".
func isStagingDir(name string, run types.RunName) bool {
	prefix := "." + string(run) + "."
	if !strings.HasPrefix(name, prefix) || !strings.HasSuffix(name, stagingSuffix) {
		return false
	}
	middle := strings.TrimSuffix(strings.TrimPrefix(name, prefix), stagingSuffix)
	_, err := uuid.Parse(middle)
	return err == nil && len(middle) == 36
}

// BeginRun starts writing a new run. If the run already exists and force is
// false it returns an error wrapping ErrAlreadyExists and leaves the disk
// untouched. With force, the existing run stays readable until Commit
// replaces it.
func (s *Store) BeginRun(ctx context.Context, commit types.CommitHash, run types.RunName, force bool) (*Run, error) {
	if err := commit.Validate(); err != nil {
		return nil, skerr.Wrap(err)
	}
	if err := run.Validate(); err != nil {
		return nil, skerr.Wrap(err)
	}
	if !force && s.Exists(commit, run) {
		return nil, skerr.Wrapf(ErrAlreadyExists, "%s for commit %s", run, commit.Short())
	}
	commitDir := s.CommitDir(commit)
	if err := os.MkdirAll(commitDir, 0755); err != nil {
		return nil, skerr.Wrapf(err, "creating %s", commitDir)
	}
	if err := s.purgeStaging(commit, run); err != nil {
		return nil, skerr.Wrap(err)
	}
	staging := filepath.Join(commitDir, "."+string(run)+"."+uuid.New().String()+stagingSuffix)
	if err := os.Mkdir(staging, 0755); err != nil {
		return nil, skerr.Wrapf(err, "creating staging dir")
	}
	sklog.Debugf("Staging %s/%s in %s", commit.Short(), run, staging)
	return &Run{
		store:   s,
		commit:  commit,
		name:    run,
		staging: staging,
	}, nil
}

// purgeStaging removes staging directories left behind by a crashed process.
func (s *Store) purgeStaging(commit types.CommitHash, run types.RunName) error {
	dir := s.CommitDir(commit)
	entries, err := os.ReadDir(dir)
	if err != nil {
		return skerr.Wrapf(err, "listing %s", dir)
	}
	for _, e := range entries {
		if !e.IsDir() || !isStagingDir(e.Name(), run) {
			continue
		}
		m := filepath.Join(dir, e.Name())
		sklog.Warningf("Removing stale staging dir %s", m)
		if err := os.RemoveAll(m); err != nil {
			return skerr.Wrapf(err, "removing stale staging dir %s", m)
		}
	}
	return nil
}

// Run is a run being written. Exactly one of Commit or Abort makes it final;
// Abort is safe to defer.
type Run struct {
	store     *Store
	commit    types.CommitHash
	name      types.RunName
	staging   string
	committed bool
	aborted   bool
}

// CommitHash returns the commit the run belongs to.
func (r *Run) CommitHash() types.CommitHash { return r.commit }

// Name returns the name of the run.
func (r *Run) Name() types.RunName { return r.name }

// StagingDir returns the directory the run is being written to.
func (r *Run) StagingDir() string { return r.staging }

func (r *Run) checkOpen() error {
	if r.committed {
		return skerr.Fmt("run %s/%s is already committed", r.commit.Short(), r.name)
	}
	if r.aborted {
		return skerr.Fmt("run %s/%s was aborted", r.commit.Short(), r.name)
	}
	return nil
}

// PutResult writes the result of a single benchmark. Each segment of the id
// becomes a directory; the last one becomes <leaf>.json.
func (r *Run) PutResult(id types.BenchmarkID, payload []byte) error {
	if err := r.checkOpen(); err != nil {
		return err
	}
	segs, err := id.Segments()
	if err != nil {
		return skerr.Wrap(err)
	}
	leaf := segs[len(segs)-1] + ResultExt
	if leaf == GroupFile || (len(segs) == 1 && (leaf == ManifestFile || leaf == LegacySystemInfoFile)) {
		return skerr.Fmt("benchmark id %q collides with a reserved file name", id)
	}
	segs[len(segs)-1] = leaf
	return skerr.Wrap(writeJSON(filepath.Join(append([]string{r.staging}, segs...)...), payload))
}

// PutGroup writes the group-complete message for a group.
func (r *Run) PutGroup(groupName string, payload []byte) error {
	if err := r.checkOpen(); err != nil {
		return err
	}
	segs, err := types.BenchmarkID(groupName).Segments()
	if err != nil {
		return skerr.Wrapf(err, "invalid group name")
	}
	return skerr.Wrap(writeJSON(filepath.Join(append(append([]string{r.staging}, segs...), GroupFile)...), payload))
}

// Commit writes the manifest and moves the run to its final location. If the
// run already exists it is replaced.
func (r *Run) Commit(ctx context.Context, m *types.RunManifest) error {
	if err := r.checkOpen(); err != nil {
		return err
	}
	if m.CommitHash != r.commit || m.Name != r.name {
		return skerr.Fmt("manifest for %s/%s committed to run %s/%s", m.CommitHash.Short(), m.Name, r.commit.Short(), r.name)
	}
	b, err := m.Encode()
	if err != nil {
		return skerr.Wrap(err)
	}
	if err := ValidateManifest(ctx, b); err != nil {
		return skerr.Wrap(err)
	}
	if err := os.WriteFile(filepath.Join(r.staging, ManifestFile), b, 0644); err != nil {
		return skerr.Wrapf(err, "writing manifest")
	}
	final := r.store.RunDir(r.commit, r.name)
	if _, err := os.Stat(final); err == nil {
		sklog.Infof("Replacing existing run %s", final)
		if err := os.RemoveAll(final); err != nil {
			return skerr.Wrapf(err, "removing existing run %s", final)
		}
	}
	if err := os.Rename(r.staging, final); err != nil {
		return skerr.Wrapf(err, "moving %s to %s", r.staging, final)
	}
	r.committed = true
	return nil
}

// Abort removes everything written so far. It does nothing after Commit or a
// previous Abort.
func (r *Run) Abort() {
	if r.committed || r.aborted {
		return
	}
	r.aborted = true
	if err := os.RemoveAll(r.staging); err != nil {
		sklog.Errorf("Failed to remove staging dir %s: %s", r.staging, err)
		return
	}
	// BeginRun may have created the commit dir; drop it again if nothing else
	// lives there. Remove fails on a non-empty dir, which is fine.
	_ = os.Remove(filepath.Dir(r.staging))
}

// ValidateManifest checks an encoded manifest against the manifest schema.
func ValidateManifest(ctx context.Context, b []byte) error {
	violations, err := manifestSchema.Validate(ctx, b)
	if errors.Is(err, jsonschema.ErrSchemaViolation) {
		return skerr.Wrapf(err, "invalid manifest: %s", strings.Join(violations, "; "))
	}
	return skerr.Wrap(err)
}

// writeJSON writes payload to path, indented, creating parent directories.
func writeJSON(path string, payload []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	b, err := indent(payload)
	if err != nil {
		return skerr.Wrapf(err, "payload for %s", path)
	}
	return os.WriteFile(path, b, 0644)
}

func indent(payload []byte) ([]byte, error) {
	var out bytes.Buffer
	if err := json.Indent(&out, payload, "", "  "); err != nil {
		return nil, err
	}
	out.WriteByte('\n')
	return out.Bytes(), nil
}
