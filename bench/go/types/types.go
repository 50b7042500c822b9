// Package types holds the types shared by the benchmark database packages.
package types

import (
	"bytes"
	"encoding/json"
	"sort"
	"strings"

	"go.benchtrack.dev/infra/go/skerr"
	"go.benchtrack.dev/infra/go/util"
)

// CommitHash is the 40 character hex hash of a commit in the tracked repo.
type CommitHash string

// Short returns the first 8 characters, for log messages.
func (c CommitHash) Short() string {
	if len(c) > 8 {
		return string(c[:8])
	}
	return string(c)
}

// ValidCommitHash returns true if s has the shape of a full commit hash.
// Directories in the database whose names fail this check are ignored.
func ValidCommitHash(s string) bool {
	return util.ValidateCommit(s)
}

// Validate returns an error if c is not a full commit hash.
func (c CommitHash) Validate() error {
	if !ValidCommitHash(string(c)) {
		return skerr.Fmt("invalid commit hash %q", string(c))
	}
	return nil
}

// RunName identifies the machine or configuration a run was made on, e.g.
// "aorus".
type RunName string

// Validate returns an error if the name can't be used as a single directory
// name in the database.
func (r RunName) Validate() error {
	s := string(r)
	if s == "" {
		return skerr.Fmt("run name must not be empty")
	}
	if strings.ContainsAny(s, `/\`) {
		return skerr.Fmt("run name %q must not contain path separators", s)
	}
	if strings.HasPrefix(s, ".") {
		return skerr.Fmt("run name %q must not start with '.'", s)
	}
	return nil
}

// BenchmarkID is the slash separated name of a single benchmark, e.g.
// "group/case". Each segment becomes a directory in the run, the last one a
// file.
type BenchmarkID string

// Segments splits the id and checks that every segment is a usable file name.
// Segments may not start with a dot; hidden names are reserved for staging and
// temporary files and are never listed as results.
func (b BenchmarkID) Segments() ([]string, error) {
	parts := strings.Split(string(b), "/")
	for _, p := range parts {
		if p == "" || strings.HasPrefix(p, ".") || strings.Contains(p, `\`) {
			return nil, skerr.Fmt("invalid benchmark id %q", string(b))
		}
	}
	return parts, nil
}

// SystemInfo describes the machine a run was made on. The database does not
// interpret it; fields are kept verbatim.
type SystemInfo map[string]json.RawMessage

// Reserved manifest keys, which SystemInfo fields can't override.
const (
	manifestCommitHashKey = "commit_hash"
	manifestNameKey       = "name"
	manifestBenchmarksKey = "benchmarks"
)

// RunManifest is run.json: which benchmarks a run contains and the system it
// ran on.
type RunManifest struct {
	CommitHash CommitHash
	Name       RunName
	System     SystemInfo
	// Benchmarks is the list of BenchmarkIDs in the run.
	Benchmarks []string
}

// MarshalJSON writes the manifest with the system info inlined. Key order is
// fixed (commit_hash, name, sorted system keys, benchmarks) so the same
// manifest always serializes to the same bytes.
func (m RunManifest) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	writeField := func(key string, value []byte) {
		if buf.Len() > 1 {
			buf.WriteByte(',')
		}
		k, _ := json.Marshal(key)
		buf.Write(k)
		buf.WriteByte(':')
		buf.Write(value)
	}
	buf.WriteByte('{')
	for _, kv := range []struct {
		key   string
		value interface{}
	}{
		{manifestCommitHashKey, m.CommitHash},
		{manifestNameKey, m.Name},
	} {
		b, err := json.Marshal(kv.value)
		if err != nil {
			return nil, skerr.Wrap(err)
		}
		writeField(kv.key, b)
	}
	keys := make([]string, 0, len(m.System))
	for k := range m.System {
		if k == manifestCommitHashKey || k == manifestNameKey || k == manifestBenchmarksKey {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		var compact bytes.Buffer
		if err := json.Compact(&compact, m.System[k]); err != nil {
			return nil, skerr.Wrapf(err, "system info field %q", k)
		}
		writeField(k, compact.Bytes())
	}
	benchmarks := m.Benchmarks
	if benchmarks == nil {
		benchmarks = []string{}
	}
	b, err := json.Marshal(benchmarks)
	if err != nil {
		return nil, skerr.Wrap(err)
	}
	writeField(manifestBenchmarksKey, b)
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON is the inverse of MarshalJSON. Every key other than
// commit_hash, name and benchmarks is system info.
func (m *RunManifest) UnmarshalJSON(b []byte) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(b, &fields); err != nil {
		return skerr.Wrap(err)
	}
	if fields == nil {
		return skerr.Fmt("manifest is not a JSON object")
	}
	var rv RunManifest
	if raw, ok := fields[manifestCommitHashKey]; ok {
		if err := json.Unmarshal(raw, &rv.CommitHash); err != nil {
			return skerr.Wrapf(err, "decoding %s", manifestCommitHashKey)
		}
	}
	if raw, ok := fields[manifestNameKey]; ok {
		if err := json.Unmarshal(raw, &rv.Name); err != nil {
			return skerr.Wrapf(err, "decoding %s", manifestNameKey)
		}
	}
	if raw, ok := fields[manifestBenchmarksKey]; ok {
		if err := json.Unmarshal(raw, &rv.Benchmarks); err != nil {
			return skerr.Wrapf(err, "decoding %s", manifestBenchmarksKey)
		}
	}
	delete(fields, manifestCommitHashKey)
	delete(fields, manifestNameKey)
	delete(fields, manifestBenchmarksKey)
	rv.System = fields
	*m = rv
	return nil
}

// Encode returns the indented JSON form of the manifest, as stored on disk.
func (m *RunManifest) Encode() ([]byte, error) {
	b, err := json.Marshal(m)
	if err != nil {
		return nil, skerr.Wrap(err)
	}
	var out bytes.Buffer
	if err := json.Indent(&out, b, "", "  "); err != nil {
		return nil, skerr.Wrap(err)
	}
	out.WriteByte('\n')
	return out.Bytes(), nil
}

// DecodeManifest parses run.json.
func DecodeManifest(b []byte) (*RunManifest, error) {
	var m RunManifest
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, skerr.Wrap(err)
	}
	return &m, nil
}
