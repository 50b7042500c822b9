// Package events decodes the newline delimited JSON stream a benchmark
// process writes to stdout.
//
// Only two kinds of message are recognized, told apart by their "reason"
// field. Everything else on the stream (compiler chatter, partial writes,
// messages from newer tool versions) is skipped.
package events

import (
	"bufio"
	"bytes"
	"encoding/json"
	"io"

	"go.benchtrack.dev/infra/go/skerr"
	"go.benchtrack.dev/infra/go/sklog"
)

const (
	// ReasonBenchmarkComplete is sent once a single benchmark has finished.
	ReasonBenchmarkComplete = "benchmark-complete"

	// ReasonGroupComplete is sent once every benchmark in a group has finished.
	ReasonGroupComplete = "group-complete"
)

// Event is either a *BenchmarkComplete or a *GroupComplete.
type Event interface {
	// Reason returns the value of the "reason" field.
	Reason() string
}

// BenchmarkComplete carries the results of a single benchmark.
type BenchmarkComplete struct {
	ID string
	// Raw is the whole message, including fields this package doesn't know
	// about.
	Raw json.RawMessage
}

// Reason implements Event.
func (*BenchmarkComplete) Reason() string { return ReasonBenchmarkComplete }

// GroupComplete marks the end of a group of benchmarks.
type GroupComplete struct {
	GroupName  string
	Benchmarks []string
	Raw        json.RawMessage
}

// Reason implements Event.
func (*GroupComplete) Reason() string { return ReasonGroupComplete }

// message is the union of the fields we look at.
type message struct {
	Reason     string   `json:"reason"`
	ID         *string  `json:"id"`
	GroupName  *string  `json:"group_name"`
	Benchmarks []string `json:"benchmarks"`
}

// Decoder reads Events from a stream, one per line.
type Decoder struct {
	r       *bufio.Reader
	skipped int
	done    bool
}

// NewDecoder returns a Decoder reading from r.
func NewDecoder(r io.Reader) *Decoder {
	return &Decoder{r: bufio.NewReader(r)}
}

// Next returns the next recognized event. It returns io.EOF once the stream
// is exhausted. Any other error comes from the underlying reader.
func (d *Decoder) Next() (Event, error) {
	for !d.done {
		line, err := d.r.ReadBytes('\n')
		if err == io.EOF {
			d.done = true
		} else if err != nil {
			return nil, skerr.Wrapf(err, "reading event stream")
		}
		ev := d.decode(line)
		if ev != nil {
			return ev, nil
		}
	}
	return nil, io.EOF
}

// Skipped returns the number of non-empty lines that were not recognized.
func (d *Decoder) Skipped() int {
	return d.skipped
}

func (d *Decoder) decode(line []byte) Event {
	line = bytes.TrimSpace(line)
	if len(line) == 0 {
		return nil
	}
	ev, ok := parse(line)
	if !ok {
		d.skipped++
		sklog.Debugf("Skipping unrecognized line: %.200s", line)
		return nil
	}
	return ev
}

func parse(line []byte) (Event, bool) {
	var m message
	if err := json.Unmarshal(line, &m); err != nil {
		return nil, false
	}
	// Copy, since the reader reuses its buffer.
	raw := json.RawMessage(append([]byte(nil), line...))
	switch m.Reason {
	case ReasonBenchmarkComplete:
		if m.ID == nil {
			return nil, false
		}
		return &BenchmarkComplete{ID: *m.ID, Raw: raw}, true
	case ReasonGroupComplete:
		if m.GroupName == nil {
			return nil, false
		}
		return &GroupComplete{GroupName: *m.GroupName, Benchmarks: m.Benchmarks, Raw: raw}, true
	}
	return nil, false
}
