// Package config loads JSON5 configuration files into Go structs.
package config

import (
	"io"
	"reflect"
	"time"

	"github.com/flynn/json5"
	"go.benchtrack.dev/infra/go/skerr"
	"go.benchtrack.dev/infra/go/util"
)

// Duration allows us to supply a duration as a human readable string, e.g.
// "90m".
type Duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return skerr.Wrap(err)
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// LoadFromJSON5 decodes the JSON5 file at path into dst, which must be a
// pointer to a struct with "json" tags. Values already in dst are kept for
// fields the file doesn't mention. An error is returned if any non-struct,
// non-bool field is left at its zero value *unless* it is tagged with
// `optional:"true"`.
func LoadFromJSON5(dst interface{}, path string) error {
	// Elem() dereferences a pointer or panics.
	rType := reflect.TypeOf(dst).Elem()
	if rType.Kind() != reflect.Struct {
		return skerr.Fmt("Input must be a pointer to a struct, got %T", dst)
	}
	err := util.WithReadFile(path, func(r io.Reader) error {
		return json5.NewDecoder(r).Decode(dst)
	})
	if err != nil {
		return skerr.Wrapf(err, "reading config at %s", path)
	}
	return CheckRequired(dst)
}

// CheckRequired returns an error if any non-struct, non-bool fields of the
// struct pointed to by dst have a zero value *unless* they have an optional
// tag with value true.
func CheckRequired(dst interface{}) error {
	return checkRequired(reflect.Indirect(reflect.ValueOf(dst)))
}

func checkRequired(rValue reflect.Value) error {
	rType := rValue.Type()
	for i := 0; i < rValue.NumField(); i++ {
		field := rType.Field(i)
		if field.Type.Kind() == reflect.Struct {
			if err := checkRequired(rValue.Field(i)); err != nil {
				return err
			}
			continue
		}
		if field.Type.Kind() == reflect.Bool {
			// Booleans aren't compared against their zero value, since that would
			// make them required to be true always.
			continue
		}
		if field.Tag.Get("json") == "" {
			// e.g. Duration.Duration.
			continue
		}
		if field.Tag.Get("optional") == "true" {
			continue
		}
		if rValue.Field(i).IsZero() {
			return skerr.Fmt("Required %s to be non-zero", field.Name)
		}
	}
	return nil
}
