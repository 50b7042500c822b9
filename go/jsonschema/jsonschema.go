// Package jsonschema validates JSON documents against a JSON Schema.
//
// Schemas normally live next to the type they describe and are embedded:
//
//	//go:embed schema.json
//	var rawSchema []byte
//
//	var schema = jsonschema.MustCompile(rawSchema)
//
//	func ValidateFoo(ctx context.Context, doc []byte) error {
//		violations, err := schema.Validate(ctx, doc)
//		...
//	}
package jsonschema

import (
	"context"
	"errors"
	"fmt"

	"github.com/xeipuuv/gojsonschema"
	"go.benchtrack.dev/infra/go/skerr"
)

// ErrSchemaViolation is returned from Validate when the document parses but
// does not conform. The accompanying slice lists each violation.
var ErrSchemaViolation = errors.New("schema violation")

// Schema is a compiled schema. It is safe for concurrent use.
type Schema struct {
	s *gojsonschema.Schema
}

// Compile parses and compiles a schema document.
func Compile(schema []byte) (*Schema, error) {
	s, err := gojsonschema.NewSchema(gojsonschema.NewBytesLoader(schema))
	if err != nil {
		return nil, skerr.Wrapf(err, "compiling schema")
	}
	return &Schema{s: s}, nil
}

// MustCompile is Compile for schemas embedded at build time.
func MustCompile(schema []byte) *Schema {
	s, err := Compile(schema)
	if err != nil {
		panic(err)
	}
	return s
}

// Validate returns nil if document conforms to the schema.
func (s *Schema) Validate(ctx context.Context, document []byte) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, skerr.Wrap(err)
	}
	result, err := s.s.Validate(gojsonschema.NewBytesLoader(document))
	if err != nil {
		return nil, skerr.Wrapf(err, "failed while validating")
	}
	if result.Valid() {
		return nil, nil
	}
	violations := make([]string, len(result.Errors()))
	for i, e := range result.Errors() {
		violations[i] = fmt.Sprintf("%d: %s", i, e.String())
	}
	return violations, ErrSchemaViolation
}

// Validate compiles schema and checks document against it in one go.
func Validate(ctx context.Context, document, schema []byte) ([]string, error) {
	s, err := Compile(schema)
	if err != nil {
		return nil, err
	}
	return s.Validate(ctx, document)
}
