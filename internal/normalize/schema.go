package normalize

import (
	"bytes"
	"fmt"

	jsonschema "github.com/santhosh-tekuri/jsonschema/v5"
)

// Schema is a compiled JSON schema that structured output must satisfy.
type Schema struct {
	id       string
	compiled *jsonschema.Schema
}

// CompileSchema compiles doc under the resource name id.
func CompileSchema(id string, doc []byte) (*Schema, error) {
	if len(doc) == 0 {
		return nil, fmt.Errorf("schema %s is empty", id)
	}
	resourceID := "inmemory://" + id
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(resourceID, bytes.NewReader(doc)); err != nil {
		return nil, fmt.Errorf("add schema resource %s: %w", id, err)
	}
	compiled, err := compiler.Compile(resourceID)
	if err != nil {
		return nil, fmt.Errorf("compile schema %s: %w", id, err)
	}
	return &Schema{id: id, compiled: compiled}, nil
}

// MustCompileSchema is CompileSchema for schemas embedded in the binary.
func MustCompileSchema(id string, doc []byte) *Schema {
	s, err := CompileSchema(id, doc)
	if err != nil {
		panic(err)
	}
	return s
}

// Validate checks a KindJSON response against s. Any other kind is
// returned unchanged; a violation turns r into an invalid-format error.
func (s *Schema) Validate(r Response) Response {
	if r.Kind != KindJSON {
		return r
	}
	if err := s.compiled.Validate(r.Value); err != nil {
		return invalid(fmt.Sprintf("does not match schema %s: %v", s.id, err))
	}
	return r
}
