package envelope

import (
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// Schema validates a resource's property map against a JSON schema before
// the typed parser runs, so structurally invalid events fail with a uniform
// validation error.
type Schema struct {
	compiled *jsonschema.Schema
}

// MustCompileSchema compiles a schema document, panicking on error. Schemas
// are package-level constants, so a compile failure is a programming error.
func MustCompileSchema(name string, doc string) *Schema {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(name, strings.NewReader(doc)); err != nil {
		panic(fmt.Sprintf("adding schema %s: %v", name, err))
	}
	compiled, err := compiler.Compile(name)
	if err != nil {
		panic(fmt.Sprintf("compiling schema %s: %v", name, err))
	}
	return &Schema{compiled: compiled}
}

// Validate checks a property map against the schema.
func (s *Schema) Validate(props map[string]any) error {
	if props == nil {
		props = map[string]any{}
	}
	if err := s.compiled.Validate(normalize(props)); err != nil {
		return fmt.Errorf("invalid resource properties: %w", err)
	}
	return nil
}

// normalize converts Go-native container types into the interface shapes the
// validator expects (tests construct property maps with typed slices).
func normalize(value any) any {
	switch v := value.(type) {
	case map[string]any:
		out := make(map[string]any, len(v))
		for key, item := range v {
			out[key] = normalize(item)
		}
		return out
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = normalize(item)
		}
		return out
	case []string:
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = item
		}
		return out
	case int:
		return float64(v)
	default:
		return v
	}
}
