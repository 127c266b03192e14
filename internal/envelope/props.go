package envelope

import (
	"fmt"
	"strconv"
	"strings"
)

// Property maps arrive as loosely typed JSON: booleans and numbers are often
// stringified by the templating layer, and list-valued fields may be
// comma-separated strings. The coercions below normalize those shapes.
// Validation failures fail the event rather than silently defaulting.

// String reads a required string property.
func String(props map[string]any, key string) (string, error) {
	value, ok := props[key]
	if !ok || value == nil {
		return "", fmt.Errorf("missing required property %s", key)
	}
	s, ok := value.(string)
	if !ok {
		return "", fmt.Errorf("property %s must be a string, got %T", key, value)
	}
	if s == "" {
		return "", fmt.Errorf("property %s must not be empty", key)
	}
	return s, nil
}

// OptionalString reads an optional string property, returning "" if absent.
func OptionalString(props map[string]any, key string) (string, error) {
	value, ok := props[key]
	if !ok || value == nil {
		return "", nil
	}
	s, ok := value.(string)
	if !ok {
		return "", fmt.Errorf("property %s must be a string, got %T", key, value)
	}
	return s, nil
}

// OptionalStringOrNumber reads a property that may arrive as a string or a
// JSON number (e.g. a numeric uid), rendered as its decimal string form.
func OptionalStringOrNumber(props map[string]any, key string) (string, error) {
	value, ok := props[key]
	if !ok || value == nil {
		return "", nil
	}
	switch v := value.(type) {
	case string:
		return v, nil
	case float64:
		return strconv.FormatInt(int64(v), 10), nil
	case int:
		return strconv.Itoa(v), nil
	default:
		return "", fmt.Errorf("property %s must be a string or number, got %T", key, value)
	}
}

// Bool parses a possibly stringified boolean. Common text values ("1", "t",
// "true", "y", "yes" and their negatives) are supported.
func Bool(value any, key string) (bool, error) {
	switch v := value.(type) {
	case bool:
		return v, nil
	case string:
		switch strings.ToLower(v) {
		case "1", "t", "true", "y", "yes":
			return true, nil
		case "0", "f", "false", "n", "no":
			return false, nil
		default:
			return false, fmt.Errorf("invalid %s string value %q (expected boolean)", key, v)
		}
	default:
		return false, fmt.Errorf("invalid %s value type %T (expected boolean)", key, value)
	}
}

// OptionalBool reads an optional boolean property with a default.
func OptionalBool(props map[string]any, key string, fallback bool) (bool, error) {
	value, ok := props[key]
	if !ok || value == nil {
		return fallback, nil
	}
	return Bool(value, key)
}

// StringList reads an optional property that is either a list of strings or
// a single comma-separated string. Returns nil if absent.
func StringList(props map[string]any, key string) ([]string, error) {
	value, ok := props[key]
	if !ok || value == nil {
		return nil, nil
	}
	switch v := value.(type) {
	case string:
		if v == "" {
			return nil, nil
		}
		return strings.Split(v, ","), nil
	case []string:
		return append([]string(nil), v...), nil
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			s, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("property %s must contain only strings, got %T", key, item)
			}
			out = append(out, s)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("property %s must be a string or list of strings, got %T", key, value)
	}
}

// OptionalMap reads an optional nested-map property, returning nil if absent.
func OptionalMap(props map[string]any, key string) (map[string]any, error) {
	value, ok := props[key]
	if !ok || value == nil {
		return nil, nil
	}
	m, ok := value.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("property %s must be an object, got %T", key, value)
	}
	return m, nil
}
