package docstore

import (
	"encoding/json"
	"fmt"
	"maps"
	"regexp"
	"strings"
)

// Server-managed field names. Callers cannot write them.
const (
	FieldID        = "id"
	FieldCreatedAt = "createdAt"
	FieldUpdatedAt = "updatedAt"
)

var identifierPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Fields holds the caller-visible fields of a document.
//
// Values are JSON-compatible primitives. In an update, a nil value removes the
// field; an absent key leaves the stored value untouched.
type Fields map[string]any

// String returns the field as a string, or "" if absent or not a string.
func (f Fields) String(key string) string {
	s, _ := f[key].(string) //nolint:errcheck // zero value on mismatch
	return s
}

// Float returns the field as a float64, accepting any numeric encoding the
// backends produce. Absent or non-numeric fields read as 0.
func (f Fields) Float(key string) float64 {
	switch v := f[key].(type) {
	case float64:
		return v
	case float32:
		return float64(v)
	case int:
		return float64(v)
	case int32:
		return float64(v)
	case int64:
		return float64(v)
	case json.Number:
		n, _ := v.Float64() //nolint:errcheck // zero value on malformed number
		return n
	default:
		return 0
	}
}

// Int64 returns the field as an int64 (truncating floats). Absent fields read as 0.
func (f Fields) Int64(key string) int64 {
	switch v := f[key].(type) {
	case int64:
		return v
	case int:
		return int64(v)
	case int32:
		return int64(v)
	case json.Number:
		n, _ := v.Int64() //nolint:errcheck // zero value on malformed number
		return n
	default:
		return int64(f.Float(key))
	}
}

// Bool returns the field as a bool. Absent fields read as false.
func (f Fields) Bool(key string) bool {
	b, _ := f[key].(bool) //nolint:errcheck // zero value on mismatch
	return b
}

// Has reports whether the field is present.
func (f Fields) Has(key string) bool {
	_, ok := f[key]
	return ok
}

// Clone returns a shallow copy.
func (f Fields) Clone() Fields {
	if f == nil {
		return nil
	}
	return maps.Clone(f)
}

// Merge returns a new Fields with update applied on top of f.
// Nil values in update delete the corresponding key.
func (f Fields) Merge(update Fields) Fields {
	out := make(Fields, len(f)+len(update))
	maps.Copy(out, f)
	for k, v := range update {
		if v == nil {
			delete(out, k)
			continue
		}
		out[k] = v
	}
	return out
}

// validateWrite checks caller-supplied fields. allowNil permits deletion markers.
func validateWrite(fields Fields, allowNil bool) error {
	for k, v := range fields {
		if k == FieldID || k == FieldCreatedAt || k == FieldUpdatedAt {
			return fmt.Errorf("%w: field %q is assigned by the store", ErrValidation, k)
		}
		if strings.HasPrefix(k, "_") || !identifierPattern.MatchString(k) {
			return fmt.Errorf("%w: invalid field name %q", ErrValidation, k)
		}
		if v == nil && !allowNil {
			return fmt.Errorf("%w: field %q is nil", ErrValidation, k)
		}
	}
	return nil
}

// withoutNil drops deletion markers from fields used to create a document.
func withoutNil(fields Fields) Fields {
	out := make(Fields, len(fields))
	for k, v := range fields {
		if v != nil {
			out[k] = v
		}
	}
	return out
}

func validateCollection(collection string) error {
	if !identifierPattern.MatchString(collection) {
		return fmt.Errorf("%w: invalid collection name %q", ErrValidation, collection)
	}
	return nil
}

func validateID(id string) error {
	if id == "" {
		return fmt.Errorf("%w: id is required", ErrValidation)
	}
	return nil
}
