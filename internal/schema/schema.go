// Package schema validates incoming records against named, versioned
// schemas before they cross a producer/consumer boundary. It deliberately
// does not use a general JSON-Schema engine: the pack's JSON-schema
// libraries (invopop/jsonschema, getkin/kin-openapi) describe schemas for
// LLM tool definitions and OpenAPI docs, not runtime record validation, so
// none of them fit this concern (see DESIGN.md). Instead each named schema
// registers a small typed check function — the "tagged variant, typed
// handler dispatch" design spec.md §9 asks for.
package schema

import (
	"encoding/json"
	"fmt"
)

// Key identifies a schema by name and version.
type Key struct {
	Name    string
	Version int
}

// ErrorKind enumerates validation failure categories.
type ErrorKind string

const (
	ErrUnknownSchema ErrorKind = "unknown_schema"
	ErrMissingField  ErrorKind = "missing_field"
	ErrWrongType     ErrorKind = "wrong_type"
	ErrInvalidValue  ErrorKind = "invalid_value"
)

// ValidationError is the structured error the validator returns on rejection.
type ValidationError struct {
	Kind    ErrorKind
	Path    string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("schema_invalid: %s at %s: %s", e.Kind, e.Path, e.Message)
}

// CheckFunc validates a decoded record body and returns a ValidationError (or nil).
type CheckFunc func(body map[string]any) *ValidationError

// Descriptor is a single registered schema: its (name, version) key and its
// check function.
type Descriptor struct {
	Key   Key
	Check CheckFunc
}

// Validator holds the registry of named, versioned schemas.
type Validator struct {
	schemas map[Key]Descriptor
}

// NewValidator builds an empty validator; call Register for each schema.
func NewValidator() *Validator {
	return &Validator{schemas: make(map[Key]Descriptor)}
}

// Register adds a schema descriptor. Registering the same (name, version)
// twice panics — that's a programming error, not a runtime condition.
func (v *Validator) Register(d Descriptor) {
	if _, exists := v.schemas[d.Key]; exists {
		panic(fmt.Sprintf("schema: duplicate registration for %s v%d", d.Key.Name, d.Key.Version))
	}
	v.schemas[d.Key] = d
}

// Validate decodes raw JSON and runs the registered check for its declared
// (schema_name, schema_version). Unknown top-level fields are ignored
// (additive minor-version compatibility).
func (v *Validator) Validate(raw []byte) (map[string]any, *ValidationError) {
	var body map[string]any
	if err := json.Unmarshal(raw, &body); err != nil {
		return nil, &ValidationError{Kind: ErrWrongType, Path: "$", Message: err.Error()}
	}
	name, _ := body["schema_name"].(string)
	versionF, _ := body["schema_version"].(float64)
	key := Key{Name: name, Version: int(versionF)}
	d, ok := v.schemas[key]
	if !ok {
		return nil, &ValidationError{Kind: ErrUnknownSchema, Path: "$.schema_name", Message: fmt.Sprintf("no schema registered for %s v%d", name, int(versionF))}
	}
	if verr := d.Check(body); verr != nil {
		return nil, verr
	}
	return body, nil
}

// RequireString checks that body[path] is a non-empty string.
func RequireString(body map[string]any, path string) *ValidationError {
	v, ok := body[path]
	if !ok {
		return &ValidationError{Kind: ErrMissingField, Path: path, Message: "required field missing"}
	}
	s, ok := v.(string)
	if !ok || s == "" {
		return &ValidationError{Kind: ErrWrongType, Path: path, Message: "expected non-empty string"}
	}
	return nil
}

// RequireField checks presence only (value may be any JSON type, including zero values).
func RequireField(body map[string]any, path string) *ValidationError {
	if _, ok := body[path]; !ok {
		return &ValidationError{Kind: ErrMissingField, Path: path, Message: "required field missing"}
	}
	return nil
}
