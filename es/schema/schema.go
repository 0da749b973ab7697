// Package schema compiles the JSON Schema Draft-04 documents backing
// each declared event type into es.Validator implementations, using
// github.com/santhosh-tekuri/jsonschema/v6.
//
// This is schema compilation into runtime validators, not the
// generation of a typed Go event union (that remains the job of a
// separate code-generation tool, out of scope here).
package schema

import (
	"encoding/json"
	"fmt"

	jsonschema "github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/nimbusdb/evently/es"
)

// Validator wraps a compiled JSON Schema and implements es.Validator.
// A nil *Validator accepts every payload, matching an event type with
// no declared schema.
type Validator struct {
	schema *jsonschema.Schema
}

// Validate implements es.Validator.
func (v *Validator) Validate(payload []byte) error {
	if v == nil || v.schema == nil {
		return nil
	}
	if len(payload) == 0 {
		payload = []byte("{}")
	}

	var instance any
	if err := json.Unmarshal(payload, &instance); err != nil {
		return &es.ValidationError{Message: fmt.Sprintf("payload is not valid JSON: %v", err)}
	}

	if err := v.schema.Validate(instance); err != nil {
		return &es.ValidationError{Message: err.Error()}
	}
	return nil
}

// Compile compiles a single JSON Schema Draft-04 document into a
// Validator. An empty or nil raw schema compiles to a Validator that
// accepts anything.
func Compile(name string, raw json.RawMessage) (*Validator, error) {
	if len(raw) == 0 {
		return &Validator{}, nil
	}

	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("schema: %s: invalid JSON: %w", name, err)
	}

	c := jsonschema.NewCompiler()
	c.DefaultDraft(jsonschema.Draft4)

	resource := "mem://" + name
	if err := c.AddResource(resource, doc); err != nil {
		return nil, fmt.Errorf("schema: %s: %w", name, err)
	}

	compiled, err := c.Compile(resource)
	if err != nil {
		return nil, fmt.Errorf("schema: %s: %w", name, err)
	}

	return &Validator{schema: compiled}, nil
}

// EventFile is the shape of one JSON schema input file:
// "{event: {type, data?, meta?}, definitions?}". definitions are shared
// sub-schemas resolved across all files in a Set; duplicate keys across
// files are a fatal configuration error.
type EventFile struct {
	Event struct {
		Type string          `json:"type"`
		Data json.RawMessage `json:"data,omitempty"`
		Meta json.RawMessage `json:"meta,omitempty"`
	} `json:"event"`
	Definitions map[string]json.RawMessage `json:"definitions,omitempty"`
}

// LoadSet parses a set of EventFile documents, merges their shared
// definitions, compiles each event's data and meta schema (with access
// to the merged definitions via "#/definitions/<name>"), and returns a
// populated es.Registry. Duplicate definition keys across files, or a
// duplicate event type, are fatal configuration errors.
func LoadSet(files map[string]json.RawMessage) (*es.Registry, error) {
	definitions := make(map[string]json.RawMessage)
	parsed := make(map[string]EventFile, len(files))

	for name, raw := range files {
		var f EventFile
		if err := json.Unmarshal(raw, &f); err != nil {
			return nil, fmt.Errorf("schema: %s: invalid event file: %w", name, err)
		}
		if f.Event.Type == "" {
			return nil, fmt.Errorf("schema: %s: missing event.type", name)
		}
		parsed[name] = f

		for key, def := range f.Definitions {
			if _, exists := definitions[key]; exists {
				return nil, fmt.Errorf("schema: duplicate definition key %q (seen again in %s)", key, name)
			}
			definitions[key] = def
		}
	}

	registry := es.NewRegistry()
	for name, f := range parsed {
		dataSchema, err := withDefinitions(f.Event.Data, definitions)
		if err != nil {
			return nil, fmt.Errorf("schema: %s: %w", name, err)
		}
		metaSchema, err := withDefinitions(f.Event.Meta, definitions)
		if err != nil {
			return nil, fmt.Errorf("schema: %s: %w", name, err)
		}

		dataValidator, err := Compile(f.Event.Type+"/data", dataSchema)
		if err != nil {
			return nil, err
		}
		metaValidator, err := Compile(f.Event.Type+"/meta", metaSchema)
		if err != nil {
			return nil, err
		}

		registry.Register(f.Event.Type, dataValidator, metaValidator)
	}

	return registry, nil
}

// withDefinitions injects the merged definitions map into a schema
// document so its "#/definitions/<name>" $refs resolve, without
// mutating the caller's bytes.
func withDefinitions(raw json.RawMessage, definitions map[string]json.RawMessage) (json.RawMessage, error) {
	if len(raw) == 0 || len(definitions) == 0 {
		return raw, nil
	}

	var doc map[string]json.RawMessage
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("invalid schema object: %w", err)
	}
	if _, exists := doc["definitions"]; !exists {
		merged, err := json.Marshal(definitions)
		if err != nil {
			return nil, err
		}
		doc["definitions"] = merged
	}

	return json.Marshal(doc)
}
