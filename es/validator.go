package es

import "fmt"

// Validator checks a single JSON-shaped payload (a Record's Data or
// Meta) against an opaque, pre-compiled schema. Concrete
// implementations live outside this package; see es/schema for one
// backed by JSON Schema Draft-04.
type Validator interface {
	Validate(payload []byte) error
}

// Registry holds, per declared event type, the data and meta
// validators checked before a record is accepted.
//
// A Registry is built once at store construction and treated as
// immutable afterward, mirroring the projector and contextor
// dispatch tables.
type Registry struct {
	data map[string]Validator
	meta map[string]Validator
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		data: make(map[string]Validator),
		meta: make(map[string]Validator),
	}
}

// Register associates data and meta validators with an event type.
// Either may be nil, meaning that payload is always accepted for that
// type (an empty schema). Register panics on a duplicate type, since
// re-registration would silently change accepted input mid-lifetime.
func (r *Registry) Register(eventType string, data, meta Validator) {
	if _, exists := r.data[eventType]; exists {
		panic(fmt.Sprintf("es: validator already registered for event type %q", eventType))
	}
	r.data[eventType] = data
	r.meta[eventType] = meta
}

// Has reports whether eventType is declared in the registry.
func (r *Registry) Has(eventType string) bool {
	_, ok := r.data[eventType]
	return ok
}

// Types returns the closed set of event types the registry declares,
// in no particular order.
func (r *Registry) Types() []string {
	types := make([]string, 0, len(r.data))
	for t := range r.data {
		types = append(types, t)
	}
	return types
}

// DataValidator returns the data validator registered for eventType, if
// any.
func (r *Registry) DataValidator(eventType string) (Validator, bool) {
	v, ok := r.data[eventType]
	return v, ok
}

// MetaValidator returns the meta validator registered for eventType, if
// any.
func (r *Registry) MetaValidator(eventType string) (Validator, bool) {
	v, ok := r.meta[eventType]
	return v, ok
}

// Validate checks rec.Type against the closed set and runs its data
// and meta validators. A type outside the registry's declared set
// returns UnknownEvent.
func (r *Registry) Validate(rec Record) error {
	dataValidator, ok := r.data[rec.Type]
	if !ok {
		return &UnknownEvent{Type: rec.Type}
	}
	if dataValidator != nil {
		if err := dataValidator.Validate(rec.Data); err != nil {
			return validationErrorFor("data", err)
		}
	}

	metaValidator := r.meta[rec.Type]
	if metaValidator != nil {
		if err := metaValidator.Validate(rec.Meta); err != nil {
			return validationErrorFor("meta", err)
		}
	}

	return nil
}

func validationErrorFor(path string, err error) error {
	if ve, ok := err.(*ValidationError); ok {
		if ve.Path == "" {
			ve.Path = path
		} else {
			ve.Path = path + "." + ve.Path
		}
		return ve
	}
	return &ValidationError{Path: path, Message: err.Error()}
}
