package es

import "testing"

type stubValidator struct {
	err error
}

func (v stubValidator) Validate(_ []byte) error { return v.err }

func TestRegistryValidateUnknownType(t *testing.T) {
	r := NewRegistry()
	err := r.Validate(Record{Type: "Nope"})

	if _, ok := err.(*UnknownEvent); !ok {
		t.Fatalf("expected *UnknownEvent, got %#v", err)
	}
}

func TestRegistryValidateDataErrorIsPathPrefixed(t *testing.T) {
	r := NewRegistry()
	dataErr := &ValidationError{Message: "bad data"}
	r.Register("Widget", stubValidator{err: dataErr}, nil)

	err := r.Validate(Record{Type: "Widget", Data: []byte(`{}`)})

	ve, ok := err.(*ValidationError)
	if !ok {
		t.Fatalf("expected *ValidationError, got %#v", err)
	}
	if ve.Path != "data" {
		t.Fatalf("expected path to be prefixed with %q, got %q", "data", ve.Path)
	}
}

func TestRegistryValidateNilValidatorAcceptsAnything(t *testing.T) {
	r := NewRegistry()
	r.Register("Widget", nil, nil)

	if err := r.Validate(Record{Type: "Widget", Data: []byte("not json at all")}); err != nil {
		t.Fatalf("expected nil validator to accept any payload, got %v", err)
	}
}

func TestRegistryHasAndTypes(t *testing.T) {
	r := NewRegistry()
	r.Register("Widget", nil, nil)
	r.Register("Gadget", nil, nil)

	if !r.Has("Widget") {
		t.Fatalf("expected Has to report registered type")
	}
	if r.Has("Sprocket") {
		t.Fatalf("expected Has to report false for unregistered type")
	}

	types := r.Types()
	if len(types) != 2 {
		t.Fatalf("expected 2 declared types, got %d", len(types))
	}
}

func TestRegistryRegisterDuplicatePanics(t *testing.T) {
	r := NewRegistry()
	r.Register("Widget", nil, nil)

	defer func() {
		if recover() == nil {
			t.Fatalf("expected duplicate registration to panic")
		}
	}()
	r.Register("Widget", nil, nil)
}
