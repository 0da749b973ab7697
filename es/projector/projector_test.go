package projector

import (
	"context"
	"errors"
	"testing"

	"github.com/nimbusdb/evently/es"
)

func TestProjectDispatchesRegisteredOnHandler(t *testing.T) {
	var calls []string

	p := NewBuilder().
		On("Widget", func(_ context.Context, _ es.DBTX, rec es.Record, _ Meta) error {
			calls = append(calls, "widget:"+rec.Type)
			return nil
		}).
		Build()

	p.Project(context.Background(), nil, es.Record{Type: "Widget"}, Meta{}, nil)

	if len(calls) != 1 || calls[0] != "widget:Widget" {
		t.Fatalf("expected exactly one On handler call, got %v", calls)
	}
}

func TestProjectSkipsOutdatedByDefault(t *testing.T) {
	fired := false
	p := NewBuilder().
		On("Widget", func(context.Context, es.DBTX, es.Record, Meta) error {
			fired = true
			return nil
		}).
		Build()

	p.Project(context.Background(), nil, es.Record{Type: "Widget"}, Meta{Outdated: true}, nil)

	if fired {
		t.Fatalf("expected On handler without WithOutdated to be skipped for an outdated record")
	}
}

func TestProjectDispatchesOutdatedWhenOptedIn(t *testing.T) {
	fired := false
	p := NewBuilder().
		On("Widget", func(context.Context, es.DBTX, es.Record, Meta) error {
			fired = true
			return nil
		}, WithOutdated()).
		Build()

	p.Project(context.Background(), nil, es.Record{Type: "Widget"}, Meta{Outdated: true}, nil)

	if !fired {
		t.Fatalf("expected On handler with WithOutdated to fire for an outdated record")
	}
}

func TestProjectOnceSkipsHydratedAndOutdated(t *testing.T) {
	calls := 0
	p := NewBuilder().
		Once("Widget", func(context.Context, es.DBTX, es.Record, Meta) error {
			calls++
			return nil
		}).
		Build()

	p.Project(context.Background(), nil, es.Record{Type: "Widget"}, Meta{Hydrated: true}, nil)
	p.Project(context.Background(), nil, es.Record{Type: "Widget"}, Meta{Outdated: true}, nil)
	if calls != 0 {
		t.Fatalf("expected Once handler to skip hydrated and outdated dispatch, got %d calls", calls)
	}

	p.Project(context.Background(), nil, es.Record{Type: "Widget"}, Meta{}, nil)
	if calls != 1 {
		t.Fatalf("expected Once handler to fire exactly once for a fresh record, got %d calls", calls)
	}
}

func TestOnDuplicateRegistrationPanics(t *testing.T) {
	b := NewBuilder()
	b.On("Widget", func(context.Context, es.DBTX, es.Record, Meta) error { return nil })

	defer func() {
		if recover() == nil {
			t.Fatalf("expected duplicate On registration for the same event type to panic")
		}
	}()
	b.On("Widget", func(context.Context, es.DBTX, es.Record, Meta) error { return nil })
}

func TestOnceDuplicateRegistrationPanics(t *testing.T) {
	b := NewBuilder()
	b.Once("Widget", func(context.Context, es.DBTX, es.Record, Meta) error { return nil })

	defer func() {
		if recover() == nil {
			t.Fatalf("expected duplicate Once registration for the same event type to panic")
		}
	}()
	b.Once("Widget", func(context.Context, es.DBTX, es.Record, Meta) error { return nil })
}

func TestProjectHandlerErrorDoesNotBlockLaterHandlers(t *testing.T) {
	var calls []string
	var reportedErrors []error

	p := NewBuilder().
		On("Widget", func(context.Context, es.DBTX, es.Record, Meta) error {
			calls = append(calls, "on")
			return errors.New("boom")
		}).
		Once("Widget", func(context.Context, es.DBTX, es.Record, Meta) error {
			calls = append(calls, "once")
			return nil
		}).
		Build()

	p.Project(context.Background(), nil, es.Record{Type: "Widget"}, Meta{}, func(err error) {
		reportedErrors = append(reportedErrors, err)
	})

	if len(calls) != 2 {
		t.Fatalf("expected both handlers to run despite the first erroring, got %v", calls)
	}
	if len(reportedErrors) != 1 {
		t.Fatalf("expected exactly one error reported, got %d", len(reportedErrors))
	}
	var he *es.HandlerError
	if !errors.As(reportedErrors[0], &he) {
		t.Fatalf("expected reported error to be an *es.HandlerError, got %#v", reportedErrors[0])
	}
}

func TestProjectUnregisteredTypeIsNoOp(t *testing.T) {
	p := NewBuilder().Build()
	p.Project(context.Background(), nil, es.Record{Type: "Nobody"}, Meta{}, func(error) {
		t.Fatalf("did not expect onError to be called for an unregistered type")
	})
}
