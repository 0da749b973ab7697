package reducer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/nimbusdb/evently/es"
	"github.com/nimbusdb/evently/es/store"
)

// fakeProvider is an in-memory store.Provider covering just the
// EventProvider/ContextProvider/SnapshotProvider methods the reducer
// engine calls.
type fakeProvider struct {
	events    []es.Record
	contexts  map[string][]string
	snapshots map[string]store.SnapshotRecord
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{contexts: map[string][]string{}, snapshots: map[string]store.SnapshotRecord{}}
}

func (f *fakeProvider) Insert(context.Context, es.DBTX, es.Record) error { return nil }
func (f *fakeProvider) InsertMany(context.Context, es.DBTX, []es.Record, int) error {
	return nil
}
func (f *fakeProvider) GetByID(context.Context, es.DBTX, uuid.UUID) (es.Record, bool, error) {
	return es.Record{}, false, nil
}
func (f *fakeProvider) Get(context.Context, es.DBTX, store.QueryOptions) ([]es.Record, error) {
	return nil, nil
}

func (f *fakeProvider) GetByStream(_ context.Context, _ es.DBTX, stream string, opts store.QueryOptions) ([]es.Record, error) {
	return f.filtered(stream, opts), nil
}

func (f *fakeProvider) GetByStreams(_ context.Context, _ es.DBTX, streams []string, opts store.QueryOptions) ([]es.Record, error) {
	set := make(map[string]bool, len(streams))
	for _, s := range streams {
		set[s] = true
	}
	var out []es.Record
	for _, rec := range f.events {
		if !set[rec.Stream] {
			continue
		}
		out = append(out, rec)
	}
	return applyOpts(out, opts), nil
}

func (f *fakeProvider) filtered(stream string, opts store.QueryOptions) []es.Record {
	var out []es.Record
	for _, rec := range f.events {
		if rec.Stream == stream {
			out = append(out, rec)
		}
	}
	return applyOpts(out, opts)
}

func applyOpts(records []es.Record, opts store.QueryOptions) []es.Record {
	var out []es.Record
	for _, rec := range records {
		if len(opts.Filter.Types) > 0 {
			match := false
			for _, t := range opts.Filter.Types {
				if t == rec.Type {
					match = true
				}
			}
			if !match {
				continue
			}
		}
		if opts.Cursor != nil && !afterCursor(rec, *opts.Cursor) {
			continue
		}
		out = append(out, rec)
	}
	return out
}

// afterCursor reports whether rec sorts strictly after cur in
// (created, id) order, mirroring the strict tuple comparison every SQL
// adapter applies. Comparing Created alone would re-admit the
// snapshot's own boundary event on resume.
func afterCursor(rec es.Record, cur es.Cursor) bool {
	if rec.Created.After(cur.Created) {
		return true
	}
	if rec.Created.Before(cur.Created) {
		return false
	}
	return bytes.Compare(rec.ID[:], cur.ID[:]) > 0
}

func (f *fakeProvider) CheckOutdated(context.Context, es.DBTX, string, string, es.Timestamp) (bool, error) {
	return false, nil
}

func (f *fakeProvider) Handle(context.Context, es.DBTX, store.ContextEntry) error { return nil }

func (f *fakeProvider) GetByKey(_ context.Context, _ es.DBTX, key string) ([]string, error) {
	return f.contexts[key], nil
}

func (f *fakeProvider) InsertSnapshot(_ context.Context, _ es.DBTX, snap store.SnapshotRecord) error {
	f.snapshots[snap.Name+"/"+snap.Key] = snap
	return nil
}

func (f *fakeProvider) GetSnapshotByKey(_ context.Context, _ es.DBTX, name, key string) (store.SnapshotRecord, bool, error) {
	snap, ok := f.snapshots[name+"/"+key]
	return snap, ok, nil
}

func (f *fakeProvider) RemoveSnapshot(_ context.Context, _ es.DBTX, name, key string) error {
	delete(f.snapshots, name+"/"+key)
	return nil
}

var _ store.Provider = (*fakeProvider)(nil)

func ts(seconds int) es.Timestamp {
	return es.NewTimestamp(time.Date(2026, 1, 1, 0, 0, seconds, 0, time.UTC))
}

func countingReducer() Reducer[int] {
	return Reducer[int]{
		Name:    "counter",
		Kind:    StreamKind,
		Initial: 0,
		Fold:    func(count int, _ es.Record) int { return count + 1 },
	}
}

func TestReduceReturnsNotFoundWithNoEventsAndNoSnapshot(t *testing.T) {
	provider := newFakeProvider()
	eng := NewEngine(provider, ManualSnapshot)

	_, err := Reduce(context.Background(), nil, eng, "stream-1", countingReducer())
	if !errors.Is(err, es.ErrNotFound) {
		t.Fatalf("expected es.ErrNotFound, got %v", err)
	}
}

func TestReduceFoldsEventsInOrder(t *testing.T) {
	provider := newFakeProvider()
	provider.events = []es.Record{
		{Stream: "stream-1", Type: "Widget", Created: ts(1)},
		{Stream: "stream-1", Type: "Widget", Created: ts(2)},
		{Stream: "stream-1", Type: "Widget", Created: ts(3)},
	}
	eng := NewEngine(provider, ManualSnapshot)

	count, err := Reduce(context.Background(), nil, eng, "stream-1", countingReducer())
	if err != nil {
		t.Fatalf("Reduce: %v", err)
	}
	if count != 3 {
		t.Fatalf("expected count 3, got %d", count)
	}
}

func TestReduceResumesFromSnapshot(t *testing.T) {
	provider := newFakeProvider()
	r := countingReducer()

	provider.events = []es.Record{
		{ID: uuid.MustParse("00000000-0000-0000-0000-000000000001"), Stream: "stream-1", Type: "Widget", Created: ts(1)},
		{ID: uuid.MustParse("00000000-0000-0000-0000-000000000002"), Stream: "stream-1", Type: "Widget", Created: ts(2)},
		{ID: uuid.MustParse("00000000-0000-0000-0000-000000000003"), Stream: "stream-1", Type: "Widget", Created: ts(3)},
	}

	state, err := json.Marshal(10)
	if err != nil {
		t.Fatal(err)
	}
	provider.snapshots["counter/stream-1"] = store.SnapshotRecord{
		Name: "counter", Key: "stream-1",
		Cursor: es.Cursor{Created: provider.events[1].Created, ID: provider.events[1].ID},
		State:  state,
	}
	eng := NewEngine(provider, ManualSnapshot)

	count, err := Reduce(context.Background(), nil, eng, "stream-1", r)
	if err != nil {
		t.Fatalf("Reduce: %v", err)
	}
	if count != 11 {
		t.Fatalf("expected snapshot state 10 plus one new event, got %d", count)
	}
}

// TestReduceDoesNotRefoldSnapshotBoundaryEvent guards against resuming
// from a snapshot re-including the very event the snapshot was taken
// at: the cursor must exclude it by (created, id), not just created.
func TestReduceDoesNotRefoldSnapshotBoundaryEvent(t *testing.T) {
	provider := newFakeProvider()
	r := countingReducer()

	boundary := es.Record{
		ID: uuid.MustParse("00000000-0000-0000-0000-000000000002"), Stream: "stream-1", Type: "Widget", Created: ts(2),
	}
	provider.events = []es.Record{
		{ID: uuid.MustParse("00000000-0000-0000-0000-000000000001"), Stream: "stream-1", Type: "Widget", Created: ts(1)},
		boundary,
	}

	state, err := json.Marshal(2)
	if err != nil {
		t.Fatal(err)
	}
	provider.snapshots["counter/stream-1"] = store.SnapshotRecord{
		Name: "counter", Key: "stream-1",
		Cursor: es.Cursor{Created: boundary.Created, ID: boundary.ID},
		State:  state,
	}
	eng := NewEngine(provider, ManualSnapshot)

	count, err := Reduce(context.Background(), nil, eng, "stream-1", r)
	if err != nil {
		t.Fatalf("Reduce: %v", err)
	}
	if count != 2 {
		t.Fatalf("expected snapshot state 2 with no new events to fold, got %d", count)
	}
}

func TestReduceReturnsSnapshotWhenNoNewEvents(t *testing.T) {
	provider := newFakeProvider()
	r := countingReducer()

	event := es.Record{ID: uuid.MustParse("00000000-0000-0000-0000-000000000001"), Stream: "stream-1", Type: "Widget", Created: ts(1)}
	provider.events = []es.Record{event}

	state, _ := json.Marshal(7)
	provider.snapshots["counter/stream-1"] = store.SnapshotRecord{
		Name: "counter", Key: "stream-1", Cursor: es.Cursor{Created: ts(5)}, State: state,
	}
	eng := NewEngine(provider, ManualSnapshot)

	count, err := Reduce(context.Background(), nil, eng, "stream-1", r)
	if err != nil {
		t.Fatalf("Reduce: %v", err)
	}
	if count != 7 {
		t.Fatalf("expected the untouched snapshot state 7, got %d", count)
	}
}

func TestReduceAutoSnapshotPersistsResult(t *testing.T) {
	provider := newFakeProvider()
	provider.events = []es.Record{
		{Stream: "stream-1", Type: "Widget", Created: ts(1)},
		{Stream: "stream-1", Type: "Widget", Created: ts(2)},
	}
	eng := NewEngine(provider, AutoSnapshot)

	if _, err := Reduce(context.Background(), nil, eng, "stream-1", countingReducer()); err != nil {
		t.Fatalf("Reduce: %v", err)
	}

	snap, ok := provider.snapshots["counter/stream-1"]
	if !ok {
		t.Fatalf("expected AutoSnapshot mode to persist a snapshot")
	}
	var persisted int
	if err := json.Unmarshal(snap.State, &persisted); err != nil {
		t.Fatalf("unmarshal snapshot state: %v", err)
	}
	if persisted != 2 {
		t.Fatalf("expected persisted count 2, got %d", persisted)
	}
}

func TestReduceManualModeNeverPersists(t *testing.T) {
	provider := newFakeProvider()
	provider.events = []es.Record{{Stream: "stream-1", Type: "Widget", Created: ts(1)}}
	eng := NewEngine(provider, ManualSnapshot)

	if _, err := Reduce(context.Background(), nil, eng, "stream-1", countingReducer()); err != nil {
		t.Fatalf("Reduce: %v", err)
	}
	if _, ok := provider.snapshots["counter/stream-1"]; ok {
		t.Fatalf("expected ManualSnapshot mode not to persist automatically")
	}
}

func TestReduceOverContextFansInStreams(t *testing.T) {
	provider := newFakeProvider()
	provider.contexts["all-widgets"] = []string{"stream-1", "stream-2"}
	provider.events = []es.Record{
		{Stream: "stream-1", Type: "Widget", Created: ts(1)},
		{Stream: "stream-2", Type: "Widget", Created: ts(2)},
	}
	eng := NewEngine(provider, ManualSnapshot)

	r := countingReducer()
	r.Kind = ContextKind

	count, err := Reduce(context.Background(), nil, eng, "all-widgets", r)
	if err != nil {
		t.Fatalf("Reduce: %v", err)
	}
	if count != 2 {
		t.Fatalf("expected events from both streams to be folded, got %d", count)
	}
}

func TestCreateSnapshotIgnoresExistingSnapshot(t *testing.T) {
	provider := newFakeProvider()
	stale, _ := json.Marshal(999)
	provider.snapshots["counter/stream-1"] = store.SnapshotRecord{Name: "counter", Key: "stream-1", Cursor: es.Cursor{Created: ts(0)}, State: stale}
	provider.events = []es.Record{
		{Stream: "stream-1", Type: "Widget", Created: ts(1)},
		{Stream: "stream-1", Type: "Widget", Created: ts(2)},
	}
	eng := NewEngine(provider, ManualSnapshot)

	count, err := CreateSnapshot(context.Background(), nil, eng, "stream-1", countingReducer())
	if err != nil {
		t.Fatalf("CreateSnapshot: %v", err)
	}
	if count != 2 {
		t.Fatalf("expected CreateSnapshot to recompute from scratch, got %d", count)
	}
}

func TestDeleteSnapshotIsUnconditional(t *testing.T) {
	provider := newFakeProvider()
	eng := NewEngine(provider, ManualSnapshot)

	if err := DeleteSnapshot(context.Background(), nil, eng, "counter", "never-existed"); err != nil {
		t.Fatalf("expected deleting a nonexistent snapshot to be a no-op, got %v", err)
	}
}
