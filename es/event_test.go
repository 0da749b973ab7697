package es

import (
	"testing"
	"time"
)

func TestTimestampBumpIsStrictlyGreater(t *testing.T) {
	ts := NewTimestamp(time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC))
	bumped := ts.Bump()

	if !bumped.After(ts) {
		t.Fatalf("Bump() did not produce a strictly greater timestamp")
	}
	if bumped.Time().Sub(ts.Time()) != timestampResolution {
		t.Fatalf("expected bump delta %v, got %v", timestampResolution, bumped.Time().Sub(ts.Time()))
	}
}

func TestTimestampTruncatesToMicroseconds(t *testing.T) {
	withNanos := time.Date(2026, 1, 1, 0, 0, 0, 123456789, time.UTC)
	ts := NewTimestamp(withNanos)

	if ts.Time().Nanosecond()%1000 != 0 {
		t.Fatalf("expected sub-microsecond precision to be truncated, got %v", ts.Time())
	}
}

func TestTimestampStringRoundTrip(t *testing.T) {
	ts := NewTimestamp(time.Date(2026, 3, 5, 9, 30, 15, 250000, time.UTC))

	parsed, err := ParseTimestamp(ts.String())
	if err != nil {
		t.Fatalf("ParseTimestamp: %v", err)
	}
	if !parsed.Equal(ts) {
		t.Fatalf("round trip mismatch: got %v, want %v", parsed, ts)
	}
}

func TestTimestampStringOrderMatchesChronologicalOrder(t *testing.T) {
	earlier := NewTimestamp(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	later := earlier.Bump()

	if !(earlier.String() < later.String()) {
		t.Fatalf("expected lexicographic order to agree with chronological order: %q vs %q", earlier.String(), later.String())
	}
}
