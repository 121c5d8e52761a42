package types

import (
	"testing"
	"time"
)

func TestAttrHas(t *testing.T) {
	a := AttrDirectory | AttrHidden
	if !a.Has(AttrDirectory) {
		t.Error("expected AttrDirectory set")
	}
	if !a.Has(AttrHidden) {
		t.Error("expected AttrHidden set")
	}
	if a.Has(AttrReadOnly) {
		t.Error("did not expect AttrReadOnly set")
	}
	if !a.Has(AttrDirectory | AttrHidden) {
		t.Error("expected both bits set together")
	}
}

func TestEntryIsDir(t *testing.T) {
	e := Entry{Attributes: AttrDirectory}
	if !e.IsDir() {
		t.Error("expected IsDir true")
	}
	f := Entry{Attributes: AttrNormal}
	if f.IsDir() {
		t.Error("expected IsDir false")
	}
}

func TestEntryIsReparsePoint(t *testing.T) {
	e := Entry{Attributes: AttrNormal | AttrReparsePoint}
	if !e.IsReparsePoint() {
		t.Error("expected IsReparsePoint true")
	}
}

func TestFiletimeRoundTrip(t *testing.T) {
	want := time.Date(2024, 3, 15, 12, 30, 45, 0, time.UTC)
	ticks := TimeToFiletime(want)
	got := FiletimeToTime(ticks)
	if !got.Equal(want) {
		t.Errorf("round trip mismatch: want %v, got %v", want, got)
	}
}

func TestFiletimeZero(t *testing.T) {
	if !FiletimeToTime(0).IsZero() {
		t.Error("expected zero ticks to produce zero time")
	}
	if TimeToFiletime(time.Time{}) != 0 {
		t.Error("expected zero time to produce zero ticks")
	}
}

func TestFiletimeKnownEpoch(t *testing.T) {
	// The Unix epoch itself is exactly filetimeEpochOffset ticks after
	// the FILETIME epoch.
	got := FiletimeToTime(filetimeEpochOffset)
	want := time.Unix(0, 0).UTC()
	if !got.Equal(want) {
		t.Errorf("expected unix epoch, got %v", got)
	}
}
