package logbuffer

import (
	"bytes"
	"testing"
	"time"
)

func entry(level, component, message string) LogEntry {
	return LogEntry{
		Timestamp: time.Now(),
		Level:     level,
		Component: component,
		Message:   message,
	}
}

func TestRingEviction(t *testing.T) {
	b := New(3)
	for _, msg := range []string{"one", "two", "three", "four"} {
		b.Add(entry("info", "api", msg))
	}

	all := b.GetAll()
	if len(all) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(all))
	}
	// Oldest evicted, order preserved.
	if all[0].Message != "two" || all[2].Message != "four" {
		t.Errorf("unexpected order: %q .. %q", all[0].Message, all[2].Message)
	}

	stats := b.Stats()
	if stats.Count != 3 || stats.Capacity != 3 {
		t.Errorf("stats: %+v", stats)
	}
	if stats.LevelCount["info"] != 3 {
		t.Errorf("level count: %+v", stats.LevelCount)
	}
}

func TestQueryFilters(t *testing.T) {
	b := New(16)
	b.Add(entry("info", "api", "listening"))
	b.Add(entry("error", "scheduler", "schedule reconcile failed"))
	b.Add(entry("info", "scheduler", "export job registered"))
	b.Add(entry("warn", "cache", "redis unavailable"))

	if got := b.Query(QueryParams{Level: "error"}); len(got) != 1 {
		t.Errorf("level filter: got %d entries", len(got))
	}
	if got := b.Query(QueryParams{Component: "scheduler"}); len(got) != 2 {
		t.Errorf("component filter: got %d entries", len(got))
	}
	if got := b.Query(QueryParams{Search: "REDIS"}); len(got) != 1 {
		t.Errorf("case-insensitive search: got %d entries", len(got))
	}
	if got := b.Query(QueryParams{Limit: 2, Descending: true}); len(got) != 2 || got[0].Component != "cache" {
		t.Errorf("descending limit: %+v", got)
	}

	components := b.GetComponents()
	if len(components) != 3 || components[0] != "api" {
		t.Errorf("components: %v", components)
	}
}

func TestWriterParsesZerologLines(t *testing.T) {
	b := New(8)
	var sink bytes.Buffer
	w := NewWriter(b, &sink)

	line := []byte(`{"level":"info","component":"api","preset_id":"p1","time":"2026-03-01T10:00:00Z","message":"preset created"}`)
	if _, err := w.Write(line); err != nil {
		t.Fatalf("write: %v", err)
	}
	// Plain text passes through without an entry.
	if _, err := w.Write([]byte("not json\n")); err != nil {
		t.Fatalf("write plain: %v", err)
	}

	if sink.Len() != len(line)+len("not json\n") {
		t.Errorf("fallback received %d bytes, want %d", sink.Len(), len(line)+len("not json\n"))
	}

	all := b.GetAll()
	if len(all) != 1 {
		t.Fatalf("expected 1 parsed entry, got %d", len(all))
	}
	got := all[0]
	if got.Level != "info" || got.Component != "api" || got.Message != "preset created" {
		t.Errorf("parsed entry: %+v", got)
	}
	if got.Fields["preset_id"] != "p1" {
		t.Errorf("fields: %+v", got.Fields)
	}
	if !got.Timestamp.Equal(time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)) {
		t.Errorf("timestamp not taken from the line: %v", got.Timestamp)
	}
}

func TestClear(t *testing.T) {
	b := New(4)
	b.Add(entry("info", "api", "x"))
	b.Clear()
	if got := b.GetAll(); len(got) != 0 {
		t.Errorf("expected empty buffer, got %d", len(got))
	}
}
