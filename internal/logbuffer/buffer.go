/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package logbuffer provides an in-memory ring buffer for capturing logs.
// The admin API serves recent entries from it, so operators can inspect a
// running instance without shell access to its stdout.
package logbuffer

import (
	"encoding/json"
	"io"
	"sort"
	"sync"
	"time"
)

// LogEntry represents a single captured log line.
type LogEntry struct {
	Timestamp time.Time              `json:"timestamp"`
	Level     string                 `json:"level"`
	Message   string                 `json:"message"`
	Component string                 `json:"component,omitempty"`
	Fields    map[string]interface{} `json:"fields,omitempty"`
	Raw       string                 `json:"raw,omitempty"`
}

// Buffer is a thread-safe ring buffer for log entries.
type Buffer struct {
	mu       sync.RWMutex
	entries  []LogEntry
	capacity int
	head     int
	count    int
}

// New creates a log buffer holding at most capacity entries.
func New(capacity int) *Buffer {
	if capacity <= 0 {
		capacity = 10000
	}
	return &Buffer{
		entries:  make([]LogEntry, capacity),
		capacity: capacity,
	}
}

// Add appends a log entry, evicting the oldest once full.
func (b *Buffer) Add(entry LogEntry) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.entries[b.head] = entry
	b.head = (b.head + 1) % b.capacity
	if b.count < b.capacity {
		b.count++
	}
}

// GetAll returns all log entries in chronological order.
func (b *Buffer) GetAll() []LogEntry {
	b.mu.RLock()
	defer b.mu.RUnlock()

	result := make([]LogEntry, b.count)
	if b.count == 0 {
		return result
	}

	start := 0
	if b.count == b.capacity {
		start = b.head
	}

	for i := 0; i < b.count; i++ {
		idx := (start + i) % b.capacity
		result[i] = b.entries[idx]
	}

	return result
}

// QueryParams filters a log query.
type QueryParams struct {
	Level      string    // Filter by level (debug, info, warn, error)
	Component  string    // Filter by component
	Search     string    // Search message, component and string fields
	Since      time.Time // Only entries after this time
	Limit      int       // Max entries to return (0 = all)
	Descending bool      // Return newest first
}

// Query returns log entries matching the filter criteria.
func (b *Buffer) Query(params QueryParams) []LogEntry {
	all := b.GetAll()

	var filtered []LogEntry
	for _, entry := range all {
		if params.Level != "" && entry.Level != params.Level {
			continue
		}
		if params.Component != "" && entry.Component != params.Component {
			continue
		}
		if !params.Since.IsZero() && entry.Timestamp.Before(params.Since) {
			continue
		}
		if params.Search != "" && !entryMatches(entry, params.Search) {
			continue
		}
		filtered = append(filtered, entry)
	}

	if params.Descending {
		for i, j := 0, len(filtered)-1; i < j; i, j = i+1, j-1 {
			filtered[i], filtered[j] = filtered[j], filtered[i]
		}
	}

	if params.Limit > 0 && len(filtered) > params.Limit {
		filtered = filtered[:params.Limit]
	}

	return filtered
}

func entryMatches(entry LogEntry, search string) bool {
	if containsIgnoreCase(entry.Message, search) {
		return true
	}
	if containsIgnoreCase(entry.Component, search) {
		return true
	}
	for _, v := range entry.Fields {
		if s, ok := v.(string); ok && containsIgnoreCase(s, search) {
			return true
		}
	}
	return false
}

// GetComponents returns the sorted set of components seen in the buffer.
func (b *Buffer) GetComponents() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()

	componentMap := make(map[string]bool)
	for i := 0; i < b.count; i++ {
		idx := i
		if b.count == b.capacity {
			idx = (b.head + i) % b.capacity
		}
		if b.entries[idx].Component != "" {
			componentMap[b.entries[idx].Component] = true
		}
	}

	components := make([]string, 0, len(componentMap))
	for c := range componentMap {
		components = append(components, c)
	}
	sort.Strings(components)
	return components
}

// Stats summarizes buffer occupancy per level.
type Stats struct {
	Capacity   int            `json:"capacity"`
	Count      int            `json:"count"`
	LevelCount map[string]int `json:"level_count"`
}

// Stats returns buffer statistics.
func (b *Buffer) Stats() Stats {
	b.mu.RLock()
	defer b.mu.RUnlock()

	stats := Stats{
		Capacity:   b.capacity,
		Count:      b.count,
		LevelCount: make(map[string]int),
	}

	for i := 0; i < b.count; i++ {
		idx := i
		if b.count == b.capacity {
			idx = (b.head + i) % b.capacity
		}
		stats.LevelCount[b.entries[idx].Level]++
	}

	return stats
}

// Clear empties the buffer.
func (b *Buffer) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.head = 0
	b.count = 0
}

// Writer wraps the buffer to implement io.Writer for zerolog.
type Writer struct {
	buffer   *Buffer
	fallback io.Writer
}

// NewWriter creates a writer that captures logs to the buffer. Writes pass
// through to fallback untouched.
func NewWriter(buffer *Buffer, fallback io.Writer) *Writer {
	return &Writer{buffer: buffer, fallback: fallback}
}

// Write implements io.Writer.
func (w *Writer) Write(p []byte) (n int, err error) {
	var rawEntry map[string]interface{}
	if err := json.Unmarshal(p, &rawEntry); err == nil {
		entry := LogEntry{
			Timestamp: time.Now(),
			Fields:    make(map[string]interface{}),
			Raw:       string(p),
		}

		if lvl, ok := rawEntry["level"].(string); ok {
			entry.Level = lvl
			delete(rawEntry, "level")
		}
		if msg, ok := rawEntry["message"].(string); ok {
			entry.Message = msg
			delete(rawEntry, "message")
		}
		if comp, ok := rawEntry["component"].(string); ok {
			entry.Component = comp
			delete(rawEntry, "component")
		}
		if ts, ok := rawEntry["time"].(string); ok {
			if t, err := time.Parse(time.RFC3339, ts); err == nil {
				entry.Timestamp = t
			}
			delete(rawEntry, "time")
		}

		for k, v := range rawEntry {
			entry.Fields[k] = v
		}

		w.buffer.Add(entry)
	}

	// Non-JSON lines still reach the fallback; only structured entries are
	// captured.
	if w.fallback != nil {
		return w.fallback.Write(p)
	}
	return len(p), nil
}

func containsIgnoreCase(s, substr string) bool {
	return len(s) >= len(substr) &&
		(s == substr ||
			len(substr) == 0 ||
			(len(s) > 0 && containsIgnoreCaseImpl(s, substr)))
}

func containsIgnoreCaseImpl(s, substr string) bool {
	for i := 0; i <= len(s)-len(substr); i++ {
		if equalFoldAt(s, i, substr) {
			return true
		}
	}
	return false
}

func equalFoldAt(s string, start int, substr string) bool {
	for i := 0; i < len(substr); i++ {
		c1 := s[start+i]
		c2 := substr[i]
		if c1 == c2 {
			continue
		}
		// Simple ASCII case folding
		if c1 >= 'A' && c1 <= 'Z' {
			c1 += 'a' - 'A'
		}
		if c2 >= 'A' && c2 <= 'Z' {
			c2 += 'a' - 'A'
		}
		if c1 != c2 {
			return false
		}
	}
	return true
}
