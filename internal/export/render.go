/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package export renders interval sequences into calendar and tabular
// formats for feeds, downloads and scheduled snapshots.
package export

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/friendsincode/verdandi/internal/models"
	"github.com/friendsincode/verdandi/interval"
)

// Result carries one rendered export ready to serve or store.
type Result struct {
	Data        []byte
	Filename    string
	ContentType string
}

// Render produces the requested format for a preset's intervals across
// [from, to). The window only shapes the filename; the intervals are
// rendered as given.
func Render(format models.ExportFormat, preset *models.Preset, intervals []interval.Interval, from, to time.Time) (*Result, error) {
	var data []byte
	var contentType string

	switch format {
	case models.FormatICS:
		data = RenderICal(preset.Name, intervals)
		contentType = "text/calendar; charset=utf-8"
	case models.FormatCSV:
		encoded, err := RenderCSV(intervals)
		if err != nil {
			return nil, err
		}
		data = encoded
		contentType = "text/csv; charset=utf-8"
	case models.FormatJSON:
		encoded, err := json.Marshal(intervals)
		if err != nil {
			return nil, fmt.Errorf("marshal intervals: %w", err)
		}
		data = encoded
		contentType = "application/json"
	default:
		return nil, fmt.Errorf("unsupported export format %q", format)
	}

	filename := fmt.Sprintf("%s-intervals-%s-to-%s.%s",
		Slugify(preset.Name),
		from.Format("2006-01-02"),
		to.Format("2006-01-02"),
		format)

	return &Result{Data: data, Filename: filename, ContentType: contentType}, nil
}

// RenderICal builds a VCALENDAR document with one VEVENT per interval.
// Lines end with CRLF as RFC 5545 requires. Event UIDs are prefixed with
// the preset slug so feeds from different presets never share a UID.
func RenderICal(presetName string, intervals []interval.Interval) []byte {
	slug := Slugify(presetName)
	stamp := formatICalTime(time.Now())

	var buf bytes.Buffer
	buf.WriteString("BEGIN:VCALENDAR\r\n")
	buf.WriteString("VERSION:2.0\r\n")
	buf.WriteString("PRODID:-//Friends Incode//Verdandi//EN\r\n")
	buf.WriteString(fmt.Sprintf("X-WR-CALNAME:%s\r\n", escapeICalText(presetName)))
	buf.WriteString("CALSCALE:GREGORIAN\r\n")
	buf.WriteString("METHOD:PUBLISH\r\n")

	for i, iv := range intervals {
		buf.WriteString("BEGIN:VEVENT\r\n")
		buf.WriteString(fmt.Sprintf("UID:%s-%d@verdandi\r\n", slug, i))
		buf.WriteString(fmt.Sprintf("DTSTAMP:%s\r\n", stamp))
		buf.WriteString(fmt.Sprintf("DTSTART:%s\r\n", formatICalTime(iv.Begin)))
		buf.WriteString(fmt.Sprintf("DTEND:%s\r\n", formatICalTime(iv.End)))
		buf.WriteString(fmt.Sprintf("SUMMARY:%s %d\r\n", escapeICalText(presetName), i+1))
		buf.WriteString("END:VEVENT\r\n")
	}

	buf.WriteString("END:VCALENDAR\r\n")
	return buf.Bytes()
}

// RenderCSV writes one row per interval with RFC 3339 instants. The index
// column matches the interval's position in the JSON representation.
func RenderCSV(intervals []interval.Interval) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	if err := w.Write([]string{"index", "begin", "end", "duration_ms"}); err != nil {
		return nil, fmt.Errorf("write csv header: %w", err)
	}
	for i, iv := range intervals {
		row := []string{
			strconv.Itoa(i),
			iv.Begin.Format(time.RFC3339Nano),
			iv.End.Format(time.RFC3339Nano),
			strconv.FormatInt(iv.Duration().Milliseconds(), 10),
		}
		if err := w.Write(row); err != nil {
			return nil, fmt.Errorf("write csv row: %w", err)
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("flush csv: %w", err)
	}
	return buf.Bytes(), nil
}

func formatICalTime(t time.Time) string {
	return t.UTC().Format("20060102T150405Z")
}

func escapeICalText(s string) string {
	s = strings.ReplaceAll(s, "\\", "\\\\")
	s = strings.ReplaceAll(s, ";", "\\;")
	s = strings.ReplaceAll(s, ",", "\\,")
	s = strings.ReplaceAll(s, "\n", "\\n")
	return s
}

// Slugify lowercases a name and strips everything outside [a-z0-9-] so it
// is safe in filenames, object keys and UIDs.
func Slugify(s string) string {
	s = strings.ToLower(s)
	s = strings.ReplaceAll(s, " ", "-")
	var result strings.Builder
	for _, r := range s {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '-' {
			result.WriteRune(r)
		}
	}
	return result.String()
}
