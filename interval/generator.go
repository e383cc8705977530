/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package interval

import "time"

// Generator builds interval sequences from a reusable configuration.
// Mutators take a value receiver and return the modified copy, so a stored
// Generator is never aliased and can be specialized freely:
//
//	gen := interval.NewGenerator().WithGrouping(interval.PerWeek)
//	weeks := gen.Intervals(from, to)
type Generator struct {
	grouping          Grouping
	precision         time.Duration
	offsetWestSeconds int
	extendBegin       bool
	extendEnd         bool
}

// NewGenerator returns a Generator with the defaults: per-day grouping,
// millisecond precision, no offset, both extensions enabled.
func NewGenerator() Generator {
	return Generator{
		grouping:    PerDay,
		precision:   DefaultPrecision,
		extendBegin: true,
		extendEnd:   true,
	}
}

// WithGrouping selects the calendar unit.
func (g Generator) WithGrouping(grouping Grouping) Generator {
	g.grouping = grouping
	return g
}

// WithPrecision sets the gap subtracted from each interval end. The value is
// not validated against the grouping unit.
func (g Generator) WithPrecision(p time.Duration) Generator {
	g.precision = p
	return g
}

// WithOffsetWestSeconds localizes boundary math to a fixed offset west of
// UTC. Positive values move west (PDT is +25200), negative values move east
// (CEST is -7200).
func (g Generator) WithOffsetWestSeconds(seconds int) Generator {
	g.offsetWestSeconds = seconds
	return g
}

// WithoutExtendedBegin starts the sequence at the first boundary at or after
// begin instead of extending back to enclose it.
func (g Generator) WithoutExtendedBegin() Generator {
	g.extendBegin = false
	return g
}

// WithoutExtendedEnd drops the trailing interval that would enclose end.
func (g Generator) WithoutExtendedEnd() Generator {
	g.extendEnd = false
	return g
}

// Intervals walks [begin, end) with the configured options. The result is in
// UTC, ordered and non-overlapping; it is empty (never nil) when begin is
// not before end.
func (g Generator) Intervals(begin, end time.Time) []Interval {
	return utcIntervals(begin, end, g.grouping, g.offsetWestSeconds, g.precision, g.extendBegin, g.extendEnd)
}
