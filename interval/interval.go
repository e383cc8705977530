/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package interval computes ordered, non-overlapping sequences of
// calendar-aligned time intervals (per day, per week or per month) across a
// half-open [begin, end) window.
//
// Boundary math happens in a fixed-offset reference zone selected by an
// offset in seconds west of UTC, so "midnight" can mean midnight in any
// civil timezone while the returned instants are always UTC. Each interval
// ends a configurable precision step (1ms by default) before the next
// boundary, so consecutive intervals never touch.
package interval

import (
	"time"
)

// Interval is one calendar-aligned span produced by a walk. Begin and End
// are both UTC instants; End sits one precision step before the next
// grouping boundary.
type Interval struct {
	Begin time.Time `json:"begin"`
	End   time.Time `json:"end"`
}

// Duration returns End minus Begin.
func (iv Interval) Duration() time.Duration {
	return iv.End.Sub(iv.Begin)
}

// String formats the interval for logs and test failures.
func (iv Interval) String() string {
	return iv.Begin.Format(time.RFC3339Nano) + " .. " + iv.End.Format(time.RFC3339Nano)
}
