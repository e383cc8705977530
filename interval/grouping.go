/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package interval

import (
	"fmt"
	"strings"
)

// Grouping selects the calendar unit interval boundaries are aligned to.
type Grouping int

const (
	// PerDay aligns intervals to local midnights. It is the zero value and
	// the Generator default.
	PerDay Grouping = iota
	// PerWeek aligns intervals to Monday local midnights.
	PerWeek
	// PerMonth aligns intervals to local midnight on the first of the month.
	PerMonth
)

// String returns the canonical spelling used in APIs and storage.
func (g Grouping) String() string {
	switch g {
	case PerDay:
		return "per_day"
	case PerWeek:
		return "per_week"
	case PerMonth:
		return "per_month"
	default:
		return fmt.Sprintf("grouping(%d)", int(g))
	}
}

// Valid reports whether g is one of the defined groupings.
func (g Grouping) Valid() bool {
	switch g {
	case PerDay, PerWeek, PerMonth:
		return true
	default:
		return false
	}
}

// ParseGrouping maps a string to its Grouping. It accepts the canonical
// spellings (per_day, per_week, per_month) plus the short aliases day, week
// and month, case-insensitively.
func ParseGrouping(s string) (Grouping, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "per_day", "day":
		return PerDay, nil
	case "per_week", "week":
		return PerWeek, nil
	case "per_month", "month":
		return PerMonth, nil
	default:
		return PerDay, fmt.Errorf("unknown grouping %q", s)
	}
}
