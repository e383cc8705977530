/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package interval

import "time"

// DefaultPrecision is the gap subtracted from every interval end when no
// other precision is configured.
const DefaultPrecision = time.Millisecond

// utcIntervals walks grouping-aligned begin/end pairs across [begin, end) in
// the reference zone selected by offsetWestSeconds and returns them as UTC
// instants.
//
// The loop keeps appending pairs while the current end still lies before the
// window end; the pending pair that first reaches past the window is appended
// only when extendEnd is set. Precision is subtracted once per produced end
// and is not validated against the grouping unit.
func utcIntervals(begin, end time.Time, grouping Grouping, offsetWestSeconds int, precision time.Duration, extendBegin, extendEnd bool) []Interval {
	intervals := []Interval{}
	if !begin.Before(end) {
		return intervals
	}
	bounds, ok := groupingBounds[grouping]
	if !ok {
		return intervals
	}

	// time.FixedZone counts seconds east of UTC, offsetWestSeconds counts
	// west: +25200 localizes to PDT, -7200 to CEST.
	local := begin.In(time.FixedZone("", -offsetWestSeconds))

	curBegin, curEnd := bounds.initial(local, precision, extendBegin)
	for curEnd.Before(end) {
		intervals = append(intervals, Interval{Begin: curBegin.UTC(), End: curEnd.UTC()})
		curBegin, curEnd = bounds.next(curBegin, precision)
	}
	if extendEnd {
		intervals = append(intervals, Interval{Begin: curBegin.UTC(), End: curEnd.UTC()})
	}
	return intervals
}

// UTCIntervals returns the grouping-aligned intervals across [begin, end)
// with every option spelled out. An empty window (begin not before end)
// yields an empty sequence, as does an invalid grouping.
func UTCIntervals(begin, end time.Time, grouping Grouping, offsetWestSeconds int, precision time.Duration, extendBegin, extendEnd bool) []Interval {
	return utcIntervals(begin, end, grouping, offsetWestSeconds, precision, extendBegin, extendEnd)
}

// ExtendedUTCIntervals returns intervals across [begin, end) with the
// default millisecond precision and both extensions enabled: the first
// interval begins at or before begin and the last ends at or after end.
func ExtendedUTCIntervals(begin, end time.Time, grouping Grouping, offsetWestSeconds int) []Interval {
	return utcIntervals(begin, end, grouping, offsetWestSeconds, DefaultPrecision, true, true)
}
