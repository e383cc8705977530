/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package interval

import "time"

const (
	oneDay  = 24 * time.Hour
	oneWeek = 7 * oneDay
)

// boundaryFuncs holds the boundary calculators for one grouping. initial
// derives the first begin/end pair from the localized input begin; next
// advances a pair by one unit. All pairs stay in the localized zone until the
// walker re-expresses them in UTC. In a fixed-offset zone there is no DST,
// so 24h is always exactly one calendar day.
type boundaryFuncs struct {
	initial func(local time.Time, precision time.Duration, extendBegin bool) (begin, end time.Time)
	next    func(begin time.Time, precision time.Duration) (nextBegin, nextEnd time.Time)
}

var groupingBounds = map[Grouping]boundaryFuncs{
	PerDay:   {initial: initialDay, next: nextDay},
	PerWeek:  {initial: initialWeek, next: nextWeek},
	PerMonth: {initial: initialMonth, next: nextMonth},
}

func midnight(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// daysSinceMonday returns how many days t's weekday lies after Monday
// (Monday = 0 .. Sunday = 6).
func daysSinceMonday(t time.Time) int {
	return (int(t.Weekday()) + 6) % 7
}

// nextMonthStart returns midnight on the first of the month after t, rolling
// December into January of the following year. Field-based on purpose: month
// lengths vary, so a fixed duration add would drift.
func nextMonthStart(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month()+1, 1, 0, 0, 0, 0, t.Location())
}

func initialDay(local time.Time, precision time.Duration, extendBegin bool) (time.Time, time.Time) {
	begin := midnight(local)
	if !extendBegin {
		// Jump to the next day even when local sits exactly on midnight.
		begin = begin.Add(oneDay)
	}
	return begin, begin.Add(oneDay - precision)
}

func nextDay(begin time.Time, precision time.Duration) (time.Time, time.Time) {
	next := begin.Add(oneDay)
	return next, next.Add(oneDay - precision)
}

func initialWeek(local time.Time, precision time.Duration, extendBegin bool) (time.Time, time.Time) {
	begin := midnight(local).Add(-time.Duration(daysSinceMonday(local)) * oneDay)
	if !extendBegin {
		// Jump to the next Monday even when local sits exactly on one.
		begin = begin.Add(oneWeek)
	}
	return begin, begin.Add(oneWeek - precision)
}

func nextWeek(begin time.Time, precision time.Duration) (time.Time, time.Time) {
	next := begin.Add(oneWeek)
	return next, next.Add(oneWeek - precision)
}

func initialMonth(local time.Time, precision time.Duration, extendBegin bool) (time.Time, time.Time) {
	begin := time.Date(local.Year(), local.Month(), 1, 0, 0, 0, 0, local.Location())
	if !extendBegin {
		begin = nextMonthStart(begin)
	}
	return begin, nextMonthStart(begin).Add(-precision)
}

func nextMonth(begin time.Time, precision time.Duration) (time.Time, time.Time) {
	next := nextMonthStart(begin)
	return next, nextMonthStart(next).Add(-precision)
}
