/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package interval

import (
	"math/rand"
	"testing"
	"time"
)

// lastMilli is the nanosecond field of an end instant produced with the
// default millisecond precision.
const lastMilli = int(999 * time.Millisecond)

func utc(year int, month time.Month, day, hour, min, sec, nsec int) time.Time {
	return time.Date(year, month, day, hour, min, sec, nsec, time.UTC)
}

func assertIntervals(t *testing.T, got, want []Interval) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("len = %d, want %d (got %v)", len(got), len(want), got)
	}
	for i := range want {
		if !got[i].Begin.Equal(want[i].Begin) || !got[i].End.Equal(want[i].End) {
			t.Fatalf("interval[%d] = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestExtendedUTCIntervalsPerDay(t *testing.T) {
	begin := utc(2022, time.June, 25, 8, 23, 45, 0)
	end := utc(2022, time.June, 27, 9, 0, 0, 0)

	got := ExtendedUTCIntervals(begin, end, PerDay, 0)
	want := []Interval{
		{Begin: utc(2022, time.June, 25, 0, 0, 0, 0), End: utc(2022, time.June, 25, 23, 59, 59, lastMilli)},
		{Begin: utc(2022, time.June, 26, 0, 0, 0, 0), End: utc(2022, time.June, 26, 23, 59, 59, lastMilli)},
		{Begin: utc(2022, time.June, 27, 0, 0, 0, 0), End: utc(2022, time.June, 27, 23, 59, 59, lastMilli)},
	}
	assertIntervals(t, got, want)
}

func TestExtendedUTCIntervalsPerMonth(t *testing.T) {
	begin := utc(2022, time.June, 4, 9, 20, 0, 0)
	end := utc(2022, time.September, 18, 9, 20, 0, 0)

	got := ExtendedUTCIntervals(begin, end, PerMonth, 0)
	want := []Interval{
		{Begin: utc(2022, time.June, 1, 0, 0, 0, 0), End: utc(2022, time.June, 30, 23, 59, 59, lastMilli)},
		{Begin: utc(2022, time.July, 1, 0, 0, 0, 0), End: utc(2022, time.July, 31, 23, 59, 59, lastMilli)},
		{Begin: utc(2022, time.August, 1, 0, 0, 0, 0), End: utc(2022, time.August, 31, 23, 59, 59, lastMilli)},
		{Begin: utc(2022, time.September, 1, 0, 0, 0, 0), End: utc(2022, time.September, 30, 23, 59, 59, lastMilli)},
	}
	assertIntervals(t, got, want)
}

func TestExtendedUTCIntervalsPerWeek(t *testing.T) {
	begin := utc(2022, time.October, 4, 8, 23, 45, 0)
	end := utc(2022, time.October, 18, 8, 23, 45, 0)

	got := ExtendedUTCIntervals(begin, end, PerWeek, 0)
	want := []Interval{
		{Begin: utc(2022, time.October, 3, 0, 0, 0, 0), End: utc(2022, time.October, 9, 23, 59, 59, lastMilli)},
		{Begin: utc(2022, time.October, 10, 0, 0, 0, 0), End: utc(2022, time.October, 16, 23, 59, 59, lastMilli)},
		{Begin: utc(2022, time.October, 17, 0, 0, 0, 0), End: utc(2022, time.October, 23, 23, 59, 59, lastMilli)},
	}
	assertIntervals(t, got, want)
}

func TestUTCIntervalsExtensionFlags(t *testing.T) {
	begin := utc(2022, time.October, 29, 8, 23, 45, 0)
	end := utc(2022, time.November, 1, 8, 23, 45, 0)

	cases := []struct {
		name        string
		extendBegin bool
		extendEnd   bool
		wantLen     int
	}{
		{"none", false, false, 2},
		{"begin", true, false, 3},
		{"end", false, true, 3},
		{"both", true, true, 4},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := UTCIntervals(begin, end, PerDay, 0, time.Millisecond, tc.extendBegin, tc.extendEnd)
			if len(got) != tc.wantLen {
				t.Fatalf("len = %d, want %d", len(got), tc.wantLen)
			}
			first, last := got[0], got[len(got)-1]
			if tc.extendBegin && !first.Begin.Before(begin) {
				t.Errorf("first begin %v should precede %v", first.Begin, begin)
			}
			if !tc.extendBegin && !first.Begin.After(begin) {
				t.Errorf("first begin %v should follow %v", first.Begin, begin)
			}
			if tc.extendEnd && !last.End.After(end) {
				t.Errorf("last end %v should follow %v", last.End, end)
			}
			if !tc.extendEnd && !last.End.Before(end) {
				t.Errorf("last end %v should precede %v", last.End, end)
			}
		})
	}
}

func TestUTCIntervalsEmptyWindow(t *testing.T) {
	at := utc(2022, time.June, 25, 8, 23, 45, 0)

	got := UTCIntervals(at, at, PerDay, 0, time.Millisecond, true, true)
	if got == nil || len(got) != 0 {
		t.Fatalf("equal begin/end: got %v, want empty non-nil slice", got)
	}

	got = UTCIntervals(at, at.Add(-time.Hour), PerDay, 0, time.Millisecond, true, true)
	if got == nil || len(got) != 0 {
		t.Fatalf("reversed window: got %v, want empty non-nil slice", got)
	}
}

func TestUTCIntervalsInsideSingleUnitNoExtensions(t *testing.T) {
	begin := utc(2022, time.June, 25, 8, 0, 0, 0)
	end := utc(2022, time.June, 25, 9, 0, 0, 0)

	got := UTCIntervals(begin, end, PerDay, 0, time.Millisecond, false, false)
	if len(got) != 0 {
		t.Fatalf("got %v, want empty", got)
	}
}

func TestUTCIntervalsInvalidGrouping(t *testing.T) {
	begin := utc(2022, time.June, 25, 0, 0, 0, 0)
	end := begin.Add(72 * time.Hour)

	if got := UTCIntervals(begin, end, Grouping(9), 0, time.Millisecond, true, true); len(got) != 0 {
		t.Fatalf("got %v, want empty", got)
	}
}

func TestUTCIntervalsPrecision(t *testing.T) {
	begin := utc(2022, time.June, 25, 8, 23, 45, 0)
	end := utc(2022, time.June, 26, 9, 0, 0, 0)

	cases := []struct {
		name      string
		precision time.Duration
		wantEnd   time.Time
	}{
		{"second", time.Second, utc(2022, time.June, 25, 23, 59, 59, 0)},
		{"millisecond", time.Millisecond, utc(2022, time.June, 25, 23, 59, 59, lastMilli)},
		{"microsecond", time.Microsecond, utc(2022, time.June, 25, 23, 59, 59, int(999999*time.Microsecond))},
		{"nanosecond", time.Nanosecond, utc(2022, time.June, 25, 23, 59, 59, 999999999)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := UTCIntervals(begin, end, PerDay, 0, tc.precision, true, true)
			if len(got) != 2 {
				t.Fatalf("len = %d, want 2", len(got))
			}
			if !got[0].End.Equal(tc.wantEnd) {
				t.Fatalf("first end = %v, want %v", got[0].End, tc.wantEnd)
			}
			if gap := got[1].Begin.Sub(got[0].End); gap != tc.precision {
				t.Fatalf("gap = %v, want %v", gap, tc.precision)
			}
		})
	}
}

func TestUTCIntervalsOffsetWest(t *testing.T) {
	// Days as seen from PDT (UTC-7): boundaries land at 07:00 UTC.
	begin := utc(2022, time.September, 25, 19, 23, 45, 0)
	end := utc(2022, time.September, 26, 19, 23, 45, 0)

	got := ExtendedUTCIntervals(begin, end, PerDay, 7*3600)
	want := []Interval{
		{Begin: utc(2022, time.September, 25, 7, 0, 0, 0), End: utc(2022, time.September, 26, 6, 59, 59, lastMilli)},
		{Begin: utc(2022, time.September, 26, 7, 0, 0, 0), End: utc(2022, time.September, 27, 6, 59, 59, lastMilli)},
	}
	assertIntervals(t, got, want)
}

func TestUTCIntervalsOffsetEast(t *testing.T) {
	// Days as seen from CEST (UTC+2): boundaries land at 22:00 UTC of the
	// previous calendar day.
	begin := utc(2022, time.September, 25, 8, 23, 45, 0)
	end := utc(2022, time.September, 26, 8, 23, 45, 0)

	got := ExtendedUTCIntervals(begin, end, PerDay, -2*3600)
	want := []Interval{
		{Begin: utc(2022, time.September, 24, 22, 0, 0, 0), End: utc(2022, time.September, 25, 21, 59, 59, lastMilli)},
		{Begin: utc(2022, time.September, 25, 22, 0, 0, 0), End: utc(2022, time.September, 26, 21, 59, 59, lastMilli)},
	}
	assertIntervals(t, got, want)
}

func TestUTCIntervalsNonUTCInputs(t *testing.T) {
	// Inputs carry their own zone; only the instant matters. 01:23 CEST is
	// 23:23 UTC the previous day, so UTC days 24 and 25 come back.
	cest := time.FixedZone("CEST", 2*3600)
	begin := time.Date(2022, time.September, 25, 1, 23, 45, 0, cest)
	end := time.Date(2022, time.September, 26, 1, 23, 45, 0, cest)

	got := ExtendedUTCIntervals(begin, end, PerDay, 0)
	want := []Interval{
		{Begin: utc(2022, time.September, 24, 0, 0, 0, 0), End: utc(2022, time.September, 24, 23, 59, 59, lastMilli)},
		{Begin: utc(2022, time.September, 25, 0, 0, 0, 0), End: utc(2022, time.September, 25, 23, 59, 59, lastMilli)},
	}
	assertIntervals(t, got, want)

	for i, iv := range got {
		if iv.Begin.Location() != time.UTC || iv.End.Location() != time.UTC {
			t.Fatalf("interval[%d] not in UTC: %v", i, iv)
		}
	}
}

func TestExtendedUTCIntervalsPerDayOverYear(t *testing.T) {
	begin := utc(2021, time.June, 25, 8, 23, 45, 0)
	end := utc(2022, time.June, 24, 8, 23, 45, 0)

	got := ExtendedUTCIntervals(begin, end, PerDay, 0)
	if len(got) != 365 {
		t.Fatalf("len = %d, want 365", len(got))
	}
	for i, iv := range got {
		if iv.Begin.Hour() != 0 || iv.Begin.Minute() != 0 || iv.Begin.Second() != 0 || iv.Begin.Nanosecond() != 0 {
			t.Fatalf("interval[%d] begin %v not at midnight", i, iv.Begin)
		}
		if d := iv.Duration(); d != oneDay-time.Millisecond {
			t.Fatalf("interval[%d] duration = %v", i, d)
		}
	}
	if got[0].Begin.Year() != 2021 || got[len(got)-1].Begin.Year() != 2022 {
		t.Fatalf("year span = %d..%d, want 2021..2022", got[0].Begin.Year(), got[len(got)-1].Begin.Year())
	}
}

func TestUTCIntervalsProperties(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	groupings := []Grouping{PerDay, PerWeek, PerMonth}
	offsets := []int{0, 3600, 7 * 3600, -2 * 3600, -(11*3600 + 1800)}
	epoch := time.Date(2000, time.January, 1, 0, 0, 0, 0, time.UTC)

	for i := 0; i < 250; i++ {
		grouping := groupings[rng.Intn(len(groupings))]
		offset := offsets[rng.Intn(len(offsets))]
		extendBegin := rng.Intn(2) == 0
		extendEnd := rng.Intn(2) == 0
		begin := epoch.Add(time.Duration(rng.Int63n(int64(40 * 365 * oneDay))))
		end := begin.Add(time.Duration(rng.Int63n(int64(200 * oneDay))))

		got := UTCIntervals(begin, end, grouping, offset, time.Millisecond, extendBegin, extendEnd)
		zone := time.FixedZone("", -offset)

		for j, iv := range got {
			if !iv.Begin.Before(iv.End) {
				t.Fatalf("case %d: interval[%d] %v not ordered", i, j, iv)
			}
			if j > 0 {
				if gap := iv.Begin.Sub(got[j-1].End); gap != time.Millisecond {
					t.Fatalf("case %d: gap between %d and %d = %v, want 1ms", i, j-1, j, gap)
				}
			}
			local := iv.Begin.In(zone)
			if local.Hour() != 0 || local.Minute() != 0 || local.Second() != 0 || local.Nanosecond() != 0 {
				t.Fatalf("case %d: begin %v not at local midnight (offset %d)", i, iv.Begin, offset)
			}
			switch grouping {
			case PerWeek:
				if local.Weekday() != time.Monday {
					t.Fatalf("case %d: begin %v falls on %v, want Monday", i, iv.Begin, local.Weekday())
				}
			case PerMonth:
				if local.Day() != 1 {
					t.Fatalf("case %d: begin %v falls on day %d, want 1", i, iv.Begin, local.Day())
				}
			}
		}

		if len(got) == 0 {
			continue
		}
		first, last := got[0], got[len(got)-1]
		if extendBegin && first.Begin.After(begin) {
			t.Fatalf("case %d: extended first begin %v after %v", i, first.Begin, begin)
		}
		if !extendBegin && first.Begin.Before(begin) {
			t.Fatalf("case %d: non-extended first begin %v before %v", i, first.Begin, begin)
		}
		if extendEnd && last.End.Before(end) {
			t.Fatalf("case %d: extended last end %v before %v", i, last.End, end)
		}
		if !extendEnd && !last.End.Before(end) {
			t.Fatalf("case %d: non-extended last end %v not before %v", i, last.End, end)
		}
	}
}
