/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/friendsincode/verdandi/internal/events"
	"github.com/friendsincode/verdandi/internal/telemetry"
	"github.com/friendsincode/verdandi/interval"
)

// intervalsRequest carries one ad-hoc generation. The extension flags are
// pointers so an absent field means enabled, not false.
type intervalsRequest struct {
	Begin             string `json:"begin"`
	End               string `json:"end"`
	Grouping          string `json:"grouping"`
	OffsetWestSeconds int    `json:"offset_west_seconds"`
	Precision         string `json:"precision"`
	ExtendBegin       *bool  `json:"extend_begin"`
	ExtendEnd         *bool  `json:"extend_end"`
}

type intervalsResponse struct {
	Grouping  string              `json:"grouping"`
	Count     int                 `json:"count"`
	Intervals []interval.Interval `json:"intervals"`
}

func (a *API) handleIntervalsGenerate(w http.ResponseWriter, r *http.Request) {
	var req intervalsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json")
		return
	}
	a.generateIntervals(w, req)
}

// handleIntervalsQuery is the GET variant: the same generation driven by
// query parameters, convenient for curl and spreadsheets.
func (a *API) handleIntervalsQuery(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	req := intervalsRequest{
		Begin:     q.Get("from"),
		End:       q.Get("to"),
		Grouping:  q.Get("grouping"),
		Precision: q.Get("precision"),
	}

	if raw := q.Get("offset_west_seconds"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_offset")
			return
		}
		req.OffsetWestSeconds = n
	}
	for _, flag := range []struct {
		param string
		dest  **bool
	}{
		{"extend_begin", &req.ExtendBegin},
		{"extend_end", &req.ExtendEnd},
	} {
		if raw := q.Get(flag.param); raw != "" {
			b, err := strconv.ParseBool(raw)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid_"+flag.param)
				return
			}
			*flag.dest = &b
		}
	}

	a.generateIntervals(w, req)
}

func (a *API) generateIntervals(w http.ResponseWriter, req intervalsRequest) {
	begin, err := time.Parse(time.RFC3339Nano, req.Begin)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_begin")
		return
	}
	end, err := time.Parse(time.RFC3339Nano, req.End)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_end")
		return
	}

	grouping, err := interval.ParseGrouping(req.Grouping)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_grouping")
		return
	}

	precision := interval.DefaultPrecision
	if req.Precision != "" {
		parsed, err := time.ParseDuration(req.Precision)
		if err != nil || parsed <= 0 {
			writeError(w, http.StatusBadRequest, "invalid_precision")
			return
		}
		precision = parsed
	}

	gen := interval.NewGenerator().
		WithGrouping(grouping).
		WithPrecision(precision).
		WithOffsetWestSeconds(req.OffsetWestSeconds)
	if req.ExtendBegin != nil && !*req.ExtendBegin {
		gen = gen.WithoutExtendedBegin()
	}
	if req.ExtendEnd != nil && !*req.ExtendEnd {
		gen = gen.WithoutExtendedEnd()
	}

	start := time.Now()
	intervals := gen.Intervals(begin, end)

	telemetry.IntervalGenerationDuration.WithLabelValues(grouping.String()).Observe(time.Since(start).Seconds())
	telemetry.IntervalsGeneratedTotal.WithLabelValues(grouping.String()).Add(float64(len(intervals)))

	if a.bus != nil {
		a.bus.Publish(events.EventIntervalsGenerated, events.Payload{
			"grouping": grouping.String(),
			"count":    len(intervals),
			"begin":    begin.Format(time.RFC3339Nano),
			"end":      end.Format(time.RFC3339Nano),
		})
	}

	writeJSON(w, http.StatusOK, intervalsResponse{
		Grouping:  grouping.String(),
		Count:     len(intervals),
		Intervals: intervals,
	})
}
