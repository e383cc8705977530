/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/friendsincode/verdandi/internal/logbuffer"
)

const defaultLogLimit = 200

// handleLogsQuery serves recent log entries from the in-memory buffer,
// newest first.
func (a *API) handleLogsQuery(w http.ResponseWriter, r *http.Request) {
	if a.logBuffer == nil {
		writeError(w, http.StatusServiceUnavailable, "log_buffer_disabled")
		return
	}

	params := logbuffer.QueryParams{
		Level:      r.URL.Query().Get("level"),
		Component:  r.URL.Query().Get("component"),
		Search:     r.URL.Query().Get("q"),
		Limit:      defaultLogLimit,
		Descending: true,
	}

	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			writeError(w, http.StatusBadRequest, "invalid_limit")
			return
		}
		params.Limit = limit
	}
	if raw := r.URL.Query().Get("since"); raw != "" {
		since, err := time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_since")
			return
		}
		params.Since = since
	}

	entries := a.logBuffer.Query(params)
	writeJSON(w, http.StatusOK, map[string]any{
		"entries":    entries,
		"components": a.logBuffer.GetComponents(),
		"stats":      a.logBuffer.Stats(),
	})
}

func (a *API) handleLogsClear(w http.ResponseWriter, r *http.Request) {
	if a.logBuffer == nil {
		writeError(w, http.StatusServiceUnavailable, "log_buffer_disabled")
		return
	}
	a.logBuffer.Clear()
	w.WriteHeader(http.StatusNoContent)
}
