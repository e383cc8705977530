/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/friendsincode/verdandi/internal/auth"
	"github.com/friendsincode/verdandi/internal/export"
	"github.com/friendsincode/verdandi/internal/models"
	"github.com/friendsincode/verdandi/internal/presets"
)

type presetCreateRequest struct {
	Name              string `json:"name"`
	Description       string `json:"description"`
	Grouping          string `json:"grouping"`
	Precision         string `json:"precision"`
	OffsetWestSeconds int    `json:"offset_west_seconds"`
	ExtendBegin       *bool  `json:"extend_begin"`
	ExtendEnd         *bool  `json:"extend_end"`
	FeedLookbackDays  int    `json:"feed_lookback_days"`
	FeedHorizonDays   int    `json:"feed_horizon_days"`
}

func (a *API) handlePresetsList(w http.ResponseWriter, r *http.Request) {
	list, err := a.presets.List(r.Context())
	if err != nil {
		a.logger.Error().Err(err).Msg("list presets failed")
		writeError(w, http.StatusInternalServerError, "db_error")
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (a *API) handlePresetsCreate(w http.ResponseWriter, r *http.Request) {
	var req presetCreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json")
		return
	}

	preset := &models.Preset{
		Name:              req.Name,
		Description:       req.Description,
		Grouping:          req.Grouping,
		Precision:         req.Precision,
		OffsetWestSeconds: req.OffsetWestSeconds,
		ExtendBegin:       req.ExtendBegin == nil || *req.ExtendBegin,
		ExtendEnd:         req.ExtendEnd == nil || *req.ExtendEnd,
		FeedLookbackDays:  req.FeedLookbackDays,
		FeedHorizonDays:   req.FeedHorizonDays,
	}

	switch err := a.presets.Create(r.Context(), preset); {
	case err == nil:
		writeJSON(w, http.StatusCreated, preset)
	case errors.Is(err, presets.ErrNameExists):
		writeError(w, http.StatusConflict, "name_exists")
	case errors.Is(err, presets.ErrInvalidPreset):
		writeError(w, http.StatusBadRequest, "invalid_preset")
	default:
		a.logger.Error().Err(err).Msg("create preset failed")
		writeError(w, http.StatusInternalServerError, "db_error")
	}
}

func (a *API) handlePresetsGet(w http.ResponseWriter, r *http.Request) {
	preset, err := a.presets.Get(r.Context(), chi.URLParam(r, "presetID"))
	switch {
	case errors.Is(err, presets.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found")
	case err != nil:
		a.logger.Error().Err(err).Msg("get preset failed")
		writeError(w, http.StatusInternalServerError, "db_error")
	default:
		writeJSON(w, http.StatusOK, preset)
	}
}

func (a *API) handlePresetsUpdate(w http.ResponseWriter, r *http.Request) {
	var patch presets.Patch
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json")
		return
	}

	preset, err := a.presets.Update(r.Context(), chi.URLParam(r, "presetID"), patch)
	switch {
	case errors.Is(err, presets.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found")
	case errors.Is(err, presets.ErrNameExists):
		writeError(w, http.StatusConflict, "name_exists")
	case errors.Is(err, presets.ErrInvalidPreset):
		writeError(w, http.StatusBadRequest, "invalid_preset")
	case err != nil:
		a.logger.Error().Err(err).Msg("update preset failed")
		writeError(w, http.StatusInternalServerError, "db_error")
	default:
		writeJSON(w, http.StatusOK, preset)
	}
}

func (a *API) handlePresetsDelete(w http.ResponseWriter, r *http.Request) {
	err := a.presets.Delete(r.Context(), chi.URLParam(r, "presetID"))
	switch {
	case errors.Is(err, presets.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found")
	case err != nil:
		a.logger.Error().Err(err).Msg("delete preset failed")
		writeError(w, http.StatusInternalServerError, "db_error")
	default:
		w.WriteHeader(http.StatusNoContent)
	}
}

// handlePresetIntervals renders a preset's intervals across from/to in the
// requested format. JSON responds inline; ics and csv download.
func (a *API) handlePresetIntervals(w http.ResponseWriter, r *http.Request) {
	preset, err := a.presets.Get(r.Context(), chi.URLParam(r, "presetID"))
	if errors.Is(err, presets.ErrNotFound) {
		writeError(w, http.StatusNotFound, "not_found")
		return
	}
	if err != nil {
		a.logger.Error().Err(err).Msg("get preset failed")
		writeError(w, http.StatusInternalServerError, "db_error")
		return
	}

	from, to, ok := parseWindow(r,
		time.Duration(preset.FeedLookbackDays)*24*time.Hour,
		time.Duration(preset.FeedHorizonDays)*24*time.Hour)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid_window")
		return
	}

	format := r.URL.Query().Get("format")
	if format == "" {
		format = string(models.FormatJSON)
	}
	if !models.ValidExportFormat(format) {
		writeError(w, http.StatusBadRequest, "invalid_format")
		return
	}

	intervals, err := a.presets.GenerateForPreset(r.Context(), preset, from, to)
	if err != nil {
		a.logger.Error().Err(err).Str("preset_id", preset.ID).Msg("generate intervals failed")
		writeError(w, http.StatusInternalServerError, "generation_error")
		return
	}

	if models.ExportFormat(format) == models.FormatJSON {
		writeJSON(w, http.StatusOK, map[string]any{
			"preset_id": preset.ID,
			"grouping":  preset.Grouping,
			"count":     len(intervals),
			"intervals": intervals,
		})
		return
	}

	result, err := export.Render(models.ExportFormat(format), preset, intervals, from, to)
	if err != nil {
		a.logger.Error().Err(err).Str("preset_id", preset.ID).Msg("render failed")
		writeError(w, http.StatusInternalServerError, "render_error")
		return
	}

	w.Header().Set("Content-Type", result.ContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", result.Filename))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(result.Data)
}

func (a *API) handlePresetFeedToken(w http.ResponseWriter, r *http.Request) {
	preset, err := a.presets.Get(r.Context(), chi.URLParam(r, "presetID"))
	if errors.Is(err, presets.ErrNotFound) {
		writeError(w, http.StatusNotFound, "not_found")
		return
	}
	if err != nil {
		a.logger.Error().Err(err).Msg("get preset failed")
		writeError(w, http.StatusInternalServerError, "db_error")
		return
	}

	settings, err := a.systemSettings(r.Context())
	if err != nil {
		a.logger.Error().Err(err).Msg("load settings failed")
		writeError(w, http.StatusInternalServerError, "db_error")
		return
	}

	token, expiresAt, err := auth.IssueFeedToken(a.jwtSecret, preset.ID, settings.FeedTokenDuration())
	if err != nil {
		a.logger.Error().Err(err).Msg("sign feed token failed")
		writeError(w, http.StatusInternalServerError, "token_error")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"token":      token,
		"url":        a.baseURL + "/feeds/" + token,
		"expires_at": expiresAt,
	})
}
