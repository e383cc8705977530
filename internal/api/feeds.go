/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/friendsincode/verdandi/internal/auth"
	"github.com/friendsincode/verdandi/internal/cache"
	"github.com/friendsincode/verdandi/internal/export"
	"github.com/friendsincode/verdandi/internal/models"
	"github.com/friendsincode/verdandi/internal/presets"
)

// handleFeed serves a rolling iCal feed for the preset a feed token
// unlocks. Calendar apps poll these URLs for months, so responses are
// cached and failures stay quiet: a bad or stale token is a plain 404.
func (a *API) handleFeed(w http.ResponseWriter, r *http.Request) {
	claims, err := auth.ParseFeedToken(a.jwtSecret, chi.URLParam(r, "token"))
	if err != nil {
		writeError(w, http.StatusNotFound, "not_found")
		return
	}

	settings, err := a.systemSettings(r.Context())
	if err != nil {
		a.logger.Error().Err(err).Msg("load settings failed")
		writeError(w, http.StatusInternalServerError, "db_error")
		return
	}
	if !settings.FeedsEnabled {
		writeError(w, http.StatusServiceUnavailable, "feeds_disabled")
		return
	}

	if a.cache != nil {
		if payload, ok := a.cache.GetFeed(r.Context(), claims.PresetID); ok {
			writeCalendar(w, payload)
			return
		}
	}

	preset, err := a.presets.Get(r.Context(), claims.PresetID)
	if errors.Is(err, presets.ErrNotFound) {
		// Preset deleted after the token was issued.
		writeError(w, http.StatusNotFound, "not_found")
		return
	}
	if err != nil {
		a.logger.Error().Err(err).Msg("get preset failed")
		writeError(w, http.StatusInternalServerError, "db_error")
		return
	}

	now := time.Now().UTC()
	from := now.Add(-time.Duration(preset.FeedLookbackDays) * 24 * time.Hour)
	to := now.Add(time.Duration(preset.FeedHorizonDays) * 24 * time.Hour)

	intervals, err := a.presets.GenerateForPreset(r.Context(), preset, from, to)
	if err != nil {
		a.logger.Error().Err(err).Str("preset_id", preset.ID).Msg("generate feed failed")
		writeError(w, http.StatusInternalServerError, "generation_error")
		return
	}

	payload := export.RenderICal(preset.Name, intervals)
	if a.cache != nil {
		_ = a.cache.SetFeed(r.Context(), preset.ID, payload)
	}
	writeCalendar(w, payload)
}

func writeCalendar(w http.ResponseWriter, payload []byte) {
	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(payload)
}

// systemSettings loads the settings singleton, read-through cached.
func (a *API) systemSettings(ctx context.Context) (*models.SystemSettings, error) {
	if a.cache != nil {
		if cached, ok := a.cache.GetSettings(ctx); ok {
			return &models.SystemSettings{
				ID:           1,
				FeedsEnabled: cached.FeedsEnabled,
				FeedTokenTTL: cached.FeedTokenTTL,
				LogLevel:     cached.LogLevel,
			}, nil
		}
	}

	settings, err := models.GetSystemSettings(a.db.WithContext(ctx))
	if err != nil {
		return nil, err
	}

	if a.cache != nil {
		_ = a.cache.SetSettings(ctx, &cache.CachedSettings{
			FeedsEnabled: settings.FeedsEnabled,
			FeedTokenTTL: settings.FeedTokenTTL,
			LogLevel:     settings.LogLevel,
		})
	}
	return settings, nil
}
