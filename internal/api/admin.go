/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/friendsincode/verdandi/internal/auth"
	"github.com/friendsincode/verdandi/internal/events"
	"github.com/friendsincode/verdandi/internal/models"
)

// API key management. Keys belong to the calling user; admins manage their
// own keys like everyone else.

func (a *API) handleKeysList(w http.ResponseWriter, r *http.Request) {
	claims, ok := auth.ClaimsFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	keys, err := auth.ListAPIKeys(a.db.WithContext(r.Context()), claims.UserID)
	if err != nil {
		a.logger.Error().Err(err).Msg("list api keys failed")
		writeError(w, http.StatusInternalServerError, "db_error")
		return
	}
	writeJSON(w, http.StatusOK, keys)
}

func (a *API) handleKeysCreate(w http.ResponseWriter, r *http.Request) {
	claims, ok := auth.ClaimsFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req struct {
		Name      string `json:"name"`
		ExpiresIn string `json:"expires_in"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json")
		return
	}
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "name_required")
		return
	}

	var expiresIn time.Duration
	if req.ExpiresIn != "" {
		parsed, err := time.ParseDuration(req.ExpiresIn)
		if err != nil || parsed <= 0 {
			writeError(w, http.StatusBadRequest, "invalid_expires_in")
			return
		}
		expiresIn = parsed
	}

	plaintext, key, err := auth.GenerateAPIKey(claims.UserID, req.Name, expiresIn)
	if err != nil {
		a.logger.Error().Err(err).Msg("generate api key failed")
		writeError(w, http.StatusInternalServerError, "keygen_error")
		return
	}
	if err := a.db.WithContext(r.Context()).Create(key).Error; err != nil {
		a.logger.Error().Err(err).Msg("store api key failed")
		writeError(w, http.StatusInternalServerError, "db_error")
		return
	}

	if a.bus != nil {
		a.bus.Publish(events.EventAPIKeyCreated, events.Payload{
			"key_id":  key.ID,
			"user_id": claims.UserID,
			"name":    key.Name,
		})
	}

	// The plaintext key appears in this response and nowhere else.
	writeJSON(w, http.StatusCreated, map[string]any{
		"key":        plaintext,
		"id":         key.ID,
		"name":       key.Name,
		"key_prefix": key.KeyPrefix,
		"expires_at": key.ExpiresAt,
	})
}

func (a *API) handleKeysRevoke(w http.ResponseWriter, r *http.Request) {
	claims, ok := auth.ClaimsFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	keyID := chi.URLParam(r, "keyID")
	err := auth.RevokeAPIKey(a.db.WithContext(r.Context()), keyID, claims.UserID)
	switch {
	case errors.Is(err, auth.ErrAPIKeyNotFound):
		writeError(w, http.StatusNotFound, "not_found")
		return
	case err != nil:
		a.logger.Error().Err(err).Msg("revoke api key failed")
		writeError(w, http.StatusInternalServerError, "db_error")
		return
	}

	if a.bus != nil {
		a.bus.Publish(events.EventAPIKeyRevoked, events.Payload{
			"key_id":  keyID,
			"user_id": claims.UserID,
		})
	}
	w.WriteHeader(http.StatusNoContent)
}

// User management, admin only.

func (a *API) handleUsersList(w http.ResponseWriter, r *http.Request) {
	var users []models.User
	if err := a.db.WithContext(r.Context()).Order("email ASC").Find(&users).Error; err != nil {
		a.logger.Error().Err(err).Msg("list users failed")
		writeError(w, http.StatusInternalServerError, "db_error")
		return
	}
	writeJSON(w, http.StatusOK, users)
}

func (a *API) handleUsersCreate(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
		Role     string `json:"role"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json")
		return
	}
	if req.Email == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "email_and_password_required")
		return
	}
	if req.Role == "" {
		req.Role = string(models.RoleViewer)
	}
	if !models.ValidRole(req.Role) {
		writeError(w, http.StatusBadRequest, "invalid_role")
		return
	}

	var existing models.User
	if err := a.db.WithContext(r.Context()).First(&existing, "email = ?", req.Email).Error; err == nil {
		writeError(w, http.StatusConflict, "email_exists")
		return
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		a.logger.Error().Err(err).Msg("hash password failed")
		writeError(w, http.StatusInternalServerError, "hash_error")
		return
	}

	user := models.User{
		ID:           uuid.NewString(),
		Email:        req.Email,
		PasswordHash: hash,
		Role:         models.RoleName(req.Role),
	}
	if err := a.db.WithContext(r.Context()).Create(&user).Error; err != nil {
		a.logger.Error().Err(err).Msg("create user failed")
		writeError(w, http.StatusInternalServerError, "db_error")
		return
	}

	writeJSON(w, http.StatusCreated, user)
}

// System settings, admin only.

func (a *API) handleSettingsGet(w http.ResponseWriter, r *http.Request) {
	settings, err := a.systemSettings(r.Context())
	if err != nil {
		a.logger.Error().Err(err).Msg("load settings failed")
		writeError(w, http.StatusInternalServerError, "db_error")
		return
	}
	writeJSON(w, http.StatusOK, settings)
}

func (a *API) handleSettingsUpdate(w http.ResponseWriter, r *http.Request) {
	var req struct {
		FeedsEnabled *bool   `json:"feeds_enabled"`
		FeedTokenTTL *string `json:"feed_token_ttl"`
		LogLevel     *string `json:"log_level"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json")
		return
	}

	updates := map[string]any{}
	if req.FeedsEnabled != nil {
		updates["feeds_enabled"] = *req.FeedsEnabled
	}
	if req.FeedTokenTTL != nil {
		if d, err := time.ParseDuration(*req.FeedTokenTTL); err != nil || d <= 0 {
			writeError(w, http.StatusBadRequest, "invalid_feed_token_ttl")
			return
		}
		updates["feed_token_ttl"] = *req.FeedTokenTTL
	}
	if req.LogLevel != nil {
		if !models.IsValidLogLevel(*req.LogLevel) {
			writeError(w, http.StatusBadRequest, "invalid_log_level")
			return
		}
		updates["log_level"] = *req.LogLevel
	}
	if len(updates) == 0 {
		writeError(w, http.StatusBadRequest, "no_updates")
		return
	}

	settings, err := models.GetSystemSettings(a.db.WithContext(r.Context()))
	if err != nil {
		a.logger.Error().Err(err).Msg("load settings failed")
		writeError(w, http.StatusInternalServerError, "db_error")
		return
	}
	if err := a.db.WithContext(r.Context()).Model(settings).Updates(updates).Error; err != nil {
		a.logger.Error().Err(err).Msg("update settings failed")
		writeError(w, http.StatusInternalServerError, "db_error")
		return
	}

	if a.cache != nil {
		_ = a.cache.InvalidateSettings(r.Context())
	}

	settings, err = models.GetSystemSettings(a.db.WithContext(r.Context()))
	if err != nil {
		a.logger.Error().Err(err).Msg("reload settings failed")
		writeError(w, http.StatusInternalServerError, "db_error")
		return
	}
	writeJSON(w, http.StatusOK, settings)
}
