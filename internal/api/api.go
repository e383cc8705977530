/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package api exposes the HTTP surface: interval generation, preset and
// export management, calendar feeds and the admin endpoints.
package api

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/friendsincode/verdandi/internal/auth"
	"github.com/friendsincode/verdandi/internal/cache"
	"github.com/friendsincode/verdandi/internal/events"
	"github.com/friendsincode/verdandi/internal/logbuffer"
	"github.com/friendsincode/verdandi/internal/models"
	"github.com/friendsincode/verdandi/internal/presets"
	"github.com/friendsincode/verdandi/internal/snapshot"
	"github.com/friendsincode/verdandi/internal/version"
)

// EventBus is the pub/sub surface the API publishes to and streams from.
// Satisfied by the in-process bus and the distributed backends alike.
type EventBus interface {
	Subscribe(eventType events.EventType) events.Subscriber
	Publish(eventType events.EventType, payload events.Payload)
	Unsubscribe(eventType events.EventType, sub events.Subscriber)
}

// API exposes HTTP handlers.
type API struct {
	db         *gorm.DB
	jwtSecret  []byte
	baseURL    string
	presets    *presets.Service
	exports    *snapshot.Service
	cache      *cache.Cache
	bus        EventBus
	updateInfo *version.Checker
	logBuffer  *logbuffer.Buffer
	logger     zerolog.Logger
}

// New creates the API router wrapper. cache, checker and logBuf may be nil.
func New(db *gorm.DB, jwtSecret []byte, baseURL string, presetSvc *presets.Service, exportSvc *snapshot.Service, cch *cache.Cache, bus EventBus, checker *version.Checker, logBuf *logbuffer.Buffer, logger zerolog.Logger) *API {
	return &API{
		db:         db,
		jwtSecret:  jwtSecret,
		baseURL:    strings.TrimRight(baseURL, "/"),
		presets:    presetSvc,
		exports:    exportSvc,
		cache:      cch,
		bus:        bus,
		updateInfo: checker,
		logBuffer:  logBuf,
		logger:     logger.With().Str("component", "api").Logger(),
	}
}

// Routes mounts API routes on the provided router.
func (a *API) Routes(r chi.Router) {
	// Calendar feeds authenticate by token, not header, so calendar apps
	// can subscribe with nothing but the URL.
	r.Get("/feeds/{token}", a.handleFeed)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", a.handleHealth)
		r.Get("/version", a.handleVersion)
		r.Post("/auth/login", a.handleLogin)

		r.Group(func(pr chi.Router) {
			pr.Use(a.authMiddleware())

			pr.Route("/intervals", func(r chi.Router) {
				r.Get("/", a.handleIntervalsQuery)
				r.Post("/", a.handleIntervalsGenerate)
				r.Get("/watch", a.handleIntervalsWatch)
			})

			pr.Route("/presets", func(r chi.Router) {
				r.Get("/", a.handlePresetsList)
				r.With(a.requireRoles(models.RoleAdmin, models.RoleEditor)).Post("/", a.handlePresetsCreate)
				r.Route("/{presetID}", func(r chi.Router) {
					r.Get("/", a.handlePresetsGet)
					r.With(a.requireRoles(models.RoleAdmin, models.RoleEditor)).Patch("/", a.handlePresetsUpdate)
					r.With(a.requireRoles(models.RoleAdmin, models.RoleEditor)).Delete("/", a.handlePresetsDelete)
					r.Get("/intervals", a.handlePresetIntervals)
					r.With(a.requireRoles(models.RoleAdmin, models.RoleEditor)).Post("/feed-token", a.handlePresetFeedToken)
				})
			})

			pr.Group(func(er chi.Router) {
				er.Use(a.requireRoles(models.RoleAdmin, models.RoleEditor))
				er.Route("/exports", func(r chi.Router) {
					r.Get("/", a.handleExportsList)
					r.Post("/", a.handleExportsCreate)
					r.Route("/{jobID}", func(r chi.Router) {
						r.Get("/", a.handleExportsGet)
						r.Patch("/", a.handleExportsUpdate)
						r.Delete("/", a.handleExportsDelete)
						r.Post("/run", a.handleExportsRun)
						r.Get("/snapshots", a.handleExportSnapshots)
					})
				})
				er.Get("/snapshots/{snapshotID}/download", a.handleSnapshotDownload)
			})

			pr.Route("/keys", func(r chi.Router) {
				r.Get("/", a.handleKeysList)
				r.Post("/", a.handleKeysCreate)
				r.Delete("/{keyID}", a.handleKeysRevoke)
			})

			pr.Group(func(ar chi.Router) {
				ar.Use(a.requireRoles(models.RoleAdmin))
				ar.Route("/users", func(r chi.Router) {
					r.Get("/", a.handleUsersList)
					r.Post("/", a.handleUsersCreate)
				})
				ar.Route("/settings", func(r chi.Router) {
					r.Get("/", a.handleSettingsGet)
					r.Patch("/", a.handleSettingsUpdate)
				})
				ar.Route("/logs", func(r chi.Router) {
					r.Get("/", a.handleLogsQuery)
					r.Delete("/", a.handleLogsClear)
				})
			})

			pr.Get("/events", a.handleEvents)
		})
	})
}

func (a *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (a *API) handleVersion(w http.ResponseWriter, r *http.Request) {
	resp := map[string]any{"version": version.Version}

	if a.updateInfo != nil {
		info := a.updateInfo.Info()
		resp["update"] = map[string]any{
			"current_version":  info.CurrentVersion,
			"latest_version":   info.LatestVersion,
			"update_available": info.UpdateAvailable,
			"release_url":      info.ReleaseURL,
			"checked_at":       info.CheckedAt,
		}
	}

	writeJSON(w, http.StatusOK, resp)
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json")
		return
	}
	if req.Email == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "email_and_password_required")
		return
	}

	// Same failure code whether the account exists or not.
	var user models.User
	if err := a.db.WithContext(r.Context()).First(&user, "email = ?", req.Email).Error; err != nil {
		writeError(w, http.StatusUnauthorized, "invalid_credentials")
		return
	}
	if !auth.CheckPassword(user.PasswordHash, req.Password) {
		writeError(w, http.StatusUnauthorized, "invalid_credentials")
		return
	}
	if user.Suspended {
		writeError(w, http.StatusForbidden, "account_suspended")
		return
	}

	token, err := auth.Issue(a.jwtSecret, auth.Claims{UserID: user.ID, Role: string(user.Role)}, auth.TokenTTL)
	if err != nil {
		a.logger.Error().Err(err).Msg("sign JWT failed")
		writeError(w, http.StatusInternalServerError, "token_error")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"token":      token,
		"expires_in": int(auth.TokenTTL.Seconds()),
		"user": map[string]any{
			"id":    user.ID,
			"email": user.Email,
			"role":  user.Role,
		},
	})
}

func (a *API) authMiddleware() func(http.Handler) http.Handler {
	return auth.MiddlewareWithJWT(a.db, a.jwtSecret)
}

func (a *API) requireRoles(allowed ...models.RoleName) func(http.Handler) http.Handler {
	allowedSet := make(map[string]struct{}, len(allowed))
	for _, role := range allowed {
		allowedSet[string(role)] = struct{}{}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, ok := auth.ClaimsFromContext(r.Context())
			if !ok {
				writeError(w, http.StatusUnauthorized, "unauthorized")
				return
			}
			if _, exists := allowedSet[claims.Role]; !exists {
				writeError(w, http.StatusForbidden, "insufficient_role")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func parseEventTypes(raw string) []events.EventType {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]events.EventType, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		out = append(out, events.EventType(part))
	}
	return out
}

// parseWindow reads the from/to query parameters, defaulting to a window
// around now when absent.
func parseWindow(r *http.Request, lookback, horizon time.Duration) (time.Time, time.Time, bool) {
	now := time.Now().UTC()
	from := now.Add(-lookback)
	to := now.Add(horizon)

	if raw := r.URL.Query().Get("from"); raw != "" {
		parsed, err := time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			return time.Time{}, time.Time{}, false
		}
		from = parsed
	}
	if raw := r.URL.Query().Get("to"); raw != "" {
		parsed, err := time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			return time.Time{}, time.Time{}, false
		}
		to = parsed
	}
	return from, to, true
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, code string) {
	writeJSON(w, status, map[string]string{"error": code})
}
