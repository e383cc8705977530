/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/friendsincode/verdandi/internal/api"
	"github.com/friendsincode/verdandi/internal/cache"
	"github.com/friendsincode/verdandi/internal/config"
	"github.com/friendsincode/verdandi/internal/db"
	"github.com/friendsincode/verdandi/internal/eventbus"
	"github.com/friendsincode/verdandi/internal/events"
	"github.com/friendsincode/verdandi/internal/leadership"
	"github.com/friendsincode/verdandi/internal/logbuffer"
	"github.com/friendsincode/verdandi/internal/presets"
	"github.com/friendsincode/verdandi/internal/scheduler"
	"github.com/friendsincode/verdandi/internal/snapshot"
	"github.com/friendsincode/verdandi/internal/storage"
	"github.com/friendsincode/verdandi/internal/telemetry"
	"github.com/friendsincode/verdandi/internal/version"
)

// Server bundles HTTP and supporting services.
type Server struct {
	cfg        *config.Config
	logger     zerolog.Logger
	router     chi.Router
	httpServer *http.Server
	closers    []func() error

	db        *gorm.DB
	cache     *cache.Cache
	bus       eventbus.Bus
	store     storage.ObjectStore
	logBuffer *logbuffer.Buffer

	presets *presets.Service
	exports *snapshot.Service

	scheduler            *scheduler.Service
	leaderAwareScheduler *scheduler.LeaderAwareScheduler

	checker *version.Checker
	api     *api.API

	bgCancel context.CancelFunc
	bgWG     sync.WaitGroup
}

// New builds a fully wired server. It connects the database, runs
// migrations, selects the event bus and object store backends, and starts
// the background workers. The returned server is ready to serve once its
// HTTPServer is started.
func New(cfg *config.Config, logBuf *logbuffer.Buffer, logger zerolog.Logger) (*Server, error) {
	for _, warn := range cfg.LegacyEnvWarnings {
		logger.Warn().Msg(warn)
	}

	router := chi.NewRouter()

	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middleware.Logger)
	router.Use(middleware.Recoverer)
	router.Use(securityHeadersMiddleware)
	router.Use(telemetry.TracingMiddleware("verdandi-api"))
	router.Use(telemetry.MetricsMiddleware)
	// Skip timeout for WebSocket connections
	router.Use(func(next http.Handler) http.Handler {
		timeout := middleware.Timeout(cfg.HTTPTimeout)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// Interval watch and event streams hold their connection open
			// far past any sane request deadline.
			if r.Header.Get("Upgrade") == "websocket" {
				next.ServeHTTP(w, r)
				return
			}
			timeout(next).ServeHTTP(w, r)
		})
	})

	srv := &Server{
		cfg:       cfg,
		logger:    logger,
		router:    router,
		logBuffer: logBuf,
	}

	if err := srv.initDependencies(); err != nil {
		return nil, err
	}

	srv.configureRoutes()
	srv.startBackgroundWorkers()

	srv.httpServer = &http.Server{
		Addr:    cfg.Addr(),
		Handler: srv.router,
		// Keep header deadline to protect against slowloris, but leave the
		// body deadlines open: websocket streams and large exports manage
		// their own, and the middleware timeout covers plain routes.
		ReadHeaderTimeout: 15 * time.Second,
		ReadTimeout:       0,
		WriteTimeout:      0,
		IdleTimeout:       60 * time.Second,
	}

	return srv, nil
}

func securityHeadersMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'; base-uri 'self'")

		// Only advertise HSTS for requests served over HTTPS.
		if r.TLS != nil || r.Header.Get("X-Forwarded-Proto") == "https" {
			w.Header().Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		}

		next.ServeHTTP(w, r)
	})
}

func (s *Server) initDependencies() error {
	database, err := db.Connect(s.cfg, s.logger)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	if err := db.Migrate(database, s.logger); err != nil {
		return fmt.Errorf("migrate database: %w", err)
	}
	s.db = database
	s.DeferClose(func() error { return db.Close(database) })

	if s.cfg.CacheEnabled {
		cacheCfg := cache.DefaultConfig()
		cacheCfg.RedisAddr = s.cfg.RedisAddr
		cacheCfg.RedisPassword = s.cfg.RedisPassword
		cacheCfg.RedisDB = s.cfg.RedisDB
		feedCache, err := cache.New(cacheCfg, s.logger)
		if err != nil {
			s.logger.Warn().Err(err).Msg("cache unavailable, continuing without it")
		} else {
			s.cache = feedCache
			s.DeferClose(func() error { return s.cache.Close() })
		}
	}

	bus, err := eventbus.New(s.cfg, s.logger)
	if err != nil {
		return fmt.Errorf("create event bus: %w", err)
	}
	s.bus = bus
	s.DeferClose(bus.Close)

	store, err := storage.New(context.Background(), s.cfg, s.logger)
	if err != nil {
		return fmt.Errorf("create object store: %w", err)
	}
	s.store = store

	s.presets = presets.NewService(s.db, s.bus, s.cache, s.logger)
	s.exports = snapshot.NewService(s.db, s.presets, s.store, s.bus, s.logger)

	if s.cfg.SchedulerEnabled {
		s.scheduler = scheduler.New(s.exports, s.bus, s.logger)
		s.leaderAwareScheduler = scheduler.NewLeaderAware(s.scheduler, s.newElection(), s.logger)
		s.DeferClose(func() error { return s.leaderAwareScheduler.Stop() })
	}

	s.checker = version.NewChecker(s.logger)

	baseURL := s.cfg.BaseURL
	if baseURL == "" {
		baseURL = fmt.Sprintf("http://localhost:%d", s.cfg.HTTPPort)
	}

	s.api = api.New(s.db, []byte(s.cfg.JWTSigningKey), baseURL, s.presets, s.exports, s.cache, s.bus, s.checker, s.logBuffer, s.logger)

	return nil
}

// newElection returns a Redis-backed election when enabled and reachable,
// and a standalone always-leader election otherwise. A single instance must
// keep exporting even when Redis is down.
func (s *Server) newElection() *leadership.Election {
	if !s.cfg.LeaderElectionEnabled {
		return leadership.NewStandalone(s.cfg.InstanceID, s.logger)
	}

	electionCfg := leadership.DefaultConfig()
	electionCfg.RedisAddr = s.cfg.RedisAddr
	electionCfg.RedisPassword = s.cfg.RedisPassword
	electionCfg.RedisDB = s.cfg.RedisDB
	if s.cfg.InstanceID != "" {
		electionCfg.InstanceID = s.cfg.InstanceID
	}

	election, err := leadership.NewElection(electionCfg, s.logger)
	if err != nil {
		s.logger.Warn().Err(err).Msg("leader election unavailable, assuming standalone leadership")
		return leadership.NewStandalone(s.cfg.InstanceID, s.logger)
	}
	return election
}

// HTTPServer exposes the configured HTTP server for the caller to run.
func (s *Server) HTTPServer() *http.Server {
	return s.httpServer
}

// LogBuffer returns the server's log buffer for attaching to zerolog.
func (s *Server) LogBuffer() *logbuffer.Buffer {
	return s.logBuffer
}

// Run serves HTTP until ctx is cancelled, then shuts the listener down
// gracefully. Close still has to be called afterwards to release the
// remaining resources.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().Str("addr", s.httpServer.Addr).Msg("HTTP server listening")
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return s.httpServer.Shutdown(shutdownCtx)
}

// Close releases owned resources in reverse order.
func (s *Server) Close() error {
	if s.checker != nil {
		s.checker.Stop()
	}
	s.stopBackgroundWorkers()
	var firstErr error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// DeferClose registers a cleanup hook.
func (s *Server) DeferClose(fn func() error) {
	s.closers = append(s.closers, fn)
}

func (s *Server) startBackgroundWorkers() {
	ctx, cancel := context.WithCancel(context.Background())
	s.bgCancel = cancel

	// Leader-aware scheduler spawns its own goroutines and returns.
	if s.leaderAwareScheduler != nil {
		if err := s.leaderAwareScheduler.Start(ctx); err != nil {
			s.logger.Error().Err(err).Msg("scheduler start failed")
		}
	}

	s.checker.Start(ctx)

	// Keep the connection pool gauges current.
	s.bgWG.Add(1)
	go func() {
		defer s.bgWG.Done()
		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				db.UpdateConnectionMetrics(s.db)
			}
		}
	}()

	if s.cache != nil {
		s.bgWG.Add(1)
		go func() {
			defer s.bgWG.Done()
			s.runCacheInvalidationListener(ctx)
		}()
	}

	// The Redis bus degrades to in-process delivery when Redis drops;
	// periodically try to climb back out of fallback mode.
	if rb, ok := s.bus.(*eventbus.RedisBus); ok {
		s.bgWG.Add(1)
		go func() {
			defer s.bgWG.Done()
			s.runBusReconnector(ctx, rb)
		}()
	}
}

// runCacheInvalidationListener drops cached feeds and presets when a preset
// changes anywhere in the cluster. Local writes already invalidate through
// the preset service; this catches writes from other instances arriving over
// the distributed bus.
func (s *Server) runCacheInvalidationListener(ctx context.Context) {
	presetUpdated := s.bus.Subscribe(events.EventPresetUpdated)
	presetDeleted := s.bus.Subscribe(events.EventPresetDeleted)

	defer func() {
		s.bus.Unsubscribe(events.EventPresetUpdated, presetUpdated)
		s.bus.Unsubscribe(events.EventPresetDeleted, presetDeleted)
	}()

	s.logger.Info().Msg("cache invalidation listener started")

	invalidate := func(ev events.Event) {
		presetID, ok := ev.Payload["id"].(string)
		if !ok || presetID == "" {
			return
		}
		s.logger.Debug().Str("preset_id", presetID).Msg("invalidating cached preset and feed")
		if err := s.cache.InvalidatePreset(ctx, presetID); err != nil {
			s.logger.Debug().Err(err).Msg("preset cache invalidation failed")
		}
		if err := s.cache.InvalidateFeed(ctx, presetID); err != nil {
			s.logger.Debug().Err(err).Msg("feed cache invalidation failed")
		}
	}

	for {
		select {
		case <-ctx.Done():
			s.logger.Info().Msg("cache invalidation listener stopped")
			return
		case ev := <-presetUpdated:
			invalidate(ev)
		case ev := <-presetDeleted:
			invalidate(ev)
		}
	}
}

func (s *Server) runBusReconnector(ctx context.Context, rb *eventbus.RedisBus) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := rb.TryReconnect(); err != nil {
				s.logger.Debug().Err(err).Msg("event bus still in fallback mode")
			}
		}
	}
}

func (s *Server) stopBackgroundWorkers() {
	if s.bgCancel == nil {
		return
	}
	s.bgCancel()
	s.bgWG.Wait()
	s.bgCancel = nil
}

func (s *Server) configureRoutes() {
	s.router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)

		response := `{"status":"ok"`

		// Add leader status if the scheduler is running
		if s.leaderAwareScheduler != nil {
			if s.leaderAwareScheduler.IsLeader() {
				response += `,"leader":true`
			} else {
				response += `,"leader":false`
			}
		}

		response += `}`
		_, _ = w.Write([]byte(response))
	})

	s.router.Get("/readyz", s.handleReady)

	s.router.Handle("/metrics", telemetry.Handler())

	s.api.Routes(s.router)
}

// handleReady reports whether the database answers. Load balancers use this
// to pull an instance out of rotation without killing open connections.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	sqlDB, err := s.db.DB()
	if err == nil {
		err = sqlDB.PingContext(ctx)
	}

	w.Header().Set("Content-Type", "application/json")
	if err != nil {
		s.logger.Warn().Err(err).Msg("readiness probe failed")
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"status":"unavailable"}`))
		return
	}

	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ready"}`))
}
