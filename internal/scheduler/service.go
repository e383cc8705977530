/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package scheduler drives scheduled export runs. A cron engine pinned to
// UTC carries one entry per enabled export job; preset mutations on the bus
// and a periodic health tick keep the entries in step with the database.
package scheduler

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/friendsincode/verdandi/internal/events"
	"github.com/friendsincode/verdandi/internal/models"
	"github.com/friendsincode/verdandi/internal/snapshot"
	"github.com/friendsincode/verdandi/internal/telemetry"
)

const (
	// healthTickInterval paces the reconcile loop. Job create/update/delete
	// has no bus event, so changes land within one tick.
	healthTickInterval = 30 * time.Second

	// runTimeout bounds a single export run.
	runTimeout = 5 * time.Minute
)

// EventSource is the subscription surface preset mutations arrive on.
type EventSource interface {
	Subscribe(eventType events.EventType) events.Subscriber
	Unsubscribe(eventType events.EventType, sub events.Subscriber)
}

// Service registers enabled export jobs with a cron engine and runs them.
type Service struct {
	exports *snapshot.Service
	bus     EventSource
	logger  zerolog.Logger

	mu      sync.Mutex
	cron    *cron.Cron
	entries map[string]cron.EntryID
	specs   map[string]string
}

// New constructs the export scheduler. bus may be nil, in which case only
// the health tick reconciles schedule changes.
func New(exports *snapshot.Service, bus EventSource, logger zerolog.Logger) *Service {
	return &Service{
		exports: exports,
		bus:     bus,
		logger:  logger.With().Str("component", "scheduler").Logger(),
		cron:    cron.New(cron.WithLocation(time.UTC)),
		entries: make(map[string]cron.EntryID),
		specs:   make(map[string]string),
	}
}

// Run executes the scheduler loop until the context is cancelled. In-flight
// export runs are allowed to finish before Run returns.
func (s *Service) Run(ctx context.Context) error {
	s.cron.Start()
	s.logger.Info().Msg("export scheduler started")

	if err := s.Reload(ctx); err != nil {
		s.logger.Error().Err(err).Msg("initial schedule load failed")
	}

	// Preset mutations can invalidate registered jobs, so they force an
	// immediate reload. A nil bus leaves the channels nil, which never fire.
	var created, updated, deleted events.Subscriber
	if s.bus != nil {
		created = s.bus.Subscribe(events.EventPresetCreated)
		updated = s.bus.Subscribe(events.EventPresetUpdated)
		deleted = s.bus.Subscribe(events.EventPresetDeleted)
		defer func() {
			s.bus.Unsubscribe(events.EventPresetCreated, created)
			s.bus.Unsubscribe(events.EventPresetUpdated, updated)
			s.bus.Unsubscribe(events.EventPresetDeleted, deleted)
		}()
	}

	ticker := time.NewTicker(healthTickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			stopped := s.cron.Stop()
			<-stopped.Done()
			s.logger.Info().Msg("export scheduler stopped")
			return ctx.Err()
		case ev := <-created:
			s.reloadFor(ctx, ev)
		case ev := <-updated:
			s.reloadFor(ctx, ev)
		case ev := <-deleted:
			s.reloadFor(ctx, ev)
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

func (s *Service) tick(ctx context.Context) {
	telemetry.SchedulerTicksTotal.Inc()
	if err := s.Reload(ctx); err != nil {
		s.logger.Error().Err(err).Msg("schedule reconcile failed")
	}
}

func (s *Service) reloadFor(ctx context.Context, ev events.Event) {
	s.logger.Debug().Str("event", string(ev.Type)).Msg("reloading export schedule")
	if err := s.Reload(ctx); err != nil {
		s.logger.Error().Err(err).Msg("schedule reload failed")
	}
}

// Reload replaces the registered cron entries with the currently enabled
// jobs. A reload with an unchanged job set is a no-op, so frequent
// reconciles do not churn the engine.
func (s *Service) Reload(ctx context.Context) error {
	jobs, err := s.exports.EnabledJobs(ctx)
	if err != nil {
		telemetry.SchedulerErrorsTotal.WithLabelValues("", "load_jobs").Inc()
		return fmt.Errorf("load enabled jobs: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.changed(jobs) {
		return nil
	}

	for jobID, entryID := range s.entries {
		s.cron.Remove(entryID)
		delete(s.entries, jobID)
		delete(s.specs, jobID)
	}

	for _, job := range jobs {
		jobID := job.ID
		entryID, err := s.cron.AddFunc(job.Schedule, func() { s.runJob(jobID) })
		if err != nil {
			// CreateJob validates schedules, so this only happens for rows
			// written outside the service. Skip them rather than fail the
			// whole reload.
			telemetry.SchedulerErrorsTotal.WithLabelValues(jobID, "register").Inc()
			s.logger.Error().
				Err(err).
				Str("job_id", jobID).
				Str("schedule", job.Schedule).
				Msg("failed to register export job")
			continue
		}
		s.entries[jobID] = entryID
		s.specs[jobID] = job.Schedule
	}

	telemetry.SchedulerJobsActive.Set(float64(len(s.entries)))
	s.logger.Info().Int("jobs", len(s.entries)).Msg("export schedule loaded")
	return nil
}

// changed reports whether the enabled job set differs from the registered
// entries. Caller holds s.mu.
func (s *Service) changed(jobs []models.ExportJob) bool {
	if len(jobs) != len(s.specs) {
		return true
	}
	for _, job := range jobs {
		if spec, ok := s.specs[job.ID]; !ok || spec != job.Schedule {
			return true
		}
	}
	return false
}

// Registered returns the IDs of the jobs currently held by the cron engine,
// sorted for stable output.
func (s *Service) Registered() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids := make([]string, 0, len(s.entries))
	for jobID := range s.entries {
		ids = append(ids, jobID)
	}
	sort.Strings(ids)
	return ids
}

// runJob executes one scheduled export. Runs get their own timeout rather
// than the loop context so a shutdown does not abort a render mid-write.
func (s *Service) runJob(jobID string) {
	ctx, cancel := context.WithTimeout(context.Background(), runTimeout)
	defer cancel()

	if _, err := s.exports.Run(ctx, jobID); err != nil {
		telemetry.SchedulerErrorsTotal.WithLabelValues(jobID, "run").Inc()
		s.logger.Error().Err(err).Str("job_id", jobID).Msg("scheduled export failed")
	}
}
