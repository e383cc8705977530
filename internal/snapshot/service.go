/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package snapshot manages export jobs and runs them: generate a preset's
// intervals over a rolling window, render the configured format and store
// the artifact as an object plus a Snapshot row.
package snapshot

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/friendsincode/verdandi/internal/events"
	"github.com/friendsincode/verdandi/internal/export"
	"github.com/friendsincode/verdandi/internal/models"
	"github.com/friendsincode/verdandi/internal/presets"
	"github.com/friendsincode/verdandi/internal/storage"
	"github.com/friendsincode/verdandi/internal/telemetry"
)

// ErrJobNotFound is returned when an export job ID matches nothing.
var ErrJobNotFound = errors.New("export job not found")

// ErrSnapshotNotFound is returned when a snapshot ID matches nothing.
var ErrSnapshotNotFound = errors.New("snapshot not found")

// ErrInvalidJob is returned for jobs that fail validation.
var ErrInvalidJob = errors.New("invalid export job")

// lookback is how far behind now each run's window starts.
const lookback = 24 * time.Hour

// Publisher is the event bus surface the service needs.
type Publisher interface {
	Publish(eventType events.EventType, payload events.Payload)
}

// Service runs the export pipeline.
type Service struct {
	db      *gorm.DB
	presets *presets.Service
	store   storage.ObjectStore
	bus     Publisher
	logger  zerolog.Logger
}

// NewService wires the pipeline dependencies. bus may be nil.
func NewService(db *gorm.DB, presetSvc *presets.Service, store storage.ObjectStore, bus Publisher, logger zerolog.Logger) *Service {
	return &Service{
		db:      db,
		presets: presetSvc,
		store:   store,
		bus:     bus,
		logger:  logger.With().Str("component", "snapshot").Logger(),
	}
}

// CreateJob validates and stores a new export job.
func (s *Service) CreateJob(ctx context.Context, job *models.ExportJob) error {
	applyJobDefaults(job)
	if err := s.validateJob(ctx, job); err != nil {
		return err
	}

	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	if err := s.db.WithContext(ctx).Omit("Preset").Create(job).Error; err != nil {
		return fmt.Errorf("create export job: %w", err)
	}

	s.logger.Info().
		Str("job_id", job.ID).
		Str("name", job.Name).
		Str("schedule", job.Schedule).
		Msg("export job created")
	return nil
}

// GetJob retrieves a job with its preset preloaded.
func (s *Service) GetJob(ctx context.Context, jobID string) (*models.ExportJob, error) {
	var job models.ExportJob
	err := s.db.WithContext(ctx).Preload("Preset").First(&job, "id = ?", jobID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrJobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query export job: %w", err)
	}
	return &job, nil
}

// ListJobs returns all jobs ordered by name.
func (s *Service) ListJobs(ctx context.Context) ([]models.ExportJob, error) {
	var jobs []models.ExportJob
	if err := s.db.WithContext(ctx).Order("name ASC").Find(&jobs).Error; err != nil {
		return nil, fmt.Errorf("query export jobs: %w", err)
	}
	return jobs, nil
}

// EnabledJobs returns the jobs the scheduler should register.
func (s *Service) EnabledJobs(ctx context.Context) ([]models.ExportJob, error) {
	var jobs []models.ExportJob
	if err := s.db.WithContext(ctx).Where("enabled = ?", true).Find(&jobs).Error; err != nil {
		return nil, fmt.Errorf("query enabled export jobs: %w", err)
	}
	return jobs, nil
}

// JobPatch holds the optional fields of a job update.
type JobPatch struct {
	Name       *string `json:"name"`
	PresetID   *string `json:"preset_id"`
	Schedule   *string `json:"schedule"`
	Format     *string `json:"format"`
	WindowDays *int    `json:"window_days"`
	Enabled    *bool   `json:"enabled"`
}

// UpdateJob applies a partial update, revalidating the result.
func (s *Service) UpdateJob(ctx context.Context, jobID string, patch JobPatch) (*models.ExportJob, error) {
	job, err := s.GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}

	if patch.Name != nil {
		job.Name = *patch.Name
	}
	if patch.PresetID != nil {
		job.PresetID = *patch.PresetID
		job.Preset = models.Preset{}
	}
	if patch.Schedule != nil {
		job.Schedule = *patch.Schedule
	}
	if patch.Format != nil {
		job.Format = models.ExportFormat(*patch.Format)
	}
	if patch.WindowDays != nil {
		job.WindowDays = *patch.WindowDays
	}
	if patch.Enabled != nil {
		job.Enabled = *patch.Enabled
	}

	if err := s.validateJob(ctx, job); err != nil {
		return nil, err
	}
	if err := s.db.WithContext(ctx).Omit("Preset").Save(job).Error; err != nil {
		return nil, fmt.Errorf("update export job: %w", err)
	}

	s.logger.Info().Str("job_id", jobID).Msg("export job updated")
	return job, nil
}

// DeleteJob removes a job and its snapshot records. Stored objects are kept.
func (s *Service) DeleteJob(ctx context.Context, jobID string) error {
	var job models.ExportJob
	err := s.db.WithContext(ctx).First(&job, "id = ?", jobID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrJobNotFound
	}
	if err != nil {
		return fmt.Errorf("query export job: %w", err)
	}

	if err := s.db.WithContext(ctx).Where("job_id = ?", jobID).Delete(&models.Snapshot{}).Error; err != nil {
		return fmt.Errorf("delete snapshots: %w", err)
	}
	if err := s.db.WithContext(ctx).Delete(&job).Error; err != nil {
		return fmt.Errorf("delete export job: %w", err)
	}

	s.logger.Info().Str("job_id", jobID).Str("name", job.Name).Msg("export job deleted")
	return nil
}

// Snapshots lists a job's snapshots, newest first.
func (s *Service) Snapshots(ctx context.Context, jobID string) ([]models.Snapshot, error) {
	var snapshots []models.Snapshot
	err := s.db.WithContext(ctx).
		Where("job_id = ?", jobID).
		Order("created_at DESC").
		Find(&snapshots).Error
	if err != nil {
		return nil, fmt.Errorf("query snapshots: %w", err)
	}
	return snapshots, nil
}

// GetSnapshot retrieves one snapshot record.
func (s *Service) GetSnapshot(ctx context.Context, snapshotID string) (*models.Snapshot, error) {
	var snapshot models.Snapshot
	err := s.db.WithContext(ctx).First(&snapshot, "id = ?", snapshotID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrSnapshotNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query snapshot: %w", err)
	}
	return &snapshot, nil
}

// Open streams a snapshot's stored artifact.
func (s *Service) Open(ctx context.Context, snapshotID string) (*models.Snapshot, []byte, error) {
	snapshot, err := s.GetSnapshot(ctx, snapshotID)
	if err != nil {
		return nil, nil, err
	}
	data, err := s.store.Get(ctx, snapshot.ObjectKey)
	if err != nil {
		return nil, nil, fmt.Errorf("load snapshot object: %w", err)
	}
	return snapshot, data, nil
}

// Run executes one export: generate the preset's intervals over
// [now - lookback, now + window], render, store, record.
func (s *Service) Run(ctx context.Context, jobID string) (*models.Snapshot, error) {
	job, err := s.GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}

	start := time.Now().UTC()
	windowDays := job.WindowDays
	if windowDays <= 0 {
		windowDays = 35
	}
	from := start.Add(-lookback)
	to := start.AddDate(0, 0, windowDays)

	intervals, err := s.presets.GenerateForPreset(ctx, &job.Preset, from, to)
	if err != nil {
		return nil, s.fail(ctx, job, "generate", err)
	}

	result, err := export.Render(job.Format, &job.Preset, intervals, from, to)
	if err != nil {
		return nil, s.fail(ctx, job, "render", err)
	}

	key := fmt.Sprintf("exports/%s/%s/%s.%s",
		export.Slugify(job.Preset.Name),
		job.ID,
		start.Format("20060102T150405Z"),
		job.Format)
	if err := s.store.Put(ctx, key, result.Data); err != nil {
		return nil, s.fail(ctx, job, "store", err)
	}

	snapshot := &models.Snapshot{
		ID:            uuid.NewString(),
		JobID:         job.ID,
		ObjectKey:     key,
		Format:        job.Format,
		IntervalCount: len(intervals),
		ByteSize:      int64(len(result.Data)),
		TookMS:        time.Since(start).Milliseconds(),
	}
	if err := s.db.WithContext(ctx).Create(snapshot).Error; err != nil {
		return nil, s.fail(ctx, job, "record", err)
	}

	s.recordRun(ctx, job, "ok", "")
	telemetry.ExportRunsTotal.WithLabelValues(string(job.Format), "ok").Inc()
	s.publish(events.EventExportCompleted, events.Payload{
		"job_id":      job.ID,
		"snapshot_id": snapshot.ID,
		"object_key":  key,
		"format":      string(job.Format),
		"intervals":   len(intervals),
	})

	s.logger.Info().
		Str("job_id", job.ID).
		Str("object_key", key).
		Int("intervals", len(intervals)).
		Int64("bytes", snapshot.ByteSize).
		Msg("export completed")
	return snapshot, nil
}

// fail records a pipeline failure and returns the wrapped error.
func (s *Service) fail(ctx context.Context, job *models.ExportJob, stage string, err error) error {
	telemetry.ExportErrorsTotal.WithLabelValues(stage).Inc()
	telemetry.ExportRunsTotal.WithLabelValues(string(job.Format), "error").Inc()

	s.recordRun(ctx, job, "error", err.Error())
	s.publish(events.EventExportFailed, events.Payload{
		"job_id": job.ID,
		"stage":  stage,
		"error":  err.Error(),
	})

	s.logger.Error().
		Err(err).
		Str("job_id", job.ID).
		Str("stage", stage).
		Msg("export failed")
	return fmt.Errorf("%s: %w", stage, err)
}

// recordRun updates the job's last-run bookkeeping. A map update clears
// last_error on success.
func (s *Service) recordRun(ctx context.Context, job *models.ExportJob, status, errMsg string) {
	now := time.Now().UTC()
	err := s.db.WithContext(ctx).Model(job).Updates(map[string]any{
		"last_run_at": now,
		"last_status": status,
		"last_error":  errMsg,
	}).Error
	if err != nil {
		s.logger.Error().Err(err).Str("job_id", job.ID).Msg("record export run failed")
	}
}

func (s *Service) publish(eventType events.EventType, payload events.Payload) {
	if s.bus == nil {
		return
	}
	s.bus.Publish(eventType, payload)
}

func applyJobDefaults(job *models.ExportJob) {
	if job.Format == "" {
		job.Format = models.FormatICS
	}
	if job.WindowDays == 0 {
		job.WindowDays = 35
	}
}

// validateJob checks the job fields and that the referenced preset exists.
func (s *Service) validateJob(ctx context.Context, job *models.ExportJob) error {
	if strings.TrimSpace(job.Name) == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidJob)
	}
	if job.PresetID == "" {
		return fmt.Errorf("%w: preset_id is required", ErrInvalidJob)
	}
	if _, err := s.presets.Get(ctx, job.PresetID); err != nil {
		if errors.Is(err, presets.ErrNotFound) {
			return fmt.Errorf("%w: preset %s not found", ErrInvalidJob, job.PresetID)
		}
		return err
	}
	if _, err := cron.ParseStandard(job.Schedule); err != nil {
		return fmt.Errorf("%w: schedule: %v", ErrInvalidJob, err)
	}
	if !models.ValidExportFormat(string(job.Format)) {
		return fmt.Errorf("%w: unsupported format %q", ErrInvalidJob, job.Format)
	}
	if job.WindowDays < 0 {
		return fmt.Errorf("%w: window days must not be negative", ErrInvalidJob)
	}
	return nil
}
