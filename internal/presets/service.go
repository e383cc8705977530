/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package presets manages stored interval generator configurations.
package presets

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/friendsincode/verdandi/internal/cache"
	"github.com/friendsincode/verdandi/internal/events"
	"github.com/friendsincode/verdandi/internal/models"
	"github.com/friendsincode/verdandi/internal/telemetry"
	"github.com/friendsincode/verdandi/interval"
)

// ErrNotFound is returned when a preset doesn't exist.
var ErrNotFound = errors.New("preset not found")

// ErrNameExists is returned when a preset name is already taken.
var ErrNameExists = errors.New("preset name already exists")

// ErrInvalidPreset is returned when a preset fails validation.
var ErrInvalidPreset = errors.New("invalid preset")

// Publisher is the slice of the event bus the service needs.
type Publisher interface {
	Publish(eventType events.EventType, payload events.Payload)
}

// Service handles preset CRUD and interval generation.
type Service struct {
	db     *gorm.DB
	bus    Publisher
	cache  *cache.Cache
	logger zerolog.Logger
}

// NewService creates a preset service. cache may be nil when caching is off.
func NewService(db *gorm.DB, bus Publisher, cch *cache.Cache, logger zerolog.Logger) *Service {
	return &Service{
		db:     db,
		bus:    bus,
		cache:  cch,
		logger: logger.With().Str("component", "presets").Logger(),
	}
}

// Create validates and stores a new preset. Fills ID and defaults in place.
func (s *Service) Create(ctx context.Context, preset *models.Preset) error {
	applyDefaults(preset)
	if err := validate(preset); err != nil {
		return err
	}

	if preset.ID == "" {
		preset.ID = uuid.NewString()
	}

	var existing models.Preset
	err := s.db.WithContext(ctx).Where("name = ?", preset.Name).First(&existing).Error
	if err == nil {
		return ErrNameExists
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("query preset by name: %w", err)
	}

	if err := s.db.WithContext(ctx).Create(preset).Error; err != nil {
		return fmt.Errorf("create preset: %w", err)
	}

	s.invalidate(ctx, preset.ID)
	s.publish(events.EventPresetCreated, preset)

	s.logger.Info().Str("preset_id", preset.ID).Str("name", preset.Name).Msg("preset created")
	return nil
}

// Get retrieves a preset by ID, read-through cached.
func (s *Service) Get(ctx context.Context, presetID string) (*models.Preset, error) {
	if s.cache != nil {
		if cached, ok := s.cache.GetPreset(ctx, presetID); ok {
			return fromCached(cached), nil
		}
	}

	var preset models.Preset
	err := s.db.WithContext(ctx).First(&preset, "id = ?", presetID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query preset: %w", err)
	}

	if s.cache != nil {
		_ = s.cache.SetPreset(ctx, toCached(&preset))
	}
	return &preset, nil
}

// GetByName retrieves a preset by its unique name.
func (s *Service) GetByName(ctx context.Context, name string) (*models.Preset, error) {
	var preset models.Preset
	err := s.db.WithContext(ctx).Where("name = ?", name).First(&preset).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query preset by name: %w", err)
	}
	return &preset, nil
}

// List returns all presets ordered by name, read-through cached.
func (s *Service) List(ctx context.Context) ([]models.Preset, error) {
	if s.cache != nil {
		if cached, ok := s.cache.GetPresetList(ctx); ok {
			presets := make([]models.Preset, 0, len(cached))
			for i := range cached {
				presets = append(presets, *fromCached(&cached[i]))
			}
			return presets, nil
		}
	}

	var presets []models.Preset
	if err := s.db.WithContext(ctx).Order("name ASC").Find(&presets).Error; err != nil {
		return nil, fmt.Errorf("list presets: %w", err)
	}

	if s.cache != nil {
		cached := make([]cache.CachedPreset, 0, len(presets))
		for i := range presets {
			cached = append(cached, *toCached(&presets[i]))
		}
		_ = s.cache.SetPresetList(ctx, cached)
	}
	return presets, nil
}

// Patch carries partial preset updates; nil fields stay untouched.
type Patch struct {
	Name              *string `json:"name"`
	Description       *string `json:"description"`
	Grouping          *string `json:"grouping"`
	Precision         *string `json:"precision"`
	OffsetWestSeconds *int    `json:"offset_west_seconds"`
	ExtendBegin       *bool   `json:"extend_begin"`
	ExtendEnd         *bool   `json:"extend_end"`
	FeedLookbackDays  *int    `json:"feed_lookback_days"`
	FeedHorizonDays   *int    `json:"feed_horizon_days"`
}

// Update applies a patch to a preset.
func (s *Service) Update(ctx context.Context, presetID string, patch Patch) (*models.Preset, error) {
	var preset models.Preset
	err := s.db.WithContext(ctx).First(&preset, "id = ?", presetID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query preset: %w", err)
	}

	if patch.Name != nil && *patch.Name != preset.Name {
		var existing models.Preset
		err := s.db.WithContext(ctx).Where("name = ? AND id <> ?", *patch.Name, presetID).First(&existing).Error
		if err == nil {
			return nil, ErrNameExists
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("query preset by name: %w", err)
		}
		preset.Name = *patch.Name
	}
	if patch.Description != nil {
		preset.Description = *patch.Description
	}
	if patch.Grouping != nil {
		preset.Grouping = *patch.Grouping
	}
	if patch.Precision != nil {
		preset.Precision = *patch.Precision
	}
	if patch.OffsetWestSeconds != nil {
		preset.OffsetWestSeconds = *patch.OffsetWestSeconds
	}
	if patch.ExtendBegin != nil {
		preset.ExtendBegin = *patch.ExtendBegin
	}
	if patch.ExtendEnd != nil {
		preset.ExtendEnd = *patch.ExtendEnd
	}
	if patch.FeedLookbackDays != nil {
		preset.FeedLookbackDays = *patch.FeedLookbackDays
	}
	if patch.FeedHorizonDays != nil {
		preset.FeedHorizonDays = *patch.FeedHorizonDays
	}

	if err := validate(&preset); err != nil {
		return nil, err
	}

	if err := s.db.WithContext(ctx).Save(&preset).Error; err != nil {
		return nil, fmt.Errorf("update preset: %w", err)
	}

	s.invalidate(ctx, preset.ID)
	s.publish(events.EventPresetUpdated, &preset)

	s.logger.Info().Str("preset_id", preset.ID).Msg("preset updated")
	return &preset, nil
}

// Delete removes a preset.
func (s *Service) Delete(ctx context.Context, presetID string) error {
	var preset models.Preset
	err := s.db.WithContext(ctx).First(&preset, "id = ?", presetID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("query preset: %w", err)
	}

	if err := s.db.WithContext(ctx).Delete(&preset).Error; err != nil {
		return fmt.Errorf("delete preset: %w", err)
	}

	s.invalidate(ctx, presetID)
	s.publish(events.EventPresetDeleted, &preset)

	s.logger.Info().Str("preset_id", presetID).Str("name", preset.Name).Msg("preset deleted")
	return nil
}

// GenerateForPreset runs the preset's generator over [from, to).
func (s *Service) GenerateForPreset(ctx context.Context, preset *models.Preset, from, to time.Time) ([]interval.Interval, error) {
	gen, err := preset.Generator()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPreset, err)
	}

	start := time.Now()
	intervals := gen.Intervals(from, to)

	telemetry.IntervalGenerationDuration.WithLabelValues(preset.Grouping).Observe(time.Since(start).Seconds())
	telemetry.IntervalsGeneratedTotal.WithLabelValues(preset.Grouping).Add(float64(len(intervals)))

	return intervals, nil
}

func (s *Service) invalidate(ctx context.Context, presetID string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.InvalidatePreset(ctx, presetID); err != nil {
		s.logger.Debug().Err(err).Str("preset_id", presetID).Msg("cache invalidation failed")
	}
}

func (s *Service) publish(eventType events.EventType, preset *models.Preset) {
	if s.bus == nil {
		return
	}
	s.bus.Publish(eventType, events.Payload{
		"id":   preset.ID,
		"name": preset.Name,
	})
}

func applyDefaults(preset *models.Preset) {
	if preset.Grouping == "" {
		preset.Grouping = interval.PerDay.String()
	}
	if preset.Precision == "" {
		preset.Precision = "1ms"
	}
	if preset.FeedLookbackDays == 0 {
		preset.FeedLookbackDays = 7
	}
	if preset.FeedHorizonDays == 0 {
		preset.FeedHorizonDays = 35
	}
}

// validate checks the preset and normalizes the grouping spelling.
func validate(preset *models.Preset) error {
	if strings.TrimSpace(preset.Name) == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidPreset)
	}

	grouping, err := interval.ParseGrouping(preset.Grouping)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPreset, err)
	}
	preset.Grouping = grouping.String()

	if preset.Precision != "" {
		precision, err := time.ParseDuration(preset.Precision)
		if err != nil {
			return fmt.Errorf("%w: precision: %v", ErrInvalidPreset, err)
		}
		if precision <= 0 {
			return fmt.Errorf("%w: precision must be positive", ErrInvalidPreset)
		}
	}

	if preset.FeedLookbackDays < 0 || preset.FeedHorizonDays < 0 {
		return fmt.Errorf("%w: feed window days must not be negative", ErrInvalidPreset)
	}

	return nil
}

func toCached(preset *models.Preset) *cache.CachedPreset {
	return &cache.CachedPreset{
		ID:                preset.ID,
		Name:              preset.Name,
		Description:       preset.Description,
		Grouping:          preset.Grouping,
		Precision:         preset.Precision,
		OffsetWestSeconds: preset.OffsetWestSeconds,
		ExtendBegin:       preset.ExtendBegin,
		ExtendEnd:         preset.ExtendEnd,
		FeedLookbackDays:  preset.FeedLookbackDays,
		FeedHorizonDays:   preset.FeedHorizonDays,
		CreatedAt:         preset.CreatedAt,
		UpdatedAt:         preset.UpdatedAt,
	}
}

func fromCached(cached *cache.CachedPreset) *models.Preset {
	return &models.Preset{
		ID:                cached.ID,
		Name:              cached.Name,
		Description:       cached.Description,
		Grouping:          cached.Grouping,
		Precision:         cached.Precision,
		OffsetWestSeconds: cached.OffsetWestSeconds,
		ExtendBegin:       cached.ExtendBegin,
		ExtendEnd:         cached.ExtendEnd,
		FeedLookbackDays:  cached.FeedLookbackDays,
		FeedHorizonDays:   cached.FeedHorizonDays,
		CreatedAt:         cached.CreatedAt,
		UpdatedAt:         cached.UpdatedAt,
	}
}
