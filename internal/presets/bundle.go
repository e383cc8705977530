/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package presets

import (
	"context"
	"errors"
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/friendsincode/verdandi/internal/models"
)

// bundleVersion guards against future format changes.
const bundleVersion = 1

// Bundle is the YAML exchange format for preset collections.
type Bundle struct {
	Version int            `yaml:"version"`
	Presets []BundlePreset `yaml:"presets"`
}

// BundlePreset is one preset in a bundle. IDs are deliberately absent;
// bundles address presets by name so they port across deployments.
type BundlePreset struct {
	Name              string `yaml:"name"`
	Description       string `yaml:"description,omitempty"`
	Grouping          string `yaml:"grouping"`
	Precision         string `yaml:"precision"`
	OffsetWestSeconds int    `yaml:"offset_west_seconds"`
	ExtendBegin       *bool  `yaml:"extend_begin"`
	ExtendEnd         *bool  `yaml:"extend_end"`
	FeedLookbackDays  int    `yaml:"feed_lookback_days"`
	FeedHorizonDays   int    `yaml:"feed_horizon_days"`
}

// orTrue materializes an optional bundle flag. Hand-written bundles that
// omit an extension flag get the enabled default.
func orTrue(v *bool) bool {
	if v == nil {
		return true
	}
	return *v
}

// ImportResult summarizes a bundle import.
type ImportResult struct {
	Total   int      `json:"total"`
	Created int      `json:"created"`
	Updated int      `json:"updated"`
	Invalid int      `json:"invalid"`
	DryRun  bool     `json:"dry_run"`
	Errors  []string `json:"errors,omitempty"`
}

// ExportBundle serializes all presets to YAML, ordered by name so repeated
// exports of the same data are byte-identical.
func (s *Service) ExportBundle(ctx context.Context) ([]byte, error) {
	var presets []models.Preset
	if err := s.db.WithContext(ctx).Order("name ASC").Find(&presets).Error; err != nil {
		return nil, fmt.Errorf("list presets: %w", err)
	}

	bundle := Bundle{Version: bundleVersion}
	for i := range presets {
		p := &presets[i]
		bundle.Presets = append(bundle.Presets, BundlePreset{
			Name:              p.Name,
			Description:       p.Description,
			Grouping:          p.Grouping,
			Precision:         p.Precision,
			OffsetWestSeconds: p.OffsetWestSeconds,
			ExtendBegin:       &p.ExtendBegin,
			ExtendEnd:         &p.ExtendEnd,
			FeedLookbackDays:  p.FeedLookbackDays,
			FeedHorizonDays:   p.FeedHorizonDays,
		})
	}

	return yaml.Marshal(&bundle)
}

// ImportBundle upserts presets from a YAML bundle, matching by name. With
// dryRun the result reports what would happen without writing anything.
func (s *Service) ImportBundle(ctx context.Context, data []byte, dryRun bool) (*ImportResult, error) {
	var bundle Bundle
	if err := yaml.Unmarshal(data, &bundle); err != nil {
		return nil, fmt.Errorf("parse bundle: %w", err)
	}
	if bundle.Version != bundleVersion {
		return nil, fmt.Errorf("unsupported bundle version %d", bundle.Version)
	}

	result := &ImportResult{Total: len(bundle.Presets), DryRun: dryRun}

	for _, entry := range bundle.Presets {
		preset := models.Preset{
			Name:              entry.Name,
			Description:       entry.Description,
			Grouping:          entry.Grouping,
			Precision:         entry.Precision,
			OffsetWestSeconds: entry.OffsetWestSeconds,
			ExtendBegin:       orTrue(entry.ExtendBegin),
			ExtendEnd:         orTrue(entry.ExtendEnd),
			FeedLookbackDays:  entry.FeedLookbackDays,
			FeedHorizonDays:   entry.FeedHorizonDays,
		}
		applyDefaults(&preset)
		if err := validate(&preset); err != nil {
			result.Invalid++
			result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", entry.Name, err))
			continue
		}

		existing, err := s.GetByName(ctx, preset.Name)
		switch {
		case err == nil:
			result.Updated++
			if dryRun {
				continue
			}
			if _, err := s.Update(ctx, existing.ID, patchFromBundle(entry)); err != nil {
				result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", entry.Name, err))
			}

		case errors.Is(err, ErrNotFound):
			result.Created++
			if dryRun {
				continue
			}
			if err := s.Create(ctx, &preset); err != nil {
				result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", entry.Name, err))
			}

		default:
			return nil, err
		}
	}

	s.logger.Info().
		Int("total", result.Total).
		Int("created", result.Created).
		Int("updated", result.Updated).
		Int("invalid", result.Invalid).
		Bool("dry_run", dryRun).
		Msg("bundle import finished")

	return result, nil
}

func patchFromBundle(entry BundlePreset) Patch {
	extendBegin := orTrue(entry.ExtendBegin)
	extendEnd := orTrue(entry.ExtendEnd)
	return Patch{
		Description:       &entry.Description,
		Grouping:          &entry.Grouping,
		Precision:         &entry.Precision,
		OffsetWestSeconds: &entry.OffsetWestSeconds,
		ExtendBegin:       &extendBegin,
		ExtendEnd:         &extendEnd,
		FeedLookbackDays:  &entry.FeedLookbackDays,
		FeedHorizonDays:   &entry.FeedHorizonDays,
	}
}
