/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package migration imports presets from legacy report-window databases.
// Importers read the old schema over database/sql and upsert presets by
// name through the preset service, so imported rows get the same validation
// and events as API writes.
package migration

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/friendsincode/verdandi/internal/models"
	"github.com/friendsincode/verdandi/internal/presets"
)

// DefaultTable is the legacy table importers read when none is configured.
const DefaultTable = "report_windows"

// Options contains migration-specific configuration.
type Options struct {
	// PostgresDSN selects the Postgres source (direct database access).
	PostgresDSN string `json:"postgres_dsn,omitempty"`

	// SQLitePath selects the SQLite source (a legacy schedules.db file).
	SQLitePath string `json:"sqlite_path,omitempty"`

	// Table holding the legacy windows. Defaults to report_windows.
	Table string `json:"table,omitempty"`

	// DryRun reports what would change without writing.
	DryRun bool `json:"dry_run"`
}

// Result contains the final migration counts.
type Result struct {
	PresetsCreated  int            `json:"presets_created"`
	PresetsUpdated  int            `json:"presets_updated"`
	Skipped         map[string]int `json:"skipped,omitempty"`
	Warnings        []string       `json:"warnings,omitempty"`
	DurationSeconds float64        `json:"duration_seconds"`
}

// Importer defines the interface for migration importers.
type Importer interface {
	// Validate checks if the migration can proceed with the given options.
	Validate(ctx context.Context, options Options) error

	// Analyze performs a dry-run analysis without making changes.
	Analyze(ctx context.Context, options Options) (*Result, error)

	// Import performs the actual migration.
	Import(ctx context.Context, options Options) (*Result, error)
}

// ValidationError represents a validation error with details.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (e ValidationError) Error() string {
	return e.Field + ": " + e.Message
}

// ValidationErrors represents multiple validation errors.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return "validation failed"
	}
	return e[0].Error()
}

// identPattern limits the configurable table name to a plain SQL
// identifier, since table names cannot be bound as query parameters.
var identPattern = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// legacyWindow is one row of the legacy report_windows table.
//
// The old system stored conventional UTC offsets (minutes, positive east);
// the generator wants seconds west, so the sign flips on import. Extension
// flags were nullable with enabled semantics, matching today's defaults.
type legacyWindow struct {
	Name        string
	Grouping    string
	TzOffsetMin int
	ExtendBegin bool
	ExtendEnd   bool
}

// mapLegacyGrouping translates the spellings the old system used. Returns
// empty for groupings that have no equivalent.
func mapLegacyGrouping(s string) string {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "daily", "day", "per_day":
		return "per_day"
	case "weekly", "week", "per_week":
		return "per_week"
	case "monthly", "month", "per_month":
		return "per_month"
	default:
		return ""
	}
}

// upserter applies fetched legacy windows through the preset service.
type upserter struct {
	presets *presets.Service
	logger  zerolog.Logger
}

// apply upserts the fetched windows by name and fills the result counts.
func (u *upserter) apply(ctx context.Context, windows []legacyWindow, options Options, result *Result) error {
	for _, w := range windows {
		grouping := mapLegacyGrouping(w.Grouping)
		if grouping == "" {
			result.Skipped["unknown_grouping"]++
			result.Warnings = append(result.Warnings,
				fmt.Sprintf("window %q: unknown grouping %q", w.Name, w.Grouping))
			continue
		}

		offsetWest := -w.TzOffsetMin * 60

		existing, err := u.presets.GetByName(ctx, w.Name)
		switch {
		case err == nil:
			if !options.DryRun {
				if _, err := u.presets.Update(ctx, existing.ID, presets.Patch{
					Grouping:          &grouping,
					OffsetWestSeconds: &offsetWest,
					ExtendBegin:       &w.ExtendBegin,
					ExtendEnd:         &w.ExtendEnd,
				}); err != nil {
					result.Skipped["update_failed"]++
					result.Warnings = append(result.Warnings,
						fmt.Sprintf("window %q: update: %v", w.Name, err))
					continue
				}
			}
			result.PresetsUpdated++
			u.logger.Debug().Str("name", w.Name).Msg("legacy window updated existing preset")

		case errors.Is(err, presets.ErrNotFound):
			if !options.DryRun {
				preset := &models.Preset{
					Name:              w.Name,
					Grouping:          grouping,
					OffsetWestSeconds: offsetWest,
					ExtendBegin:       w.ExtendBegin,
					ExtendEnd:         w.ExtendEnd,
				}
				if err := u.presets.Create(ctx, preset); err != nil {
					result.Skipped["create_failed"]++
					result.Warnings = append(result.Warnings,
						fmt.Sprintf("window %q: create: %v", w.Name, err))
					continue
				}
			}
			result.PresetsCreated++
			u.logger.Debug().Str("name", w.Name).Msg("legacy window created preset")

		default:
			return fmt.Errorf("look up preset %q: %w", w.Name, err)
		}
	}
	return nil
}

// newResult returns an empty result with its maps ready.
func newResult() *Result {
	return &Result{Skipped: make(map[string]int)}
}

// finish stamps the elapsed time on a result.
func finish(result *Result, start time.Time) *Result {
	result.DurationSeconds = time.Since(start).Seconds()
	return result
}

// tableOrDefault resolves the legacy table name.
func tableOrDefault(options Options) string {
	if options.Table == "" {
		return DefaultTable
	}
	return options.Table
}
