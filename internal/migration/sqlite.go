/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package migration

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"time"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
	"github.com/rs/zerolog"

	"github.com/friendsincode/verdandi/internal/presets"
)

// SQLiteImporter migrates presets from a legacy SQLite database file.
type SQLiteImporter struct {
	presets *presets.Service
	logger  zerolog.Logger
}

// NewSQLiteImporter creates a new SQLite importer.
func NewSQLiteImporter(presetSvc *presets.Service, logger zerolog.Logger) *SQLiteImporter {
	return &SQLiteImporter{
		presets: presetSvc,
		logger:  logger.With().Str("component", "sqlite_importer").Logger(),
	}
}

// Validate checks if the SQLite database exists and is readable.
func (i *SQLiteImporter) Validate(ctx context.Context, options Options) error {
	var errs ValidationErrors

	if options.SQLitePath == "" {
		errs = append(errs, ValidationError{
			Field:   "sqlite_path",
			Message: "SQLite database path is required",
		})
	}
	if options.Table != "" && !identPattern.MatchString(options.Table) {
		errs = append(errs, ValidationError{
			Field:   "table",
			Message: "table must be a plain SQL identifier",
		})
	}
	if len(errs) > 0 {
		return errs
	}

	if _, err := os.Stat(options.SQLitePath); err != nil {
		return fmt.Errorf("stat database: %w", err)
	}

	db, err := i.open(options.SQLitePath)
	if err != nil {
		return err
	}
	defer db.Close()

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		return fmt.Errorf("open database: %w", err)
	}

	i.logger.Info().Str("path", options.SQLitePath).Msg("validated SQLite source")
	return nil
}

// Analyze performs a dry-run analysis of the migration.
func (i *SQLiteImporter) Analyze(ctx context.Context, options Options) (*Result, error) {
	options.DryRun = true
	return i.run(ctx, options)
}

// Import performs the migration from the SQLite database.
func (i *SQLiteImporter) Import(ctx context.Context, options Options) (*Result, error) {
	return i.run(ctx, options)
}

// open opens the source read-only. A plain open would create an empty
// database at a mistyped path and report zero windows instead of failing.
func (i *SQLiteImporter) open(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", "file:"+path+"?mode=ro")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	return db, nil
}

func (i *SQLiteImporter) run(ctx context.Context, options Options) (*Result, error) {
	if err := i.Validate(ctx, options); err != nil {
		return nil, err
	}

	start := time.Now()
	result := newResult()

	db, err := i.open(options.SQLitePath)
	if err != nil {
		return nil, err
	}
	defer db.Close()

	windows, err := i.fetchWindows(ctx, db, tableOrDefault(options), result)
	if err != nil {
		return nil, err
	}

	up := &upserter{presets: i.presets, logger: i.logger}
	if err := up.apply(ctx, windows, options, result); err != nil {
		return nil, err
	}

	i.logger.Info().
		Bool("dry_run", options.DryRun).
		Int("created", result.PresetsCreated).
		Int("updated", result.PresetsUpdated).
		Msg("SQLite migration complete")
	return finish(result, start), nil
}

func (i *SQLiteImporter) fetchWindows(ctx context.Context, db *sql.DB, table string, result *Result) ([]legacyWindow, error) {
	query := fmt.Sprintf(`
		SELECT name, grouping, tz_offset_min, extend_start, extend_stop
		FROM %s
		ORDER BY name`, table)

	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", table, err)
	}
	defer rows.Close()

	var windows []legacyWindow
	for rows.Next() {
		var (
			w           legacyWindow
			tzOffsetMin sql.NullInt64
			extendBegin sql.NullBool
			extendEnd   sql.NullBool
		)
		if err := rows.Scan(&w.Name, &w.Grouping, &tzOffsetMin, &extendBegin, &extendEnd); err != nil {
			i.logger.Warn().Err(err).Msg("failed to scan legacy window")
			result.Skipped["scan_error"]++
			result.Warnings = append(result.Warnings, fmt.Sprintf("scan window: %v", err))
			continue
		}
		w.TzOffsetMin = int(tzOffsetMin.Int64)
		// Extension was the legacy default; NULL means enabled.
		w.ExtendBegin = !extendBegin.Valid || extendBegin.Bool
		w.ExtendEnd = !extendEnd.Valid || extendEnd.Bool
		windows = append(windows, w)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate windows: %w", err)
	}

	i.logger.Info().Int("count", len(windows)).Msg("fetched legacy windows")
	return windows, nil
}
