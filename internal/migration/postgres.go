/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package migration

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver
	"github.com/rs/zerolog"

	"github.com/friendsincode/verdandi/internal/presets"
)

// PostgresImporter migrates presets from a legacy Postgres database.
type PostgresImporter struct {
	presets *presets.Service
	logger  zerolog.Logger
}

// NewPostgresImporter creates a new Postgres importer.
func NewPostgresImporter(presetSvc *presets.Service, logger zerolog.Logger) *PostgresImporter {
	return &PostgresImporter{
		presets: presetSvc,
		logger:  logger.With().Str("component", "postgres_importer").Logger(),
	}
}

// Validate checks if the Postgres database is accessible.
func (i *PostgresImporter) Validate(ctx context.Context, options Options) error {
	var errs ValidationErrors

	if options.PostgresDSN == "" {
		errs = append(errs, ValidationError{
			Field:   "postgres_dsn",
			Message: "PostgreSQL connection string is required",
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

	db, err := sql.Open("postgres", options.PostgresDSN)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}

	i.logger.Info().Str("dsn", maskDSN(options.PostgresDSN)).Msg("validated Postgres source")
	return nil
}

// Analyze performs a dry-run analysis of the migration.
func (i *PostgresImporter) Analyze(ctx context.Context, options Options) (*Result, error) {
	options.DryRun = true
	return i.run(ctx, options)
}

// Import performs the migration from the Postgres database.
func (i *PostgresImporter) Import(ctx context.Context, options Options) (*Result, error) {
	return i.run(ctx, options)
}

func (i *PostgresImporter) run(ctx context.Context, options Options) (*Result, error) {
	if err := i.Validate(ctx, options); err != nil {
		return nil, err
	}

	start := time.Now()
	result := newResult()

	db, err := sql.Open("postgres", options.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
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
		Msg("Postgres migration complete")
	return finish(result, start), nil
}

// fetchWindows reads the legacy rows. Rows that fail to scan are counted
// and skipped rather than aborting the run.
func (i *PostgresImporter) fetchWindows(ctx context.Context, db *sql.DB, table string, result *Result) ([]legacyWindow, error) {
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

// maskDSN hides credentials in a connection string for logging.
func maskDSN(dsn string) string {
	if at := strings.LastIndex(dsn, "@"); at != -1 {
		if scheme := strings.Index(dsn, "://"); scheme != -1 && scheme+3 < at {
			return dsn[:scheme+3] + "***" + dsn[at:]
		}
	}
	return dsn
}
