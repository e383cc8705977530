/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package db

import (
	"fmt"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/friendsincode/verdandi/internal/models"
)

// Migrate applies database schema migrations using GORM auto-migrate.
func Migrate(database *gorm.DB, logger zerolog.Logger) error {
	if err := database.AutoMigrate(
		&models.User{},
		&models.SystemSettings{},
		&models.APIKey{},
		&models.Preset{},
		&models.ExportJob{},
		&models.Snapshot{},
	); err != nil {
		return err
	}

	if err := applyPostgresActiveKeyIndex(database); err != nil {
		return err
	}
	if err := normalizeLegacyGroupings(database, logger); err != nil {
		return err
	}

	logger.Info().Msg("database migrations applied")
	return nil
}

// applyPostgresActiveKeyIndex keeps API key validation fast without indexing
// rows that can never match. Other backends fall back to the full unique
// index on key_hash.
func applyPostgresActiveKeyIndex(database *gorm.DB) error {
	if database.Dialector.Name() != "postgres" {
		return nil
	}

	stmt := `
CREATE INDEX IF NOT EXISTS idx_api_keys_active
ON api_keys (key_hash)
WHERE revoked_at IS NULL;
`
	if err := database.Exec(stmt).Error; err != nil {
		return fmt.Errorf("apply postgres active key index: %w", err)
	}

	return nil
}

// normalizeLegacyGroupings rewrites grouping spellings written by older
// report tooling into the canonical per_* forms.
func normalizeLegacyGroupings(database *gorm.DB, logger zerolog.Logger) error {
	legacy := map[string]string{
		"daily":   "per_day",
		"weekly":  "per_week",
		"monthly": "per_month",
	}

	var total int64
	for old, canonical := range legacy {
		res := database.Exec(
			"UPDATE presets SET grouping = ? WHERE LOWER(TRIM(grouping)) = ?",
			canonical, old,
		)
		if res.Error != nil {
			return fmt.Errorf("normalize legacy grouping %q: %w", old, res.Error)
		}
		total += res.RowsAffected
	}

	if total > 0 {
		logger.Info().
			Int64("rows", total).
			Msg("normalized legacy grouping spellings")
	}

	return nil
}
