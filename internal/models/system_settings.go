/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package models

import (
	"time"

	"gorm.io/gorm"
)

// DefaultFeedTokenTTL is the feed token lifetime used when the stored value
// is missing or unparsable.
const DefaultFeedTokenTTL = 720 * time.Hour

// SystemSettings stores runtime-configurable platform settings.
// Uses singleton pattern with a fixed ID=1 row.
type SystemSettings struct {
	ID           int       `gorm:"primaryKey" json:"id"`
	FeedsEnabled bool      `gorm:"default:true" json:"feeds_enabled"`
	FeedTokenTTL string    `gorm:"type:varchar(16);default:'720h'" json:"feed_token_ttl"`
	LogLevel     string    `gorm:"type:varchar(16);default:'info'" json:"log_level"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// TableName returns the table name for GORM.
func (SystemSettings) TableName() string {
	return "system_settings"
}

// ValidLogLevels contains the allowed values for log level.
var ValidLogLevels = []string{"debug", "info", "warn", "error"}

// IsValidLogLevel checks if a value is a valid log level.
func IsValidLogLevel(val string) bool {
	for _, v := range ValidLogLevels {
		if v == val {
			return true
		}
	}
	return false
}

// FeedTokenDuration parses the configured feed token TTL, falling back to
// the default when unset or invalid.
func (s *SystemSettings) FeedTokenDuration() time.Duration {
	if s == nil || s.FeedTokenTTL == "" {
		return DefaultFeedTokenTTL
	}
	d, err := time.ParseDuration(s.FeedTokenTTL)
	if err != nil || d <= 0 {
		return DefaultFeedTokenTTL
	}
	return d
}

// GetSystemSettings retrieves the singleton settings row, creating it with
// defaults if it doesn't exist. The Attrs seed keeps the returned struct
// correct even on dialects that don't return column defaults.
func GetSystemSettings(db *gorm.DB) (*SystemSettings, error) {
	var settings SystemSettings
	result := db.Where(SystemSettings{ID: 1}).
		Attrs(SystemSettings{FeedsEnabled: true, FeedTokenTTL: "720h", LogLevel: "info"}).
		FirstOrCreate(&settings)
	if result.Error != nil {
		return nil, result.Error
	}
	return &settings, nil
}
