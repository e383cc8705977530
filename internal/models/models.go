package models

import (
	"fmt"
	"time"

	"github.com/friendsincode/verdandi/interval"
)

// RoleName enumerates the RBAC roles.
type RoleName string

const (
	RoleAdmin  RoleName = "admin"
	RoleEditor RoleName = "editor"
	RoleViewer RoleName = "viewer"
)

// ValidRole reports whether role names a defined RBAC role.
func ValidRole(role string) bool {
	switch RoleName(role) {
	case RoleAdmin, RoleEditor, RoleViewer:
		return true
	default:
		return false
	}
}

// User represents an authenticated account.
type User struct {
	ID           string    `gorm:"type:uuid;primaryKey" json:"id"`
	Email        string    `gorm:"uniqueIndex;not null" json:"email"`
	PasswordHash string    `gorm:"not null" json:"-"`
	Role         RoleName  `gorm:"type:varchar(16);not null;default:'viewer'" json:"role"`
	Suspended    bool      `gorm:"default:false" json:"suspended"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Preset is a persisted interval generator configuration. Grouping and
// Precision are stored as strings (canonical grouping spelling, Go duration
// syntax) and validated when the generator is materialized. The extension
// flags carry no column default: callers store explicit values, so false
// survives a create.
type Preset struct {
	ID                string    `gorm:"type:uuid;primaryKey" json:"id"`
	Name              string    `gorm:"uniqueIndex;not null" json:"name"`
	Description       string    `gorm:"type:text" json:"description"`
	Grouping          string    `gorm:"type:varchar(16);not null;default:'per_day'" json:"grouping"`
	Precision         string    `gorm:"type:varchar(32);not null;default:'1ms'" json:"precision"`
	OffsetWestSeconds int       `json:"offset_west_seconds"`
	ExtendBegin       bool      `json:"extend_begin"`
	ExtendEnd         bool      `json:"extend_end"`
	FeedLookbackDays  int       `gorm:"default:7" json:"feed_lookback_days"`
	FeedHorizonDays   int       `gorm:"default:35" json:"feed_horizon_days"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// Generator materializes the stored configuration.
func (p *Preset) Generator() (interval.Generator, error) {
	grouping, err := interval.ParseGrouping(p.Grouping)
	if err != nil {
		return interval.Generator{}, err
	}

	precision := interval.DefaultPrecision
	if p.Precision != "" {
		parsed, err := time.ParseDuration(p.Precision)
		if err != nil {
			return interval.Generator{}, fmt.Errorf("parse precision: %w", err)
		}
		if parsed <= 0 {
			return interval.Generator{}, fmt.Errorf("precision %q must be positive", p.Precision)
		}
		precision = parsed
	}

	gen := interval.NewGenerator().
		WithGrouping(grouping).
		WithPrecision(precision).
		WithOffsetWestSeconds(p.OffsetWestSeconds)
	if !p.ExtendBegin {
		gen = gen.WithoutExtendedBegin()
	}
	if !p.ExtendEnd {
		gen = gen.WithoutExtendedEnd()
	}
	return gen, nil
}

// ExportFormat enumerates snapshot output formats.
type ExportFormat string

const (
	FormatICS  ExportFormat = "ics"
	FormatCSV  ExportFormat = "csv"
	FormatJSON ExportFormat = "json"
)

// ValidExportFormat reports whether format names a supported output format.
func ValidExportFormat(format string) bool {
	switch ExportFormat(format) {
	case FormatICS, FormatCSV, FormatJSON:
		return true
	default:
		return false
	}
}

// ExportJob schedules recurring snapshot exports of a preset's intervals.
type ExportJob struct {
	ID         string       `gorm:"type:uuid;primaryKey" json:"id"`
	PresetID   string       `gorm:"type:uuid;index;not null" json:"preset_id"`
	Preset     Preset       `gorm:"foreignKey:PresetID" json:"-"`
	Name       string       `gorm:"not null" json:"name"`
	Schedule   string       `gorm:"not null" json:"schedule"`
	Format     ExportFormat `gorm:"type:varchar(8);not null;default:'ics'" json:"format"`
	WindowDays int          `gorm:"default:35" json:"window_days"`
	Enabled    bool         `json:"enabled"`
	LastRunAt  *time.Time   `json:"last_run_at,omitempty"`
	LastStatus string       `gorm:"type:varchar(16)" json:"last_status,omitempty"`
	LastError  string       `gorm:"type:text" json:"last_error,omitempty"`
	CreatedAt  time.Time    `json:"created_at"`
	UpdatedAt  time.Time    `json:"updated_at"`
}

// Snapshot records one produced export artifact.
type Snapshot struct {
	ID            string       `gorm:"type:uuid;primaryKey" json:"id"`
	JobID         string       `gorm:"type:uuid;index;not null" json:"job_id"`
	ObjectKey     string       `gorm:"not null" json:"object_key"`
	Format        ExportFormat `gorm:"type:varchar(8)" json:"format"`
	IntervalCount int          `json:"interval_count"`
	ByteSize      int64        `json:"byte_size"`
	TookMS        int64        `json:"took_ms"`
	CreatedAt     time.Time    `json:"created_at"`
}
