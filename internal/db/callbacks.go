/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package db

import (
	"time"

	"gorm.io/gorm"

	"github.com/friendsincode/verdandi/internal/telemetry"
)

const _startTime = "gorm:start_time"

// RegisterCallbacks hooks query duration and error metrics into every CRUD
// operation gorm performs.
func RegisterCallbacks(db *gorm.DB) error {
	cb := db.Callback()

	if err := cb.Query().Before("gorm:query").Register("telemetry:before_query", beforeCallback); err != nil {
		return err
	}
	if err := cb.Query().After("gorm:query").Register("telemetry:after_query", afterCallback("query")); err != nil {
		return err
	}

	if err := cb.Create().Before("gorm:create").Register("telemetry:before_create", beforeCallback); err != nil {
		return err
	}
	if err := cb.Create().After("gorm:create").Register("telemetry:after_create", afterCallback("create")); err != nil {
		return err
	}

	if err := cb.Update().Before("gorm:update").Register("telemetry:before_update", beforeCallback); err != nil {
		return err
	}
	if err := cb.Update().After("gorm:update").Register("telemetry:after_update", afterCallback("update")); err != nil {
		return err
	}

	if err := cb.Delete().Before("gorm:delete").Register("telemetry:before_delete", beforeCallback); err != nil {
		return err
	}
	if err := cb.Delete().After("gorm:delete").Register("telemetry:after_delete", afterCallback("delete")); err != nil {
		return err
	}

	return nil
}

func beforeCallback(db *gorm.DB) {
	db.InstanceSet(_startTime, time.Now())
}

func afterCallback(operation string) func(*gorm.DB) {
	return func(db *gorm.DB) {
		startTimeValue, exists := db.InstanceGet(_startTime)
		if !exists {
			return
		}

		startTime, ok := startTimeValue.(time.Time)
		if !ok {
			return
		}

		duration := time.Since(startTime).Seconds()

		tableName := db.Statement.Table
		if tableName == "" {
			tableName = "unknown"
		}

		telemetry.DatabaseQueryDuration.WithLabelValues(operation, tableName).Observe(duration)

		// ErrRecordNotFound is a routine lookup miss, not an error worth counting.
		if db.Error != nil && db.Error != gorm.ErrRecordNotFound {
			telemetry.DatabaseErrorsTotal.WithLabelValues(operation, "query_error").Inc()
		}
	}
}

// UpdateConnectionMetrics publishes connection pool gauges. Called on a
// timer from the server's background loop.
func UpdateConnectionMetrics(db *gorm.DB) {
	sqlDB, err := db.DB()
	if err != nil {
		return
	}

	stats := sqlDB.Stats()
	telemetry.DatabaseConnectionsActive.Set(float64(stats.OpenConnections))
}
