/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/friendsincode/verdandi/internal/migration"
	"github.com/friendsincode/verdandi/internal/presets"
)

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Import presets from legacy report-window databases",
	Long:  "Read legacy report window definitions from a Postgres or SQLite source and upsert them as presets, matching by name",
}

var importPostgresCmd = &cobra.Command{
	Use:   "postgres",
	Short: "Import from a legacy Postgres database",
	RunE:  runImportPostgres,
}

var importSQLiteCmd = &cobra.Command{
	Use:   "sqlite",
	Short: "Import from a legacy SQLite file",
	RunE:  runImportSQLite,
}

var (
	importPostgresDSN    string
	importPostgresTable  string
	importPostgresDryRun bool

	importSQLitePath   string
	importSQLiteTable  string
	importSQLiteDryRun bool
)

func init() {
	rootCmd.AddCommand(importCmd)
	importCmd.AddCommand(importPostgresCmd)
	importCmd.AddCommand(importSQLiteCmd)

	importPostgresCmd.Flags().StringVar(&importPostgresDSN, "dsn", "", "PostgreSQL connection string of the legacy database (required)")
	importPostgresCmd.Flags().StringVar(&importPostgresTable, "table", migration.DefaultTable, "Legacy table holding the report windows")
	importPostgresCmd.Flags().BoolVar(&importPostgresDryRun, "dry-run", false, "Analyze the source without importing")
	importPostgresCmd.MarkFlagRequired("dsn")

	importSQLiteCmd.Flags().StringVar(&importSQLitePath, "path", "", "Path to the legacy SQLite file (required)")
	importSQLiteCmd.Flags().StringVar(&importSQLiteTable, "table", migration.DefaultTable, "Legacy table holding the report windows")
	importSQLiteCmd.Flags().BoolVar(&importSQLiteDryRun, "dry-run", false, "Analyze the source without importing")
	importSQLiteCmd.MarkFlagRequired("path")
}

func runImportPostgres(cmd *cobra.Command, args []string) error {
	options := migration.Options{
		PostgresDSN: importPostgresDSN,
		Table:       importPostgresTable,
	}
	return runImport(func(svc *presets.Service) migration.Importer {
		return migration.NewPostgresImporter(svc, logger)
	}, options, importPostgresDryRun)
}

func runImportSQLite(cmd *cobra.Command, args []string) error {
	options := migration.Options{
		SQLitePath: importSQLitePath,
		Table:      importSQLiteTable,
	}
	return runImport(func(svc *presets.Service) migration.Importer {
		return migration.NewSQLiteImporter(svc, logger)
	}, options, importSQLiteDryRun)
}

func runImport(build func(*presets.Service) migration.Importer, options migration.Options, dryRun bool) error {
	if err := loadConfig(); err != nil {
		return err
	}
	database, err := initDatabase()
	if err != nil {
		return fmt.Errorf("initialize database: %w", err)
	}

	svc := presets.NewService(database, nil, nil, logger)
	importer := build(svc)
	ctx := context.Background()

	if err := importer.Validate(ctx, options); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	var result *migration.Result
	if dryRun {
		result, err = importer.Analyze(ctx, options)
	} else {
		result, err = importer.Import(ctx, options)
	}
	if err != nil {
		return fmt.Errorf("import failed: %w", err)
	}

	if dryRun {
		fmt.Printf("\nImport preview (no changes written):\n")
	} else {
		fmt.Printf("\nImport complete in %.1fs:\n", result.DurationSeconds)
	}
	fmt.Printf("  Presets created: %d\n", result.PresetsCreated)
	fmt.Printf("  Presets updated: %d\n", result.PresetsUpdated)
	for reason, count := range result.Skipped {
		fmt.Printf("  Skipped (%s): %d\n", reason, count)
	}

	if len(result.Warnings) > 0 {
		fmt.Printf("\nWarnings:\n")
		for _, warning := range result.Warnings {
			fmt.Printf("  - %s\n", warning)
		}
	}
	if dryRun {
		fmt.Printf("\nRun without --dry-run to perform the import.\n")
	}
	return nil
}
