/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/friendsincode/verdandi/internal/presets"
)

var presetsCmd = &cobra.Command{
	Use:   "presets",
	Short: "Move preset collections between instances",
	Long:  "Export all presets to a YAML bundle, or import a bundle, upserting by name",
}

var presetsExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export all presets to a YAML bundle",
	RunE:  runPresetsExport,
}

var presetsImportCmd = &cobra.Command{
	Use:   "import",
	Short: "Import presets from a YAML bundle",
	RunE:  runPresetsImport,
}

var (
	presetsExportOutput string
	presetsImportFile   string
	presetsImportDryRun bool
)

func init() {
	rootCmd.AddCommand(presetsCmd)
	presetsCmd.AddCommand(presetsExportCmd)
	presetsCmd.AddCommand(presetsImportCmd)

	presetsExportCmd.Flags().StringVar(&presetsExportOutput, "output", "", "Bundle file to write (stdout when omitted)")
	presetsImportCmd.Flags().StringVar(&presetsImportFile, "file", "", "Bundle file to read (required)")
	presetsImportCmd.Flags().BoolVar(&presetsImportDryRun, "dry-run", false, "Report what would change without writing")
	presetsImportCmd.MarkFlagRequired("file")
}

func runPresetsExport(cmd *cobra.Command, args []string) error {
	if err := loadConfig(); err != nil {
		return err
	}
	database, err := initDatabase()
	if err != nil {
		return fmt.Errorf("initialize database: %w", err)
	}

	svc := presets.NewService(database, nil, nil, logger)

	data, err := svc.ExportBundle(context.Background())
	if err != nil {
		return fmt.Errorf("export bundle: %w", err)
	}

	if presetsExportOutput == "" {
		_, err := os.Stdout.Write(data)
		return err
	}
	if err := os.WriteFile(presetsExportOutput, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", presetsExportOutput, err)
	}

	fmt.Printf("wrote bundle to %s (%d bytes)\n", presetsExportOutput, len(data))
	return nil
}

func runPresetsImport(cmd *cobra.Command, args []string) error {
	if err := loadConfig(); err != nil {
		return err
	}
	database, err := initDatabase()
	if err != nil {
		return fmt.Errorf("initialize database: %w", err)
	}

	data, err := os.ReadFile(presetsImportFile)
	if err != nil {
		return fmt.Errorf("read %s: %w", presetsImportFile, err)
	}

	svc := presets.NewService(database, nil, nil, logger)

	result, err := svc.ImportBundle(context.Background(), data, presetsImportDryRun)
	if err != nil {
		return fmt.Errorf("import bundle: %w", err)
	}

	if result.DryRun {
		fmt.Printf("\nImport preview (no changes written):\n")
	} else {
		fmt.Printf("\nImport complete:\n")
	}
	fmt.Printf("  Presets in bundle: %d\n", result.Total)
	fmt.Printf("  Created:           %d\n", result.Created)
	fmt.Printf("  Updated:           %d\n", result.Updated)
	fmt.Printf("  Invalid:           %d\n", result.Invalid)

	if len(result.Errors) > 0 {
		fmt.Printf("\nErrors:\n")
		for _, msg := range result.Errors {
			fmt.Printf("  - %s\n", msg)
		}
	}
	if result.DryRun {
		fmt.Printf("\nRun without --dry-run to apply the bundle.\n")
	}
	return nil
}
