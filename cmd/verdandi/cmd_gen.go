/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/friendsincode/verdandi/internal/export"
	"github.com/friendsincode/verdandi/internal/models"
	"github.com/friendsincode/verdandi/interval"
)

var genCmd = &cobra.Command{
	Use:   "gen",
	Short: "Generate intervals without a server",
	Long:  "Compute the interval sequence for a window and write it to stdout or a file. Needs no database or configuration.",
	RunE:  runGen,
}

var (
	genBegin             string
	genEnd               string
	genGrouping          string
	genOffsetWestSeconds int
	genPrecision         string
	genNoExtendBegin     bool
	genNoExtendEnd       bool
	genFormat            string
	genOutput            string
)

func init() {
	rootCmd.AddCommand(genCmd)

	genCmd.Flags().StringVar(&genBegin, "begin", "", "Window begin, RFC 3339 (required)")
	genCmd.Flags().StringVar(&genEnd, "end", "", "Window end, RFC 3339, exclusive (required)")
	genCmd.Flags().StringVar(&genGrouping, "grouping", "per_day", "Grouping: per_day, per_week or per_month")
	genCmd.Flags().IntVar(&genOffsetWestSeconds, "offset-west-seconds", 0, "Local offset west of UTC in seconds")
	genCmd.Flags().StringVar(&genPrecision, "precision", "1ms", "Gap between an interval end and the next begin")
	genCmd.Flags().BoolVar(&genNoExtendBegin, "no-extend-begin", false, "Start at the first boundary inside the window instead of extending back")
	genCmd.Flags().BoolVar(&genNoExtendEnd, "no-extend-end", false, "Stop at the last boundary inside the window instead of extending forward")
	genCmd.Flags().StringVar(&genFormat, "format", "json", "Output format: json, ics or csv")
	genCmd.Flags().StringVar(&genOutput, "output", "", "Write to this file instead of stdout")
	genCmd.MarkFlagRequired("begin")
	genCmd.MarkFlagRequired("end")
}

func runGen(cmd *cobra.Command, args []string) error {
	begin, err := time.Parse(time.RFC3339, genBegin)
	if err != nil {
		return fmt.Errorf("parse --begin: %w", err)
	}
	end, err := time.Parse(time.RFC3339, genEnd)
	if err != nil {
		return fmt.Errorf("parse --end: %w", err)
	}

	grouping, err := interval.ParseGrouping(genGrouping)
	if err != nil {
		return err
	}
	precision, err := time.ParseDuration(genPrecision)
	if err != nil {
		return fmt.Errorf("parse --precision: %w", err)
	}
	if precision <= 0 {
		return fmt.Errorf("--precision must be positive")
	}
	if !models.ValidExportFormat(genFormat) {
		return fmt.Errorf("unsupported format %q", genFormat)
	}

	gen := interval.NewGenerator().
		WithGrouping(grouping).
		WithPrecision(precision).
		WithOffsetWestSeconds(genOffsetWestSeconds)
	if genNoExtendBegin {
		gen = gen.WithoutExtendedBegin()
	}
	if genNoExtendEnd {
		gen = gen.WithoutExtendedEnd()
	}

	intervals := gen.Intervals(begin, end)

	result, err := export.Render(models.ExportFormat(genFormat), &models.Preset{Name: "ad-hoc"}, intervals, begin, end)
	if err != nil {
		return err
	}

	if genOutput == "" {
		if _, err := os.Stdout.Write(result.Data); err != nil {
			return err
		}
		if genFormat == string(models.FormatJSON) {
			fmt.Println()
		}
		return nil
	}

	if err := os.WriteFile(genOutput, result.Data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", genOutput, err)
	}
	fmt.Printf("wrote %d intervals to %s (%d bytes)\n", len(intervals), genOutput, len(result.Data))
	return nil
}
