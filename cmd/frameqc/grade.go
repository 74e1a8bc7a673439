// Copyright (C) 2020 Markus L. Noga
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/noga-astro/frameqc/internal/grading"
)

var (
	gradeInputPath string
	gradeResetMode string
)

var gradeCmd = &cobra.Command{
	Use:   "grade",
	Short: "Grade a sequence of frame metrics read from a JSON file",
	Long: `Reads a JSON array of frame metrics (frame_id, target_id, filter_id,
acquired_at, star_count, avg_hfr) and writes the resulting accept/reject
decisions to stdout.`,
	RunE: runGrade,
}

func init() {
	gradeCmd.Flags().StringVar(&gradeInputPath, "in", "", "Path to a JSON array of frame metrics (required)")
	gradeCmd.Flags().StringVar(&gradeResetMode, "reset", "none", "Regrade reset mode: none, automatic, all")
	gradeCmd.MarkFlagRequired("in")
	rootCmd.AddCommand(gradeCmd)
}

func parseResetMode(s string) (grading.ResetMode, error) {
	switch s {
	case "none":
		return grading.ResetNone, nil
	case "automatic":
		return grading.ResetAutomatic, nil
	case "all":
		return grading.ResetAll, nil
	default:
		return grading.ResetNone, fmt.Errorf("unknown reset mode %q", s)
	}
}

func runGrade(cmd *cobra.Command, args []string) error {
	data, err := os.ReadFile(gradeInputPath)
	if err != nil {
		return fmt.Errorf("reading %s: %w", gradeInputPath, err)
	}
	var frames []grading.FrameMetrics
	if err := json.Unmarshal(data, &frames); err != nil {
		return fmt.Errorf("parsing %s: %w", gradeInputPath, err)
	}

	resetMode, err := parseResetMode(gradeResetMode)
	if err != nil {
		return err
	}

	cfg := grading.DefaultConfig()
	cfg.ResetMode = resetMode

	decisions, insufficient := grading.Grade(frames, nil, cfg)
	for _, g := range insufficient {
		logger.Warn("group has too few frames for distribution-based grading", "group", g)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(decisions)
}
