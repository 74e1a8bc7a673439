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
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/noga-astro/frameqc/internal/batchqc"
	"github.com/noga-astro/frameqc/internal/imaging"
	"github.com/noga-astro/frameqc/internal/pipeline"
)

var processWorkers int

var processCmd = &cobra.Command{
	Use:   "process [fits files...]",
	Short: "Run the detection and metrics pipeline over one or more FITS frames",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runProcess,
}

func init() {
	processCmd.Flags().IntVar(&processWorkers, "workers", 0, "Concurrent frames in flight (0 = auto-size from CPU/memory)")
	rootCmd.AddCommand(processCmd)
}

type processSummary struct {
	Path      string  `json:"path"`
	StarCount int     `json:"star_count,omitempty"`
	AvgHFR    float64 `json:"avg_hfr,omitempty"`
	AvgFWHM   float64 `json:"avg_fwhm,omitempty"`
	Error     string  `json:"error,omitempty"`
}

func runProcess(cmd *cobra.Command, args []string) error {
	backend := imaging.Select(logger)
	results := batchqc.ProcessFrames(context.Background(), args, pipeline.DefaultConfig(), backend, processWorkers, logger)

	summaries := make([]processSummary, len(results))
	for i, r := range results {
		s := processSummary{Path: r.Path}
		if r.Err != nil {
			s.Error = r.Err.Error()
		} else {
			s.StarCount = r.Result.Metrics.StarCount
			s.AvgHFR = r.Result.Metrics.AvgHFR
			s.AvgFWHM = r.Result.Metrics.AvgFWHM
		}
		summaries[i] = s
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(summaries); err != nil {
		return fmt.Errorf("encoding results: %w", err)
	}
	return nil
}
