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

// Package batchqc drives pipeline.ProcessFrame across many files with
// bounded concurrency. The worker cap is sized from both CPU count and
// total physical memory, since each in-flight frame holds several
// full-resolution buffers at once.
package batchqc

import (
	"context"
	"log/slog"
	"runtime"

	"github.com/pbnjay/memory"

	"github.com/noga-astro/frameqc/internal/imaging"
	"github.com/noga-astro/frameqc/internal/pipeline"
)

// bytesPerFrameEstimate is a conservative per-in-flight-frame memory
// budget: the raw uint16 pixel buffer plus stretch/detect scratch
// buffers the imaging primitives allocate, for a typical 4K x 4K sensor.
const bytesPerFrameEstimate = 4096 * 4096 * 2 * 6

// FrameResult pairs a source path with its outcome. Exactly one of
// Result or Err is meaningful.
type FrameResult struct {
	Path   string
	Result pipeline.Result
	Err    error
}

// MaxWorkers returns the concurrency cap this package would choose on
// the current host: the smaller of GOMAXPROCS and how many
// bytesPerFrameEstimate budgets fit in total physical memory, never
// less than one.
func MaxWorkers() int {
	cpuCap := runtime.GOMAXPROCS(0)
	memCap := int(memory.TotalMemory() / bytesPerFrameEstimate)
	if memCap < 1 {
		memCap = 1
	}
	if cpuCap < memCap {
		return cpuCap
	}
	return memCap
}

// ProcessFrames runs ProcessFrame over every path in paths, limiting
// concurrency to maxWorkers (MaxWorkers() if <= 0). Results are
// returned in input order regardless of completion order. Every path is
// launched even after ctx is cancelled; ProcessFrame checks ctx at each
// stage boundary, so frames started after cancellation return a
// cancelled error without doing work, and a frame in flight stops at its
// next stage boundary.
func ProcessFrames(ctx context.Context, paths []string, cfg pipeline.Config, backend imaging.Backend, maxWorkers int, logger *slog.Logger) []FrameResult {
	if logger == nil {
		logger = slog.Default()
	}
	if maxWorkers <= 0 {
		maxWorkers = MaxWorkers()
	}
	if maxWorkers < 1 {
		maxWorkers = 1
	}

	results := make([]FrameResult, len(paths))
	sem := make(chan struct{}, maxWorkers)
	done := make(chan struct{}, len(paths))

	for i, path := range paths {
		sem <- struct{}{}
		go func(i int, path string) {
			defer func() { <-sem; done <- struct{}{} }()
			res, err := pipeline.ProcessFrame(ctx, path, cfg, backend, logger)
			results[i] = FrameResult{Path: path, Result: res, Err: err}
		}(i, path)
	}
	for i := 0; i < len(paths); i++ {
		<-done
	}
	return results
}
