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

// Package pipeline chains the core library stages into the single
// per-frame processing envelope the batch driver and HTTP surface call.
// It owns no state beyond a single call's arguments.
package pipeline

import (
	"context"
	"log/slog"

	"github.com/noga-astro/frameqc/internal/errs"
	"github.com/noga-astro/frameqc/internal/fits"
	"github.com/noga-astro/frameqc/internal/imaging"
	"github.com/noga-astro/frameqc/internal/imgstats"
	"github.com/noga-astro/frameqc/internal/metrics"
	"github.com/noga-astro/frameqc/internal/star"
	"github.com/noga-astro/frameqc/internal/stretch"
)

// Config bundles the tunables each stage needs.
type Config struct {
	Sensitivity star.Sensitivity
	Variant     star.Variant
	StarConfig  star.Config
	Stretch     stretch.Params
}

// DefaultConfig returns Normal sensitivity, the Classic variant, and each
// stage's own Default*().
func DefaultConfig() Config {
	return Config{
		Sensitivity: star.Normal,
		Variant:     star.Classic,
		StarConfig:  star.DefaultConfig(),
		Stretch:     stretch.DefaultParams(),
	}
}

// Result is everything ProcessFrame produces for one frame.
type Result struct {
	Frame   *fits.Frame
	Stats   imgstats.Stats
	Stars   []star.Star
	Metrics metrics.Frame
}

// ProcessFrame runs the fixed FITS -> statistics -> stretch -> detect ->
// PSF -> metrics chain on a single file. It checks ctx at each stage
// boundary and returns an *errs.Fault with errs.ReasonCancelled the
// first time ctx.Err() is non-nil, per the cooperative-cancellation
// convention: no stage is interrupted mid-computation, only skipped.
func ProcessFrame(ctx context.Context, path string, cfg Config, backend imaging.Backend, logger *slog.Logger) (Result, error) {
	if logger == nil {
		logger = slog.Default()
	}

	if err := ctx.Err(); err != nil {
		return Result{}, errs.New(errs.ReasonCancelled, "pipeline.ProcessFrame", err)
	}
	frame, err := fits.ReadFile(path)
	if err != nil {
		return Result{}, err
	}
	logger.Debug("read frame", "path", path, "width", frame.Width, "height", frame.Height)

	if err := ctx.Err(); err != nil {
		return Result{}, errs.New(errs.ReasonCancelled, "pipeline.ProcessFrame", err)
	}
	stats := imgstats.Compute(frame.Pixels)
	logger.Debug("computed statistics", "path", path, "median", stats.Median, "mad", stats.MAD)

	if err := ctx.Err(); err != nil {
		return Result{}, errs.New(errs.ReasonCancelled, "pipeline.ProcessFrame", err)
	}
	stars := star.Detect(frame, stats, cfg.Sensitivity, cfg.Variant, cfg.StarConfig, backend)
	logger.Debug("detected stars", "path", path, "count", len(stars))

	if err := ctx.Err(); err != nil {
		return Result{}, errs.New(errs.ReasonCancelled, "pipeline.ProcessFrame", err)
	}
	agg := metrics.Aggregate(stars)

	return Result{Frame: frame, Stats: stats, Stars: stars, Metrics: agg}, nil
}
