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

// Package metrics aggregates a frame's detected stars (post-PSF where
// available) into the single summary record persisted per frame.
package metrics

import "github.com/noga-astro/frameqc/internal/star"

// Frame summarizes one frame's detected stars. No outlier trimming is
// applied at this stage; that is the grading engine's job.
type Frame struct {
	StarCount int
	AvgHFR    float64
	AvgFWHM   float64
}

// Aggregate computes star_count, avg_hfr (mean HFR over all stars) and
// avg_fwhm (mean FWHM over converged PSF fits only).
func Aggregate(stars []star.Star) Frame {
	f := Frame{StarCount: len(stars)}
	if len(stars) == 0 {
		return f
	}

	var hfrSum float64
	for _, s := range stars {
		hfrSum += s.HFR
	}
	f.AvgHFR = hfrSum / float64(len(stars))

	var fwhmSum float64
	var fwhmCount int
	for _, s := range stars {
		if s.PSF != nil && s.PSF.Converged {
			fwhmSum += (s.PSF.FWHMX + s.PSF.FWHMY) / 2
			fwhmCount++
		}
	}
	if fwhmCount > 0 {
		f.AvgFWHM = fwhmSum / float64(fwhmCount)
	}
	return f
}
