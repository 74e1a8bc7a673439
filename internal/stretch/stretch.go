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

// Package stretch applies a Midtone Transfer Function (MTF) to a Frame,
// producing an 8-bit companion buffer used both for visualization and as
// pre-processing input to star detection.
package stretch

import (
	"math"

	"github.com/noga-astro/frameqc/internal/imgstats"
)

// maxPixelValue is the normalization divisor for the full 16-bit range.
const maxPixelValue = 65535.0

// Params controls the stretch. Defaults: Midtone=0.5, ShadowClip=0, the
// identity transform.
type Params struct {
	Midtone    float64 // (0,1)
	ShadowClip float64 // [-1,1]
}

// DefaultParams returns the identity-transform defaults.
func DefaultParams() Params {
	return Params{Midtone: 0.5, ShadowClip: 0}
}

// mtf evaluates the midtone transfer function f(x;m) for x in [0,1].
func mtf(x, m float64) float64 {
	if x <= 0 {
		return 0
	}
	if x >= 1 {
		return 1
	}
	return (m - 1) * x / ((2*m-1)*x - m)
}

// Stretch computes the 8-bit MTF-stretched buffer for pixels, given their
// Statistics and the stretch Params. The shadow anchor s is computed as
// clip(median - shadow_clip*mad, 0, 1) on the normalized [0,1] domain;
// pixels below s clip to 0, the remaining range [s,1] rescales to [0,1]
// before the MTF is applied. Output is scaled to [0,255] with banker's
// rounding.
func Stretch(pixels []uint16, stats imgstats.Stats, params Params) []uint8 {
	medianNorm := stats.Median / maxPixelValue
	madNorm := stats.MAD / maxPixelValue
	s := medianNorm - params.ShadowClip*madNorm
	if s < 0 {
		s = 0
	} else if s > 1 {
		s = 1
	}

	out := make([]uint8, len(pixels))
	span := 1 - s
	for i, p := range pixels {
		x := float64(p) / maxPixelValue
		if x < s {
			out[i] = 0
			continue
		}
		var rescaled float64
		if span > 0 {
			rescaled = (x - s) / span
		}
		v := mtf(rescaled, params.Midtone)
		out[i] = uint8(math.RoundToEven(v * 255))
	}
	return out
}
