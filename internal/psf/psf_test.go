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

package psf

import (
	"math"
	"testing"

	"github.com/noga-astro/frameqc/internal/fits"
)

// syntheticGaussianFrame builds a 64x64 frame with a 2-D Gaussian of the
// given sigma, amplitude and background centred at (cx,cy).
func syntheticGaussianFrame(size int, cx, cy, sigma, amplitude, background float64) *fits.Frame {
	pixels := make([]uint16, size*size)
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			dx, dy := float64(x)-cx, float64(y)-cy
			v := amplitude*math.Exp(-(dx*dx+dy*dy)/(2*sigma*sigma)) + background
			if v > 65535 {
				v = 65535
			}
			pixels[y*size+x] = uint16(v)
		}
	}
	return &fits.Frame{Width: uint32(size), Height: uint32(size), Pixels: pixels}
}

func TestRunGaussianRecoversParameters(t *testing.T) {
	const size = 64
	cx, cy := 32.3, 31.7
	sigma := 2.5
	frame := syntheticGaussianFrame(size, cx, cy, sigma, 10000, 100)

	fit, err := Run(frame, cx, cy, sigma*2.355, Gaussian)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !fit.Converged {
		t.Errorf("expected convergence on a clean synthetic Gaussian")
	}
	if diff := math.Abs(fit.Cx - cx); diff > 0.5 {
		t.Errorf("Cx = %v, want near %v", fit.Cx, cx)
	}
	if diff := math.Abs(fit.Cy - cy); diff > 0.5 {
		t.Errorf("Cy = %v, want near %v", fit.Cy, cy)
	}
	if diff := math.Abs(fit.SigmaX - sigma); diff > 0.5 {
		t.Errorf("SigmaX = %v, want near %v", fit.SigmaX, sigma)
	}
	if fit.R2 < 0.9 {
		t.Errorf("R2 = %v, want a good fit (>=0.9)", fit.R2)
	}
}

func TestRunMoffatHasFixedBeta(t *testing.T) {
	frame := syntheticGaussianFrame(64, 32, 32, 2.0, 8000, 200)
	fit, err := Run(frame, 32, 32, 2.0*2.355, Moffat)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if fit.Beta != moffatBeta {
		t.Errorf("Beta = %v, want %v", fit.Beta, moffatBeta)
	}
}
