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

package star

import (
	"math"
	"testing"

	"github.com/noga-astro/frameqc/internal/fits"
	"github.com/noga-astro/frameqc/internal/imaging"
	"github.com/noga-astro/frameqc/internal/imgstats"
)

func syntheticGaussianFrame(size int, sigma, amplitude, background float64) *fits.Frame {
	pixels := make([]uint16, size*size)
	c := float64(size) / 2
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			dx, dy := float64(x)-c, float64(y)-c
			v := amplitude*math.Exp(-(dx*dx+dy*dy)/(2*sigma*sigma)) + background
			if v > 65535 {
				v = 65535
			}
			pixels[y*size+x] = uint16(v)
		}
	}
	return &fits.Frame{Width: uint32(size), Height: uint32(size), Pixels: pixels}
}

func TestComputeHFRSyntheticGaussian(t *testing.T) {
	const size = 64
	frame := syntheticGaussianFrame(size, 2.0, 10000, 100)
	bbox := imaging.BBox{MinX: 16, MinY: 16, MaxX: 48, MaxY: 48}

	s, ok := computeHFR(frame, bbox)
	if !ok {
		t.Fatalf("expected a valid HFR measurement")
	}
	if s.HFR < 2.30 || s.HFR > 2.45 {
		t.Errorf("HFR = %v, want in [2.30, 2.45]", s.HFR)
	}
}

func TestComputeHFRRejectsEmptyRegion(t *testing.T) {
	frame := &fits.Frame{Width: 10, Height: 10, Pixels: make([]uint16, 100)}
	bbox := imaging.BBox{MinX: 2, MinY: 2, MaxX: 5, MaxY: 5}
	if _, ok := computeHFR(frame, bbox); ok {
		t.Errorf("all-zero region should not yield a usable HFR")
	}
}

func TestDetectEmptyFrameYieldsNoStars(t *testing.T) {
	frame := &fits.Frame{Width: 0, Height: 0}
	stars := Detect(frame, imgstats.Stats{}, Normal, Classic, DefaultConfig(), imaging.PureBackend{})
	if len(stars) != 0 {
		t.Errorf("empty frame should yield zero stars, got %d", len(stars))
	}
}

func TestDetectSaturatedFrameYieldsNoStars(t *testing.T) {
	const size = 64
	pixels := make([]uint16, size*size)
	for i := range pixels {
		pixels[i] = 65535
	}
	frame := &fits.Frame{Width: size, Height: size, Pixels: pixels}
	stars := Detect(frame, imgstats.Compute(pixels), Normal, Classic, DefaultConfig(), imaging.PureBackend{})
	if len(stars) != 0 {
		t.Errorf("saturated frame should yield zero stars, got %d", len(stars))
	}
}

func TestResizeFactorVariants(t *testing.T) {
	cfg := DefaultConfig()
	if f := resizeFactor(High, 4656, cfg); f != 1.0/3.0 {
		t.Errorf("High resize factor = %v, want 1/3", f)
	}
	if f := resizeFactor(Normal, 800, cfg); f != 1 {
		t.Errorf("Normal resize factor for a narrower-than-MaxWidth frame = %v, want 1", f)
	}
	if f := resizeFactor(Highest, 100000, cfg); f != 2.0/3.0 {
		t.Errorf("Highest resize factor floor = %v, want 2/3", f)
	}
}
