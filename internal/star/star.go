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

// Package star orchestrates the imaging primitives into the two star
// detector variants (Classic and Enhanced), producing refined star
// candidates with centroids and Half-Flux Radius measured against the
// original, non-stretched frame data.
package star

import (
	"math"

	"github.com/noga-astro/frameqc/internal/fits"
	"github.com/noga-astro/frameqc/internal/imaging"
	"github.com/noga-astro/frameqc/internal/imgstats"
	"github.com/noga-astro/frameqc/internal/psf"
	"github.com/noga-astro/frameqc/internal/stretch"
)

// Sensitivity controls the resize factor applied before detection.
type Sensitivity int

const (
	Normal Sensitivity = iota
	High
	Highest
)

// Variant selects the detector skeleton: Classic or Enhanced.
type Variant int

const (
	Classic Variant = iota
	Enhanced
)

// MaxWidth is the resize-target width for Normal sensitivity: wider
// frames are scaled down to it before edge detection.
const MaxWidth = 1552

// Config holds the detector's tunable thresholds.
// HighSensitivityResizeFactor and MaxAspectRatio are exported so callers
// targeting unusual sensors may override them; the defaults assume
// common CMOS sensor widths.
type Config struct {
	HighSensitivityResizeFactor float64
	MaxAspectRatio              float64
	CannyLow, CannyHigh         float64 // not read by Detect, which derives both thresholds from SISThreshold
	EnhancedDilationRadius      int     // multiplied by the resize factor at run time
	EnablePSF                   bool    // Enhanced variant only
	PSFModel                    psf.Model
}

// DefaultConfig returns the detector's default thresholds.
func DefaultConfig() Config {
	return Config{
		HighSensitivityResizeFactor: 1.0 / 3.0,
		MaxAspectRatio:              2.0,
		CannyLow:                    20,
		CannyHigh:                   60,
		EnhancedDilationRadius:      3,
		EnablePSF:                   false,
		PSFModel:                    psf.Gaussian,
	}
}

// Star is a refined detected source.
type Star struct {
	CentroidX, CentroidY float64
	BBox                 imaging.BBox
	HFR                  float64
	Brightness           float64
	PSF                  *psf.Fit
}

func resizeFactor(sensitivity Sensitivity, width int, cfg Config) float64 {
	switch sensitivity {
	case High:
		return cfg.HighSensitivityResizeFactor
	case Highest:
		f := float64(MaxWidth) / float64(width)
		if f < 2.0/3.0 {
			f = 2.0 / 3.0
		}
		return f
	default:
		f := float64(MaxWidth) / float64(width)
		if f > 1 {
			f = 1
		}
		return f
	}
}

// Detect runs the detector pipeline over frame and returns the surviving
// stars. An empty, all-zero or saturated frame yields zero stars without
// error: the Canny/SIS/connected-components chain simply finds no
// structure to report.
func Detect(frame *fits.Frame, stats imgstats.Stats, sensitivity Sensitivity, variant Variant, cfg Config, backend imaging.Backend) []Star {
	if frame.Width == 0 || frame.Height == 0 {
		return nil
	}

	stretched := stretch.Stretch(frame.Pixels, stats, stretch.DefaultParams())
	stretchedImg := imaging.FromUint8(stretched, int(frame.Width), int(frame.Height))

	r := resizeFactor(sensitivity, int(frame.Width), cfg)
	rw := int(math.Floor(float64(frame.Width) * r))
	rh := int(math.Floor(float64(frame.Height) * r))
	if rw < 1 {
		rw = 1
	}
	if rh < 1 {
		rh = 1
	}
	resized := backend.Resize(stretchedImg, rw, rh)

	if sensitivity == Normal {
		resized = backend.GaussianBlur(resized, 1.0, 5)
	}

	cannyMode := imaging.CannyWithBlur
	if sensitivity != Normal {
		cannyMode = imaging.CannyNoBlur
	}

	magnitude := imaging.SobelMagnitude(resized)
	high := backend.SISThreshold(magnitude)
	low := high / 2
	edges := backend.Canny(resized, low, high, cannyMode)

	dilationRadius := 1
	elliptical := false
	if variant == Enhanced {
		elliptical = true
		dilationRadius = int(math.Round(float64(cfg.EnhancedDilationRadius) * r))
		if dilationRadius < 1 {
			dilationRadius = 1
		}
	}
	dilated := backend.Dilate(edges, dilationRadius, elliptical)

	blobs := backend.ConnectedComponents(dilated, imaging.Connectivity8)

	maxDim := rw
	if rh > maxDim {
		maxDim = rh
	}
	minArea := int(math.Ceil(float64(maxDim) / 1000.0))

	var stars []Star
	for _, b := range blobs {
		w, h := b.BBox.Width(), b.BBox.Height()
		if b.Area < minArea {
			continue
		}
		if minInt(w, h) < int(5*r) {
			continue
		}
		if maxInt(w, h) > int(150*r) {
			continue
		}
		aspect := float64(maxInt(w, h)) / float64(minInt(w, h))
		if aspect > cfg.MaxAspectRatio {
			continue
		}

		origBBox := projectToOriginal(b.BBox, r)
		var s Star
		var ok bool
		if variant == Enhanced {
			s, ok = computeHFRSubpixel(frame, origBBox)
		} else {
			s, ok = computeHFR(frame, origBBox)
		}
		if !ok {
			continue
		}
		s.BBox = origBBox

		if variant == Enhanced && cfg.EnablePSF {
			fit, err := psf.Run(frame, s.CentroidX, s.CentroidY, s.HFR, cfg.PSFModel)
			if err == nil {
				s.PSF = &fit
			}
		}
		stars = append(stars, s)
	}
	return stars
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

// projectToOriginal maps a blob's bounding box in resized-image coordinates
// back to the original frame via the inverse resize factor: x,y via floor,
// w,h via ceiling, for conservative inclusion.
func projectToOriginal(b imaging.BBox, r float64) imaging.BBox {
	inv := 1.0 / r
	minX := int(math.Floor(float64(b.MinX) * inv))
	minY := int(math.Floor(float64(b.MinY) * inv))
	maxX := minX + int(math.Ceil(float64(b.Width())*inv))
	maxY := minY + int(math.Ceil(float64(b.Height())*inv))
	return imaging.BBox{MinX: minX, MinY: minY, MaxX: maxX, MaxY: maxY}
}

// ringMean computes the mean of the pixel ring immediately outside bbox.
func ringMean(frame *fits.Frame, bbox imaging.BBox) float64 {
	var sum float64
	var count int
	w, h := int(frame.Width), int(frame.Height)
	for y := bbox.MinY - 1; y <= bbox.MaxY; y++ {
		for x := bbox.MinX - 1; x <= bbox.MaxX; x++ {
			inside := x >= bbox.MinX && x < bbox.MaxX && y >= bbox.MinY && y < bbox.MaxY
			if inside {
				continue
			}
			if x < 0 || x >= w || y < 0 || y >= h {
				continue
			}
			sum += float64(frame.Pixels[y*w+x])
			count++
		}
	}
	if count == 0 {
		return 0
	}
	return sum / float64(count)
}

// computeHFR measures the half-flux radius at integer pixel resolution:
// background-subtract against the surrounding ring mean, then take the
// flux-weighted mean distance from the flux-weighted centroid.
func computeHFR(frame *fits.Frame, bbox imaging.BBox) (Star, bool) {
	w := int(frame.Width)
	bg := ringMean(frame, bbox)

	var sumV, sumVX, sumVY float64
	for y := bbox.MinY; y < bbox.MaxY; y++ {
		for x := bbox.MinX; x < bbox.MaxX; x++ {
			if x < 0 || x >= w || y < 0 || y >= int(frame.Height) {
				continue
			}
			v := math.RoundToEven(float64(frame.Pixels[y*w+x]) - bg)
			if v < 0 {
				v = 0
			}
			sumV += v
			sumVX += v * float64(x)
			sumVY += v * float64(y)
		}
	}
	if sumV == 0 {
		return Star{}, false
	}
	cx, cy := sumVX/sumV, sumVY/sumV

	var hfrNum float64
	for y := bbox.MinY; y < bbox.MaxY; y++ {
		for x := bbox.MinX; x < bbox.MaxX; x++ {
			if x < 0 || x >= w || y < 0 || y >= int(frame.Height) {
				continue
			}
			v := math.RoundToEven(float64(frame.Pixels[y*w+x]) - bg)
			if v < 0 {
				v = 0
			}
			d := math.Hypot(float64(x)-cx, float64(y)-cy)
			hfrNum += v * d
		}
	}
	hfr := hfrNum / sumV
	diag := math.Hypot(float64(bbox.Width()), float64(bbox.Height()))
	if hfr <= 0 || hfr > diag {
		return Star{}, false
	}
	return Star{CentroidX: cx, CentroidY: cy, HFR: hfr, Brightness: sumV}, true
}

// computeHFRSubpixel is the Enhanced variant's HFR: identical to computeHFR
// but samples the ring background and the centroid with bilinear
// interpolation at half-pixel offsets for sub-pixel precision.
func computeHFRSubpixel(frame *fits.Frame, bbox imaging.BBox) (Star, bool) {
	w, h := int(frame.Width), int(frame.Height)
	sample := func(x, y float64) float64 {
		x0, y0 := math.Floor(x), math.Floor(y)
		fx, fy := x-x0, y-y0
		at := func(xi, yi int) float64 {
			if xi < 0 {
				xi = 0
			} else if xi >= w {
				xi = w - 1
			}
			if yi < 0 {
				yi = 0
			} else if yi >= h {
				yi = h - 1
			}
			return float64(frame.Pixels[yi*w+xi])
		}
		v00 := at(int(x0), int(y0))
		v10 := at(int(x0)+1, int(y0))
		v01 := at(int(x0), int(y0)+1)
		v11 := at(int(x0)+1, int(y0)+1)
		return v00*(1-fx)*(1-fy) + v10*fx*(1-fy) + v01*(1-fx)*fy + v11*fx*fy
	}

	var bgSum float64
	var bgCount int
	for y := bbox.MinY - 1; y <= bbox.MaxY; y++ {
		for x := bbox.MinX - 1; x <= bbox.MaxX; x++ {
			inside := x >= bbox.MinX && x < bbox.MaxX && y >= bbox.MinY && y < bbox.MaxY
			if inside {
				continue
			}
			bgSum += sample(float64(x)+0.5, float64(y)+0.5)
			bgCount++
		}
	}
	bg := 0.0
	if bgCount > 0 {
		bg = bgSum / float64(bgCount)
	}

	const step = 0.5
	var sumV, sumVX, sumVY float64
	for y := float64(bbox.MinY); y < float64(bbox.MaxY); y += step {
		for x := float64(bbox.MinX); x < float64(bbox.MaxX); x += step {
			v := math.RoundToEven(sample(x+0.25, y+0.25) - bg)
			if v < 0 {
				v = 0
			}
			sumV += v
			sumVX += v * x
			sumVY += v * y
		}
	}
	if sumV == 0 {
		return Star{}, false
	}
	cx, cy := sumVX/sumV, sumVY/sumV

	var hfrNum float64
	for y := float64(bbox.MinY); y < float64(bbox.MaxY); y += step {
		for x := float64(bbox.MinX); x < float64(bbox.MaxX); x += step {
			v := math.RoundToEven(sample(x+0.25, y+0.25) - bg)
			if v < 0 {
				v = 0
			}
			d := math.Hypot(x-cx, y-cy)
			hfrNum += v * d
		}
	}
	hfr := hfrNum / sumV
	diag := math.Hypot(float64(bbox.Width()), float64(bbox.Height()))
	if hfr <= 0 || hfr > diag {
		return Star{}, false
	}
	return Star{CentroidX: cx, CentroidY: cy, HFR: hfr, Brightness: sumV}, true
}
