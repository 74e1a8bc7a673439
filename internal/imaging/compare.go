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

package imaging

import (
	"fmt"
	"math"

	"github.com/valyala/fastrand"
)

// Agreement tolerances an accelerated backend must hold against
// PureBackend: one count in 255 absolute for 8-bit-scale pixel buffers,
// 1e-6 relative for scalar summaries, and at most one pixel in 255
// flipped in a binary mask.
const (
	MaxPixelDifference    = 1.0
	MaxRelativeDifference = 1e-6
	maxMaskMismatchFrac   = 1.0 / 255.0
)

// VerifyAgainstPure runs candidate and PureBackend over a corpus of
// pseudo-random images and reports the first primitive whose outputs
// diverge beyond the documented tolerances. The corpus is generated from
// a fastrand RNG seeded per trial, so repeated runs compare identical
// inputs.
func VerifyAgainstPure(candidate Backend, trials int) error {
	var rng fastrand.RNG
	for trial := 0; trial < trials; trial++ {
		rng.Seed(uint32(trial)*2654435761 + 1)
		img := randomImage(&rng, 64, 48)

		if err := compareGray("Resize", candidate.Resize(img, 32, 24), pureBackend.Resize(img, 32, 24)); err != nil {
			return err
		}
		if err := compareGray("GaussianBlur", candidate.GaussianBlur(img, 1.4, 5), pureBackend.GaussianBlur(img, 1.4, 5)); err != nil {
			return err
		}

		ct, pt := candidate.SISThreshold(img), pureBackend.SISThreshold(img)
		if relDiff(ct, pt) > MaxRelativeDifference {
			return fmt.Errorf("imaging: SISThreshold disagrees: %g vs %g", ct, pt)
		}

		high := pt
		if err := compareBinary("Canny", candidate.Canny(img, high/2, high, CannyWithBlur), pureBackend.Canny(img, high/2, high, CannyWithBlur)); err != nil {
			return err
		}
	}
	return nil
}

// randomImage fills a Gray with uniform 8-bit-scale noise from rng.
func randomImage(rng *fastrand.RNG, width, height int) *Gray {
	img := NewGray(width, height)
	for i := range img.Pix {
		img.Pix[i] = float64(rng.Uint32n(256))
	}
	return img
}

func compareGray(op string, got, want *Gray) error {
	if got.Width != want.Width || got.Height != want.Height {
		return fmt.Errorf("imaging: %s dimensions disagree: %dx%d vs %dx%d",
			op, got.Width, got.Height, want.Width, want.Height)
	}
	for i := range want.Pix {
		if d := math.Abs(got.Pix[i] - want.Pix[i]); d > MaxPixelDifference {
			return fmt.Errorf("imaging: %s pixel %d differs by %g (tolerance %g)",
				op, i, d, MaxPixelDifference)
		}
	}
	return nil
}

func compareBinary(op string, got, want *Binary) error {
	if got.Width != want.Width || got.Height != want.Height {
		return fmt.Errorf("imaging: %s dimensions disagree: %dx%d vs %dx%d",
			op, got.Width, got.Height, want.Width, want.Height)
	}
	mismatches := 0
	for i := range want.Bits {
		if got.Bits[i] != want.Bits[i] {
			mismatches++
		}
	}
	if frac := float64(mismatches) / float64(len(want.Bits)); frac > maxMaskMismatchFrac {
		return fmt.Errorf("imaging: %s masks disagree on %d of %d pixels",
			op, mismatches, len(want.Bits))
	}
	return nil
}

func relDiff(a, b float64) float64 {
	denom := math.Max(math.Abs(a), math.Abs(b))
	if denom == 0 {
		return 0
	}
	return math.Abs(a-b) / denom
}
