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

package stretch

import (
	"testing"

	"github.com/noga-astro/frameqc/internal/imgstats"
)

func TestMTFBijectionEndpoints(t *testing.T) {
	if got := mtf(0, 0.3); got != 0 {
		t.Errorf("mtf(0) = %v, want 0", got)
	}
	if got := mtf(1, 0.3); got != 1 {
		t.Errorf("mtf(1) = %v, want 1", got)
	}
}

func TestMTFMidtoneFixedPoint(t *testing.T) {
	got := mtf(0.5, 0.5)
	if diff := got - 0.5; diff > 1e-9 || diff < -1e-9 {
		t.Errorf("mtf(0.5; m=0.5) = %v, want 0.5", got)
	}
}

func TestStretchIdentityAtDefaults(t *testing.T) {
	// median=0, shadow_clip=0, midtone=0.5: s=0 and the MTF at m=0.5 is
	// the identity, so output should track input linearly.
	pixels := []uint16{0, 16384, 32768, 49152, 65535}
	stats := imgstats.Stats{Median: 0, MAD: 0}
	out := Stretch(pixels, stats, DefaultParams())

	for i, p := range pixels {
		want := uint8(roundEven(float64(p) / maxPixelValue * 255))
		if out[i] != want {
			t.Errorf("pixel %d: got %d, want %d", i, out[i], want)
		}
	}
}

func roundEven(v float64) float64 {
	floor := float64(int64(v))
	frac := v - floor
	switch {
	case frac < 0.5:
		return floor
	case frac > 0.5:
		return floor + 1
	default:
		if int64(floor)%2 == 0 {
			return floor
		}
		return floor + 1
	}
}

func TestStretchShadowClip(t *testing.T) {
	pixels := []uint16{0, 100, 65535}
	stats := imgstats.Stats{Median: 1000, MAD: 0}
	out := Stretch(pixels, stats, Params{Midtone: 0.5, ShadowClip: 1})

	if out[0] != 0 {
		t.Errorf("pixel below shadow anchor should clip to 0, got %d", out[0])
	}
}
