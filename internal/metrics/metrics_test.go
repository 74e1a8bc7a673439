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

package metrics

import (
	"testing"

	"github.com/noga-astro/frameqc/internal/psf"
	"github.com/noga-astro/frameqc/internal/star"
)

func TestAggregateEmpty(t *testing.T) {
	f := Aggregate(nil)
	if f.StarCount != 0 || f.AvgHFR != 0 || f.AvgFWHM != 0 {
		t.Errorf("empty star list should yield zero Frame, got %+v", f)
	}
}

func TestAggregateAvgHFRIgnoresMissingPSF(t *testing.T) {
	stars := []star.Star{
		{HFR: 2.0},
		{HFR: 4.0},
	}
	f := Aggregate(stars)
	if f.StarCount != 2 {
		t.Errorf("StarCount = %d, want 2", f.StarCount)
	}
	if f.AvgHFR != 3.0 {
		t.Errorf("AvgHFR = %v, want 3.0", f.AvgHFR)
	}
	if f.AvgFWHM != 0 {
		t.Errorf("AvgFWHM = %v, want 0 with no converged PSF fits", f.AvgFWHM)
	}
}

func TestAggregateAvgFWHMOnlyConverged(t *testing.T) {
	stars := []star.Star{
		{HFR: 2.0, PSF: &psf.Fit{FWHMX: 4.0, FWHMY: 4.0, Converged: true}},
		{HFR: 2.0, PSF: &psf.Fit{FWHMX: 10.0, FWHMY: 10.0, Converged: false}},
	}
	f := Aggregate(stars)
	if f.AvgFWHM != 4.0 {
		t.Errorf("AvgFWHM = %v, want 4.0 (non-converged fit excluded)", f.AvgFWHM)
	}
}
