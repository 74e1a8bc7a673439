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
	"log/slog"
	"strings"
	"testing"
)

func TestVerifyAgainstPureIsReflexive(t *testing.T) {
	if err := VerifyAgainstPure(PureBackend{}, 3); err != nil {
		t.Fatalf("pure backend must agree with itself: %v", err)
	}
}

// offsetBackend shifts every pixel of every Gray output, far past the
// documented tolerance, to exercise the comparison harness.
type offsetBackend struct {
	PureBackend
}

func (b offsetBackend) Resize(img *Gray, width, height int) *Gray {
	out := b.PureBackend.Resize(img, width, height)
	for i := range out.Pix {
		out.Pix[i] += 50
	}
	return out
}

func TestVerifyAgainstPureCatchesDivergence(t *testing.T) {
	err := VerifyAgainstPure(offsetBackend{}, 1)
	if err == nil {
		t.Fatalf("expected a tolerance violation")
	}
	if !strings.Contains(err.Error(), "Resize") {
		t.Errorf("error should name the diverging primitive, got %v", err)
	}
}

// panicBackend fails every call, the accelerated backend's documented
// failure mode.
type panicBackend struct {
	PureBackend
}

func (panicBackend) Name() string { return "panicky" }

func (panicBackend) GaussianBlur(img *Gray, sigma float64, kernelSize int) *Gray {
	panic("accelerated call failed")
}

func TestFallbackBackendRecoversToPure(t *testing.T) {
	fb := &FallbackBackend{Primary: panicBackend{}, Logger: slog.Default()}

	img := NewGray(8, 8)
	for i := range img.Pix {
		img.Pix[i] = 42
	}
	out := fb.GaussianBlur(img, 1.5, 5)
	want := PureBackend{}.GaussianBlur(img, 1.5, 5)
	if err := compareGray("GaussianBlur", out, want); err != nil {
		t.Errorf("fallback output should match the pure backend: %v", err)
	}
}
