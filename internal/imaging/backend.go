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
	"sync"

	"github.com/klauspost/cpuid/v2"
)

// CannyMode selects whether Canny performs its own internal pre-blur.
type CannyMode int

const (
	CannyWithBlur CannyMode = iota
	CannyNoBlur
)

// Backend is the set of imaging primitives a caller depends on. PureBackend
// is the ground truth; an accelerated backend (built with the gocv build
// tag) may be substituted, but must agree with PureBackend to within the
// documented tolerances.
type Backend interface {
	Name() string
	Resize(img *Gray, width, height int) *Gray
	GaussianBlur(img *Gray, sigma float64, kernelSize int) *Gray
	Canny(img *Gray, low, high float64, mode CannyMode) *Binary
	SISThreshold(img *Gray) float64
	Dilate(mask *Binary, radius int, elliptical bool) *Binary
	ConnectedComponents(mask *Binary, conn Connectivity) []Blob
}

var (
	pureBackend = &PureBackend{}

	// accelerated is nil unless a build with the gocv tag registers a
	// CVBackend via init().
	accelerated Backend

	selectOnce      sync.Once
	selectedBackend Backend
)

// Select returns the process-wide backend: the accelerated backend if one
// was registered (via an accelerated build) and the CPU supports the
// instruction sets it relies on, otherwise PureBackend. An accelerated
// backend is always wrapped in FallbackBackend so a per-call failure
// degrades to the pure implementation instead of crashing the frame.
// The choice and the CPU brand name are logged once.
func Select(logger *slog.Logger) Backend {
	selectOnce.Do(func() {
		selectedBackend = pureBackend
		if accelerated != nil && cpuid.CPU.Supports(cpuid.SSE2) {
			selectedBackend = &FallbackBackend{Primary: accelerated, Logger: logger}
		}
		if logger != nil {
			logger.Info("imaging backend selected",
				"backend", selectedBackend.Name(),
				"cpu", cpuid.CPU.BrandName)
		}
	})
	return selectedBackend
}

// FallbackBackend wraps a primary backend and transparently falls back to
// PureBackend on any method that panics (the accelerated backend's
// documented failure mode), logging the fallback exactly once per process.
type FallbackBackend struct {
	Primary Backend
	Logger  *slog.Logger

	loggedOnce sync.Once
}

func (f *FallbackBackend) Name() string { return f.Primary.Name() }

func (f *FallbackBackend) logFallback(op string, r any) {
	f.loggedOnce.Do(func() {
		if f.Logger != nil {
			f.Logger.Warn("imaging accelerated backend failed, falling back to pure",
				"op", op, "error", r)
		}
	})
}

func (f *FallbackBackend) Resize(img *Gray, width, height int) (out *Gray) {
	defer func() {
		if r := recover(); r != nil {
			f.logFallback("Resize", r)
			out = pureBackend.Resize(img, width, height)
		}
	}()
	return f.Primary.Resize(img, width, height)
}

func (f *FallbackBackend) GaussianBlur(img *Gray, sigma float64, kernelSize int) (out *Gray) {
	defer func() {
		if r := recover(); r != nil {
			f.logFallback("GaussianBlur", r)
			out = pureBackend.GaussianBlur(img, sigma, kernelSize)
		}
	}()
	return f.Primary.GaussianBlur(img, sigma, kernelSize)
}

func (f *FallbackBackend) Canny(img *Gray, low, high float64, mode CannyMode) (out *Binary) {
	defer func() {
		if r := recover(); r != nil {
			f.logFallback("Canny", r)
			out = pureBackend.Canny(img, low, high, mode)
		}
	}()
	return f.Primary.Canny(img, low, high, mode)
}

func (f *FallbackBackend) SISThreshold(img *Gray) (out float64) {
	defer func() {
		if r := recover(); r != nil {
			f.logFallback("SISThreshold", r)
			out = pureBackend.SISThreshold(img)
		}
	}()
	return f.Primary.SISThreshold(img)
}

func (f *FallbackBackend) Dilate(mask *Binary, radius int, elliptical bool) (out *Binary) {
	defer func() {
		if r := recover(); r != nil {
			f.logFallback("Dilate", r)
			out = pureBackend.Dilate(mask, radius, elliptical)
		}
	}()
	return f.Primary.Dilate(mask, radius, elliptical)
}

func (f *FallbackBackend) ConnectedComponents(mask *Binary, conn Connectivity) (out []Blob) {
	defer func() {
		if r := recover(); r != nil {
			f.logFallback("ConnectedComponents", r)
			out = pureBackend.ConnectedComponents(mask, conn)
		}
	}()
	return f.Primary.ConnectedComponents(mask, conn)
}
