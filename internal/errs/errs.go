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

// Package errs defines the stable reason-code taxonomy shared across the
// frame-quality pipeline. Every fatal error the pipeline returns carries one
// of these codes so callers can branch on behavior without parsing messages.
package errs

import "fmt"

// Reason is a stable, versioned error code. The human message attached to a
// Fault may change across releases; the Reason string must not.
type Reason string

const (
	ReasonFITSInvalidMagic        Reason = "fits.invalid_magic"
	ReasonFITSUnsupportedBitpix   Reason = "fits.unsupported_bitpix"
	ReasonFITSTruncated           Reason = "fits.truncated"
	ReasonFITSHeaderParse         Reason = "fits.header_parse"
	ReasonDimensionMismatch       Reason = "image.dimension_mismatch"
	ReasonDetectorNoStars         Reason = "detector.no_stars"
	ReasonPSFBoundsViolation      Reason = "psf.bounds_violation"
	ReasonPSFNonConvergence       Reason = "psf.non_convergence"
	ReasonGradingInsufficientData Reason = "grading.insufficient_data"
	ReasonCancelled               Reason = "cancelled"
)

// Fault wraps an underlying error with a stable Reason and the operation
// that produced it. Offset is meaningful only for faults built with NewAt:
// header-parse faults, where it names the byte offset of the offending
// header card, and truncated-header faults, where it names the offset of
// the missing header block.
type Fault struct {
	Reason Reason
	Op     string
	Offset int64
	Err    error
}

func (f *Fault) Error() string {
	if f.Err == nil {
		return fmt.Sprintf("%s: %s", f.Op, f.Reason)
	}
	return fmt.Sprintf("%s: %s: %s", f.Op, f.Reason, f.Err.Error())
}

func (f *Fault) Unwrap() error { return f.Err }

// New wraps err with the given reason and operation name.
func New(reason Reason, op string, err error) *Fault {
	return &Fault{Reason: reason, Op: op, Err: err}
}

// NewAt is New with a byte offset attached, for header faults.
func NewAt(reason Reason, op string, offset int64, err error) *Fault {
	return &Fault{Reason: reason, Op: op, Offset: offset, Err: err}
}

// Is reports whether err is a *Fault carrying the given reason.
func Is(err error, reason Reason) bool {
	var f *Fault
	for err != nil {
		if ff, ok := err.(*Fault); ok {
			f = ff
			break
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			break
		}
		err = u.Unwrap()
	}
	return f != nil && f.Reason == reason
}
