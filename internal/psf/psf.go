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

// Package psf refines a detected star by fitting a parametric point
// spread function (Gaussian or Moffat) to a small region of interest
// around it via Levenberg-Marquardt non-linear least squares.
package psf

import (
	"fmt"
	"math"

	"github.com/noga-astro/frameqc/internal/fits"
	"gonum.org/v1/gonum/mat"
)

// Model selects the PSF functional form.
type Model int

const (
	Gaussian Model = iota
	Moffat
)

// moffatBeta is fixed; the Moffat fit never varies it.
const moffatBeta = 4.0

// roiSize is the default square ROI side, in original pixels.
const roiSize = 32

// gridSize is the bilinear-upsampled fitting grid side (0.5px spacing
// over a roiSize ROI).
const gridSize = roiSize * 2

const maxIterations = 100

// Fit is the outcome of fitting one PSF model to one star.
type Fit struct {
	Model          Model
	A, Cx, Cy      float64
	SigmaX, SigmaY float64 // Gaussian sigma, or Moffat alpha
	Theta          float64
	B              float64
	Beta           float64 // Moffat only
	FWHMX, FWHMY   float64
	Eccentricity   float64
	R2             float64
	RMSE           float64
	Converged      bool
}

// Run fits model to the ROI around (cx,cy) in frame, seeded from the star's
// detected HFR. cx,cy are in frame pixel coordinates.
func Run(frame *fits.Frame, cx, cy, hfr float64, model Model) (Fit, error) {
	w, h := int(frame.Width), int(frame.Height)
	if w == 0 || h == 0 {
		return Fit{}, fmt.Errorf("psf: empty frame")
	}

	roi, roiX0, roiY0 := extractROI(frame, cx, cy, roiSize)
	gridX, gridY, gridV := upsampleGrid(roi, roiX0, roiY0, roiSize)

	median := medianOf(roi)
	maxV, _ := maxOf(roi)
	initSigma := hfr / 2.355
	if initSigma < 0.5 {
		initSigma = 0.5
	}
	params := []float64{
		maxV - median, // A
		cx, cy,        // centroid
		initSigma, initSigma, // sigmaX, sigmaY (or alphaX, alphaY for Moffat)
		0,      // theta
		median, // B
	}
	initCx, initCy := cx, cy

	lower := []float64{1e-6, initCx - 2, initCy - 2, 0.5, 0.5, -math.Pi / 2, 0}
	upper := []float64{math.Inf(1), initCx + 2, initCy + 2, float64(roiSize) / 2, float64(roiSize) / 2, math.Pi / 2, math.Inf(1)}
	clampParams(params, lower, upper)

	eval := func(p []float64, x, y float64) float64 {
		return evalModel(model, p, x, y)
	}

	converged := levenbergMarquardt(params, lower, upper, gridX, gridY, gridV, eval)

	ssRes, ssTot := sumSquares(params, gridX, gridY, gridV, eval)
	n := float64(len(gridV))
	rmse := math.Sqrt(ssRes / n)
	r2 := 1.0
	if ssTot > 0 {
		r2 = 1 - ssRes/ssTot
	}

	sigmaX, sigmaY := params[3], params[4]
	var fwhmX, fwhmY float64
	if model == Gaussian {
		const k = 2.3548200450309493 // 2*sqrt(2*ln2)
		fwhmX, fwhmY = k*sigmaX, k*sigmaY
	} else {
		k := 2 * math.Sqrt(math.Pow(2, 1/moffatBeta)-1)
		fwhmX, fwhmY = k*sigmaX, k*sigmaY
	}

	minSigma, maxSigma := sigmaX, sigmaY
	if minSigma > maxSigma {
		minSigma, maxSigma = maxSigma, minSigma
	}
	ecc := 0.0
	if maxSigma > 0 {
		ratio := minSigma / maxSigma
		ecc = math.Sqrt(1 - ratio*ratio)
	}

	fit := Fit{
		Model:        model,
		A:            params[0],
		Cx:           params[1],
		Cy:           params[2],
		SigmaX:       sigmaX,
		SigmaY:       sigmaY,
		Theta:        params[5],
		B:            params[6],
		FWHMX:        fwhmX,
		FWHMY:        fwhmY,
		Eccentricity: ecc,
		R2:           r2,
		RMSE:         rmse,
		Converged:    converged,
	}
	if model == Moffat {
		fit.Beta = moffatBeta
	}
	return fit, nil
}

func evalModel(model Model, p []float64, x, y float64) float64 {
	A, cx, cy, sx, sy, theta, b := p[0], p[1], p[2], p[3], p[4], p[5], p[6]
	dx, dy := x-cx, y-cy
	ct, st := math.Cos(theta), math.Sin(theta)
	u := dx*ct + dy*st
	v := -dx*st + dy*ct
	switch model {
	case Gaussian:
		return A*math.Exp(-(u*u/(2*sx*sx)+v*v/(2*sy*sy))) + b
	default: // Moffat
		base := 1 + (u/sx)*(u/sx) + (v/sy)*(v/sy)
		return A*math.Pow(base, -moffatBeta) + b
	}
}

func sumSquares(p []float64, xs, ys, vs []float64, eval func([]float64, float64, float64) float64) (ssRes, ssTot float64) {
	var mean float64
	for _, v := range vs {
		mean += v
	}
	mean /= float64(len(vs))
	for i := range vs {
		pred := eval(p, xs[i], ys[i])
		r := vs[i] - pred
		ssRes += r * r
		d := vs[i] - mean
		ssTot += d * d
	}
	return
}

// extractROI extracts a roiSize x roiSize window centred on (cx,cy),
// padding out-of-bounds pixels with the mean of the in-bounds pixels (the
// local background estimate near edges).
func extractROI(frame *fits.Frame, cx, cy float64, size int) (roi []float64, x0, y0 int) {
	w, h := int(frame.Width), int(frame.Height)
	x0 = int(math.Round(cx)) - size/2
	y0 = int(math.Round(cy)) - size/2

	roi = make([]float64, size*size)
	var sum float64
	var count int
	for j := 0; j < size; j++ {
		for i := 0; i < size; i++ {
			x, y := x0+i, y0+j
			if x >= 0 && x < w && y >= 0 && y < h {
				v := float64(frame.Pixels[y*w+x])
				roi[j*size+i] = v
				sum += v
				count++
			}
		}
	}
	pad := 0.0
	if count > 0 {
		pad = sum / float64(count)
	}
	for j := 0; j < size; j++ {
		for i := 0; i < size; i++ {
			x, y := x0+i, y0+j
			if x < 0 || x >= w || y < 0 || y >= h {
				roi[j*size+i] = pad
			}
		}
	}
	return roi, x0, y0
}

// upsampleGrid bilinearly resamples roi (size x size, anchored at x0,y0)
// onto a gridSize x gridSize grid at 0.5-pixel spacing, returning parallel
// slices of (x,y,value) in frame pixel coordinates.
func upsampleGrid(roi []float64, x0, y0, size int) (xs, ys, vs []float64) {
	n := gridSize * gridSize
	xs, ys, vs = make([]float64, 0, n), make([]float64, 0, n), make([]float64, 0, n)
	at := func(i, j int) float64 {
		if i < 0 {
			i = 0
		} else if i >= size {
			i = size - 1
		}
		if j < 0 {
			j = 0
		} else if j >= size {
			j = size - 1
		}
		return roi[j*size+i]
	}
	for gj := 0; gj < gridSize; gj++ {
		fy := float64(gj) * 0.5
		j0 := int(math.Floor(fy))
		ty := fy - float64(j0)
		for gi := 0; gi < gridSize; gi++ {
			fx := float64(gi) * 0.5
			i0 := int(math.Floor(fx))
			tx := fx - float64(i0)
			v := at(i0, j0)*(1-tx)*(1-ty) + at(i0+1, j0)*tx*(1-ty) +
				at(i0, j0+1)*(1-tx)*ty + at(i0+1, j0+1)*tx*ty
			xs = append(xs, float64(x0)+fx)
			ys = append(ys, float64(y0)+fy)
			vs = append(vs, v)
		}
	}
	return xs, ys, vs
}

func medianOf(v []float64) float64 {
	sorted := append([]float64(nil), v...)
	insertionSort(sorted)
	return sorted[len(sorted)/2]
}

func maxOf(v []float64) (float64, int) {
	best, idx := v[0], 0
	for i, x := range v {
		if x > best {
			best, idx = x, i
		}
	}
	return best, idx
}

func insertionSort(v []float64) {
	for i := 1; i < len(v); i++ {
		key := v[i]
		j := i - 1
		for j >= 0 && v[j] > key {
			v[j+1] = v[j]
			j--
		}
		v[j+1] = key
	}
}

func clampParams(p []float64, lower, upper []float64) {
	for i := range p {
		if p[i] < lower[i] {
			p[i] = lower[i]
		}
		if p[i] > upper[i] {
			p[i] = upper[i]
		}
	}
}

// levenbergMarquardt fits params in place against (xs,ys,vs) using a
// numerically-differentiated Jacobian. Returns true iff it terminated on a
// convergence criterion rather than the iteration cap.
func levenbergMarquardt(params, lower, upper, xs, ys, vs []float64, eval func([]float64, float64, float64) float64) bool {
	n := len(vs)
	np := len(params)
	lambda := 1e-3

	residual := func(p []float64) *mat.VecDense {
		r := mat.NewVecDense(n, nil)
		for i := 0; i < n; i++ {
			r.SetVec(i, vs[i]-eval(p, xs[i], ys[i]))
		}
		return r
	}
	cost := func(r *mat.VecDense) float64 {
		return mat.Dot(r, r)
	}

	r := residual(params)
	prevCost := cost(r)

	for iter := 0; iter < maxIterations; iter++ {
		J := mat.NewDense(n, np, nil)
		h := 1e-5
		base := append([]float64(nil), params...)
		for j := 0; j < np; j++ {
			step := h * (math.Abs(base[j]) + 1)
			pPlus := append([]float64(nil), base...)
			pPlus[j] += step
			pMinus := append([]float64(nil), base...)
			pMinus[j] -= step
			for i := 0; i < n; i++ {
				fp := eval(pPlus, xs[i], ys[i])
				fm := eval(pMinus, xs[i], ys[i])
				J.Set(i, j, -(fp-fm)/(2*step))
			}
		}

		var JT mat.Dense
		JT.CloneFrom(J.T())
		var JTJ mat.Dense
		JTJ.Mul(&JT, J)
		var JTr mat.VecDense
		JTr.MulVec(&JT, r)

		var A mat.Dense
		A.CloneFrom(&JTJ)
		// The additive lambda term keeps the system solvable when a
		// parameter has no influence, e.g. theta while sigmaX == sigmaY.
		for d := 0; d < np; d++ {
			A.Set(d, d, A.At(d, d)*(1+lambda)+lambda)
		}

		var delta mat.VecDense
		if err := delta.SolveVec(&A, &JTr); err != nil {
			lambda *= 10
			continue
		}

		candidate := append([]float64(nil), params...)
		for i := range candidate {
			candidate[i] += delta.AtVec(i)
		}
		clampParams(candidate, lower, upper)

		newR := residual(candidate)
		newCost := cost(newR)

		if newCost < prevCost {
			relParamChange := relChange(params, candidate)
			relCostChange := math.Abs(prevCost-newCost) / math.Max(prevCost, 1e-300)

			copy(params, candidate)
			r = newR
			lambda /= 10
			if relParamChange < 1e-6 || relCostChange < 1e-6 {
				prevCost = newCost
				return true
			}
			prevCost = newCost
		} else {
			lambda *= 10
			if lambda > 1e12 {
				return false
			}
		}
	}
	return false
}

func relChange(old, new []float64) float64 {
	var maxRel float64
	for i := range old {
		denom := math.Max(math.Abs(old[i]), 1e-12)
		rel := math.Abs(new[i]-old[i]) / denom
		if rel > maxRel {
			maxRel = rel
		}
	}
	return maxRel
}
