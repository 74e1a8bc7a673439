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
	"math"

	"gonum.org/v1/gonum/optimize"
)

// PureBackend is the deterministic, pure-Go reference implementation of
// every imaging primitive. It is always available and is the ground
// truth any accelerated backend must match.
type PureBackend struct{}

func (PureBackend) Name() string { return "pure" }

func (PureBackend) Resize(img *Gray, width, height int) *Gray {
	return bicubicResize(img, width, height)
}

// gaussianKernel1D builds a normalized 1-D Gaussian kernel of the given
// odd size and sigma.
func gaussianKernel1D(size int, sigma float64) []float64 {
	if size%2 == 0 {
		size++
	}
	k := make([]float64, size)
	half := size / 2
	var sum float64
	for i := range k {
		d := float64(i - half)
		v := math.Exp(-(d * d) / (2 * sigma * sigma))
		k[i] = v
		sum += v
	}
	for i := range k {
		k[i] /= sum
	}
	return k
}

func (PureBackend) GaussianBlur(img *Gray, sigma float64, kernelSize int) *Gray {
	return gaussianBlur(img, sigma, kernelSize)
}

// gaussianBlur applies a separable Gaussian kernel: one horizontal pass,
// then one vertical pass, each clamping to the image border.
func gaussianBlur(img *Gray, sigma float64, kernelSize int) *Gray {
	k := gaussianKernel1D(kernelSize, sigma)
	half := len(k) / 2

	horiz := NewGray(img.Width, img.Height)
	for y := 0; y < img.Height; y++ {
		for x := 0; x < img.Width; x++ {
			var sum float64
			for i, w := range k {
				sum += w * img.At(x+i-half, y)
			}
			horiz.Set(x, y, sum)
		}
	}

	out := NewGray(img.Width, img.Height)
	for y := 0; y < img.Height; y++ {
		for x := 0; x < img.Width; x++ {
			var sum float64
			for i, w := range k {
				sum += w * horiz.At(x, y+i-half)
			}
			out.Set(x, y, sum)
		}
	}
	return out
}

// sobel computes gradient magnitude and direction (quantized to 4 discrete
// directions: 0, 45, 90, 135 degrees) using the standard 3x3 Sobel
// operator.
func sobel(img *Gray) (mag *Gray, dir []int) {
	mag = NewGray(img.Width, img.Height)
	dir = make([]int, img.Width*img.Height)
	for y := 0; y < img.Height; y++ {
		for x := 0; x < img.Width; x++ {
			gx := img.At(x+1, y-1) + 2*img.At(x+1, y) + img.At(x+1, y+1) -
				img.At(x-1, y-1) - 2*img.At(x-1, y) - img.At(x-1, y+1)
			gy := img.At(x-1, y+1) + 2*img.At(x, y+1) + img.At(x+1, y+1) -
				img.At(x-1, y-1) - 2*img.At(x, y-1) - img.At(x+1, y-1)
			m := math.Hypot(gx, gy)
			mag.Set(x, y, m)

			angle := math.Atan2(gy, gx) * 180 / math.Pi
			if angle < 0 {
				angle += 180
			}
			idx := y*img.Width + x
			switch {
			case angle < 22.5 || angle >= 157.5:
				dir[idx] = 0
			case angle < 67.5:
				dir[idx] = 45
			case angle < 112.5:
				dir[idx] = 90
			default:
				dir[idx] = 135
			}
		}
	}
	return mag, dir
}

// SobelMagnitude returns the Sobel gradient magnitude image, exposed so
// callers can feed it to SISThreshold to derive Canny's thresholds from
// the actual edge response rather than a fixed pair of constants.
func SobelMagnitude(img *Gray) *Gray {
	mag, _ := sobel(img)
	return mag
}

func (PureBackend) Canny(img *Gray, low, high float64, mode CannyMode) *Binary {
	return canny(img, low, high, mode)
}

// canny implements Canny edge detection: optional internal pre-blur
// (sigma=1.4, kernel 5, per the WithBlur variant), Sobel gradient,
// non-maximum suppression, then double-threshold hysteresis.
func canny(img *Gray, low, high float64, mode CannyMode) *Binary {
	src := img
	if mode == CannyWithBlur {
		src = gaussianBlur(img, 1.4, 5)
	}
	mag, dir := sobel(src)

	suppressed := NewGray(img.Width, img.Height)
	for y := 1; y < img.Height-1; y++ {
		for x := 1; x < img.Width-1; x++ {
			m := mag.At(x, y)
			var n1, n2 float64
			switch dir[y*img.Width+x] {
			case 0:
				n1, n2 = mag.At(x-1, y), mag.At(x+1, y)
			case 45:
				n1, n2 = mag.At(x-1, y+1), mag.At(x+1, y-1)
			case 90:
				n1, n2 = mag.At(x, y-1), mag.At(x, y+1)
			default:
				n1, n2 = mag.At(x-1, y-1), mag.At(x+1, y+1)
			}
			if m >= n1 && m >= n2 {
				suppressed.Set(x, y, m)
			}
		}
	}

	strong := NewBinary(img.Width, img.Height)
	weak := NewBinary(img.Width, img.Height)
	for i, v := range suppressed.Pix {
		// Pixels removed by non-maximum suppression (or with no gradient at
		// all) are never edges, even when a threshold is zero.
		if v <= 0 {
			continue
		}
		if v >= high {
			strong.Bits[i] = true
		} else if v >= low {
			weak.Bits[i] = true
		}
	}

	// Hysteresis: promote weak pixels 8-connected to a strong pixel,
	// iterating to a fixed point.
	out := NewBinary(img.Width, img.Height)
	copy(out.Bits, strong.Bits)
	changed := true
	for changed {
		changed = false
		for y := 0; y < img.Height; y++ {
			for x := 0; x < img.Width; x++ {
				idx := y*img.Width + x
				if !weak.Bits[idx] || out.Bits[idx] {
					continue
				}
				if hasStrongNeighbor(out, x, y) {
					out.Bits[idx] = true
					changed = true
				}
			}
		}
	}
	return out
}

func hasStrongNeighbor(b *Binary, x, y int) bool {
	for dy := -1; dy <= 1; dy++ {
		for dx := -1; dx <= 1; dx++ {
			if dx == 0 && dy == 0 {
				continue
			}
			if b.At(x+dx, y+dy) {
				return true
			}
		}
	}
	return false
}

func (PureBackend) SISThreshold(img *Gray) float64 {
	return sisThreshold(img)
}

// sisThreshold computes the Otsu-style between-class variance maximizing
// threshold over a 256-bin histogram of img.
func sisThreshold(img *Gray) float64 {
	if len(img.Pix) == 0 {
		return 0
	}
	minV, maxV := img.Pix[0], img.Pix[0]
	for _, v := range img.Pix {
		if v < minV {
			minV = v
		}
		if v > maxV {
			maxV = v
		}
	}
	if maxV <= minV {
		return minV
	}

	const bins = 256
	var hist [bins]int
	scale := float64(bins-1) / (maxV - minV)
	for _, v := range img.Pix {
		bin := int((v - minV) * scale)
		if bin < 0 {
			bin = 0
		} else if bin >= bins {
			bin = bins - 1
		}
		hist[bin]++
	}

	total := len(img.Pix)
	var sumAll float64
	for i, c := range hist {
		sumAll += float64(i) * float64(c)
	}

	var sumB, wB float64
	var best float64
	bestBin := 0
	for t := 0; t < bins; t++ {
		wB += float64(hist[t])
		if wB == 0 {
			continue
		}
		wF := float64(total) - wB
		if wF == 0 {
			break
		}
		sumB += float64(t) * float64(hist[t])
		mB := sumB / wB
		mF := (sumAll - sumB) / wF
		between := wB * wF * (mB - mF) * (mB - mF)
		if between > best {
			best = between
			bestBin = t
		}
	}
	coarse := minV + float64(bestBin)/scale
	return refineThreshold(img.Pix, coarse, 1/scale)
}

// refineThreshold polishes the 256-bin Otsu estimate into a continuous
// threshold by minimizing the negative between-class variance with
// Nelder-Mead, constrained to one bin width around the coarse estimate.
func refineThreshold(pix []float64, coarse, binWidth float64) float64 {
	if len(pix) == 0 || binWidth <= 0 {
		return coarse
	}
	objective := func(x []float64) float64 {
		t := x[0]
		var sumB, sumF, wB, wF float64
		for _, v := range pix {
			if v <= t {
				sumB += v
				wB++
			} else {
				sumF += v
				wF++
			}
		}
		if wB == 0 || wF == 0 {
			return 0
		}
		mB := sumB / wB
		mF := sumF / wF
		between := wB * wF * (mB - mF) * (mB - mF)
		return -between
	}
	problem := optimize.Problem{Func: objective}
	result, err := optimize.Minimize(problem, []float64{coarse}, nil, &optimize.NelderMead{})
	if err != nil || result == nil {
		return coarse
	}
	refined := result.X[0]
	if refined < coarse-binWidth || refined > coarse+binWidth {
		return coarse
	}
	return refined
}

func (PureBackend) Dilate(mask *Binary, radius int, elliptical bool) *Binary {
	return dilate(mask, radius, elliptical)
}

// dilate applies binary dilation with either a square 3x3 structuring
// element (radius=1, elliptical=false, one iteration) or, for the
// Enhanced star detector variant, an elliptical structuring element of
// the given radius.
func dilate(mask *Binary, radius int, elliptical bool) *Binary {
	out := NewBinary(mask.Width, mask.Height)
	r2 := float64(radius * radius)
	for y := 0; y < mask.Height; y++ {
		for x := 0; x < mask.Width; x++ {
			set := false
			for dy := -radius; dy <= radius && !set; dy++ {
				for dx := -radius; dx <= radius; dx++ {
					if elliptical && float64(dx*dx+dy*dy) > r2 {
						continue
					}
					if mask.At(x+dx, y+dy) {
						set = true
						break
					}
				}
			}
			out.Set(x, y, set)
		}
	}
	return out
}

func (PureBackend) ConnectedComponents(mask *Binary, conn Connectivity) []Blob {
	return connectedComponents(mask, conn)
}

// connectedComponents labels mask via breadth-first flood fill and
// summarizes each component's bounding box, area and centroid.
func connectedComponents(mask *Binary, conn Connectivity) []Blob {
	visited := make([]bool, mask.Width*mask.Height)
	var blobs []Blob

	var neighbors [][2]int
	if conn == Connectivity8 {
		neighbors = [][2]int{{-1, -1}, {0, -1}, {1, -1}, {-1, 0}, {1, 0}, {-1, 1}, {0, 1}, {1, 1}}
	} else {
		neighbors = [][2]int{{0, -1}, {-1, 0}, {1, 0}, {0, 1}}
	}

	queue := make([][2]int, 0, 64)
	for y := 0; y < mask.Height; y++ {
		for x := 0; x < mask.Width; x++ {
			idx := y*mask.Width + x
			if visited[idx] || !mask.Bits[idx] {
				continue
			}

			queue = queue[:0]
			queue = append(queue, [2]int{x, y})
			visited[idx] = true

			minX, minY, maxX, maxY := x, y, x+1, y+1
			area := 0
			var sumX, sumY float64

			for len(queue) > 0 {
				p := queue[0]
				queue = queue[1:]
				px, py := p[0], p[1]
				area++
				sumX += float64(px)
				sumY += float64(py)
				if px < minX {
					minX = px
				}
				if px+1 > maxX {
					maxX = px + 1
				}
				if py < minY {
					minY = py
				}
				if py+1 > maxY {
					maxY = py + 1
				}

				for _, n := range neighbors {
					nx, ny := px+n[0], py+n[1]
					if nx < 0 || nx >= mask.Width || ny < 0 || ny >= mask.Height {
						continue
					}
					nidx := ny*mask.Width + nx
					if visited[nidx] || !mask.Bits[nidx] {
						continue
					}
					visited[nidx] = true
					queue = append(queue, [2]int{nx, ny})
				}
			}

			blobs = append(blobs, Blob{
				BBox:      BBox{MinX: minX, MinY: minY, MaxX: maxX, MaxY: maxY},
				Area:      area,
				CentroidX: sumX / float64(area),
				CentroidY: sumY / float64(area),
			})
		}
	}
	return blobs
}
