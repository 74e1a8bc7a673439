//go:build gocv

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
	"image"

	"gocv.io/x/gocv"
)

func init() {
	accelerated = CVBackend{}
}

// CVBackend implements Backend on top of OpenCV via gocv, for builds that
// opt into the gocv build tag and link against libopencv. It must agree
// with PureBackend to within the documented per-primitive tolerances; any
// panic here is caught by FallbackBackend and retried against PureBackend.
type CVBackend struct{}

func (CVBackend) Name() string { return "gocv" }

func grayToMat(g *Gray) gocv.Mat {
	mat := gocv.NewMatWithSize(g.Height, g.Width, gocv.MatTypeCV32F)
	for y := 0; y < g.Height; y++ {
		for x := 0; x < g.Width; x++ {
			mat.SetFloatAt(y, x, float32(g.At(x, y)))
		}
	}
	return mat
}

func matToGray(mat gocv.Mat) *Gray {
	height, width := mat.Rows(), mat.Cols()
	out := NewGray(width, height)
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			out.Set(x, y, float64(mat.GetFloatAt(y, x)))
		}
	}
	return out
}

func (CVBackend) Resize(img *Gray, width, height int) *Gray {
	src := grayToMat(img)
	defer src.Close()
	dst := gocv.NewMat()
	defer dst.Close()
	gocv.Resize(src, &dst, image.Pt(width, height), 0, 0, gocv.InterpolationCubic)
	return matToGray(dst)
}

func (CVBackend) GaussianBlur(img *Gray, sigma float64, kernelSize int) *Gray {
	src := grayToMat(img)
	defer src.Close()
	dst := gocv.NewMat()
	defer dst.Close()
	gocv.GaussianBlur(src, &dst, image.Pt(kernelSize, kernelSize), sigma, sigma, gocv.BorderReplicate)
	return matToGray(dst)
}

func (CVBackend) Canny(img *Gray, low, high float64, mode CannyMode) *Binary {
	src := img
	if mode == CannyWithBlur {
		srcMat := grayToMat(img)
		defer srcMat.Close()
		blurred := gocv.NewMat()
		defer blurred.Close()
		gocv.GaussianBlur(srcMat, &blurred, image.Pt(5, 5), 1.4, 1.4, gocv.BorderReplicate)
		src = matToGray(blurred)
	}

	u8 := gocv.NewMatWithSize(src.Height, src.Width, gocv.MatTypeCV8U)
	defer u8.Close()
	for y := 0; y < src.Height; y++ {
		for x := 0; x < src.Width; x++ {
			v := src.At(x, y)
			if v < 0 {
				v = 0
			} else if v > 255 {
				v = 255
			}
			u8.SetUCharAt(y, x, uint8(v))
		}
	}

	edges := gocv.NewMat()
	defer edges.Close()
	gocv.Canny(u8, &edges, float32(low), float32(high))

	out := NewBinary(src.Width, src.Height)
	for y := 0; y < src.Height; y++ {
		for x := 0; x < src.Width; x++ {
			out.Set(x, y, edges.GetUCharAt(y, x) != 0)
		}
	}
	return out
}

func (CVBackend) SISThreshold(img *Gray) float64 {
	// Otsu thresholding via gocv requires an 8U Mat; delegate to the
	// pure histogram implementation since it already operates on the
	// arbitrary-range float Gray buffer Canny hands it.
	return sisThreshold(img)
}

func (CVBackend) Dilate(mask *Binary, radius int, elliptical bool) *Binary {
	src := gocv.NewMatWithSize(mask.Height, mask.Width, gocv.MatTypeCV8U)
	defer src.Close()
	for y := 0; y < mask.Height; y++ {
		for x := 0; x < mask.Width; x++ {
			if mask.At(x, y) {
				src.SetUCharAt(y, x, 255)
			}
		}
	}

	shape := gocv.MorphRect
	if elliptical {
		shape = gocv.MorphEllipse
	}
	size := radius*2 + 1
	kernel := gocv.GetStructuringElement(shape, image.Pt(size, size))
	defer kernel.Close()

	dst := gocv.NewMat()
	defer dst.Close()
	gocv.Dilate(src, &dst, kernel)

	out := NewBinary(mask.Width, mask.Height)
	for y := 0; y < mask.Height; y++ {
		for x := 0; x < mask.Width; x++ {
			out.Set(x, y, dst.GetUCharAt(y, x) != 0)
		}
	}
	return out
}

func (CVBackend) ConnectedComponents(mask *Binary, conn Connectivity) []Blob {
	src := gocv.NewMatWithSize(mask.Height, mask.Width, gocv.MatTypeCV8U)
	defer src.Close()
	for y := 0; y < mask.Height; y++ {
		for x := 0; x < mask.Width; x++ {
			if mask.At(x, y) {
				src.SetUCharAt(y, x, 255)
			}
		}
	}

	contours := gocv.FindContours(src, gocv.RetrievalExternal, gocv.ChainApproxSimple)
	defer contours.Close()

	blobs := make([]Blob, 0, contours.Size())
	for i := 0; i < contours.Size(); i++ {
		contour := contours.At(i)
		rect := gocv.BoundingRect(contour)
		area := gocv.ContourArea(contour)
		m := gocv.Moments(contour, false)
		cx, cy := float64(rect.Min.X), float64(rect.Min.Y)
		if m["m00"] != 0 {
			cx = m["m10"] / m["m00"]
			cy = m["m01"] / m["m00"]
		}
		blobs = append(blobs, Blob{
			BBox:      BBox{MinX: rect.Min.X, MinY: rect.Min.Y, MaxX: rect.Max.X, MaxY: rect.Max.Y},
			Area:      int(area),
			CentroidX: cx,
			CentroidY: cy,
		})
	}
	return blobs
}
