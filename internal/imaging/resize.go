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
	"image/color"

	"golang.org/x/image/draw"
)

// grayImage adapts a Gray buffer to image.Image so it can be fed to the
// golang.org/x/image/draw scalers, which expect the standard library's
// image interfaces rather than a bespoke float64 buffer.
type grayImage struct {
	g *Gray
}

func (a grayImage) ColorModel() color.Model { return color.Gray16Model }
func (a grayImage) Bounds() image.Rectangle { return image.Rect(0, 0, a.g.Width, a.g.Height) }
func (a grayImage) At(x, y int) color.Color {
	v := a.g.At(x, y)
	if v < 0 {
		v = 0
	} else if v > 65535 {
		v = 65535
	}
	return color.Gray16{Y: uint16(v + 0.5)}
}

// bicubicResize resizes img to (width,height) using the Catmull-Rom
// (bicubic) scaler with pixel-centre sample coordinates, which is
// draw.CatmullRom's convention.
func bicubicResize(img *Gray, width, height int) *Gray {
	if width <= 0 || height <= 0 {
		return NewGray(0, 0)
	}
	src := grayImage{g: img}
	dst := image.NewGray16(image.Rect(0, 0, width, height))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Src, nil)

	out := NewGray(width, height)
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			out.Set(x, y, float64(dst.Gray16At(x, y).Y))
		}
	}
	return out
}
