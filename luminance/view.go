// frame-decoder - decode barcodes from camera preview frames
//  Copyright (C) 2021, The Cacophony Project
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
// along with this program. If not, see <http://www.gnu.org/licenses/>.

// Package luminance wraps a raw luminance plane so the decode engine
// can read it. A View never copies or modifies the plane it wraps.
package luminance

import (
	"errors"
	"fmt"
	"image"

	"github.com/makiuchi-d/gozxing"
)

var ErrOutOfBounds = errors.New("rectangle outside of frame")

// View is a read only window onto a luminance plane. Its framing
// rectangle is the region handed to the decode engine.
type View struct {
	data       []byte
	dataWidth  int
	dataHeight int
	rect       image.Rectangle
	source     gozxing.LuminanceSource
}

// New creates a View of a width x height plane. An empty framing
// rectangle selects the whole plane.
func New(data []byte, width, height int, framing image.Rectangle) (*View, error) {
	if width <= 0 || height <= 0 || width > len(data)/height {
		return nil, fmt.Errorf("%w: %d bytes for %dx%d", ErrOutOfBounds, len(data), width, height)
	}
	bounds := image.Rect(0, 0, width, height)
	if framing.Empty() {
		framing = bounds
	}
	if !framing.In(bounds) {
		return nil, fmt.Errorf("%w: %v not in %v", ErrOutOfBounds, framing, bounds)
	}

	source, err := gozxing.NewPlanarYUVLuminanceSource(
		data, width, height,
		framing.Min.X, framing.Min.Y, framing.Dx(), framing.Dy(),
		false)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrOutOfBounds, err)
	}

	return &View{
		data:       data,
		dataWidth:  width,
		dataHeight: height,
		rect:       framing,
		source:     source,
	}, nil
}

// Width of the framing rectangle.
func (v *View) Width() int {
	return v.rect.Dx()
}

// Height of the framing rectangle.
func (v *View) Height() int {
	return v.rect.Dy()
}

// DataSize returns the dimensions of the whole plane.
func (v *View) DataSize() (int, int) {
	return v.dataWidth, v.dataHeight
}

// Rect returns the framing rectangle in plane coordinates.
func (v *View) Rect() image.Rectangle {
	return v.rect
}

// At returns the luminance at (x, y) relative to the framing rectangle.
func (v *View) At(x, y int) (byte, error) {
	if x < 0 || y < 0 || x >= v.Width() || y >= v.Height() {
		return 0, fmt.Errorf("%w: point (%d, %d)", ErrOutOfBounds, x, y)
	}
	return v.data[(y+v.rect.Min.Y)*v.dataWidth+x+v.rect.Min.X], nil
}

// Row copies row y of the framing rectangle into row, allocating it if
// it is too small.
func (v *View) Row(y int, row []byte) ([]byte, error) {
	if y < 0 || y >= v.Height() {
		return nil, fmt.Errorf("%w: row %d", ErrOutOfBounds, y)
	}
	if len(row) < v.Width() {
		row = make([]byte, v.Width())
	}
	offset := (y+v.rect.Min.Y)*v.dataWidth + v.rect.Min.X
	copy(row, v.data[offset:offset+v.Width()])
	return row[:v.Width()], nil
}

// Source returns the view as a gozxing luminance source.
func (v *View) Source() gozxing.LuminanceSource {
	return v.source
}

// RenderCropped renders the framing rectangle as a greyscale image.
func (v *View) RenderCropped() *image.Gray {
	img, _ := v.Render(v.rect)
	return img
}

// Render copies rect, in plane coordinates, into a new greyscale image
// whose bounds start at the origin.
func (v *View) Render(rect image.Rectangle) (*image.Gray, error) {
	bounds := image.Rect(0, 0, v.dataWidth, v.dataHeight)
	if rect.Empty() || !rect.In(bounds) {
		return nil, fmt.Errorf("%w: %v not in %v", ErrOutOfBounds, rect, bounds)
	}

	img := image.NewGray(image.Rect(0, 0, rect.Dx(), rect.Dy()))
	for y := 0; y < rect.Dy(); y++ {
		offset := (y+rect.Min.Y)*v.dataWidth + rect.Min.X
		copy(img.Pix[y*img.Stride:], v.data[offset:offset+rect.Dx()])
	}
	return img, nil
}
