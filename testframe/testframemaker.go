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

// Package testframe makes synthetic preview frames for tests and for
// exercising a running decoder.
package testframe

import (
	"fmt"
	"image"
	"image/color"
	"math/rand"

	"github.com/makiuchi-d/gozxing"
	"github.com/makiuchi-d/gozxing/qrcode"
)

const (
	black = 0
	white = 255
)

type TestFrameMaker struct {
	Width         int
	Height        int
	BackgroundVal byte
	rand          *rand.Rand
}

func NewTestFrameMaker(width, height int) *TestFrameMaker {
	return &TestFrameMaker{
		Width:         width,
		Height:        height,
		BackgroundVal: white,
		rand:          rand.New(rand.NewSource(1)),
	}
}

// Blank returns a luminance plane filled with the background value.
func (tfm *TestFrameMaker) Blank() []byte {
	frame := make([]byte, tfm.Width*tfm.Height)
	for i := range frame {
		frame[i] = tfm.BackgroundVal
	}
	return frame
}

// Noise returns a luminance plane of random values.
func (tfm *TestFrameMaker) Noise() []byte {
	frame := make([]byte, tfm.Width*tfm.Height)
	tfm.rand.Read(frame)
	return frame
}

// QR returns a luminance plane with a QR code holding text drawn in the
// middle. The code fills the shorter side of the frame.
func (tfm *TestFrameMaker) QR(text string) ([]byte, error) {
	size := tfm.Width
	if tfm.Height < size {
		size = tfm.Height
	}
	matrix, err := qrcode.NewQRCodeWriter().Encode(text, gozxing.BarcodeFormat_QR_CODE, size, size, nil)
	if err != nil {
		return nil, err
	}

	if matrix.GetWidth() > tfm.Width || matrix.GetHeight() > tfm.Height {
		return nil, fmt.Errorf("%dx%d frame too small for QR code %q", tfm.Width, tfm.Height, text)
	}

	frame := tfm.Blank()
	offsetX := (tfm.Width - matrix.GetWidth()) / 2
	offsetY := (tfm.Height - matrix.GetHeight()) / 2
	for y := 0; y < matrix.GetHeight(); y++ {
		for x := 0; x < matrix.GetWidth(); x++ {
			v := byte(white)
			if matrix.Get(x, y) {
				v = black
			}
			frame[(y+offsetY)*tfm.Width+x+offsetX] = v
		}
	}
	return frame, nil
}

// FromImage returns the luminance of img scaled to the frame size with
// nearest neighbour sampling.
func (tfm *TestFrameMaker) FromImage(img image.Image) []byte {
	frame := make([]byte, tfm.Width*tfm.Height)
	b := img.Bounds()
	for y := 0; y < tfm.Height; y++ {
		sy := b.Min.Y + y*b.Dy()/tfm.Height
		for x := 0; x < tfm.Width; x++ {
			sx := b.Min.X + x*b.Dx()/tfm.Width
			frame[y*tfm.Width+x] = color.GrayModel.Convert(img.At(sx, sy)).(color.Gray).Y
		}
	}
	return frame
}

// WithChroma appends a neutral NV21 chroma plane to a luminance plane.
func (tfm *TestFrameMaker) WithChroma(plane []byte) []byte {
	frame := make([]byte, len(plane)+len(plane)/2)
	copy(frame, plane)
	for i := len(plane); i < len(frame); i++ {
		frame[i] = 128
	}
	return frame
}
