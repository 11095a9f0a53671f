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

package testframe

import (
	"image"
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBlankAndChroma(t *testing.T) {
	tfm := NewTestFrameMaker(4, 2)
	plane := tfm.Blank()
	assert.Equal(t, []byte{255, 255, 255, 255, 255, 255, 255, 255}, plane)

	frame := tfm.WithChroma(plane)
	require.Len(t, frame, 12)
	assert.Equal(t, plane, frame[:8])
	assert.Equal(t, []byte{128, 128, 128, 128}, frame[8:])
}

func TestQRTooLarge(t *testing.T) {
	_, err := NewTestFrameMaker(10, 10).QR("this text won't fit in ten pixels")
	assert.Error(t, err)
}

func TestQRHasDarkModules(t *testing.T) {
	plane, err := NewTestFrameMaker(120, 100).QR("hi")
	require.NoError(t, err)
	require.Len(t, plane, 120*100)
	assert.Contains(t, plane, byte(black))
	assert.Contains(t, plane, byte(white))
}

func TestFromImage(t *testing.T) {
	img := image.NewRGBA(image.Rect(10, 10, 14, 12))
	img.Set(10, 10, color.White)
	img.Set(13, 11, color.RGBA{R: 100, G: 100, B: 100, A: 255})

	// Same size.
	assert.Equal(t, []byte{255, 0, 0, 0, 0, 0, 0, 100}, NewTestFrameMaker(4, 2).FromImage(img))

	// Half size picks the top left of each 2x2 block.
	assert.Equal(t, []byte{255, 0}, NewTestFrameMaker(2, 1).FromImage(img))
}
