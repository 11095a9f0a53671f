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

package luminance

import (
	"image"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func makePlane(width, height int) []byte {
	data := make([]byte, width*height)
	for i := range data {
		data[i] = byte(i)
	}
	return data
}

func TestWholeFrameView(t *testing.T) {
	data := makePlane(4, 3)
	v, err := New(data, 4, 3, image.Rectangle{})
	require.NoError(t, err)

	assert.Equal(t, 4, v.Width())
	assert.Equal(t, 3, v.Height())
	px, err := v.At(2, 1)
	require.NoError(t, err)
	assert.Equal(t, byte(6), px)
	assert.Equal(t, 4, v.Source().GetWidth())
	assert.Equal(t, 3, v.Source().GetHeight())

	row, err := v.Row(2, nil)
	require.NoError(t, err)
	assert.Equal(t, []byte{8, 9, 10, 11}, row)
}

func TestFramedView(t *testing.T) {
	data := makePlane(4, 3)
	v, err := New(data, 4, 3, image.Rect(1, 1, 3, 3))
	require.NoError(t, err)

	assert.Equal(t, 2, v.Width())
	assert.Equal(t, 2, v.Height())
	px, err := v.At(0, 0)
	require.NoError(t, err)
	assert.Equal(t, byte(5), px)

	// Points are relative to the framing rectangle.
	for _, p := range []image.Point{{2, 0}, {0, 2}, {-1, 0}, {0, -1}} {
		_, err := v.At(p.X, p.Y)
		assert.ErrorIs(t, err, ErrOutOfBounds, p)
	}

	buf := make([]byte, 10)
	row, err := v.Row(1, buf)
	require.NoError(t, err)
	assert.Equal(t, []byte{9, 10}, row)

	_, err = v.Row(2, buf)
	assert.ErrorIs(t, err, ErrOutOfBounds)

	cropped := v.RenderCropped()
	assert.Equal(t, image.Rect(0, 0, 2, 2), cropped.Bounds())
	assert.Equal(t, []byte{5, 6, 9, 10}, cropped.Pix)
}

func TestViewDoesNotCopyPlane(t *testing.T) {
	data := makePlane(4, 3)
	v, err := New(data, 4, 3, image.Rectangle{})
	require.NoError(t, err)

	data[0] = 200
	px, err := v.At(0, 0)
	require.NoError(t, err)
	assert.Equal(t, byte(200), px)
}

func TestFramingOutsideFrame(t *testing.T) {
	_, err := New(makePlane(4, 3), 4, 3, image.Rect(2, 0, 5, 3))
	assert.ErrorIs(t, err, ErrOutOfBounds)

	_, err = New(makePlane(4, 3), 4, 3, image.Rect(-1, 0, 2, 2))
	assert.ErrorIs(t, err, ErrOutOfBounds)

	_, err = New(makePlane(4, 2), 4, 3, image.Rectangle{})
	assert.ErrorIs(t, err, ErrOutOfBounds)
}

func TestRenderOutOfBounds(t *testing.T) {
	v, err := New(makePlane(4, 3), 4, 3, image.Rectangle{})
	require.NoError(t, err)

	_, err = v.Render(image.Rect(0, 0, 4, 4))
	assert.ErrorIs(t, err, ErrOutOfBounds)

	img, err := v.Render(image.Rect(3, 2, 4, 3))
	require.NoError(t, err)
	assert.Equal(t, []byte{11}, img.Pix)
}
