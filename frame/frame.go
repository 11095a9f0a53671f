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

package frame

import (
	"errors"
	"fmt"
)

// ErrInvalidDimensions is returned when a buffer can't hold a width x
// height luminance plane.
var ErrInvalidDimensions = errors.New("invalid frame dimensions")

// FrameBuffer holds one camera preview frame. The luminance plane comes
// first; any chroma planes after it are ignored.
type FrameBuffer struct {
	Data   []byte
	Width  int
	Height int
}

// NewFrameBuffer checks that data holds at least a width x height
// luminance plane.
func NewFrameBuffer(data []byte, width, height int) (FrameBuffer, error) {
	buf := FrameBuffer{Data: data, Width: width, Height: height}
	if err := buf.Validate(); err != nil {
		return FrameBuffer{}, err
	}
	return buf, nil
}

func (buf FrameBuffer) Validate() error {
	if _, err := planeSize(len(buf.Data), buf.Width, buf.Height); err != nil {
		return err
	}
	return nil
}

// Luminance returns the luminance plane of the buffer.
func (buf FrameBuffer) Luminance() ([]byte, error) {
	size, err := planeSize(len(buf.Data), buf.Width, buf.Height)
	if err != nil {
		return nil, err
	}
	return buf.Data[:size], nil
}

func planeSize(length, width, height int) (int, error) {
	if width <= 0 || height <= 0 {
		return 0, fmt.Errorf("%w: %dx%d", ErrInvalidDimensions, width, height)
	}
	// Checked by division so huge dimensions can't overflow.
	if width > length/height {
		return 0, fmt.Errorf("%w: %d bytes can't hold %dx%d", ErrInvalidDimensions, length, width, height)
	}
	return width * height, nil
}
