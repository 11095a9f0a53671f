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

import "fmt"

// Rotate turns a width x height luminance plane 90 degrees clockwise
// relative to the sensor's natural orientation. It returns a new buffer
// and the swapped dimensions. data must be exactly width*height bytes.
func Rotate(data []byte, width, height int) ([]byte, int, int, error) {
	if err := checkPlane(data, width, height); err != nil {
		return nil, 0, 0, err
	}

	rotated := make([]byte, len(data))
	for y := 0; y < height; y++ {
		row := data[y*width : (y+1)*width]
		for x, v := range row {
			rotated[x*height+height-y-1] = v
		}
	}
	return rotated, height, width, nil
}

// RotateCounterClockwise undoes Rotate.
func RotateCounterClockwise(data []byte, width, height int) ([]byte, int, int, error) {
	if err := checkPlane(data, width, height); err != nil {
		return nil, 0, 0, err
	}

	rotated := make([]byte, len(data))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			rotated[(width-x-1)*height+y] = data[x+y*width]
		}
	}
	return rotated, height, width, nil
}

func checkPlane(data []byte, width, height int) error {
	size, err := planeSize(len(data), width, height)
	if err != nil {
		return err
	}
	if size != len(data) {
		return fmt.Errorf("%w: %d bytes for a %dx%d plane", ErrInvalidDimensions, len(data), width, height)
	}
	return nil
}
