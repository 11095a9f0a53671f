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

package dispatch

import (
	"fmt"
	"image"

	"github.com/TheCacophonyProject/frame-decoder/frame"
)

const (
	Clockwise        = "clockwise"
	CounterClockwise = "counter-clockwise"
	NoRotation       = "none"
)

type Config struct {
	Orientation string `yaml:"orientation"`
	FramingRect Rect   `yaml:"framing-rect"`
}

// Rect is a framing rectangle in rotated frame coordinates. A zero
// width or height means the whole frame.
type Rect struct {
	Left   int `yaml:"left"`
	Top    int `yaml:"top"`
	Width  int `yaml:"width"`
	Height int `yaml:"height"`
}

func (r Rect) Rectangle() image.Rectangle {
	if r.Width == 0 || r.Height == 0 {
		return image.Rectangle{}
	}
	return image.Rect(r.Left, r.Top, r.Left+r.Width, r.Top+r.Height)
}

func DefaultConfig() Config {
	return Config{
		Orientation: Clockwise,
	}
}

func (conf *Config) Validate() error {
	if _, err := rotator(conf.Orientation); err != nil {
		return err
	}
	r := conf.FramingRect
	if r.Left < 0 || r.Top < 0 || r.Width < 0 || r.Height < 0 {
		return fmt.Errorf("framing-rect can't be negative: %+v", r)
	}
	return nil
}

type rotateFunc func(data []byte, width, height int) ([]byte, int, int, error)

func rotator(orientation string) (rotateFunc, error) {
	switch orientation {
	case Clockwise, "":
		return frame.Rotate, nil
	case CounterClockwise:
		return frame.RotateCounterClockwise, nil
	case NoRotation:
		return func(data []byte, width, height int) ([]byte, int, int, error) {
			return data, width, height, nil
		}, nil
	}
	return nil, fmt.Errorf("unknown orientation %q", orientation)
}
