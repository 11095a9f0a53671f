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

// Package headers reads and writes the description a camera sends at
// the start of a frame stream. The header is YAML terminated by a blank
// line.
package headers

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"strings"

	"gopkg.in/yaml.v1"
)

const (
	XResolution = "ResX"
	YResolution = "ResY"
	FPS         = "FPS"
	FrameSize   = "FrameSize"
	Brand       = "Brand"
	Model       = "Model"
)

// HeaderInfo contains the camera description fields sent by a camera.
type HeaderInfo struct {
	resX      int
	resY      int
	fps       int
	framesize int
	brand     string
	model     string
}

func New(resX, resY, fps, framesize int, brand, model string) *HeaderInfo {
	return &HeaderInfo{
		resX:      resX,
		resY:      resY,
		fps:       fps,
		framesize: framesize,
		brand:     brand,
		model:     model,
	}
}

func (h *HeaderInfo) ResX() int {
	return h.resX
}

func (h *HeaderInfo) ResY() int {
	return h.resY
}

func (h *HeaderInfo) FPS() int {
	return h.fps
}

// FrameSize returns the number of bytes in each frame, including any
// chroma planes following the luminance plane.
func (h *HeaderInfo) FrameSize() int {
	return h.framesize
}

// Model returns the camera model.
func (h *HeaderInfo) Model() string {
	return h.model
}

// Brand returns the camera brand.
func (h *HeaderInfo) Brand() string {
	return h.brand
}

// MaxResolution is the largest width or height accepted from a camera.
const MaxResolution = 1 << 14

// Validate checks that frames described by the header hold a full
// luminance plane and at most one 4:2:0 chroma plane after it.
func (h *HeaderInfo) Validate() error {
	if h.resX <= 0 || h.resY <= 0 || h.resX > MaxResolution || h.resY > MaxResolution {
		return fmt.Errorf("invalid resolution %dx%d", h.resX, h.resY)
	}
	if h.framesize < h.resX*h.resY {
		return fmt.Errorf("frame size %d too small for %dx%d", h.framesize, h.resX, h.resY)
	}
	if max := MaxFrameSize(h.resX, h.resY); h.framesize > max {
		return fmt.Errorf("frame size %d too large for %dx%d, max is %d", h.framesize, h.resX, h.resY, max)
	}
	return nil
}

// MaxFrameSize returns the size of a width x height frame with a 4:2:0
// chroma plane, as sent by NV21 and YV12 camera previews.
func MaxFrameSize(width, height int) int {
	chroma := 2 * ((width + 1) / 2) * ((height + 1) / 2)
	return width*height + chroma
}

func ReadHeaderInfo(reader *bufio.Reader) (*HeaderInfo, error) {
	var buf bytes.Buffer
	for {
		line, err := reader.ReadString(byte('\n'))
		if err != nil {
			return nil, err
		}
		if strings.TrimRight(line, " \r\n") == "" {
			break
		}
		buf.WriteString(line)
	}
	h := make(map[string]interface{})
	err := yaml.Unmarshal(buf.Bytes(), &h)
	if err != nil {
		return nil, err
	}

	return &HeaderInfo{
		resX:      toInt(h[XResolution]),
		resY:      toInt(h[YResolution]),
		fps:       toInt(h[FPS]),
		framesize: toInt(h[FrameSize]),
		brand:     toStr(h[Brand]),
		model:     toStr(h[Model]),
	}, nil
}

// WriteHeaderInfo writes h followed by the terminating blank line.
func WriteHeaderInfo(w io.Writer, h *HeaderInfo) error {
	out, err := yaml.Marshal(map[string]interface{}{
		XResolution: h.resX,
		YResolution: h.resY,
		FPS:         h.fps,
		FrameSize:   h.framesize,
		Brand:       h.brand,
		Model:       h.model,
	})
	if err != nil {
		return err
	}
	out = append(out, '\n')
	_, err = w.Write(out)
	return err
}

func toInt(v interface{}) int {
	out, ok := v.(int)
	if !ok {
		return 0
	}
	return out
}

func toStr(v interface{}) string {
	out, ok := v.(string)
	if !ok {
		return ""
	}
	return out
}
