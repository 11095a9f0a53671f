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

package snapshot

import (
	"bufio"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"io/ioutil"
	"os"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"
)

const (
	AppDirName      = "MyCameraApp"
	timestampFormat = "20060102_150405"
	filePrefix      = "IMG_"
	jpegExt         = ".jpg"
	rawExt          = ".raw"
)

type Config struct {
	PicturesDir string `yaml:"pictures-dir"`
	Quality     int    `yaml:"quality"`
	Raw         bool   `yaml:"raw"`
}

func DefaultConfig() Config {
	return Config{
		PicturesDir: "/var/lib/frame-decoder/pictures",
		Quality:     80,
		Raw:         false,
	}
}

func (conf *Config) Validate() error {
	if conf.PicturesDir == "" {
		return errors.New("pictures-dir must be set")
	}
	if conf.Quality < 1 || conf.Quality > 100 {
		return errors.New("quality should be in range 1 - 100")
	}
	return nil
}

// Persister writes greyscale stills of processed frames. Stills are named
// by the second they were taken in, so a later still in the same second
// replaces an earlier one.
type Persister struct {
	dir     string
	quality int
	raw     bool
	nowFunc func() time.Time
	log     logrus.FieldLogger
}

func New(conf Config, log logrus.FieldLogger) *Persister {
	return &Persister{
		dir:     filepath.Join(conf.PicturesDir, AppDirName),
		quality: conf.Quality,
		raw:     conf.Raw,
		nowFunc: time.Now,
		log:     log,
	}
}

// Dir returns the directory stills are written to.
func (p *Persister) Dir() string {
	return p.dir
}

// Save writes a width x height luminance plane as a JPEG still and
// returns the file name.
func (p *Persister) Save(data []byte, width, height int) (string, error) {
	if width <= 0 || height <= 0 || width > len(data)/height {
		return "", fmt.Errorf("can't save %d bytes as %dx%d", len(data), width, height)
	}
	if err := os.MkdirAll(p.dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create directory: %w", err)
	}

	base := filepath.Join(p.dir, filePrefix+p.nowFunc().Format(timestampFormat))
	filename := base + jpegExt
	if err := writeJPEG(filename, Greyscale(data, width, height), p.quality); err != nil {
		return "", err
	}

	if p.raw {
		if err := ioutil.WriteFile(base+rawExt, data[:width*height], 0644); err != nil {
			return filename, err
		}
	}
	p.log.Debugf("saved snapshot %s", filename)
	return filename, nil
}

func writeJPEG(filename string, img image.Image, quality int) error {
	out, err := os.Create(filename)
	if err != nil {
		return err
	}
	bw := bufio.NewWriter(out)
	if err := jpeg.Encode(bw, img, &jpeg.Options{Quality: quality}); err != nil {
		out.Close()
		return err
	}
	if err := bw.Flush(); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

// Greyscale renders a luminance plane as opaque RGBA, copying each
// luminance value into the red, green and blue channels.
func Greyscale(data []byte, width, height int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		row := data[y*width : (y+1)*width]
		for x, v := range row {
			img.SetRGBA(x, y, greyPixel(v))
		}
	}
	return img
}

// greyPixel is the ARGB pixel 0xFF000000 | v*0x00010101.
func greyPixel(v byte) color.RGBA {
	argb := 0xFF000000 | uint32(v)*0x00010101
	return color.RGBA{
		R: uint8(argb >> 16),
		G: uint8(argb >> 8),
		B: uint8(argb),
		A: uint8(argb >> 24),
	}
}
