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

// frame-player streams still images to a running frame-decoder as if
// they came from a camera.
package main

import (
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"net"
	"os"
	"time"

	arg "github.com/alexflint/go-arg"
	"github.com/sirupsen/logrus"

	"github.com/TheCacophonyProject/frame-decoder/headers"
	"github.com/TheCacophonyProject/frame-decoder/testframe"
)

const (
	brand = "cacophony"
	model = "frame-player"
)

var version = "<not set>"

type Args struct {
	Socket  string   `arg:"-s,--socket" help:"frame-decoder input socket"`
	Width   int      `arg:"--width" help:"frame width, defaults to the first image's width"`
	Height  int      `arg:"--height" help:"frame height, defaults to the first image's height"`
	FPS     int      `arg:"--fps" help:"frames sent per second"`
	Repeat  int      `arg:"-r,--repeat" help:"times to send each frame"`
	QR      []string `arg:"--qr,separate" help:"generate a frame holding a QR code with this text"`
	Verbose bool     `arg:"-v,--verbose" help:"make logging more verbose"`
	Images  []string `arg:"positional" help:"PNG or JPEG images to send"`
}

func (Args) Version() string {
	return version
}

func procArgs() Args {
	var args Args
	args.Socket = "/var/run/preview-frames"
	args.FPS = 5
	args.Repeat = 1
	arg.MustParse(&args)
	return args
}

func main() {
	log := logrus.New()
	err := runMain(log)
	if err != nil {
		log.Fatal(err)
	}
}

func runMain(log *logrus.Logger) error {
	args := procArgs()
	if args.Verbose {
		log.SetLevel(logrus.DebugLevel)
	}
	if len(args.Images) == 0 && len(args.QR) == 0 {
		return errors.New("no images or QR codes given")
	}
	if args.FPS < 1 || args.Repeat < 1 {
		return errors.New("fps and repeat should be at least 1")
	}

	images, err := loadImages(args.Images)
	if err != nil {
		return err
	}
	width, height := frameSize(args, images)

	frames, err := makeFrames(testframe.NewTestFrameMaker(width, height), images, args.QR)
	if err != nil {
		return err
	}

	conn, err := net.Dial("unix", args.Socket)
	if err != nil {
		return err
	}
	defer conn.Close()

	log.WithFields(logrus.Fields{
		"socket": args.Socket,
		"frames": len(frames),
	}).Infof("sending %dx%d frames at %d fps", width, height, args.FPS)
	return play(conn, width, height, args.FPS, args.Repeat, frames, log)
}

func loadImages(filenames []string) ([]image.Image, error) {
	var images []image.Image
	for _, filename := range filenames {
		f, err := os.Open(filename)
		if err != nil {
			return nil, err
		}
		img, _, err := image.Decode(f)
		f.Close()
		if err != nil {
			return nil, fmt.Errorf("failed to decode %s: %w", filename, err)
		}
		images = append(images, img)
	}
	return images, nil
}

func frameSize(args Args, images []image.Image) (int, int) {
	width, height := args.Width, args.Height
	if len(images) > 0 {
		b := images[0].Bounds()
		if width == 0 {
			width = b.Dx()
		}
		if height == 0 {
			height = b.Dy()
		}
	}
	if width == 0 {
		width = 640
	}
	if height == 0 {
		height = 480
	}
	return width, height
}

// makeFrames converts each image and QR text into a frame with a neutral
// chroma plane, as a camera preview would send.
func makeFrames(tfm *testframe.TestFrameMaker, images []image.Image, qrTexts []string) ([][]byte, error) {
	var frames [][]byte
	for _, img := range images {
		frames = append(frames, tfm.WithChroma(tfm.FromImage(img)))
	}
	for _, text := range qrTexts {
		plane, err := tfm.QR(text)
		if err != nil {
			return nil, err
		}
		frames = append(frames, tfm.WithChroma(plane))
	}
	return frames, nil
}

func play(w io.Writer, width, height, fps, repeat int, frames [][]byte, log logrus.FieldLogger) error {
	frameSize := len(frames[0])
	header := headers.New(width, height, fps, frameSize, brand, model)
	if err := headers.WriteHeaderInfo(w, header); err != nil {
		return err
	}

	ticker := time.NewTicker(time.Second / time.Duration(fps))
	defer ticker.Stop()
	sent := 0
	for i, frame := range frames {
		for r := 0; r < repeat; r++ {
			if _, err := w.Write(frame); err != nil {
				return err
			}
			sent++
			<-ticker.C
		}
		log.Debugf("sent frame %d", i)
	}
	log.Infof("sent %d frames", sent)
	return nil
}
