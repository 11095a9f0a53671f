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

package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"time"

	"github.com/TheCacophonyProject/window"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/TheCacophonyProject/frame-decoder/dispatch"
	"github.com/TheCacophonyProject/frame-decoder/frame"
	"github.com/TheCacophonyProject/frame-decoder/headers"
	"github.com/TheCacophonyProject/frame-decoder/loglimiter"
)

const (
	sdNotifySecs             = 5
	frameLogIntervalFirstMin = 15
	frameLogInterval         = 60 * 5
)

type frameSink interface {
	Submit(frame.FrameBuffer) error
	Stats() dispatch.Stats
}

// frameInput reads frames sent by a camera and feeds them to the decode
// loop. Frames are dropped while the loop has maxPending frames waiting
// or when outside the scanning window.
type frameInput struct {
	sink          frameSink
	maxPending    int
	scanWindow    *window.Window
	watchdog      func()
	log           logrus.FieldLogger
	outsideWindow *loglimiter.LogLimiter
}

func newFrameInput(conf *Config, sink frameSink, watchdog func(), log logrus.FieldLogger) (*frameInput, error) {
	scanWindow, err := conf.Window.scanWindow()
	if err != nil {
		return nil, fmt.Errorf("failed to set up scanning window: %w", err)
	}
	return &frameInput{
		sink:          sink,
		maxPending:    conf.MaxPendingFrames,
		scanWindow:    scanWindow,
		watchdog:      watchdog,
		log:           log,
		outsideWindow: loglimiter.New(log, 10*time.Minute),
	}, nil
}

// listen accepts one camera connection at a time until the decode loop
// refuses frames.
func (fi *frameInput) listen(socketPath string) error {
	for {
		os.Remove(socketPath)
		listener, err := net.Listen("unix", socketPath)
		if err != nil {
			return err
		}
		fi.log.Info("waiting for camera connection")

		conn, err := listener.Accept()
		if err != nil {
			fi.log.WithError(err).Warn("socket accept failed")
			listener.Close()
			continue
		}

		// Prevent concurrent connections.
		listener.Close()

		err = fi.handleConn(conn)
		conn.Close()
		if errors.Is(err, dispatch.ErrShutdown) {
			return nil
		}
		fi.log.Infof("camera connection ended with: %v", err)
	}
}

func (fi *frameInput) handleConn(r io.Reader) error {
	reader := bufio.NewReader(r)
	header, err := headers.ReadHeaderInfo(reader)
	if err != nil {
		return err
	}
	if err := header.Validate(); err != nil {
		return err
	}

	log := fi.log.WithFields(logrus.Fields{
		"conn":  uuid.New().String(),
		"brand": header.Brand(),
		"model": header.Model(),
	})
	log.Infof("connection from %s %s (%dx%d@%dfps)", header.Brand(), header.Model(), header.ResX(), header.ResY(), header.FPS())

	fps := header.FPS()
	if fps < 1 {
		fps = 1
	}

	totalFrames := 0
	dropped := 0
	for {
		// The decode loop keeps the buffer so each frame gets its own.
		buf := make([]byte, header.FrameSize())
		if _, err := io.ReadFull(reader, buf); err != nil {
			return err
		}
		totalFrames++

		if totalFrames%(sdNotifySecs*fps) == 0 {
			fi.watchdog()
		}

		if totalFrames%(frameLogIntervalFirstMin*fps) == 0 &&
			totalFrames <= 60*fps || totalFrames%(frameLogInterval*fps) == 0 {
			log.WithField("dropped", dropped).Infof("%d frames for this connection", totalFrames)
		}

		if !fi.scanWindow.Active() {
			fi.outsideWindow.Print("frame outside scanning window")
			continue
		}
		if fi.sink.Stats().QueuedRequests >= fi.maxPending {
			dropped++
			continue
		}

		fb, err := frame.NewFrameBuffer(buf, header.ResX(), header.ResY())
		if err != nil {
			return err
		}
		if err := fi.sink.Submit(fb); err != nil {
			return err
		}
	}
}
