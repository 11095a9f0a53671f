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
	"errors"
	"image"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/TheCacophonyProject/frame-decoder/decoder"
	"github.com/TheCacophonyProject/frame-decoder/frame"
	"github.com/TheCacophonyProject/frame-decoder/loglimiter"
	"github.com/TheCacophonyProject/frame-decoder/luminance"
	"github.com/TheCacophonyProject/frame-decoder/throttle"
)

var ErrShutdown = errors.New("decode loop is shutting down")

type State int

const (
	Running State = iota
	Stopped
)

func (s State) String() string {
	if s == Stopped {
		return "stopped"
	}
	return "running"
}

// Message is either a DecodeRequest or Shutdown.
type Message interface {
	isMessage()
}

type DecodeRequest struct {
	Frame frame.FrameBuffer
}

type Shutdown struct{}

func (DecodeRequest) isMessage() {}
func (Shutdown) isMessage()      {}

// Decoder makes one decode attempt per call and must be left ready for
// the next frame when it returns.
type Decoder interface {
	Attempt(view *luminance.View) *decoder.Symbol
}

// Persister saves a rotated luminance plane as a still image.
type Persister = throttle.Persister

type Stats struct {
	Frames         int
	Decoded        int
	Failed         int
	Rejected       int
	Snapshots      int
	SnapshotErrors int
	LastElapsed    time.Duration
	LastSnapshot   string
	QueuedRequests int
}

// Loop decodes frames one at a time on the goroutine that calls Run.
// Every DecodeRequest produces exactly one call on the Recipient, in
// the order the requests were submitted.
type Loop struct {
	engine    Decoder
	persister Persister
	recipient Recipient
	rotate    rotateFunc
	framing   image.Rectangle
	log       logrus.FieldLogger
	rejectLog *loglimiter.LogLimiter
	nowFunc   func() time.Time

	mu                sync.Mutex
	queue             []Message
	notify            chan struct{}
	shutdownRequested bool
	state             State
	stats             Stats
	done              chan struct{}
}

// New creates a Loop in the Running state. persister may be nil in which
// case no snapshots are saved.
func New(conf Config, engine Decoder, persister Persister, recipient Recipient, log logrus.FieldLogger) (*Loop, error) {
	if err := conf.Validate(); err != nil {
		return nil, err
	}
	rotate, _ := rotator(conf.Orientation)
	return &Loop{
		engine:    engine,
		persister: persister,
		recipient: recipient,
		rotate:    rotate,
		framing:   conf.FramingRect.Rectangle(),
		log:       log,
		rejectLog: loglimiter.New(log, time.Minute),
		nowFunc:   time.Now,
		notify:    make(chan struct{}, 1),
		state:     Running,
		done:      make(chan struct{}),
	}, nil
}

// Submit queues a frame for decoding. It never blocks. Once shutdown
// has been requested further frames are refused with ErrShutdown.
func (l *Loop) Submit(buf frame.FrameBuffer) error {
	return l.post(DecodeRequest{Frame: buf})
}

// RequestShutdown queues a Shutdown message. Frames submitted earlier
// are still decoded.
func (l *Loop) RequestShutdown() {
	l.post(Shutdown{})
}

func (l *Loop) post(msg Message) error {
	l.mu.Lock()
	if l.shutdownRequested {
		l.mu.Unlock()
		if _, ok := msg.(Shutdown); ok {
			return nil
		}
		return ErrShutdown
	}
	if _, ok := msg.(Shutdown); ok {
		l.shutdownRequested = true
	}
	l.queue = append(l.queue, msg)
	l.mu.Unlock()

	select {
	case l.notify <- struct{}{}:
	default:
	}
	return nil
}

// Run processes messages until a Shutdown message is handled. It must
// only be called once.
func (l *Loop) Run() {
	defer close(l.done)
	for {
		switch msg := l.next().(type) {
		case Shutdown:
			l.stop()
			return
		case DecodeRequest:
			l.handleRequest(msg)
		}
	}
}

// Done is closed when Run returns.
func (l *Loop) Done() <-chan struct{} {
	return l.done
}

func (l *Loop) State() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

func (l *Loop) Stats() Stats {
	l.mu.Lock()
	defer l.mu.Unlock()
	stats := l.stats
	stats.QueuedRequests = len(l.queue)
	return stats
}

func (l *Loop) next() Message {
	for {
		l.mu.Lock()
		if len(l.queue) > 0 {
			msg := l.queue[0]
			l.queue[0] = nil
			l.queue = l.queue[1:]
			l.mu.Unlock()
			return msg
		}
		l.mu.Unlock()
		<-l.notify
	}
}

func (l *Loop) stop() {
	l.mu.Lock()
	l.state = Stopped
	l.queue = nil
	l.mu.Unlock()
	l.log.Info("decode loop stopped")
}

func (l *Loop) handleRequest(req DecodeRequest) {
	start := l.nowFunc()
	l.update(func(s *Stats) { s.Frames++ })

	view, rotated, err := l.prepare(req.Frame)
	if err != nil {
		l.rejectLog.Printf("rejecting frame: %v", err)
		l.update(func(s *Stats) { s.Rejected++ })
		l.recipient.DecodeFailed()
		return
	}

	symbol := l.engine.Attempt(view)
	if symbol == nil {
		l.update(func(s *Stats) { s.Failed++ })
		l.recipient.DecodeFailed()
		return
	}

	elapsed := l.nowFunc().Sub(start)
	l.update(func(s *Stats) {
		s.Decoded++
		s.LastElapsed = elapsed
	})
	l.log.WithFields(logrus.Fields{
		"format":  symbol.Format,
		"elapsed": elapsed,
	}).Debugf("found barcode (%d ms)", elapsed/time.Millisecond)

	l.recipient.DecodeSucceeded(Success{
		Payload: symbol.Payload,
		Text:    symbol.Text,
		Format:  symbol.Format,
		Cropped: view.RenderCropped(),
		Elapsed: elapsed,
	})

	l.saveSnapshot(rotated, view)
}

// prepare rotates the frame's luminance plane and applies the framing
// rectangle.
func (l *Loop) prepare(buf frame.FrameBuffer) (*luminance.View, []byte, error) {
	plane, err := buf.Luminance()
	if err != nil {
		return nil, nil, err
	}
	rotated, width, height, err := l.rotate(plane, buf.Width, buf.Height)
	if err != nil {
		return nil, nil, err
	}
	view, err := luminance.New(rotated, width, height, l.framing)
	if err != nil {
		return nil, nil, err
	}
	return view, rotated, nil
}

// saveSnapshot writes the full rotated frame. Failures are logged and
// otherwise ignored.
func (l *Loop) saveSnapshot(rotated []byte, view *luminance.View) {
	if l.persister == nil {
		return
	}
	width, height := view.DataSize()
	path, err := l.persister.Save(rotated, width, height)
	if errors.Is(err, throttle.ErrThrottled) {
		return
	}
	if err != nil {
		l.update(func(s *Stats) { s.SnapshotErrors++ })
		l.log.WithError(err).Warn("failed to save snapshot")
		return
	}
	l.update(func(s *Stats) {
		s.Snapshots++
		s.LastSnapshot = path
	})
	l.log.WithField("path", path).Info("saved snapshot")
}

func (l *Loop) update(f func(*Stats)) {
	l.mu.Lock()
	f(&l.stats)
	l.mu.Unlock()
}
