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
	"context"
	"image"
	"sync"
	"time"

	"github.com/makiuchi-d/gozxing"
)

// Success is delivered when a frame decodes.
type Success struct {
	Payload []byte
	Text    string
	Format  gozxing.BarcodeFormat
	Cropped *image.Gray
	Elapsed time.Duration
}

func (s Success) ElapsedMs() int64 {
	return int64(s.Elapsed / time.Millisecond)
}

// Recipient receives the outcome of every frame. Calls come from the
// loop's goroutine and must not block.
type Recipient interface {
	DecodeSucceeded(Success)
	DecodeFailed()
}

// Outcome is one delivery held by an Inbox. Success is nil for a
// failed decode.
type Outcome struct {
	Success *Success
}

func (o Outcome) Succeeded() bool {
	return o.Success != nil
}

// Inbox is a Recipient that queues outcomes for its owner to read at
// its own pace. It never blocks the sender.
type Inbox struct {
	mu     sync.Mutex
	queue  []Outcome
	notify chan struct{}
}

func NewInbox() *Inbox {
	return &Inbox{
		notify: make(chan struct{}, 1),
	}
}

func (in *Inbox) DecodeSucceeded(s Success) {
	in.push(Outcome{Success: &s})
}

func (in *Inbox) DecodeFailed() {
	in.push(Outcome{})
}

func (in *Inbox) push(o Outcome) {
	in.mu.Lock()
	in.queue = append(in.queue, o)
	in.mu.Unlock()

	select {
	case in.notify <- struct{}{}:
	default:
	}
}

// Next returns the oldest outcome, waiting for one if the inbox is empty.
func (in *Inbox) Next(ctx context.Context) (Outcome, error) {
	for {
		in.mu.Lock()
		if len(in.queue) > 0 {
			o := in.queue[0]
			in.queue = in.queue[1:]
			in.mu.Unlock()
			return o, nil
		}
		in.mu.Unlock()

		select {
		case <-in.notify:
		case <-ctx.Done():
			return Outcome{}, ctx.Err()
		}
	}
}

// Len returns the number of outcomes waiting to be read.
func (in *Inbox) Len() int {
	in.mu.Lock()
	defer in.mu.Unlock()
	return len(in.queue)
}
