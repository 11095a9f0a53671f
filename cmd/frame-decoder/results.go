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
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/TheCacophonyProject/frame-decoder/dispatch"
)

type lastResult struct {
	success dispatch.Success
	at      time.Time
}

// resultHandler drains the decode loop's inbox. Each success is logged,
// reported as an event, shown on the indicator and kept for the dbus
// service.
type resultHandler struct {
	inbox     *dispatch.Inbox
	events    *eventReporter
	indicator *indicator
	log       logrus.FieldLogger
	nowFunc   func() time.Time

	mu       sync.Mutex
	last     *lastResult
	failures int
}

func newResultHandler(inbox *dispatch.Inbox, events *eventReporter, ind *indicator, log logrus.FieldLogger) *resultHandler {
	return &resultHandler{
		inbox:     inbox,
		events:    events,
		indicator: ind,
		log:       log,
		nowFunc:   time.Now,
	}
}

// run handles outcomes until ctx is done.
func (h *resultHandler) run(ctx context.Context) {
	for {
		outcome, err := h.inbox.Next(ctx)
		if err != nil {
			return
		}
		h.handle(outcome)
	}
}

func (h *resultHandler) handle(outcome dispatch.Outcome) {
	if !outcome.Succeeded() {
		h.mu.Lock()
		h.failures++
		h.mu.Unlock()
		return
	}

	s := outcome.Success
	h.log.WithFields(logrus.Fields{
		"format":  s.Format,
		"text":    s.Text,
		"elapsed": s.Elapsed,
	}).Info("decoded barcode")

	h.mu.Lock()
	h.last = &lastResult{success: *s, at: h.nowFunc()}
	h.failures = 0
	h.mu.Unlock()

	if h.events != nil {
		h.events.decoded(s)
	}
	h.indicator.Pulse()
}

// lastSuccess returns the most recent decode, if any.
func (h *resultHandler) lastSuccess() (*lastResult, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.last == nil {
		return nil, false
	}
	last := *h.last
	return &last, true
}

// failuresSinceSuccess counts failed frames since the last decode.
func (h *resultHandler) failuresSinceSuccess() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.failures
}
