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
	"encoding/json"
	"time"

	"github.com/godbus/dbus"
	"github.com/sirupsen/logrus"

	"github.com/TheCacophonyProject/frame-decoder/dispatch"
)

// eventQueuer is the part of the event-reporter dbus API we use.
type eventQueuer interface {
	Queue(details []byte, ts time.Time) error
}

// dbusEvents queues events with the event-reporter service.
type dbusEvents struct{}

func (dbusEvents) Queue(details []byte, ts time.Time) error {
	conn, err := dbus.SystemBus()
	if err != nil {
		return err
	}
	obj := conn.Object("org.cacophony.Events", "/org/cacophony/Events")
	return obj.Call("org.cacophony.Events.Queue", 0, details, ts.UnixNano()).Err
}

// eventBacklog is how many events can wait for run before new ones are
// dropped.
const eventBacklog = 32

type pendingEvent struct {
	description map[string]interface{}
	ts          time.Time
}

// eventReporter turns decode results and throttling into events.
type eventReporter struct {
	queuer     eventQueuer
	deviceName string
	log        logrus.FieldLogger
	nowFunc    func() time.Time
	pending    chan pendingEvent
}

func newEventReporter(queuer eventQueuer, deviceName string, log logrus.FieldLogger) *eventReporter {
	return &eventReporter{
		queuer:     queuer,
		deviceName: deviceName,
		log:        log,
		nowFunc:    time.Now,
		pending:    make(chan pendingEvent, eventBacklog),
	}
}

// run queues events handed over by queueLater until ctx is done.
func (er *eventReporter) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case event := <-er.pending:
			er.queue(event.description, event.ts)
		}
	}
}

func (er *eventReporter) decoded(s *dispatch.Success) {
	er.queue(map[string]interface{}{
		"type":    "decode",
		"format":  s.Format.String(),
		"text":    s.Text,
		"elapsed": s.ElapsedMs(),
		"device":  er.deviceName,
	}, er.nowFunc())
}

// WhenThrottled implements throttle.ThrottledEventListener. It is called
// from the decode loop so it never waits on dbus.
func (er *eventReporter) WhenThrottled() {
	er.queueLater(map[string]interface{}{
		"type":   "throttle",
		"device": er.deviceName,
	})
}

func (er *eventReporter) queueLater(description map[string]interface{}) {
	select {
	case er.pending <- pendingEvent{description: description, ts: er.nowFunc()}:
	default:
		er.log.WithField("type", description["type"]).Warn("event backlog full, dropping event")
	}
}

func (er *eventReporter) queue(description map[string]interface{}, ts time.Time) {
	eventDetails := map[string]interface{}{
		"description": description,
	}
	detailsJSON, err := json.Marshal(&eventDetails)
	if err != nil {
		er.log.WithError(err).Warn("could not encode event")
		return
	}
	if err := er.queuer.Queue(detailsJSON, ts); err != nil {
		er.log.WithError(err).WithField("type", description["type"]).Warn("could not queue event")
	}
}
