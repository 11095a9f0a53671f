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
	"errors"

	"github.com/godbus/dbus"
	"github.com/godbus/dbus/introspect"

	"github.com/TheCacophonyProject/frame-decoder/dispatch"
)

const (
	dbusName = "org.cacophony.framedecoder"
	dbusPath = "/org/cacophony/framedecoder"
)

type decodeLoop interface {
	Stats() dispatch.Stats
	State() dispatch.State
	RequestShutdown()
}

type service struct {
	loop    decodeLoop
	results *resultHandler
}

func startService(loop decodeLoop, results *resultHandler) error {
	conn, err := dbus.SystemBus()
	if err != nil {
		return err
	}
	reply, err := conn.RequestName(dbusName, dbus.NameFlagDoNotQueue)
	if err != nil {
		return err
	}
	if reply != dbus.RequestNameReplyPrimaryOwner {
		return errors.New("name already taken")
	}

	s := &service{
		loop:    loop,
		results: results,
	}
	conn.Export(s, dbusPath, dbusName)
	conn.Export(genIntrospectable(s), dbusPath, "org.freedesktop.DBus.Introspectable")
	return nil
}

func genIntrospectable(v interface{}) introspect.Introspectable {
	node := &introspect.Node{
		Interfaces: []introspect.Interface{{
			Name:    dbusName,
			Methods: introspect.Methods(v),
		}},
	}
	return introspect.NewIntrospectable(node)
}

// Stats returns the decode loop counters.
func (s *service) Stats() (map[string]int64, *dbus.Error) {
	stats := s.loop.Stats()
	return map[string]int64{
		"frames":          int64(stats.Frames),
		"decoded":         int64(stats.Decoded),
		"failed":          int64(stats.Failed),
		"rejected":        int64(stats.Rejected),
		"snapshots":       int64(stats.Snapshots),
		"snapshot-errors": int64(stats.SnapshotErrors),
		"queued":          int64(stats.QueuedRequests),
		"last-elapsed-ms": stats.LastElapsed.Milliseconds(),
		"failed-since":    int64(s.results.failuresSinceSuccess()),
	}, nil
}

// LastResult returns the text, format and unix time (ns) of the most
// recent decode.
func (s *service) LastResult() (string, string, int64, *dbus.Error) {
	last, ok := s.results.lastSuccess()
	if !ok {
		return "", "", 0, makeDbusError("LastResult", errors.New("nothing decoded yet"))
	}
	return last.success.Text, last.success.Format.String(), last.at.UnixNano(), nil
}

// Shutdown stops the decode loop once the frames already queued have
// been decoded.
func (s *service) Shutdown() *dbus.Error {
	if s.loop.State() == dispatch.Stopped {
		return makeDbusError("Shutdown", errors.New("already stopped"))
	}
	s.loop.RequestShutdown()
	return nil
}

func makeDbusError(name string, err error) *dbus.Error {
	return &dbus.Error{
		Name: dbusName + "." + name,
		Body: []interface{}{err.Error()},
	}
}
