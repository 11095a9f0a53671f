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
	"encoding/json"
	"fmt"
	"image/png"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/TheCacophonyProject/frame-decoder/dispatch"
)

type statsResponse struct {
	State          string `json:"state"`
	Frames         int    `json:"frames"`
	Decoded        int    `json:"decoded"`
	Failed         int    `json:"failed"`
	Rejected       int    `json:"rejected"`
	Snapshots      int    `json:"snapshots"`
	SnapshotErrors int    `json:"snapshotErrors"`
	Queued         int    `json:"queued"`
	LastElapsedMs  int64  `json:"lastElapsedMs"`
	LastSnapshot   string `json:"lastSnapshot,omitempty"`
}

type lastResponse struct {
	Text      string    `json:"text"`
	Format    string    `json:"format"`
	Payload   []byte    `json:"payload"`
	ElapsedMs int64     `json:"elapsedMs"`
	Time      time.Time `json:"time"`
}

// newRouter serves the same information as the dbus service over HTTP,
// plus the cropped image of the last decode.
func newRouter(loop decodeLoop, results *resultHandler, log logrus.FieldLogger) *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintln(w, "OK")
	}).Methods("GET")

	r.HandleFunc("/api/stats", func(w http.ResponseWriter, r *http.Request) {
		stats := loop.Stats()
		writeJSON(w, log, statsResponse{
			State:          loop.State().String(),
			Frames:         stats.Frames,
			Decoded:        stats.Decoded,
			Failed:         stats.Failed,
			Rejected:       stats.Rejected,
			Snapshots:      stats.Snapshots,
			SnapshotErrors: stats.SnapshotErrors,
			Queued:         stats.QueuedRequests,
			LastElapsedMs:  stats.LastElapsed.Milliseconds(),
			LastSnapshot:   stats.LastSnapshot,
		})
	}).Methods("GET")

	r.HandleFunc("/api/last", func(w http.ResponseWriter, r *http.Request) {
		last, ok := results.lastSuccess()
		if !ok {
			http.Error(w, "nothing decoded yet", http.StatusNotFound)
			return
		}
		writeJSON(w, log, lastResponse{
			Text:      last.success.Text,
			Format:    last.success.Format.String(),
			Payload:   last.success.Payload,
			ElapsedMs: last.success.ElapsedMs(),
			Time:      last.at,
		})
	}).Methods("GET")

	r.HandleFunc("/api/last/image", func(w http.ResponseWriter, r *http.Request) {
		last, ok := results.lastSuccess()
		if !ok || last.success.Cropped == nil {
			http.Error(w, "nothing decoded yet", http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "image/png")
		if err := png.Encode(w, last.success.Cropped); err != nil {
			log.WithError(err).Warn("failed to write image")
		}
	}).Methods("GET")

	r.HandleFunc("/api/shutdown", func(w http.ResponseWriter, r *http.Request) {
		if loop.State() == dispatch.Stopped {
			http.Error(w, "already stopped", http.StatusConflict)
			return
		}
		loop.RequestShutdown()
		w.WriteHeader(http.StatusAccepted)
	}).Methods("POST")

	return r
}

func writeJSON(w http.ResponseWriter, log logrus.FieldLogger, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.WithError(err).Warn("failed to write response")
	}
}
