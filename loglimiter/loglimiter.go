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

package loglimiter

import (
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
)

// New returns a new LogLimiter with the configured minimum log interval.
// Lines that get through are written to log at warning level.
func New(log logrus.FieldLogger, interval time.Duration) *LogLimiter {
	return &LogLimiter{
		log:      log,
		interval: interval,
		nowFunc:  time.Now,
	}
}

// LogLimiter will suppress log messages if the same log message is
// seen within some time interval. When a repeated line gets through again
// it carries a count of the copies that were dropped.
type LogLimiter struct {
	log           logrus.FieldLogger
	interval      time.Duration
	nowFunc       func() time.Time
	previousEntry string
	previousTime  time.Time
	suppressed    int
}

func (limiter *LogLimiter) Printf(format string, v ...interface{}) {
	limiter.Print(fmt.Sprintf(format, v...))
}

func (limiter *LogLimiter) Print(s string) {
	now := limiter.nowFunc()
	if now.Sub(limiter.previousTime) < limiter.interval && s == limiter.previousEntry {
		limiter.suppressed++
		return
	}

	entry := limiter.log
	if limiter.suppressed > 0 && s == limiter.previousEntry {
		entry = entry.WithField("suppressed", limiter.suppressed)
	}
	entry.Warn(s)
	limiter.previousTime = now
	limiter.previousEntry = s
	limiter.suppressed = 0
}
