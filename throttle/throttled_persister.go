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

package throttle

import (
	"errors"
	"time"

	"github.com/juju/ratelimit"
)

var ErrThrottled = errors.New("snapshot throttled")

type ThrottlerConfig struct {
	ApplyThrottling bool          `yaml:"apply-throttling"`
	BucketSize      int           `yaml:"bucket-size"`
	RefillInterval  time.Duration `yaml:"refill-interval"`
}

func DefaultThrottlerConfig() ThrottlerConfig {
	return ThrottlerConfig{
		ApplyThrottling: false,
		BucketSize:      20,
		RefillInterval:  30 * time.Second,
	}
}

func (conf *ThrottlerConfig) Validate() error {
	if !conf.ApplyThrottling {
		return nil
	}
	if conf.BucketSize < 1 {
		return errors.New("bucket-size should be at least 1")
	}
	if conf.RefillInterval <= 0 {
		return errors.New("refill-interval should be positive")
	}
	return nil
}

// Persister is anything that can save a luminance plane.
type Persister interface {
	Save(data []byte, width, height int) (string, error)
}

type ThrottledEventListener interface {
	WhenThrottled()
}

func NewThrottledPersister(base Persister, conf *ThrottlerConfig, listener ThrottledEventListener) *ThrottledPersister {
	return NewThrottledPersisterWithClock(base, conf, listener, new(realClock))
}

func NewThrottledPersisterWithClock(
	base Persister,
	conf *ThrottlerConfig,
	listener ThrottledEventListener,
	clock ratelimit.Clock,
) *ThrottledPersister {
	if listener == nil {
		listener = new(nullListener)
	}
	// The bucket holds one token per snapshot and starts full.
	bucket := ratelimit.NewBucketWithClock(conf.RefillInterval, int64(conf.BucketSize), clock)
	return &ThrottledPersister{
		persister: base,
		listener:  listener,
		bucket:    bucket,
	}
}

// ThrottledPersister wraps a Persister so that it stops saving
// snapshots if asked to save too often. A code held in front of the
// camera decodes on every frame, and every one of those stills would
// be near identical.
type ThrottledPersister struct {
	persister Persister
	listener  ThrottledEventListener
	bucket    *ratelimit.Bucket
	throttled bool
}

type nullListener struct{}

func (lis *nullListener) WhenThrottled() {}

// Save saves the snapshot if a token is available, otherwise it returns
// ErrThrottled. The listener is told once each time throttling starts.
func (throttler *ThrottledPersister) Save(data []byte, width, height int) (string, error) {
	if throttler.bucket.TakeAvailable(1) == 0 {
		if !throttler.throttled {
			throttler.throttled = true
			throttler.listener.WhenThrottled()
		}
		return "", ErrThrottled
	}
	throttler.throttled = false
	return throttler.persister.Save(data, width, height)
}

// realClock implements ratelimit.Clock in terms of standard time functions.
type realClock struct{}

// Now implements Clock.Now by calling time.Now.
func (realClock) Now() time.Time {
	return time.Now()
}

// Sleep implements Clock.Sleep by calling time.Sleep.
func (realClock) Sleep(d time.Duration) {
	time.Sleep(d)
}
