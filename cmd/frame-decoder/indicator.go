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
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"periph.io/x/periph/conn/gpio"
	"periph.io/x/periph/conn/gpio/gpioreg"
)

// indicator drives an output pin high for a short pulse after each
// successful decode. Pulses requested while one is running are merged.
type indicator struct {
	pin     gpio.PinOut
	pulse   time.Duration
	trigger chan struct{}
	log     logrus.FieldLogger
}

// newIndicator returns nil when no pin is configured.
func newIndicator(conf IndicatorConfig, log logrus.FieldLogger) (*indicator, error) {
	if conf.Pin == "" {
		return nil, nil
	}
	pin := gpioreg.ByName(conf.Pin)
	if pin == nil {
		return nil, fmt.Errorf("unknown indicator pin %q", conf.Pin)
	}
	return startIndicator(pin, conf.Pulse, log)
}

func startIndicator(pin gpio.PinOut, pulse time.Duration, log logrus.FieldLogger) (*indicator, error) {
	if err := pin.Out(gpio.Low); err != nil {
		return nil, fmt.Errorf("failed to set indicator pin low: %v", err)
	}
	ind := &indicator{
		pin:     pin,
		pulse:   pulse,
		trigger: make(chan struct{}, 1),
		log:     log,
	}
	go ind.run()
	return ind, nil
}

// Pulse never blocks.
func (ind *indicator) Pulse() {
	if ind == nil {
		return
	}
	select {
	case ind.trigger <- struct{}{}:
	default:
	}
}

func (ind *indicator) run() {
	for range ind.trigger {
		if err := ind.pin.Out(gpio.High); err != nil {
			ind.log.WithError(err).Warn("failed to set indicator pin high")
			continue
		}
		time.Sleep(ind.pulse)
		if err := ind.pin.Out(gpio.Low); err != nil {
			ind.log.WithError(err).Warn("failed to set indicator pin low")
		}
	}
}
