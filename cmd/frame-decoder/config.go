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
	"fmt"
	"io/ioutil"
	"time"

	goconfig "github.com/TheCacophonyProject/go-config"
	"github.com/TheCacophonyProject/window"
	yaml "gopkg.in/yaml.v2"

	"github.com/TheCacophonyProject/frame-decoder/decoder"
	"github.com/TheCacophonyProject/frame-decoder/dispatch"
	"github.com/TheCacophonyProject/frame-decoder/snapshot"
	"github.com/TheCacophonyProject/frame-decoder/throttle"
)

type Config struct {
	DeviceName       string                   `yaml:"device-name"`
	FrameInput       string                   `yaml:"frame-input"`
	MaxPendingFrames int                      `yaml:"max-pending-frames"`
	HTTPAddress      string                   `yaml:"http-address"`
	Decoder          decoder.Config           `yaml:"decoder"`
	Dispatch         dispatch.Config          `yaml:"dispatch"`
	Snapshot         snapshot.Config          `yaml:"snapshot"`
	Throttler        throttle.ThrottlerConfig `yaml:"throttler"`
	Indicator        IndicatorConfig          `yaml:"indicator"`
	Window           WindowConfig             `yaml:"window"`
}

// IndicatorConfig describes an optional GPIO pin that is pulsed high
// each time a barcode is decoded.
type IndicatorConfig struct {
	Pin   string        `yaml:"pin"`
	Pulse time.Duration `yaml:"pulse"`
}

// WindowConfig limits scanning to part of the day. Start and end are
// times of day ("17:10") or offsets from sunset and sunrise ("-30m").
// Leaving both unset scans all day.
type WindowConfig struct {
	Start     string  `yaml:"start"`
	End       string  `yaml:"end"`
	Latitude  float64 `yaml:"latitude"`
	Longitude float64 `yaml:"longitude"`

	// DeviceConfigDir holds the device's cacophony config.toml. When set,
	// its location is used unless latitude and longitude are given, and
	// its recording window is used unless start and end are given.
	DeviceConfigDir string `yaml:"device-config-dir"`
}

func (conf *WindowConfig) Validate() error {
	if (conf.Start == "") != (conf.End == "") {
		return errors.New("window start and end should both be set")
	}
	if conf.Start != "" {
		if _, err := window.New(conf.Start, conf.End, conf.Latitude, conf.Longitude); err != nil {
			return fmt.Errorf("invalid window: %w", err)
		}
	}
	return nil
}

// scanWindow builds the window frames must fall in to be decoded.
func (conf *WindowConfig) scanWindow() (*window.Window, error) {
	start, end := conf.Start, conf.End
	lat, long := conf.Latitude, conf.Longitude
	if conf.DeviceConfigDir != "" {
		deviceConf, err := goconfig.New(conf.DeviceConfigDir)
		if err != nil {
			return nil, err
		}
		if lat == 0 && long == 0 {
			location := goconfig.DefaultWindowLocation()
			if err := deviceConf.Unmarshal(goconfig.LocationKey, &location); err != nil {
				return nil, err
			}
			lat, long = float64(location.Latitude), float64(location.Longitude)
		}
		if start == "" {
			windows := goconfig.DefaultWindows()
			if err := deviceConf.Unmarshal(goconfig.WindowsKey, &windows); err != nil {
				return nil, err
			}
			start, end = windows.StartRecording, windows.StopRecording
		}
	}
	if start == "" {
		// Equal times of day never close the window.
		start, end = "00:00", "00:00"
	}
	return window.New(start, end, lat, long)
}

func (conf *Config) Validate() error {
	if conf.FrameInput == "" {
		return errors.New("frame-input must be set")
	}
	if conf.MaxPendingFrames < 1 {
		return errors.New("max-pending-frames should be at least 1")
	}
	if err := conf.Decoder.Validate(); err != nil {
		return err
	}
	if err := conf.Dispatch.Validate(); err != nil {
		return err
	}
	if err := conf.Snapshot.Validate(); err != nil {
		return err
	}
	if err := conf.Throttler.Validate(); err != nil {
		return err
	}
	if conf.Indicator.Pin != "" && conf.Indicator.Pulse <= 0 {
		return errors.New("indicator pulse should be positive")
	}
	return conf.Window.Validate()
}

func defaultConfig() Config {
	return Config{
		FrameInput:       "/var/run/preview-frames",
		MaxPendingFrames: 1,
		Decoder:          decoder.DefaultConfig(),
		Dispatch:         dispatch.DefaultConfig(),
		Snapshot:         snapshot.DefaultConfig(),
		Throttler:        throttle.DefaultThrottlerConfig(),
		Indicator: IndicatorConfig{
			Pulse: 200 * time.Millisecond,
		},
	}
}

func ParseConfigFile(filename string) (*Config, error) {
	buf, err := ioutil.ReadFile(filename)
	if err != nil {
		return nil, err
	}
	return ParseConfig(buf)
}

func ParseConfig(buf []byte) (*Config, error) {
	conf := defaultConfig()
	if err := yaml.Unmarshal(buf, &conf); err != nil {
		return nil, err
	}
	if err := conf.Validate(); err != nil {
		return nil, err
	}
	return &conf, nil
}
