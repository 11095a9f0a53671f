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
	"net/http"
	"os"
	"os/signal"
	"syscall"

	arg "github.com/alexflint/go-arg"
	"github.com/coreos/go-systemd/daemon"
	"github.com/sirupsen/logrus"
	"periph.io/x/periph/host"

	"github.com/TheCacophonyProject/frame-decoder/decoder"
	"github.com/TheCacophonyProject/frame-decoder/dispatch"
	"github.com/TheCacophonyProject/frame-decoder/snapshot"
	"github.com/TheCacophonyProject/frame-decoder/throttle"
)

var version = "<not set>"

type Args struct {
	ConfigFile string `arg:"-c,--config" help:"path to configuration file"`
	Timestamps bool   `arg:"-t,--timestamps" help:"include timestamps in log output"`
	Verbose    bool   `arg:"-v,--verbose" help:"make logging more verbose"`
}

func (Args) Version() string {
	return version
}

func procArgs() Args {
	var args Args
	args.ConfigFile = "/etc/frame-decoder.yaml"
	arg.MustParse(&args)
	return args
}

func main() {
	log := logrus.New()
	err := runMain(log)
	if err != nil {
		log.Fatal(err)
	}
}

func initLogger(log *logrus.Logger, args Args) {
	log.SetOutput(os.Stdout)
	log.SetFormatter(&logrus.TextFormatter{
		DisableTimestamp: !args.Timestamps,
		FullTimestamp:    true,
	})
	if args.Verbose {
		log.SetLevel(logrus.DebugLevel)
	} else {
		log.SetLevel(logrus.InfoLevel)
	}
}

func runMain(log *logrus.Logger) error {
	args := procArgs()
	initLogger(log, args)

	log.Infof("running version: %s", version)
	conf, err := ParseConfigFile(args.ConfigFile)
	if err != nil {
		return err
	}
	logConfig(log, conf)

	engine, err := decoder.New(conf.Decoder)
	if err != nil {
		return err
	}

	events := newEventReporter(dbusEvents{}, conf.DeviceName, log)
	var persister dispatch.Persister = snapshot.New(conf.Snapshot, log)
	if conf.Throttler.ApplyThrottling {
		persister = throttle.NewThrottledPersister(persister, &conf.Throttler, events)
	}

	log.Info("host initialisation")
	if _, err := host.Init(); err != nil {
		return err
	}
	ind, err := newIndicator(conf.Indicator, log)
	if err != nil {
		return err
	}

	inbox := dispatch.NewInbox()
	loop, err := dispatch.New(conf.Dispatch, engine, persister, inbox, log)
	if err != nil {
		return err
	}
	results := newResultHandler(inbox, events, ind, log)
	input, err := newFrameInput(conf, loop, func() {
		daemon.SdNotify(false, "WATCHDOG=1")
	}, log)
	if err != nil {
		return err
	}
	log.Infof("scanning window: %v", input.scanWindow)

	ctx, cancel := context.WithCancel(context.Background())
	go events.run(ctx)
	resultsDone := make(chan struct{})
	go func() {
		results.run(ctx)
		close(resultsDone)
	}()
	go loop.Run()

	log.Info("starting d-bus service")
	if err := startService(loop, results); err != nil {
		return err
	}

	if conf.HTTPAddress != "" {
		go func() {
			err := http.ListenAndServe(conf.HTTPAddress, newRouter(loop, results, log))
			log.WithError(err).Error("http api stopped")
		}()
	}

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigs
		log.Infof("received %v, shutting down", sig)
		loop.RequestShutdown()
	}()

	go func() {
		if err := input.listen(conf.FrameInput); err != nil {
			log.WithError(err).Error("frame input failed")
		}
		loop.RequestShutdown()
	}()

	daemon.SdNotify(false, "READY=1")
	<-loop.Done()

	// Hand over anything the loop delivered after the handler stopped.
	cancel()
	<-resultsDone
	for inbox.Len() > 0 {
		outcome, err := inbox.Next(context.Background())
		if err != nil {
			break
		}
		results.handle(outcome)
	}

	stats := loop.Stats()
	log.WithFields(logrus.Fields{
		"frames":    stats.Frames,
		"decoded":   stats.Decoded,
		"snapshots": stats.Snapshots,
	}).Info("exiting")
	return nil
}

func logConfig(log logrus.FieldLogger, conf *Config) {
	log.Infof("device name: %s", conf.DeviceName)
	log.Infof("frame input: %s", conf.FrameInput)
	log.Infof("max pending frames: %d", conf.MaxPendingFrames)
	if conf.HTTPAddress != "" {
		log.Infof("http api: %s", conf.HTTPAddress)
	}
	log.Infof("decoder: %+v", conf.Decoder)
	log.Infof("dispatch: %+v", conf.Dispatch)
	log.Infof("snapshot: %+v", conf.Snapshot)
	log.Infof("throttler: %+v", conf.Throttler)
	if conf.Indicator.Pin != "" {
		log.Infof("indicator: pin %s, pulse %v", conf.Indicator.Pin, conf.Indicator.Pulse)
	}
	if conf.Window.DeviceConfigDir != "" {
		log.Infof("window device config: %s", conf.Window.DeviceConfigDir)
	}
}
