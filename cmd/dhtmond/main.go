// cmd/dhtmond/main.go

// dhtmond runs the sensor stack as one host process: an in-process
// message bus, the HAL service owning the sensor lines, the monitor
// digesting readings, and the embedded configuration publisher.
//
// -platform=gpio drives real sensors through periph.io. -platform=sim
// runs the same stack against simulated lines, with readings that
// wander so the output stays alive.
package main

import (
	"context"
	"errors"
	"flag"
	"os/signal"
	"syscall"

	"github.com/golang/glog"

	"github.com/marklacroix/dht/bus"
	"github.com/marklacroix/dht/services/config"
	"github.com/marklacroix/dht/services/hal"
	"github.com/marklacroix/dht/services/monitor"
)

var (
	profile  = flag.String("profile", "greenhouse", "embedded config profile to publish")
	platform = flag.String("platform", "gpio", "sensor backend: gpio or sim")
	busDepth = flag.Int("bus-depth", 64, "per-subscription message queue depth")
)

func main() {
	flag.Parse()
	defer glog.Flush()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	opts, err := platformOptions(ctx)
	if err != nil {
		glog.Exitf("platform %q: %v", *platform, err)
	}

	b := bus.NewBus(*busDepth)

	if glog.V(2) {
		tap := b.NewConnection("tap")
		sub := tap.Subscribe(bus.T("hal", bus.TokHash))
		go func() {
			for m := range sub.Channel() {
				glog.Infof("RCV %s %+v", m.Topic.String(), m.Payload)
			}
		}()
	}

	go hal.Run(ctx, b.NewConnection("hal"), opts)
	if err := monitor.NewService().Start(ctx, b.NewConnection("monitor")); err != nil {
		glog.Exitf("monitor: %v", err)
	}
	if err := config.NewService(*profile).Start(ctx, b.NewConnection("config")); err != nil {
		glog.Exitf("config: %v", err)
	}

	glog.Infof("dhtmond up, profile=%s platform=%s", *profile, *platform)
	<-ctx.Done()
	glog.Infof("shutting down")
}

func platformOptions(ctx context.Context) (hal.Options, error) {
	switch *platform {
	case "sim":
		opts, board := hal.SimOptions()
		go board.Run(ctx)
		return opts, nil
	case "gpio":
		return hal.PeriphOptions()
	default:
		return hal.Options{}, errors.New("want gpio or sim")
	}
}
