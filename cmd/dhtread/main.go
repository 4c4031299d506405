// cmd/dhtread/main.go

// dhtread reads a DHT-class sensor once, or on an interval, and prints
// the result. With -sim it reads a simulated line instead of hardware,
// which is useful for checking a deployment image without a sensor.
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/golang/glog"

	"github.com/marklacroix/dht/drivers/dht"
	"github.com/marklacroix/dht/drivers/dht/dhtsim"
	"github.com/marklacroix/dht/periphio"
)

var (
	pinName  = flag.String("pin", "GPIO4", "GPIO the sensor data line is on (name, alias or number)")
	variant  = flag.String("variant", "dht22", "sensor variant: dht11, dht21, dht22, am2301, am2302, si7021")
	interval = flag.Duration("interval", 0, "keep reading on this interval; 0 reads once")
	stats    = flag.Bool("stats", false, "print engine statistics after each read")
	sim      = flag.Bool("sim", false, "read a simulated sensor instead of hardware")
)

func main() {
	flag.Parse()

	v, ok := dht.ParseVariant(*variant)
	if !ok {
		glog.Exitf("unknown variant %q", *variant)
	}
	s, err := open(v)
	if err != nil {
		glog.Exitf("open: %v", err)
	}

	if *interval <= 0 {
		if !report(s) {
			os.Exit(1)
		}
		return
	}
	tick := time.NewTicker(*interval)
	defer tick.Stop()
	for {
		report(s)
		<-tick.C
	}
}

func open(v dht.Variant) (*dht.Sensor, error) {
	if *sim {
		clk := dhtsim.NewClock()
		pin := dhtsim.NewPin(clk)
		if v == dht.DHT11 {
			pin.SetFrame(dhtsim.FrameDHT11(65, 21))
		} else {
			pin.SetFrame(dhtsim.Frame(652, 214))
		}
		return dht.New(pin, v, dht.Config{Clock: clk, Guard: dht.NopGuard{}})
	}
	return periphio.Open(*pinName, v)
}

func lineName() string {
	if *sim {
		return "sim"
	}
	return *pinName
}

func report(s *dht.Sensor) bool {
	if !s.Read() {
		glog.Errorf("%s on %s: read failed", s.Variant(), lineName())
		printStats(s)
		return false
	}
	fmt.Printf("%.1f C  %.1f %%RH\n", s.Temperature(), s.Humidity())
	printStats(s)
	return true
}

func printStats(s *dht.Sensor) {
	if !*stats {
		return
	}
	st, ok := s.Stats()
	if !ok {
		return
	}
	fmt.Printf("reads=%d successes=%d cache_hits=%d avg_read=%s\n",
		st.Reads, st.Successes, st.CacheHits, avgRead(st))
}

func avgRead(st dht.Stats) time.Duration {
	if st.Successes == 0 {
		return 0
	}
	return time.Duration(st.SuccessMicros/uint64(st.Successes)) * time.Microsecond
}
