//go:build rp2040 || rp2350

// cmd/picodht/main.go

// picodht boots the sensor stack on a Raspberry Pi Pico: in-process
// bus, HAL over the on-board pins, one DHT22 on GP4. Readings stream
// to the serial console.
package main

import (
	"context"
	"runtime"
	"time"

	"github.com/marklacroix/dht/bus"
	"github.com/marklacroix/dht/services/hal"
	"github.com/marklacroix/dht/types"
	"github.com/marklacroix/dht/x/fmtx"
)

const (
	deviceID  = "pico"
	sensorPin = 4
	pollMs    = 10_000
)

func main() {
	time.Sleep(3 * time.Second) // let the USB console attach
	ctx := context.Background()

	println("[main] bootstrapping bus")
	b := bus.NewBus(8)

	println("[main] starting hal")
	go hal.Run(ctx, b.NewConnection("hal"), hal.BoardOptions())

	ui := b.NewConnection("ui")
	vals := ui.Subscribe(bus.T("hal", "cap", "env", bus.TokPlus, deviceID, "value"))
	go printValues(vals)
	stat := ui.Subscribe(bus.T("hal", "cap", "env", "temperature", deviceID, "status"))
	go printStatus(stat)

	println("[main] publishing config/hal")
	cfg := types.HALConfig{
		Devices: []types.HALDevice{{
			ID:   deviceID,
			Type: "dht",
			Params: types.DHTParams{
				Pin:     sensorPin,
				Variant: "dht22",
				PollMs:  pollMs,
			},
		}},
	}
	ui.Publish(ui.NewMessage(bus.T("config", "hal"), cfg, true))

	// First reading right away; the poller takes over from here.
	time.Sleep(250 * time.Millisecond)
	readNow := bus.T("hal", "cap", "env", "temperature", deviceID, "control", "read_now")
	if reply, err := ui.RequestWait(ctx, ui.NewMessage(readNow, nil, false)); err != nil {
		println("[main] read_now error:", err.Error())
	} else if er, ok := reply.Payload.(types.ErrorReply); ok {
		println("[main] read_now rejected:", er.Error)
	}

	for {
		time.Sleep(time.Minute)
		printMem()
	}
}

func printValues(sub *bus.Subscription) {
	for m := range sub.Channel() {
		switch v := m.Payload.(type) {
		case types.TemperatureValue:
			println(fmtx.Sprintf("[env] %s C", deci(v.DeciC)))
		case types.HumidityValue:
			println(fmtx.Sprintf("[env] %s %%RH", centi(v.RHx100)))
		}
	}
}

func printStatus(sub *bus.Subscription) {
	for m := range sub.Channel() {
		if st, ok := m.Payload.(types.CapabilityStatus); ok {
			if st.Error != "" {
				println("[hal] link", string(st.Link), st.Error)
			} else {
				println("[hal] link", string(st.Link))
			}
		}
	}
}

func deci(v int16) string {
	d := int(v)
	sign := ""
	if d < 0 {
		sign = "-"
		d = -d
	}
	return fmtx.Sprintf("%s%d.%d", sign, d/10, d%10)
}

func centi(v uint16) string {
	f := int(v % 100)
	return fmtx.Sprintf("%d.%d%d", int(v)/100, f/10, f%10)
}

// printMem prints a compact snapshot of the TinyGo heap.
func printMem() {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	println(
		"[mem]",
		"alloc:", uint32(ms.Alloc),
		"heapInuse:", uint32(ms.HeapInuse),
		"heapSys:", uint32(ms.HeapSys),
		"mallocs:", uint32(ms.Mallocs),
		"frees:", uint32(ms.Frees),
	)
}
