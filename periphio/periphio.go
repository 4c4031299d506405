// Package periphio binds the sensor engine to real GPIO lines through the
// periph.io host drivers. It adapts a gpio.PinIO to the engine's line
// contract and exposes readings through the standard physic.SenseEnv
// interface so the sensor slots into existing periph.io pipelines.
package periphio

import (
	"fmt"
	"sync"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/host/v3"

	"github.com/marklacroix/dht/drivers/dht"
)

var (
	initOnce sync.Once
	initErr  error
)

// Init loads the periph.io host drivers. Safe to call more than once; Open
// calls it implicitly.
func Init() error {
	initOnce.Do(func() {
		_, initErr = host.Init()
	})
	return initErr
}

// linePin adapts a periph.io pin to the engine's line contract.
type linePin struct {
	p gpio.PinIO
}

// Pin wraps an already resolved periph.io pin.
func Pin(p gpio.PinIO) dht.Pin {
	return linePin{p: p}
}

func (l linePin) ConfigureInput(pull dht.Pull) error {
	return l.p.In(gpioPull(pull), gpio.NoEdge)
}

func (l linePin) ConfigureOutput(initial bool) error {
	return l.p.Out(gpio.Level(initial))
}

func (l linePin) Set(level bool) {
	_ = l.p.Out(gpio.Level(level))
}

func (l linePin) Get() bool {
	return bool(l.p.Read())
}

func gpioPull(pull dht.Pull) gpio.Pull {
	switch pull {
	case dht.PullUp:
		return gpio.PullUp
	case dht.PullDown:
		return gpio.PullDown
	default:
		return gpio.Float
	}
}

// PinByName resolves a pin through the periph.io registry, by name
// ("GPIO4"), alias or number ("4").
func PinByName(name string) (dht.Pin, error) {
	p := gpioreg.ByName(name)
	if p == nil {
		return nil, fmt.Errorf("periphio: no pin named %q", name)
	}
	return Pin(p), nil
}

// Open initializes the host drivers, resolves the named pin and starts a
// sensor on it.
func Open(pinName string, variant dht.Variant, cfgs ...dht.Config) (*dht.Sensor, error) {
	if err := Init(); err != nil {
		return nil, fmt.Errorf("periphio: host init: %w", err)
	}
	pin, err := PinByName(pinName)
	if err != nil {
		return nil, err
	}
	return dht.New(pin, variant, cfgs...)
}
