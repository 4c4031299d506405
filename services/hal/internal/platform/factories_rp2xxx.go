// services/hal/internal/platform/factories_rp2xxx.go
//go:build rp2040 || rp2350

package platform

import (
	"machine"

	"github.com/marklacroix/dht/services/hal/internal/halcore"
)

// DefaultPinFactory maps logical numbers straight to machine.Pin(n),
// matching Pico/Pico 2 GP numbering.
func DefaultPinFactory() halcore.PinFactory { return rp2PinFactory{} }

type rp2PinFactory struct{}

func (rp2PinFactory) ByNumber(n int) (halcore.GPIOPin, bool) {
	if n < 0 || n > 28 { // GP0..GP28 are the user GPIOs
		return nil, false
	}
	return &rp2Pin{p: machine.Pin(n), n: n}, true
}

type rp2Pin struct {
	p machine.Pin
	n int
}

func (r *rp2Pin) ConfigureInput(pull halcore.Pull) error {
	mode := machine.PinInput
	switch pull {
	case halcore.PullUp:
		mode = machine.PinInputPullup
	case halcore.PullDown:
		mode = machine.PinInputPulldown
	}
	r.p.Configure(machine.PinConfig{Mode: mode})
	return nil
}

func (r *rp2Pin) ConfigureOutput(initial bool) error {
	r.p.Configure(machine.PinConfig{Mode: machine.PinOutput})
	r.p.Set(initial)
	return nil
}

func (r *rp2Pin) Set(level bool) { r.p.Set(level) }
func (r *rp2Pin) Get() bool      { return r.p.Get() }

func (r *rp2Pin) Toggle() {
	if r.p.Get() {
		r.p.Low()
	} else {
		r.p.High()
	}
}

func (r *rp2Pin) Number() int { return r.n }
