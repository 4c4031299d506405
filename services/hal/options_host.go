//go:build !rp2040 && !rp2350

package hal

import "github.com/marklacroix/dht/services/hal/internal/platform"

// Sim is the simulated board handle used by demos and tests.
type Sim = platform.SimBoard

// SimOptions wires HAL to a simulated board. The returned handle feeds
// readings and paces the virtual clock.
func SimOptions() (Options, *Sim) {
	b := platform.NewSimBoard()
	return Options{Pins: b, Line: b.Line()}, b
}

// PeriphOptions wires HAL to the host's real GPIO lines.
func PeriphOptions() (Options, error) {
	pins, err := platform.PeriphPins()
	if err != nil {
		return Options{}, err
	}
	return Options{Pins: pins}, nil
}
