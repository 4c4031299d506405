//go:build rp2040 || rp2350

package hal

import "github.com/marklacroix/dht/services/hal/internal/platform"

// BoardOptions wires HAL to the MCU's own pins.
func BoardOptions() Options {
	return Options{Pins: platform.DefaultPinFactory()}
}
