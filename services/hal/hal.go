// services/hal/hal.go
//
// Package hal exposes sensors as bus capabilities. Devices are declared
// over config/hal; each capability then serves retained info, status and
// value topics plus request/reply control verbs under
// hal/cap/<domain>/<kind>/<name>/.
package hal

import (
	"context"

	"github.com/marklacroix/dht/bus"
	"github.com/marklacroix/dht/drivers/dht"
	"github.com/marklacroix/dht/services/hal/internal/core"
	"github.com/marklacroix/dht/services/hal/internal/halcore"
	"github.com/marklacroix/dht/services/hal/internal/registry"

	// Device builders register themselves.
	_ "github.com/marklacroix/dht/services/hal/devices/dht"
)

// PinFactory supplies GPIO lines to the service.
type PinFactory = halcore.PinFactory

// Options selects the platform surface HAL drives.
type Options struct {
	// Pins maps configured pin numbers to lines.
	Pins PinFactory

	// Line carries the clock and scheduling guard for sensor
	// transactions. The zero value selects the real-time defaults.
	Line dht.Config
}

// Run serves hal/* on conn until ctx is cancelled.
func Run(ctx context.Context, conn *bus.Connection, opts Options) {
	h := core.NewHAL(conn, core.Resources{
		Reg:  registry.NewClaims(opts.Pins),
		Line: opts.Line,
	})
	h.Run(ctx)
}
