package core

import (
	"github.com/marklacroix/dht/drivers/dht"
	"github.com/marklacroix/dht/services/hal/internal/halcore"
)

// ---- Device → HAL telemetry (single shape) ----
// An Event is by default a value-like update that HAL publishes retained to
// .../value. IsEvent selects non-retained .../event publication instead.
// A non-empty Err suppresses both and marks the capability degraded.

type Event struct {
	Addr     CapAddr
	Payload  any
	TSms     int64
	Err      string // errcode string; "" means success
	IsEvent  bool
	EventTag string // optional event subtopic, e.g. "stats"
}

// EventEmitter is how devices hand telemetry to HAL. Emit must be
// non-blocking; false reports a drop under pressure.
type EventEmitter interface {
	Emit(ev Event) bool
}

// ---- Resource access ----

// ResourceRegistry arbitrates exclusive pin ownership between devices.
type ResourceRegistry interface {
	ClaimGPIO(devID string, pin int) (halcore.GPIOPin, error)
	ReleaseGPIO(devID string, pin int)
}

// Resources is what HAL injects into builders. Line carries the platform's
// clock and scheduling guard for sensor transactions; its zero value selects
// the real-time defaults.
type Resources struct {
	Reg  ResourceRegistry
	Pub  EventEmitter
	Line dht.Config
}
