// Package halcore holds the contracts shared between the HAL service, its
// device builders and the platform providers. It must stay free of bus and
// device imports so that platform code can depend on it from any build
// target.
package halcore

import (
	"context"
	"errors"
	"time"
)

// ---- GPIO abstractions ----

type Pull uint8

const (
	PullNone Pull = iota
	PullUp
	PullDown
)

type GPIOPin interface {
	ConfigureInput(pull Pull) error
	ConfigureOutput(initial bool) error
	Set(level bool)
	Get() bool
	Toggle()
	Number() int
}

// PinFactory supplies GPIO pins by the configured number scheme.
type PinFactory interface {
	ByNumber(n int) (GPIOPin, bool)
}

var (
	ErrUnknownPin = errors.New("unknown_pin")
	ErrPinInUse   = errors.New("pin_in_use")
)

// ---- Line worker contracts ----

// LineJob is one unit of sensor work. Implementations are reusable values
// owned by a device; they must not retain ctx.
type LineJob interface {
	Run(ctx context.Context)
}

// ReadReq asks a worker to run a job. Prio requests are given a short grace
// period when the queue is full.
type ReadReq struct {
	ID   string
	Job  LineJob
	Prio bool
}

// WorkerConfig centralises timings and limits.
type WorkerConfig struct {
	ReadTimeout    time.Duration
	InputQueueSize int
}
