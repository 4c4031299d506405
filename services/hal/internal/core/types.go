package core

import (
	"context"

	"github.com/marklacroix/dht/errcode"
	"github.com/marklacroix/dht/types"
)

// ---- Capability & device model ----

// CapAddr names one capability: hal/cap/<domain>/<kind>/<name>.
type CapAddr struct {
	Domain string
	Kind   string
	Name   string
}

type CapabilitySpec struct {
	Domain string // "" => inferred from Kind
	Kind   types.Kind
	Name   string // "" => device ID
	Info   types.Info

	// PollMs > 0 schedules PollVerb (default "read") against this
	// capability at the given cadence, with up to PollJitterMs of spread.
	PollMs       uint32
	PollVerb     string
	PollJitterMs uint32
}

// EnqueueResult is the immediate outcome of a control verb. OK means the
// work was accepted, not that it succeeded; outcomes arrive as events.
type EnqueueResult struct {
	OK    bool
	Error errcode.Code
}

type Device interface {
	ID() string
	Capabilities() []CapabilitySpec
	Init(ctx context.Context) error
	Control(addr CapAddr, verb string, payload any) (EnqueueResult, error)
	Close() error
}

// ---- Builders ----

type BuilderInput struct {
	ID, Type string
	Params   any
	Res      Resources
}

type Builder interface {
	Build(ctx context.Context, in BuilderInput) (Device, error)
}
