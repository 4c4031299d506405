package dht

import (
	"runtime"
	"runtime/debug"
)

// Guard brackets the sampling window, suppressing whatever can preempt the
// busy-poll loops. Enter/Exit come in strict pairs; the engine releases on
// every exit path.
type Guard interface {
	Enter()
	Exit()
}

// schedGuard pins the goroutine to its OS thread and turns the garbage
// collector off for the window. This cannot stop the kernel from scheduling
// away, but it removes the runtime's own pause sources, which is as close to
// interrupt masking as user space gets.
type schedGuard struct {
	gcPercent int
}

func (g *schedGuard) Enter() {
	runtime.LockOSThread()
	g.gcPercent = debug.SetGCPercent(-1)
}

func (g *schedGuard) Exit() {
	debug.SetGCPercent(g.gcPercent)
	runtime.UnlockOSThread()
}

// NopGuard is a Guard that does nothing. Useful on simulated lines where
// timing is virtual.
type NopGuard struct{}

func (NopGuard) Enter() {}
func (NopGuard) Exit()  {}
