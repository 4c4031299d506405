package dht

import "time"

// Clock supplies the engine's sleeps and timestamps. Tests substitute a
// scripted clock; production code uses the system clock.
type Clock interface {
	SleepMillis(ms int)
	SleepMicros(us int)
	Now() time.Time
}

type sysclock struct{}

func (sysclock) SleepMillis(ms int) { time.Sleep(time.Duration(ms) * time.Millisecond) }

// SleepMicros busy-spins below one millisecond. Sub-millisecond sleeps
// oversleep by an order of magnitude under a preemptive scheduler, which
// would wreck the pulse-width windows.
func (sysclock) SleepMicros(us int) {
	if us <= 0 {
		return
	}
	d := time.Duration(us) * time.Microsecond
	if us >= 1000 {
		time.Sleep(d)
		return
	}
	start := time.Now()
	for time.Since(start) < d {
	}
}

func (sysclock) Now() time.Time { return time.Now() }
