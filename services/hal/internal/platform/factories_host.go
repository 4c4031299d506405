// services/hal/internal/platform/factories_host.go
//go:build !rp2040 && !rp2350

package platform

import (
	"context"
	"math/rand"
	"strconv"
	"sync"
	"time"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"

	"github.com/marklacroix/dht/drivers/dht"
	"github.com/marklacroix/dht/drivers/dht/dhtsim"
	"github.com/marklacroix/dht/periphio"
	"github.com/marklacroix/dht/services/hal/internal/halcore"
	"github.com/marklacroix/dht/x/mathx"
)

// ----------------------------- Simulated GPIO --------------------------------

// SimBoard fabricates sensor lines backed by waveform players on a
// virtual clock. Reads complete deterministically: the driver's sleeps
// advance the clock instead of wall time.
type SimBoard struct {
	clk *dhtsim.Clock

	mu   sync.Mutex
	pins map[int]*simPin
	rh10 uint16
	t10  int16
}

func NewSimBoard() *SimBoard {
	return &SimBoard{
		clk:  dhtsim.NewClock(),
		pins: map[int]*simPin{},
		rh10: 452, // 45.2 %RH
		t10:  216, // 21.6 °C
	}
}

func (b *SimBoard) ByNumber(n int) (halcore.GPIOPin, bool) {
	if n < 0 || n > 28 { // mirror the GP0..GP28 numbering of the real board
		return nil, false
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if p, ok := b.pins[n]; ok {
		return p, true
	}
	p := &simPin{Pin: dhtsim.NewPin(b.clk), n: n}
	p.SetFrame(dhtsim.Frame(b.rh10, b.t10))
	b.pins[n] = p
	return p, true
}

// Line is the sensor transaction config for simulated lines.
func (b *SimBoard) Line() dht.Config {
	return dht.Config{Clock: b.clk, Guard: dht.NopGuard{}}
}

// SetReading points every simulated sensor at one fixed-point reading.
func (b *SimBoard) SetReading(rh10 uint16, t10 int16) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.rh10, b.t10 = rh10, t10
	for _, p := range b.pins {
		p.SetFrame(dhtsim.Frame(rh10, t10))
	}
}

// Step advances the virtual clock, releasing any driver waiting out its
// reuse window.
func (b *SimBoard) Step(d time.Duration) { b.clk.Advance(d) }

// FailLine makes an existing pin stop answering until the next
// SetReading.
func (b *SimBoard) FailLine(n int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if p, ok := b.pins[n]; ok {
		p.SetProgram(nil)
	}
}

// Run paces the clock against wall time and wanders the readings until
// ctx is done. The demo binary uses it; tests drive Step directly.
func (b *SimBoard) Run(ctx context.Context) {
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	tick := time.NewTicker(500 * time.Millisecond)
	defer tick.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-tick.C:
			b.clk.Advance(500 * time.Millisecond)
			b.mu.Lock()
			b.rh10 = uint16(mathx.Clamp(int(b.rh10)+rng.Intn(7)-3, 200, 900))
			b.t10 = int16(mathx.Clamp(int(b.t10)+rng.Intn(5)-2, -100, 500))
			for _, p := range b.pins {
				p.SetFrame(dhtsim.Frame(b.rh10, b.t10))
			}
			b.mu.Unlock()
		}
	}
}

type simPin struct {
	*dhtsim.Pin
	n int
}

func (p *simPin) ConfigureInput(pull halcore.Pull) error {
	dp := dht.PullNone
	switch pull {
	case halcore.PullUp:
		dp = dht.PullUp
	case halcore.PullDown:
		dp = dht.PullDown
	}
	return p.Pin.ConfigureInput(dp)
}

func (p *simPin) Toggle()     { p.Set(!p.Get()) }
func (p *simPin) Number() int { return p.n }

// ----------------------------- Host GPIO --------------------------------------

// PeriphPins maps numbers to real host GPIO lines through periph's
// registry ("GPIO<n>" names, as on a Raspberry Pi).
func PeriphPins() (halcore.PinFactory, error) {
	if err := periphio.Init(); err != nil {
		return nil, err
	}
	return periphPinFactory{}, nil
}

type periphPinFactory struct{}

func (periphPinFactory) ByNumber(n int) (halcore.GPIOPin, bool) {
	p := gpioreg.ByName("GPIO" + strconv.Itoa(n))
	if p == nil {
		return nil, false
	}
	return periphPin{p: p, n: n}, true
}

type periphPin struct {
	p gpio.PinIO
	n int
}

func (pp periphPin) ConfigureInput(pull halcore.Pull) error {
	m := gpio.Float
	switch pull {
	case halcore.PullUp:
		m = gpio.PullUp
	case halcore.PullDown:
		m = gpio.PullDown
	}
	return pp.p.In(m, gpio.NoEdge)
}

func (pp periphPin) ConfigureOutput(initial bool) error { return pp.p.Out(gpio.Level(initial)) }
func (pp periphPin) Set(level bool)                     { _ = pp.p.Out(gpio.Level(level)) }
func (pp periphPin) Get() bool                          { return bool(pp.p.Read()) }
func (pp periphPin) Toggle()                            { _ = pp.p.Out(!pp.p.Read()) }
func (pp periphPin) Number() int                        { return pp.n }
