// Package dhtsim models a DHT sensor line in software. A virtual Clock
// stands in for real sleeps and a Pin replays the single-wire waveform a
// healthy sensor would produce for a given frame, so protocol runs are
// instant and bit-exact. It backs the simulated platform providers and the
// adapter tests.
package dhtsim

import (
	"sync"
	"time"

	"github.com/marklacroix/dht/drivers/dht"
)

// Clock is a virtual dht.Clock. Sleeps advance virtual time instead of
// blocking, so a full sensor transaction completes in microseconds of wall
// time. Advance moves time forward between transactions, e.g. to step past
// the read window or to pace a live simulation.
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

func NewClock() *Clock {
	return &Clock{now: time.Unix(1_700_000_000, 0)}
}

func (c *Clock) SleepMillis(ms int) { c.Advance(time.Duration(ms) * time.Millisecond) }
func (c *Clock) SleepMicros(us int) { c.Advance(time.Duration(us) * time.Microsecond) }

func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

var _ dht.Clock = (*Clock)(nil)

// Segment is one stretch of line activity.
type Segment struct {
	Level bool
	Dur   time.Duration
}

// Waveform renders the line activity for one frame: the sensor's response
// delay, the 80 µs ack low and high, forty bits of 50 µs low followed by a
// 26 µs (zero) or 70 µs (one) high, and the closing low before the line is
// released to the pull-up.
func Waveform(frame [5]byte) []Segment {
	segs := []Segment{
		{true, 30 * time.Microsecond},
		{false, 80 * time.Microsecond},
		{true, 80 * time.Microsecond},
	}
	for _, b := range frame {
		for bit := 7; bit >= 0; bit-- {
			segs = append(segs, Segment{false, 50 * time.Microsecond})
			if b&(1<<uint(bit)) != 0 {
				segs = append(segs, Segment{true, 70 * time.Microsecond})
			} else {
				segs = append(segs, Segment{true, 26 * time.Microsecond})
			}
		}
	}
	return append(segs, Segment{false, 50 * time.Microsecond})
}

// Frame encodes tenths of %RH and tenths of °C into the five-byte frame the
// DHT21/DHT22/SI7021 family transmits, checksum included. Negative
// temperatures use the sign-magnitude top bit.
func Frame(rh10 uint16, t10 int16) [5]byte {
	var f [5]byte
	f[0] = byte(rh10 >> 8)
	f[1] = byte(rh10)
	m := t10
	neg := m < 0
	if neg {
		m = -m
	}
	f[2] = byte(uint16(m) >> 8)
	if neg {
		f[2] |= 0x80
	}
	f[3] = byte(uint16(m))
	f[4] = f[0] + f[1] + f[2] + f[3]
	return f
}

// FrameDHT11 encodes whole-degree readings the way the original DHT11
// reports them, with the fractional bytes zeroed.
func FrameDHT11(rh, t uint8) [5]byte {
	return [5]byte{rh, 0, t, 0, rh + t}
}

// Pin replays a waveform against a Clock. Playback starts when the host
// finishes its start pulse, i.e. on the mode switch back to input after an
// output phase. Without a program the line just sits at its idle level,
// which models a missing or shorted sensor.
type Pin struct {
	clk dht.Clock

	mu             sync.Mutex
	program        []Segment
	idle           bool
	playing        bool
	playbackAt     time.Time
	armed          bool
	armedAt        time.Time
	cfgErr         error
	lastStartPulse time.Duration
}

func NewPin(clk dht.Clock) *Pin {
	return &Pin{clk: clk, idle: true}
}

// SetFrame arms the pin to answer the next transaction with frame.
func (p *Pin) SetFrame(frame [5]byte) {
	p.SetProgram(Waveform(frame))
}

func (p *Pin) SetProgram(segs []Segment) {
	p.mu.Lock()
	p.program = segs
	p.mu.Unlock()
}

// SetIdle sets the level read outside playback. A pulled-up healthy line
// idles high; false models a line held low.
func (p *Pin) SetIdle(level bool) {
	p.mu.Lock()
	p.idle = level
	p.mu.Unlock()
}

// FailConfig makes every mode switch fail with err until reset with nil.
func (p *Pin) FailConfig(err error) {
	p.mu.Lock()
	p.cfgErr = err
	p.mu.Unlock()
}

// LastStartPulse reports how long the host held the line for its most
// recent start pulse.
func (p *Pin) LastStartPulse() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastStartPulse
}

func (p *Pin) ConfigureInput(pull dht.Pull) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cfgErr != nil {
		return p.cfgErr
	}
	if p.armed {
		p.lastStartPulse = p.clk.Now().Sub(p.armedAt)
		p.armed = false
		if p.program != nil {
			p.playing = true
			p.playbackAt = p.clk.Now()
		}
	}
	return nil
}

func (p *Pin) ConfigureOutput(initial bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cfgErr != nil {
		return p.cfgErr
	}
	p.armed = true
	p.armedAt = p.clk.Now()
	return nil
}

func (p *Pin) Set(level bool) {}

func (p *Pin) Get() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.playing {
		return p.idle
	}
	off := p.clk.Now().Sub(p.playbackAt)
	for _, seg := range p.program {
		if off < seg.Dur {
			return seg.Level
		}
		off -= seg.Dur
	}
	return true
}

var _ dht.Pin = (*Pin)(nil)
