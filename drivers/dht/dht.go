// Package dht drives the DHT11/DHT21/DHT22/SI7021 family of single-wire
// temperature and humidity sensors by bit-banging a GPIO line.
//
//	s, err := dht.New(pin, dht.DHT22)
//	t := s.Temperature() // °C, NaN on failure
//	h := s.Humidity()    // %RH, NaN on failure
//
// Reads are rate limited: at most one bus transaction per MinInterval
// (default 2 s); calls inside the window are served from the last result, so
// reading temperature and humidity back to back costs one transaction.
//
// A Sensor assumes exclusive, serialized access. It holds no locks; callers
// that share one across goroutines must provide their own mutual exclusion.
package dht

import (
	"math"
	"time"
)

// DefaultMinInterval is the minimum spacing between physical bus
// transactions. The sensors corrupt their output when cycled faster.
const DefaultMinInterval = 2 * time.Second

// Variant selects the sensor model. It fixes the start-pulse duration and
// the payload conversion formulas and cannot change after New.
type Variant uint8

const (
	DHT11  Variant = 11 // integer-resolution, no sign bit
	DHT21  Variant = 21
	DHT22  Variant = 22
	SI7021 Variant = 80 // ITEAD's DHT-workalike; short start pulse

	AM2301 = DHT21
	AM2302 = DHT22
)

func (v Variant) String() string {
	switch v {
	case DHT11:
		return "dht11"
	case DHT21:
		return "dht21"
	case DHT22:
		return "dht22"
	case SI7021:
		return "si7021"
	default:
		return "unknown"
	}
}

// ParseVariant maps a configuration name to a Variant.
func ParseVariant(s string) (Variant, bool) {
	switch s {
	case "dht11":
		return DHT11, true
	case "dht21", "am2301":
		return DHT21, true
	case "dht22", "am2302":
		return DHT22, true
	case "si7021":
		return SI7021, true
	default:
		return 0, false
	}
}

// Pull selects the input pull resistor.
type Pull uint8

const (
	PullNone Pull = iota
	PullUp
	PullDown
)

// Pin is the digital line the sensor hangs off. Implementations must switch
// direction without glitching the level.
type Pin interface {
	ConfigureInput(pull Pull) error
	ConfigureOutput(initial bool) error
	Set(level bool)
	Get() bool
}

// Stats counts read outcomes. All counters are monotonic; LastAttempt is the
// start time of the most recent physical attempt (never moved by cache hits).
// Physical attempts = Reads - CacheHits.
type Stats struct {
	Reads         uint32
	Successes     uint32
	CacheHits     uint32
	SuccessMicros uint64 // cumulative time spent in successful reads
	LastAttempt   time.Time
}

// Config adjusts a Sensor at creation. All fields are optional.
type Config struct {
	// Clock supplies sleeps and timestamps. Defaults to the system clock
	// with busy-spin microsecond delays.
	Clock Clock
	// Guard brackets the sampling window. Defaults to a guard that pins the
	// OS thread and disables GC for the duration.
	Guard Guard
	// MinInterval overrides DefaultMinInterval when > 0.
	MinInterval time.Duration
}

// Sensor is one physical sensor on one line.
type Sensor struct {
	pin         Pin
	variant     Variant
	clk         Clock
	guard       Guard
	minInterval time.Duration

	data   [5]byte
	lastOK bool
	stats  Stats
}

// New claims the line for a sensor: it configures the pin as an input with
// pull-up and fails if that configuration fails. It does not talk to the
// sensor; the first read does.
func New(pin Pin, variant Variant, cfgs ...Config) (*Sensor, error) {
	s := &Sensor{
		pin:         pin,
		variant:     variant,
		clk:         sysclock{},
		guard:       &schedGuard{},
		minInterval: DefaultMinInterval,
	}
	if len(cfgs) > 0 {
		c := cfgs[0]
		if c.Clock != nil {
			s.clk = c.Clock
		}
		if c.Guard != nil {
			s.guard = c.Guard
		}
		if c.MinInterval > 0 {
			s.minInterval = c.MinInterval
		}
	}
	if err := pin.ConfigureInput(PullUp); err != nil {
		return nil, err
	}
	return s, nil
}

// Close releases the handle. The line is left configured as an input.
func (s *Sensor) Close() error { return nil }

// Variant reports the model the sensor was created with.
func (s *Sensor) Variant() Variant { return s.variant }

// Temperature returns degrees Celsius, or NaN when the read failed.
// Failure causes are not distinguished; test for NaN, not an error.
func (s *Sensor) Temperature() float64 {
	if !s.Read() {
		return math.NaN()
	}
	if s.variant == DHT11 {
		return float64(s.data[2])
	}
	t := float64(uint16(s.data[2]&0x7F)<<8|uint16(s.data[3])) * 0.1
	if s.data[2]&0x80 != 0 {
		// Sign-magnitude encoding, not two's complement.
		t = -t
	}
	return t
}

// Humidity returns percent relative humidity, or NaN when the read failed.
func (s *Sensor) Humidity() float64 {
	if !s.Read() {
		return math.NaN()
	}
	if s.variant == DHT11 {
		return float64(s.data[0])
	}
	return float64(uint16(s.data[0])<<8|uint16(s.data[1])) * 0.1
}

// Stats returns a snapshot of the counters. The second result is false only
// on a nil receiver.
func (s *Sensor) Stats() (Stats, bool) {
	if s == nil {
		return Stats{}, false
	}
	return s.stats, true
}
