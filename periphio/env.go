package periphio

import (
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"periph.io/x/conn/v3"
	"periph.io/x/conn/v3/physic"

	"github.com/marklacroix/dht/drivers/dht"
)

// Env exposes a sensor through physic.SenseEnv.
type Env struct {
	s *dht.Sensor

	mu       sync.Mutex
	shutdown chan struct{}
}

func NewEnv(s *dht.Sensor) *Env {
	return &Env{s: s}
}

// Sense runs one read and fills e. Both measurements come from the same
// frame: the engine's read window turns the second conversion into a cache
// hit rather than a second line transaction.
func (e *Env) Sense(env *physic.Env) error {
	env.Temperature = 0
	env.Pressure = 0
	env.Humidity = 0

	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.s.Read() {
		return errors.New("periphio: sensor read failed")
	}
	tc := e.s.Temperature()
	rh := e.s.Humidity()
	if math.IsNaN(tc) || math.IsNaN(rh) {
		return errors.New("periphio: sensor read failed")
	}
	t10 := int64(math.Round(tc * 10))
	h10 := int64(math.Round(rh * 10))
	env.Temperature = physic.ZeroCelsius + physic.Temperature(t10)*(physic.Celsius/10)
	env.Humidity = physic.RelativeHumidity(h10) * physic.MilliRH
	return nil
}

// SenseContinuous reads on interval until Halt. Intervals below the read
// window would only produce cache hits, so they are rejected.
func (e *Env) SenseContinuous(interval time.Duration) (<-chan physic.Env, error) {
	if interval < dht.DefaultMinInterval {
		return nil, fmt.Errorf("periphio: interval below the %s read window", dht.DefaultMinInterval)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.shutdown != nil {
		return nil, errors.New("periphio: sense continuous already running")
	}
	e.shutdown = make(chan struct{})
	ch := make(chan physic.Env, 16)
	go func(stop <-chan struct{}) {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		e.pump(ticker.C, ch, stop)
	}(e.shutdown)
	return ch, nil
}

// pump forwards one sample per tick until stop closes. The forward itself
// selects on stop, so a consumer that walked away from a full channel
// cannot keep the goroutine alive past Halt.
func (e *Env) pump(tick <-chan time.Time, ch chan<- physic.Env, stop <-chan struct{}) {
	for {
		select {
		case <-stop:
			close(ch)
			return
		case <-tick:
			var sample physic.Env
			if err := e.Sense(&sample); err != nil {
				continue
			}
			select {
			case ch <- sample:
			case <-stop:
				close(ch)
				return
			}
		}
	}
}

// Halt stops a running SenseContinuous.
func (e *Env) Halt() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.shutdown != nil {
		close(e.shutdown)
		e.shutdown = nil
	}
	return nil
}

// Precision reports the sensor family's resolution.
func (e *Env) Precision(env *physic.Env) {
	if e.s.Variant() == dht.DHT11 {
		env.Temperature = physic.Celsius
		env.Humidity = physic.PercentRH
	} else {
		env.Temperature = physic.Celsius / 10
		env.Humidity = physic.PercentRH / 10
	}
	env.Pressure = 0
}

func (e *Env) String() string {
	return fmt.Sprintf("%s environment sensor", e.s.Variant())
}

var _ conn.Resource = (*Env)(nil)
var _ physic.SenseEnv = (*Env)(nil)
