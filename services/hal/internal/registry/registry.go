// Package registry tracks exclusive ownership of GPIO pins. A sensor line
// must have a single owner: two devices driving the same pin would corrupt
// each other's transactions, so claims are checked here rather than trusted
// to configuration.
package registry

import (
	"sync"

	"github.com/marklacroix/dht/services/hal/internal/halcore"
)

type claim struct {
	devID string
	pin   halcore.GPIOPin
}

type Claims struct {
	pins halcore.PinFactory

	mu    sync.Mutex
	owned map[int]claim
}

func NewClaims(pins halcore.PinFactory) *Claims {
	return &Claims{pins: pins, owned: map[int]claim{}}
}

// ClaimGPIO hands pin n to devID. A device may re-claim its own pin; any
// other overlap is refused.
func (c *Claims) ClaimGPIO(devID string, n int) (halcore.GPIOPin, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if cl, ok := c.owned[n]; ok {
		if cl.devID == devID {
			return cl.pin, nil
		}
		return nil, halcore.ErrPinInUse
	}
	pin, ok := c.pins.ByNumber(n)
	if !ok {
		return nil, halcore.ErrUnknownPin
	}
	c.owned[n] = claim{devID: devID, pin: pin}
	return pin, nil
}

// ReleaseGPIO returns pin n to the pool. Only the owner can release it.
func (c *Claims) ReleaseGPIO(devID string, n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if cl, ok := c.owned[n]; ok && cl.devID == devID {
		delete(c.owned, n)
	}
}
