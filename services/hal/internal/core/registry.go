package core

import (
	"sync"
)

var (
	regMu    sync.RWMutex
	builders = map[string]Builder{}
)

// RegisterBuilder is called from device package init functions. Duplicate
// registration is a programming error.
func RegisterBuilder(typ string, b Builder) {
	regMu.Lock()
	defer regMu.Unlock()
	if _, exists := builders[typ]; exists {
		panic("duplicate device builder: " + typ)
	}
	builders[typ] = b
}

func lookupBuilder(typ string) (Builder, bool) {
	regMu.RLock()
	defer regMu.RUnlock()
	b, ok := builders[typ]
	return b, ok
}
