package config

import (
	"context"
	"errors"

	"github.com/marklacroix/dht/bus"
	"github.com/marklacroix/dht/x/jsonx"
)

const configPrefix = "config"

// EmbeddedConfigLookup resolves the raw JSON for a profile. Tests and
// platform bootstraps may override it.
var EmbeddedConfigLookup = func(profile string) ([]byte, bool) {
	b, ok := embeddedConfigs[profile]
	return b, ok
}

// Service publishes one embedded profile onto the bus. Each top-level
// key of the profile's JSON object becomes a retained message under
// config/<key>, so services that start later still see their section.
type Service struct {
	Profile string
}

func NewService(profile string) *Service {
	return &Service{Profile: profile}
}

func (s *Service) publish(conn *bus.Connection) error {
	if s.Profile == "" {
		return errors.New("no profile selected")
	}
	raw, ok := EmbeddedConfigLookup(s.Profile)
	if !ok || len(raw) == 0 {
		return errors.New("no embedded config for profile: " + s.Profile)
	}

	var sections map[string]any
	if err := jsonx.Decode(raw, &sections); err != nil {
		return err
	}

	for key, val := range sections {
		conn.Publish(conn.NewMessage(bus.T(configPrefix, key), val, true))
	}
	return nil
}

// Start publishes the profile's sections in the background. A bad
// profile is logged, not fatal; the bus keeps running unconfigured.
func (s *Service) Start(ctx context.Context, conn *bus.Connection) error {
	go func() {
		if err := s.publish(conn); err != nil {
			println("[config]", err.Error())
		}
	}()
	return nil
}
