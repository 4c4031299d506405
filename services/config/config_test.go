// config/config_test.go
package config

import (
	"context"
	"testing"
	"time"

	"github.com/marklacroix/dht/bus"
	"github.com/marklacroix/dht/types"
	"github.com/marklacroix/dht/x/jsonx"
)

func TestPublishesProfileSectionsRetained(t *testing.T) {
	oldLookup := EmbeddedConfigLookup
	EmbeddedConfigLookup = func(profile string) ([]byte, bool) {
		if profile != "test" {
			return nil, false
		}
		return []byte(`{
			"hal": {
				"devices": [
					{"id": "t1", "type": "dht", "params": {"pin": 4, "variant": "dht22"}}
				]
			},
			"monitor": {"interval_ms": 5000}
		}`), true
	}
	t.Cleanup(func() { EmbeddedConfigLookup = oldLookup })

	b := bus.NewBus(16)
	conn := b.NewConnection("test-config")
	defer conn.Disconnect()

	if err := NewService("test").Start(context.Background(), conn); err != nil {
		t.Fatal(err)
	}

	// Retained delivery covers the subscribe-after-publish race.
	sub := conn.Subscribe(bus.T(configPrefix, bus.TokHash))
	defer conn.Unsubscribe(sub)

	got := map[string]any{}
	deadline := time.Now().Add(2 * time.Second)
	for len(got) < 2 && time.Now().Before(deadline) {
		select {
		case m := <-sub.Channel():
			if !m.Retained {
				t.Fatalf("section not retained: %v", m.Topic)
			}
			key, ok := m.Topic.At(1).(string)
			if !ok {
				t.Fatalf("unexpected topic: %v", m.Topic)
			}
			got[key] = m.Payload
		case <-time.After(10 * time.Millisecond):
		}
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 sections, got %d (%v)", len(got), got)
	}

	// The hal section must survive the decode path its consumer uses.
	var halCfg types.HALConfig
	if err := jsonx.Decode(got["hal"], &halCfg); err != nil {
		t.Fatalf("hal section does not decode: %v", err)
	}
	if len(halCfg.Devices) != 1 || halCfg.Devices[0].ID != "t1" || halCfg.Devices[0].Type != "dht" {
		t.Fatalf("hal section content: %+v", halCfg)
	}

	mon, ok := got["monitor"].(map[string]any)
	if !ok {
		t.Fatalf("monitor section type %T", got["monitor"])
	}
	if iv, _ := mon["interval_ms"].(float64); iv != 5000 {
		t.Fatalf("monitor interval: %v", mon["interval_ms"])
	}
}

func TestEmbeddedProfilesAreWellFormed(t *testing.T) {
	for profile, raw := range embeddedConfigs {
		var sections map[string]any
		if err := jsonx.Decode(raw, &sections); err != nil {
			t.Fatalf("profile %q: %v", profile, err)
		}
		halSec, ok := sections["hal"]
		if !ok {
			t.Fatalf("profile %q has no hal section", profile)
		}
		var halCfg types.HALConfig
		if err := jsonx.Decode(halSec, &halCfg); err != nil {
			t.Fatalf("profile %q hal section: %v", profile, err)
		}
		if len(halCfg.Devices) == 0 {
			t.Fatalf("profile %q configures no devices", profile)
		}
		for _, d := range halCfg.Devices {
			if d.ID == "" || d.Type == "" {
				t.Fatalf("profile %q device %+v missing id or type", profile, d)
			}
			var p types.DHTParams
			if err := jsonx.Decode(d.Params, &p); err != nil {
				t.Fatalf("profile %q device %s params: %v", profile, d.ID, err)
			}
			if p.Variant == "" {
				t.Fatalf("profile %q device %s has no variant", profile, d.ID)
			}
		}
	}
}

func TestPublishErrors(t *testing.T) {
	b := bus.NewBus(4)
	conn := b.NewConnection("test-errors")
	defer conn.Disconnect()

	if err := NewService("").publish(conn); err == nil {
		t.Fatal("expected error for empty profile")
	}
	if err := NewService("no-such-profile").publish(conn); err == nil {
		t.Fatal("expected error for unknown profile")
	}
}
