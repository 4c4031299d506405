package monitor

import (
	"context"
	"testing"
	"time"

	"github.com/marklacroix/dht/bus"
	"github.com/marklacroix/dht/types"
)

func newRig(t *testing.T, cfg map[string]any) (*bus.Connection, *bus.Subscription) {
	t.Helper()
	b := bus.NewBus(64)
	conn := b.NewConnection("test")
	t.Cleanup(conn.Disconnect)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	if cfg == nil {
		cfg = map[string]any{"interval_ms": 40}
	}
	// Retained, like the config service publishes it; the monitor picks
	// it up whenever its subscription lands.
	conn.Publish(conn.NewMessage(bus.T("config", "monitor"), cfg, true))

	if err := NewService().Start(ctx, b.NewConnection("monitor")); err != nil {
		t.Fatal(err)
	}
	sub := conn.Subscribe(bus.T("monitor", "summary"))
	t.Cleanup(func() { conn.Unsubscribe(sub) })
	return conn, sub
}

func waitSummary(t *testing.T, sub *bus.Subscription, cond func(Summary) bool) Summary {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		select {
		case m := <-sub.Channel():
			if sum, ok := m.Payload.(Summary); ok && cond(sum) {
				return sum
			}
		case <-time.After(20 * time.Millisecond):
		}
	}
	t.Fatal("summary condition never met")
	return Summary{}
}

func TestSummaryReflectsValues(t *testing.T) {
	conn, sub := newRig(t, nil)

	conn.Publish(conn.NewMessage(
		bus.T("hal", "cap", "env", "temperature", "gh1", "value"),
		types.TemperatureValue{DeciC: 216}, true))
	conn.Publish(conn.NewMessage(
		bus.T("hal", "cap", "env", "temperature", "gh1", "status"),
		types.CapabilityStatus{Link: types.LinkUp, TSms: 123}, true))

	sum := waitSummary(t, sub, func(s Summary) bool {
		return len(s.Caps) == 1 && s.Caps[0].Value == "21.6C" && s.Caps[0].Link == types.LinkUp
	})
	c := sum.Caps[0]
	if c.Domain != "env" || c.Kind != "temperature" || c.Name != "gh1" {
		t.Fatalf("digest address: %+v", c)
	}
	if c.Suspect {
		t.Fatalf("in-range reading flagged: %+v", c)
	}
}

func TestImpossibleHumidityFlagged(t *testing.T) {
	conn, sub := newRig(t, nil)

	conn.Publish(conn.NewMessage(
		bus.T("hal", "cap", "env", "humidity", "gh1", "value"),
		types.HumidityValue{RHx100: 10500}, true))

	sum := waitSummary(t, sub, func(s Summary) bool {
		return len(s.Caps) == 1 && s.Caps[0].Suspect
	})
	if sum.Caps[0].Value != "105.00%" {
		t.Fatalf("rendered value: %q", sum.Caps[0].Value)
	}
}

func TestConfiguredBoundsApply(t *testing.T) {
	conn, sub := newRig(t, map[string]any{
		"interval_ms":    40,
		"temp_min_decic": 0,
		"temp_max_decic": 300,
	})
	valTopic := bus.T("hal", "cap", "env", "temperature", "gh1", "value")

	conn.Publish(conn.NewMessage(valTopic, types.TemperatureValue{DeciC: 250}, true))
	waitSummary(t, sub, func(s Summary) bool {
		return len(s.Caps) == 1 && s.Caps[0].Value == "25.0C" && !s.Caps[0].Suspect
	})

	conn.Publish(conn.NewMessage(valTopic, types.TemperatureValue{DeciC: 351}, true))
	waitSummary(t, sub, func(s Summary) bool {
		return len(s.Caps) == 1 && s.Caps[0].Value == "35.1C" && s.Caps[0].Suspect
	})
}

func TestStatsFoldIntoDigest(t *testing.T) {
	conn, sub := newRig(t, nil)

	// A first summary proves the loop is up, so the non-retained stats
	// event cannot outrun the monitor's subscription.
	waitSummary(t, sub, func(Summary) bool { return true })

	conn.Publish(conn.NewMessage(
		bus.T("hal", "cap", "env", "temperature", "gh1", "event", "stats"),
		types.SensorStats{Reads: 2, Successes: 1, CacheHits: 1}, false))

	sum := waitSummary(t, sub, func(s Summary) bool {
		return len(s.Caps) == 1 && s.Caps[0].Stats != nil
	})
	if st := sum.Caps[0].Stats; st.Reads != 2 || st.Successes != 1 || st.CacheHits != 1 {
		t.Fatalf("digest stats: %+v", st)
	}
}

func TestDegradedLinkTracked(t *testing.T) {
	conn, sub := newRig(t, nil)

	conn.Publish(conn.NewMessage(
		bus.T("hal", "cap", "env", "temperature", "gh1", "status"),
		types.CapabilityStatus{Link: types.LinkDegraded, TSms: 99, Error: "read_failed"}, true))

	sum := waitSummary(t, sub, func(s Summary) bool {
		return len(s.Caps) == 1 && s.Caps[0].Link == types.LinkDegraded
	})
	if sum.Caps[0].TSms != 99 {
		t.Fatalf("digest ts: %+v", sum.Caps[0])
	}
}
