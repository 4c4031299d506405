//go:build !rp2040 && !rp2350

package hal

import (
	"context"
	"testing"
	"time"

	"github.com/marklacroix/dht/bus"
	"github.com/marklacroix/dht/types"
)

func recvOrTimeout(t *testing.T, sub *bus.Subscription, within time.Duration) *bus.Message {
	t.Helper()
	select {
	case m := <-sub.Channel():
		return m
	case <-time.After(within):
		t.Fatalf("no message on %v within %v", sub.Topic(), within)
		return nil
	}
}

func waitLevel(t *testing.T, conn *bus.Connection, level string) {
	t.Helper()
	sub := conn.Subscribe(bus.T("hal", "state"))
	defer conn.Unsubscribe(sub)
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		select {
		case m := <-sub.Channel():
			if st, ok := m.Payload.(types.HALState); ok && st.Level == level {
				return
			}
		case <-time.After(100 * time.Millisecond):
		}
	}
	t.Fatalf("hal/state never reached %q", level)
}

func TestServiceEndToEnd(t *testing.T) {
	b := bus.NewBus(64)
	conn := b.NewConnection("test")
	defer conn.Disconnect()

	opts, sim := SimOptions()
	sim.SetReading(652, 351)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go Run(ctx, b.NewConnection("hal"), opts)
	waitLevel(t, conn, "idle")

	conn.Publish(conn.NewMessage(bus.T("config", "hal"), types.HALConfig{
		Devices: []types.HALDevice{{
			ID: "gh1", Type: "dht",
			Params: map[string]any{"pin": 4, "variant": "dht22"},
		}},
	}, true))
	waitLevel(t, conn, "ready")

	// Retained info describes the sensor on both capabilities.
	infoSub := conn.Subscribe(bus.T("hal", "cap", "env", "+", "gh1", "info"))
	defer conn.Unsubscribe(infoSub)
	kinds := map[string]bool{}
	for i := 0; i < 2; i++ {
		m := recvOrTimeout(t, infoSub, 2*time.Second)
		info, ok := m.Payload.(types.Info)
		if !ok || info.Driver != "dht" {
			t.Fatalf("info: %+v", m.Payload)
		}
		kind, _ := m.Topic.At(3).(string)
		kinds[kind] = true
	}
	if !kinds["temperature"] || !kinds["humidity"] {
		t.Fatalf("kinds seen: %v", kinds)
	}

	valSub := conn.Subscribe(bus.T("hal", "cap", "env", "temperature", "gh1", "value"))
	defer conn.Unsubscribe(valSub)
	humSub := conn.Subscribe(bus.T("hal", "cap", "env", "humidity", "gh1", "value"))
	defer conn.Unsubscribe(humSub)

	rctx, rcancel := context.WithTimeout(ctx, 2*time.Second)
	defer rcancel()
	rep, err := conn.RequestWait(rctx, conn.NewMessage(
		bus.T("hal", "cap", "env", "temperature", "gh1", "control", "read_now"), nil, false))
	if err != nil {
		t.Fatal(err)
	}
	if okRep, ok := rep.Payload.(types.OKReply); !ok || !okRep.OK {
		t.Fatalf("read_now reply: %+v", rep.Payload)
	}

	m := recvOrTimeout(t, valSub, 2*time.Second)
	if tv, ok := m.Payload.(types.TemperatureValue); !ok || tv.DeciC != 351 {
		t.Fatalf("temperature value: %+v", m.Payload)
	}
	m = recvOrTimeout(t, humSub, 2*time.Second)
	if hv, ok := m.Payload.(types.HumidityValue); !ok || hv.RHx100 != 6520 {
		t.Fatalf("humidity value: %+v", m.Payload)
	}

	// Stats arrive as a tagged, non-retained event.
	evSub := conn.Subscribe(bus.T("hal", "cap", "env", "temperature", "gh1", "event", "stats"))
	defer conn.Unsubscribe(evSub)
	rctx2, rcancel2 := context.WithTimeout(ctx, 2*time.Second)
	defer rcancel2()
	if _, err := conn.RequestWait(rctx2, conn.NewMessage(
		bus.T("hal", "cap", "env", "temperature", "gh1", "control", "stats"), nil, false)); err != nil {
		t.Fatal(err)
	}
	m = recvOrTimeout(t, evSub, 2*time.Second)
	st, ok := m.Payload.(types.SensorStats)
	if !ok || st.Successes == 0 || m.Retained {
		t.Fatalf("stats event: %+v", m)
	}
}

func TestLineFailureDegradesCapability(t *testing.T) {
	b := bus.NewBus(64)
	conn := b.NewConnection("test")
	defer conn.Disconnect()

	opts, sim := SimOptions()
	sim.SetReading(500, 250)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go Run(ctx, b.NewConnection("hal"), opts)
	waitLevel(t, conn, "idle")

	conn.Publish(conn.NewMessage(bus.T("config", "hal"), types.HALConfig{
		Devices: []types.HALDevice{{
			ID: "gh1", Type: "dht",
			Params: map[string]any{"pin": 6, "variant": "dht22"},
		}},
	}, true))
	waitLevel(t, conn, "ready")

	statusSub := conn.Subscribe(bus.T("hal", "cap", "env", "temperature", "gh1", "status"))
	defer conn.Unsubscribe(statusSub)
	recvOrTimeout(t, statusSub, 2*time.Second) // retained down

	sim.FailLine(6)
	rctx, rcancel := context.WithTimeout(ctx, 2*time.Second)
	defer rcancel()
	if _, err := conn.RequestWait(rctx, conn.NewMessage(
		bus.T("hal", "cap", "env", "temperature", "gh1", "control", "read_now"), nil, false)); err != nil {
		t.Fatal(err)
	}

	deadline := time.Now().Add(3 * time.Second)
	for {
		m := recvOrTimeout(t, statusSub, 2*time.Second)
		if st, ok := m.Payload.(types.CapabilityStatus); ok && st.Link == types.LinkDegraded {
			if st.Error != "read_failed" {
				t.Fatalf("degraded error: %+v", st)
			}
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("capability never degraded")
		}
	}
}
