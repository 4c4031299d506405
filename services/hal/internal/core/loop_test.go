package core

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/marklacroix/dht/bus"
	"github.com/marklacroix/dht/errcode"
	"github.com/marklacroix/dht/types"
)

func init() { RegisterBuilder("fake", fakeBuilder{}) }

// fakeHooks carries per-test knobs and records what the device saw.
// Passed as the device params; the in-process bus hands it over intact.
type fakeHooks struct {
	mu       sync.Mutex
	builds   int
	inits    int
	closes   int
	controls []string // "<kind>/<verb>"

	pollMs   uint32
	buildErr error
	initErr  error
	ctrlRes  EnqueueResult
	ctrlErr  error

	pub EventEmitter // captured from BuilderInput
}

func (h *fakeHooks) controlCount(want string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	n := 0
	for _, c := range h.controls {
		if c == want {
			n++
		}
	}
	return n
}

func (h *fakeHooks) seen() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.controls...)
}

type fakeBuilder struct{}

func (fakeBuilder) Build(ctx context.Context, in BuilderInput) (Device, error) {
	h := in.Params.(*fakeHooks)
	h.mu.Lock()
	h.builds++
	h.pub = in.Res.Pub
	h.mu.Unlock()
	if h.buildErr != nil {
		return nil, h.buildErr
	}
	return &fakeDevice{id: in.ID, h: h}, nil
}

type fakeDevice struct {
	id string
	h  *fakeHooks
}

func (d *fakeDevice) ID() string { return d.id }

func (d *fakeDevice) Capabilities() []CapabilitySpec {
	// Domain and Name left empty to exercise the loop's defaulting.
	return []CapabilitySpec{{
		Kind:   types.KindTemperature,
		Info:   types.Info{SchemaVersion: 1, Driver: "fake"},
		PollMs: d.h.pollMs,
	}}
}

func (d *fakeDevice) Init(ctx context.Context) error {
	d.h.mu.Lock()
	d.h.inits++
	d.h.mu.Unlock()
	return d.h.initErr
}

func (d *fakeDevice) Control(addr CapAddr, verb string, payload any) (EnqueueResult, error) {
	d.h.mu.Lock()
	d.h.controls = append(d.h.controls, addr.Kind+"/"+verb)
	res, err := d.h.ctrlRes, d.h.ctrlErr
	d.h.mu.Unlock()
	return res, err
}

func (d *fakeDevice) Close() error {
	d.h.mu.Lock()
	d.h.closes++
	d.h.mu.Unlock()
	return nil
}

// ---- rig ----

func newLoopRig(t *testing.T) (*bus.Connection, context.CancelFunc) {
	t.Helper()
	b := bus.NewBus(64)
	conn := b.NewConnection("test")
	h := NewHAL(b.NewConnection("hal"), Resources{})
	ctx, cancel := context.WithCancel(context.Background())
	go h.Run(ctx)
	waitState(t, conn, "idle", 2*time.Second)
	return conn, cancel
}

func recvMsg(t *testing.T, sub *bus.Subscription, within time.Duration) *bus.Message {
	t.Helper()
	select {
	case m := <-sub.Channel():
		return m
	case <-time.After(within):
		t.Fatalf("no message on %v within %v", sub.Topic(), within)
		return nil
	}
}

func quiet(t *testing.T, sub *bus.Subscription, d time.Duration) {
	t.Helper()
	select {
	case m := <-sub.Channel():
		t.Fatalf("unexpected message on %v: %+v", sub.Topic(), m.Payload)
	case <-time.After(d):
	}
}

func waitState(t *testing.T, conn *bus.Connection, level string, within time.Duration) {
	t.Helper()
	sub := conn.Subscribe(topicHALState())
	defer conn.Unsubscribe(sub)
	deadline := time.Now().Add(within)
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

func publishConfig(conn *bus.Connection, cfg types.HALConfig) {
	conn.Publish(conn.NewMessage(topicConfigHAL(), cfg, true))
}

func oneDevice(id string, h *fakeHooks) types.HALConfig {
	return types.HALConfig{Devices: []types.HALDevice{{ID: id, Type: "fake", Params: h}}}
}

func requestReply(t *testing.T, conn *bus.Connection, topic bus.Topic) any {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	m, err := conn.RequestWait(ctx, conn.NewMessage(topic, nil, false))
	if err != nil {
		t.Fatalf("no reply on %v: %v", topic, err)
	}
	return m.Payload
}

func wantErrReply(t *testing.T, payload any, code errcode.Code) {
	t.Helper()
	rep, ok := payload.(types.ErrorReply)
	if !ok || rep.OK || rep.Error != string(code) {
		t.Fatalf("reply = %+v, want error %q", payload, code)
	}
}

// ---- tests ----

func TestControlBeforeConfigIsRejected(t *testing.T) {
	conn, cancel := newLoopRig(t)
	defer cancel()
	defer conn.Disconnect()

	rep := requestReply(t, conn, T("hal", "cap", "env", "temperature", "t1", "control", "read_now"))
	wantErrReply(t, rep, errcode.HALNotReady)
}

func TestConfigBuildsDeviceAndPublishesCapability(t *testing.T) {
	conn, cancel := newLoopRig(t)
	defer cancel()
	defer conn.Disconnect()

	infoSub := conn.Subscribe(capInfo("env", "temperature", "t1"))
	defer conn.Unsubscribe(infoSub)
	statusSub := conn.Subscribe(capStatus("env", "temperature", "t1"))
	defer conn.Unsubscribe(statusSub)

	h := &fakeHooks{ctrlRes: EnqueueResult{OK: true}}
	publishConfig(conn, oneDevice("t1", h))
	waitState(t, conn, "ready", 2*time.Second)

	m := recvMsg(t, infoSub, 2*time.Second)
	info, ok := m.Payload.(types.Info)
	if !ok || info.Driver != "fake" || !m.Retained {
		t.Fatalf("info publication: %+v", m)
	}
	m = recvMsg(t, statusSub, 2*time.Second)
	if st, ok := m.Payload.(types.CapabilityStatus); !ok || st.Link != types.LinkDown {
		t.Fatalf("initial status: %+v", m.Payload)
	}

	// Domain defaulted to env, name to the device id: control resolves.
	rep := requestReply(t, conn, T("hal", "cap", "env", "temperature", "t1", "control", "read_now"))
	if okRep, ok := rep.(types.OKReply); !ok || !okRep.OK {
		t.Fatalf("control reply: %+v", rep)
	}
	if h.controlCount("temperature/read_now") != 1 {
		t.Fatalf("device controls: %v", h.seen())
	}
}

func TestConfigIsAdditiveAndIdempotent(t *testing.T) {
	conn, cancel := newLoopRig(t)
	defer cancel()
	defer conn.Disconnect()

	h := &fakeHooks{ctrlRes: EnqueueResult{OK: true}}
	publishConfig(conn, oneDevice("t1", h))
	waitState(t, conn, "ready", 2*time.Second)
	publishConfig(conn, oneDevice("t1", h))
	waitState(t, conn, "ready", 2*time.Second)

	h.mu.Lock()
	builds, inits := h.builds, h.inits
	h.mu.Unlock()
	if builds != 1 || inits != 1 {
		t.Fatalf("builds=%d inits=%d after reapply, want 1/1", builds, inits)
	}
}

func TestControlErrorReplies(t *testing.T) {
	conn, cancel := newLoopRig(t)
	defer cancel()
	defer conn.Disconnect()

	h := &fakeHooks{ctrlRes: EnqueueResult{OK: true}}
	publishConfig(conn, oneDevice("t1", h))
	waitState(t, conn, "ready", 2*time.Second)

	rep := requestReply(t, conn, T("hal", "cap", "env", "temperature", "ghost", "control", "read_now"))
	wantErrReply(t, rep, errcode.UnknownCapability)

	h.mu.Lock()
	h.ctrlRes = EnqueueResult{OK: false} // no code: loop reports busy
	h.mu.Unlock()
	rep = requestReply(t, conn, T("hal", "cap", "env", "temperature", "t1", "control", "read_now"))
	wantErrReply(t, rep, errcode.Busy)

	h.mu.Lock()
	h.ctrlErr = errcode.Unsupported
	h.mu.Unlock()
	rep = requestReply(t, conn, T("hal", "cap", "env", "temperature", "t1", "control", "blink"))
	wantErrReply(t, rep, errcode.Unsupported)
}

func TestEventRouting(t *testing.T) {
	conn, cancel := newLoopRig(t)
	defer cancel()
	defer conn.Disconnect()

	h := &fakeHooks{ctrlRes: EnqueueResult{OK: true}}
	publishConfig(conn, oneDevice("t1", h))
	waitState(t, conn, "ready", 2*time.Second)

	valSub := conn.Subscribe(capValue("env", "temperature", "t1"))
	defer conn.Unsubscribe(valSub)
	evSub := conn.Subscribe(capEventTagged("env", "temperature", "t1", "stats"))
	defer conn.Unsubscribe(evSub)
	statusSub := conn.Subscribe(capStatus("env", "temperature", "t1"))
	defer conn.Unsubscribe(statusSub)
	recvMsg(t, statusSub, 2*time.Second) // retained down from config

	h.mu.Lock()
	emit := h.pub
	h.mu.Unlock()
	addr := CapAddr{Domain: "env", Kind: "temperature", Name: "t1"}

	emit.Emit(Event{Addr: addr, Payload: types.TemperatureValue{DeciC: 210}, TSms: 123})
	m := recvMsg(t, valSub, 2*time.Second)
	if tv, ok := m.Payload.(types.TemperatureValue); !ok || tv.DeciC != 210 || !m.Retained {
		t.Fatalf("value publication: %+v", m)
	}
	m = recvMsg(t, statusSub, 2*time.Second)
	if st := m.Payload.(types.CapabilityStatus); st.Link != types.LinkUp || st.TSms != 123 {
		t.Fatalf("status after value: %+v", m.Payload)
	}

	emit.Emit(Event{Addr: addr, Err: "read_failed", TSms: 124})
	m = recvMsg(t, statusSub, 2*time.Second)
	st := m.Payload.(types.CapabilityStatus)
	if st.Link != types.LinkDegraded || st.Error != "read_failed" {
		t.Fatalf("status after error: %+v", m.Payload)
	}
	quiet(t, valSub, 150*time.Millisecond)

	emit.Emit(Event{Addr: addr, Payload: types.SensorStats{Reads: 7}, TSms: 125, IsEvent: true, EventTag: "stats"})
	m = recvMsg(t, evSub, 2*time.Second)
	if ss, ok := m.Payload.(types.SensorStats); !ok || ss.Reads != 7 || m.Retained {
		t.Fatalf("stats event: %+v", m)
	}
}

func TestRemovedDeviceIsTornDown(t *testing.T) {
	conn, cancel := newLoopRig(t)
	defer cancel()
	defer conn.Disconnect()

	h := &fakeHooks{ctrlRes: EnqueueResult{OK: true}}
	publishConfig(conn, oneDevice("t1", h))
	waitState(t, conn, "ready", 2*time.Second)

	infoSub := conn.Subscribe(capInfo("env", "temperature", "t1"))
	defer conn.Unsubscribe(infoSub)
	recvMsg(t, infoSub, 2*time.Second) // retained info

	publishConfig(conn, types.HALConfig{})
	m := recvMsg(t, infoSub, 2*time.Second)
	if m.Payload != nil {
		t.Fatalf("info not cleared: %+v", m.Payload)
	}

	deadline := time.Now().Add(2 * time.Second)
	for {
		h.mu.Lock()
		closes := h.closes
		h.mu.Unlock()
		if closes == 1 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("device not closed (closes=%d)", closes)
		}
		time.Sleep(10 * time.Millisecond)
	}

	rep := requestReply(t, conn, T("hal", "cap", "env", "temperature", "t1", "control", "read_now"))
	wantErrReply(t, rep, errcode.UnknownCapability)
}

func TestPollSchedulesDriveControls(t *testing.T) {
	conn, cancel := newLoopRig(t)
	defer cancel()
	defer conn.Disconnect()

	h := &fakeHooks{ctrlRes: EnqueueResult{OK: true}, pollMs: 25}
	cfg := oneDevice("t1", h)
	cfg.Pollers = []types.PollSpec{{
		Domain: "env", Kind: types.KindTemperature, Name: "t1",
		Verb: "stats", IntervalMs: 25,
	}}
	publishConfig(conn, cfg)
	waitState(t, conn, "ready", 2*time.Second)

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if h.controlCount("temperature/read") >= 2 && h.controlCount("temperature/stats") >= 2 {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("poll schedules idle: %v", h.seen())
}
