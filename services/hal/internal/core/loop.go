package core

import (
	"context"
	"time"

	"github.com/marklacroix/dht/bus"
	"github.com/marklacroix/dht/errcode"
	"github.com/marklacroix/dht/types"
	"github.com/marklacroix/dht/x/strx"
	"github.com/marklacroix/dht/x/timex"
)

const (
	eventQueueLen = 16
	pollQueueLen  = 8
)

type capKey struct {
	domain string
	kind   string
	name   string
}

type HAL struct {
	conn *bus.Connection
	res  Resources

	dev map[string]Device // devID -> device

	// Capability index: (domain,kind,name) -> devID
	capIndex map[capKey]string

	// Poll schedules installed per capability, for teardown.
	polls map[capKey][]string

	poller *Poller
	pollCh chan PollReq

	cfgSub  *bus.Subscription
	ctrlSub *bus.Subscription

	// Single-threaded publication of device events
	evCh chan Event
}

func NewHAL(conn *bus.Connection, res Resources) *HAL {
	h := &HAL{
		conn:     conn,
		res:      res,
		dev:      map[string]Device{},
		capIndex: map[capKey]string{},
		polls:    map[capKey][]string{},
		pollCh:   make(chan PollReq, pollQueueLen),
		evCh:     make(chan Event, eventQueueLen),
	}
	h.poller = NewPoller(h.pollCh)
	// HAL provides the emitter to devices.
	h.res.Pub = h
	return h
}

func (h *HAL) Run(ctx context.Context) {
	go h.poller.Run(ctx)

	h.cfgSub = h.conn.Subscribe(topicConfigHAL())
	h.ctrlSub = h.conn.Subscribe(ctrlWildcard())
	defer h.conn.Unsubscribe(h.cfgSub)
	defer h.conn.Unsubscribe(h.ctrlSub)

	h.pubHALState("idle", "awaiting_config")

	ready := false
	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			h.pubHALState("stopped", "context_cancelled")
			return
		case msg := <-h.cfgSub.Channel():
			var cfg types.HALConfig
			if code := DecodeParams(msg.Payload, &cfg); code != "" {
				h.pubHALState("error", "config_decode_failed")
				continue
			}
			// applyConfig is additive and idempotent for existing devices.
			h.applyConfig(ctx, cfg)
			ready = true
			h.pubHALState("ready", "configured")
		case m := <-h.ctrlSub.Channel():
			if !ready {
				// Reject controls until HAL has a configuration.
				h.replyErr(m, errcode.HALNotReady)
				continue
			}
			h.handleControl(m) // strictly non-blocking
		case req := <-h.pollCh:
			h.handlePoll(req)
		case ev := <-h.evCh:
			// All device→HAL telemetry is published from this goroutine.
			h.handleEvent(ev)
		}
	}
}

func (h *HAL) applyConfig(ctx context.Context, cfg types.HALConfig) {
	seen := map[string]struct{}{}

	for i := range cfg.Devices {
		dc := cfg.Devices[i]
		seen[dc.ID] = struct{}{}
		if _, exists := h.dev[dc.ID]; exists {
			continue
		}
		b, ok := lookupBuilder(dc.Type)
		if !ok {
			println("[hal] no builder for type:", dc.Type, "id:", dc.ID)
			continue
		}
		dev, err := b.Build(ctx, BuilderInput{
			ID:     dc.ID,
			Type:   dc.Type,
			Params: dc.Params,
			Res:    h.res,
		})
		if err != nil {
			println("[hal] build failed for:", dc.ID, "err:", err.Error())
			continue
		}
		if err := dev.Init(ctx); err != nil {
			println("[hal] init failed for:", dc.ID)
			dev.Close()
			continue
		}
		h.dev[dev.ID()] = dev

		// Register capabilities, publish retained info + initial status:down.
		for _, cs := range dev.Capabilities() {
			k := string(cs.Kind)
			domain := strx.Coalesce(cs.Domain, defaultDomainFor(k))
			name := strx.Coalesce(cs.Name, dev.ID())
			key := capKey{domain: domain, kind: k, name: name}
			h.capIndex[key] = dev.ID()

			h.conn.Publish(h.conn.NewMessage(capInfo(domain, k, name), cs.Info, true))
			h.conn.Publish(h.conn.NewMessage(
				capStatus(domain, k, name),
				types.CapabilityStatus{Link: types.LinkDown, TSms: timex.NowMs()},
				true,
			))

			if cs.PollMs > 0 {
				h.installPoll(key, strx.Coalesce(cs.PollVerb, "read"),
					time.Duration(cs.PollMs)*time.Millisecond,
					time.Duration(cs.PollJitterMs)*time.Millisecond)
			}
		}
	}

	// Explicit poll schedules; may target capabilities of any device.
	for _, ps := range cfg.Pollers {
		if ps.IntervalMs == 0 {
			continue
		}
		h.installPoll(capKey{domain: ps.Domain, kind: string(ps.Kind), name: ps.Name},
			strx.Coalesce(ps.Verb, "read"),
			time.Duration(ps.IntervalMs)*time.Millisecond,
			time.Duration(ps.JitterMs)*time.Millisecond)
	}

	// Devices no longer configured are torn down: retained info cleared,
	// status left as down.
	for devID, dev := range h.dev {
		if _, ok := seen[devID]; ok {
			continue
		}
		for key := range h.capIndex {
			if h.capIndex[key] != devID {
				continue
			}
			for _, verb := range h.polls[key] {
				h.poller.Stop(key.domain, key.kind, key.name, verb)
			}
			delete(h.polls, key)
			h.conn.Publish(h.conn.NewMessage(capInfo(key.domain, key.kind, key.name), nil, true))
			h.conn.Publish(h.conn.NewMessage(
				capStatus(key.domain, key.kind, key.name),
				types.CapabilityStatus{Link: types.LinkDown, TSms: timex.NowMs()},
				true,
			))
			delete(h.capIndex, key)
		}
		if err := dev.Close(); err != nil {
			println("[hal] close failed for:", devID)
		}
		delete(h.dev, devID)
	}
}

func (h *HAL) installPoll(key capKey, verb string, every, jitter time.Duration) {
	h.poller.Upsert(key.domain, key.kind, key.name, verb, every, jitter)
	for _, v := range h.polls[key] {
		if v == verb {
			return
		}
	}
	h.polls[key] = append(h.polls[key], verb)
}

func (h *HAL) handleControl(msg *bus.Message) {
	// hal/cap/<domain>/<kind>/<name>/control/<verb>
	if msg.Topic.Len() < 7 {
		h.replyErr(msg, errcode.InvalidTopic)
		return
	}
	domain, _ := msg.Topic.At(2).(string)
	kind, _ := msg.Topic.At(3).(string)
	name, _ := msg.Topic.At(4).(string)
	verb, _ := msg.Topic.At(6).(string)

	ownerID, ok := h.capIndex[capKey{domain: domain, kind: kind, name: name}]
	if !ok {
		h.replyErr(msg, errcode.UnknownCapability)
		return
	}
	dev := h.dev[ownerID]
	if dev == nil {
		h.replyErr(msg, errcode.Error)
		return
	}

	res, err := dev.Control(CapAddr{Domain: domain, Kind: kind, Name: name}, verb, msg.Payload)
	if err != nil {
		h.replyErr(msg, err)
		return
	}
	if !msg.CanReply() {
		return
	}
	if res.OK {
		h.replyOK(msg)
		return
	}
	code := res.Error
	if code == "" {
		code = errcode.Busy
	}
	h.replyErr(msg, code)
}

func (h *HAL) handlePoll(req PollReq) {
	key := capKey{domain: req.Domain, kind: req.Kind, name: req.Name}
	ownerID, ok := h.capIndex[key]
	if !ok {
		return // capability not built (yet); skip this cycle
	}
	dev := h.dev[ownerID]
	if dev == nil {
		return
	}
	// Fire and forget: a busy line drops this cycle, the next one retries.
	_, _ = dev.Control(CapAddr{Domain: key.domain, Kind: key.kind, Name: key.name}, req.Verb, nil)
}

func (h *HAL) handleEvent(ev Event) {
	d := ev.Addr.Domain
	k := ev.Addr.Kind
	n := ev.Addr.Name

	// Error → retained status:degraded; no value/event published.
	if ev.Err != "" {
		h.conn.Publish(h.conn.NewMessage(
			capStatus(d, k, n),
			types.CapabilityStatus{Link: types.LinkDegraded, TSms: ev.TSms, Error: ev.Err},
			true,
		))
		return
	}

	if ev.IsEvent {
		if ev.EventTag != "" {
			h.conn.Publish(h.conn.NewMessage(capEventTagged(d, k, n, ev.EventTag), ev.Payload, false))
		} else {
			h.conn.Publish(h.conn.NewMessage(capEvent(d, k, n), ev.Payload, false))
		}
	} else {
		h.conn.Publish(h.conn.NewMessage(capValue(d, k, n), ev.Payload, true))
		// A fresh value counts as a poll cycle regardless of who asked
		// for it, so the periodic schedule re-anchors to this reading.
		if ev.TSms > 0 {
			for _, verb := range h.polls[capKey{domain: d, kind: k, name: n}] {
				h.poller.BumpAfter(d, k, n, verb, time.UnixMilli(ev.TSms))
			}
		}
	}
	h.conn.Publish(h.conn.NewMessage(
		capStatus(d, k, n),
		types.CapabilityStatus{Link: types.LinkUp, TSms: ev.TSms},
		true,
	))
}

func (h *HAL) closeAll() {
	for devID, dev := range h.dev {
		if err := dev.Close(); err != nil {
			println("[hal] close failed for:", devID)
		}
		delete(h.dev, devID)
	}
}

func (h *HAL) pubHALState(level, status string) {
	h.conn.Publish(h.conn.NewMessage(
		topicHALState(),
		types.HALState{Level: level, Status: status, TSms: timex.NowMs()},
		true,
	))
}

func defaultDomainFor(kind string) string {
	switch kind {
	case "temperature", "humidity":
		return "env"
	default:
		return "io"
	}
}

// ---- HAL as EventEmitter (enqueue to single publisher) ----

func (h *HAL) Emit(ev Event) bool {
	select {
	case h.evCh <- ev:
		return true
	default:
		return false
	}
}
