package monitor

import (
	"context"
	"sort"
	"time"

	"github.com/marklacroix/dht/bus"
	"github.com/marklacroix/dht/types"
	"github.com/marklacroix/dht/x/fmtx"
	"github.com/marklacroix/dht/x/jsonx"
	"github.com/marklacroix/dht/x/mathx"
	"github.com/marklacroix/dht/x/timex"
)

var (
	topicConfig  = bus.T("config", "monitor")
	topicSummary = bus.T("monitor", "summary")
	topicValues  = bus.T("hal", "cap", bus.TokPlus, bus.TokPlus, bus.TokPlus, "value")
	topicStatus  = bus.T("hal", "cap", bus.TokPlus, bus.TokPlus, bus.TokPlus, "status")
	topicStats   = bus.T("hal", "cap", bus.TokPlus, bus.TokPlus, bus.TokPlus, "event", "stats")
)

// Config tunes the monitor. Bounds use the wire units of the values
// they check; a min/max pair left at zero keeps the built-in default.
type Config struct {
	IntervalMs   uint32 `json:"interval_ms,omitempty"`
	TempMinDeciC int16  `json:"temp_min_decic,omitempty"`
	TempMaxDeciC int16  `json:"temp_max_decic,omitempty"`
	RHMinX100    uint16 `json:"rh_min_x100,omitempty"`
	RHMaxX100    uint16 `json:"rh_max_x100,omitempty"`
}

// Default bounds follow the widest sensor family limits.
const (
	defaultInterval = time.Minute
	defaultTempMin  = -400 // deci-degC
	defaultTempMax  = 800
	defaultRHMin    = 0 // %RH x100
	defaultRHMax    = 10000
)

// Summary is the digest retained on monitor/summary.
type Summary struct {
	TSms int64       `json:"ts_ms"`
	Caps []CapDigest `json:"caps"`
}

type CapDigest struct {
	Domain  string             `json:"domain"`
	Kind    string             `json:"kind"`
	Name    string             `json:"name"`
	Link    types.Link         `json:"link"`
	Value   string             `json:"value,omitempty"`
	TSms    int64              `json:"ts_ms,omitempty"`
	Suspect bool               `json:"suspect,omitempty"`
	Stats   *types.SensorStats `json:"stats,omitempty"`
}

type capKey struct {
	domain, kind, name string
}

type capState struct {
	link    types.Link
	value   string
	tsMS    int64
	suspect bool
	stats   *types.SensorStats
}

// Service watches every capability the HAL exposes and periodically
// publishes a one-message digest of the whole board. Readings outside
// the configured bounds are flagged rather than dropped; a stuck or
// failing line shows up through the capability's link state.
type Service struct {
	cfg  Config
	caps map[capKey]*capState
}

func NewService() *Service {
	return &Service{caps: map[capKey]*capState{}}
}

// Start launches the monitor loop.
func (s *Service) Start(ctx context.Context, conn *bus.Connection) error {
	go s.serviceLoop(ctx, conn)
	return nil
}

func (s *Service) serviceLoop(ctx context.Context, conn *bus.Connection) {
	cfgSub := conn.Subscribe(topicConfig)
	defer conn.Unsubscribe(cfgSub)
	valSub := conn.Subscribe(topicValues)
	defer conn.Unsubscribe(valSub)
	stSub := conn.Subscribe(topicStatus)
	defer conn.Unsubscribe(stSub)
	evSub := conn.Subscribe(topicStats)
	defer conn.Unsubscribe(evSub)

	tick := time.NewTicker(s.interval())
	defer tick.Stop()

	for {
		select {
		case <-ctx.Done():
			println("[monitor] stopping")
			return
		case m := <-cfgSub.Channel():
			s.applyConfig(m.Payload, tick)
		case m := <-valSub.Channel():
			s.recordValue(m)
		case m := <-stSub.Channel():
			s.recordStatus(m)
		case m := <-evSub.Channel():
			s.recordStats(m)
		case <-tick.C:
			s.publishSummary(conn)
		}
	}
}

func (s *Service) applyConfig(payload any, tick *time.Ticker) {
	var cfg Config
	if err := jsonx.Decode(payload, &cfg); err != nil {
		println("[monitor] bad config:", err.Error())
		return
	}
	s.cfg = cfg
	tick.Reset(s.interval())
	println("[monitor] interval", int(s.interval()/time.Millisecond), "ms")
}

func (s *Service) interval() time.Duration {
	if s.cfg.IntervalMs > 0 {
		return time.Duration(s.cfg.IntervalMs) * time.Millisecond
	}
	return defaultInterval
}

func (s *Service) tempBounds() (int16, int16) {
	if s.cfg.TempMinDeciC == 0 && s.cfg.TempMaxDeciC == 0 {
		return defaultTempMin, defaultTempMax
	}
	return s.cfg.TempMinDeciC, s.cfg.TempMaxDeciC
}

func (s *Service) rhBounds() (uint16, uint16) {
	if s.cfg.RHMinX100 == 0 && s.cfg.RHMaxX100 == 0 {
		return defaultRHMin, defaultRHMax
	}
	return s.cfg.RHMinX100, s.cfg.RHMaxX100
}

func (s *Service) recordValue(m *bus.Message) {
	key, ok := keyOf(m.Topic)
	if !ok {
		return
	}
	st := s.state(key)
	switch v := m.Payload.(type) {
	case types.TemperatureValue:
		lo, hi := s.tempBounds()
		st.value = renderDeci(v.DeciC, "C")
		st.suspect = !mathx.Between(v.DeciC, lo, hi)
	case types.HumidityValue:
		lo, hi := s.rhBounds()
		st.value = renderCenti(v.RHx100, "%")
		st.suspect = !mathx.Between(v.RHx100, lo, hi)
	default:
		return
	}
	st.tsMS = timex.NowMs()
	if st.suspect {
		println("[monitor] suspect reading:", capName(key), st.value)
	}
}

func (s *Service) recordStatus(m *bus.Message) {
	key, ok := keyOf(m.Topic)
	if !ok {
		return
	}
	cs, okp := m.Payload.(types.CapabilityStatus)
	if !okp {
		return
	}
	st := s.state(key)
	prev := st.link
	st.link = cs.Link
	if cs.TSms > 0 {
		st.tsMS = cs.TSms
	}
	if cs.Link == types.LinkDegraded && prev != types.LinkDegraded {
		println("[monitor] degraded:", capName(key), cs.Error)
	}
}

func (s *Service) recordStats(m *bus.Message) {
	key, ok := keyOf(m.Topic)
	if !ok {
		return
	}
	stats, okp := m.Payload.(types.SensorStats)
	if !okp {
		return
	}
	s.state(key).stats = &stats
}

func (s *Service) publishSummary(conn *bus.Connection) {
	sum := Summary{TSms: timex.NowMs()}
	suspects := 0
	for key, st := range s.caps {
		sum.Caps = append(sum.Caps, CapDigest{
			Domain:  key.domain,
			Kind:    key.kind,
			Name:    key.name,
			Link:    st.link,
			Value:   st.value,
			TSms:    st.tsMS,
			Suspect: st.suspect,
			Stats:   st.stats,
		})
		if st.suspect {
			suspects++
		}
	}
	sort.Slice(sum.Caps, func(i, j int) bool {
		a, b := sum.Caps[i], sum.Caps[j]
		if a.Domain != b.Domain {
			return a.Domain < b.Domain
		}
		if a.Name != b.Name {
			return a.Name < b.Name
		}
		return a.Kind < b.Kind
	})
	conn.Publish(conn.NewMessage(topicSummary, sum, true))
	println("[monitor]", len(sum.Caps), "caps,", suspects, "suspect")
}

func (s *Service) state(key capKey) *capState {
	st, ok := s.caps[key]
	if !ok {
		st = &capState{link: types.LinkDown}
		s.caps[key] = st
	}
	return st
}

// keyOf splits hal/cap/<domain>/<kind>/<name>/... into its address.
func keyOf(t bus.Topic) (capKey, bool) {
	domain, ok1 := t.At(2).(string)
	kind, ok2 := t.At(3).(string)
	name, ok3 := t.At(4).(string)
	if !ok1 || !ok2 || !ok3 {
		return capKey{}, false
	}
	return capKey{domain: domain, kind: kind, name: name}, true
}

func capName(key capKey) string {
	return fmtx.Sprintf("%s/%s/%s", key.domain, key.kind, key.name)
}

// renderDeci formats a tenths value, e.g. 216 -> "21.6C".
func renderDeci(v int16, unit string) string {
	d := int(v)
	sign := ""
	if d < 0 {
		sign = "-"
		d = -d
	}
	return fmtx.Sprintf("%s%d.%d%s", sign, d/10, d%10, unit)
}

// renderCenti formats a hundredths value, e.g. 6520 -> "65.20%".
func renderCenti(v uint16, unit string) string {
	frac := int(v % 100)
	return fmtx.Sprintf("%d.%d%d%s", int(v)/100, frac/10, frac%10, unit)
}
