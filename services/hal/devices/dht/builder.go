// services/hal/devices/dht/builder.go
package dhtdev

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/marklacroix/dht/drivers/dht"
	"github.com/marklacroix/dht/errcode"
	"github.com/marklacroix/dht/services/hal/internal/core"
	"github.com/marklacroix/dht/services/hal/internal/halcore"
	"github.com/marklacroix/dht/services/hal/internal/worker"
	"github.com/marklacroix/dht/types"
	"github.com/marklacroix/dht/x/mathx"
	"github.com/marklacroix/dht/x/timex"
)

func init() { core.RegisterBuilder("dht", builder{}) }

type builder struct{}

func (builder) Build(ctx context.Context, in core.BuilderInput) (core.Device, error) {
	var p types.DHTParams
	if code := core.DecodeParams(in.Params, &p); code != "" {
		return nil, code
	}
	variant, ok := dht.ParseVariant(p.Variant)
	if !ok {
		return nil, errcode.InvalidParams
	}

	gp, err := in.Res.Reg.ClaimGPIO(in.ID, p.Pin)
	if err != nil {
		switch {
		case errors.Is(err, halcore.ErrPinInUse):
			return nil, errcode.PinInUse
		case errors.Is(err, halcore.ErrUnknownPin):
			return nil, errcode.UnknownPin
		}
		return nil, err
	}

	line := in.Res.Line
	if p.MinReadMs > 0 {
		line.MinInterval = time.Duration(p.MinReadMs) * time.Millisecond
	}
	sensor, err := dht.New(linePin{gp}, variant, line)
	if err != nil {
		in.Res.Reg.ReleaseGPIO(in.ID, p.Pin)
		return nil, err
	}

	d := &Device{
		id:      in.ID,
		pin:     p.Pin,
		variant: variant,
		sensor:  sensor,
		pub:     in.Res.Pub,
		reg:     in.Res.Reg,
		pollMs:  p.PollMs,
		w:       worker.New(halcore.WorkerConfig{}),
	}

	// Reusable, closure-free job values.
	d.jobRead = &readJob{d: d}
	d.jobStats = &statsJob{d: d}

	return d, nil
}

// linePin narrows a claimed GPIO pin to the sensor line contract.
type linePin struct{ gp halcore.GPIOPin }

func (l linePin) ConfigureInput(pull dht.Pull) error {
	hp := halcore.PullNone
	switch pull {
	case dht.PullUp:
		hp = halcore.PullUp
	case dht.PullDown:
		hp = halcore.PullDown
	}
	return l.gp.ConfigureInput(hp)
}
func (l linePin) ConfigureOutput(level bool) error { return l.gp.ConfigureOutput(level) }
func (l linePin) Set(level bool)                   { l.gp.Set(level) }
func (l linePin) Get() bool                        { return l.gp.Get() }

type Device struct {
	id      string
	pin     int
	variant dht.Variant

	sensor *dht.Sensor
	pub    core.EventEmitter
	reg    core.ResourceRegistry
	pollMs uint32

	// The worker goroutine owns the line; everything sensor-side runs
	// through it.
	w      *worker.LineWorker
	cancel context.CancelFunc

	jobRead  *readJob
	jobStats *statsJob

	addrTemp core.CapAddr
	addrHum  core.CapAddr
}

func (d *Device) ID() string { return d.id }

func (d *Device) Capabilities() []core.CapabilitySpec {
	sensor := d.variant.String()
	return []core.CapabilitySpec{
		{
			Domain: "env",
			Kind:   types.KindTemperature,
			Name:   d.id,
			Info: types.Info{
				SchemaVersion: 1, Driver: "dht",
				Detail: types.TemperatureInfo{Sensor: sensor, Pin: d.pin},
			},
			// One schedule per device; a read serves both capabilities.
			PollMs:   d.pollMs,
			PollVerb: "read",
		},
		{
			Domain: "env",
			Kind:   types.KindHumidity,
			Name:   d.id,
			Info: types.Info{
				SchemaVersion: 1, Driver: "dht",
				Detail: types.HumidityInfo{Sensor: sensor, Pin: d.pin},
			},
		},
	}
}

func (d *Device) Init(ctx context.Context) error {
	// Establish capability addresses; no line traffic here.
	d.addrTemp = core.CapAddr{Domain: "env", Kind: string(types.KindTemperature), Name: d.id}
	d.addrHum = core.CapAddr{Domain: "env", Kind: string(types.KindHumidity), Name: d.id}

	wctx, cancel := context.WithCancel(ctx)
	d.cancel = cancel
	d.w.Start(wctx)
	return nil
}

func (d *Device) Close() error {
	if d.cancel != nil {
		d.cancel()
	}
	if d.reg != nil {
		d.reg.ReleaseGPIO(d.id, d.pin)
	}
	return nil
}

func (d *Device) Control(_ core.CapAddr, verb string, payload any) (core.EnqueueResult, error) {
	switch verb {
	case "read":
		return d.enqueue(d.jobRead, "read", false), nil
	case "read_now":
		return d.enqueue(d.jobRead, "read", true), nil
	case "stats":
		return d.enqueue(d.jobStats, "stats", true), nil
	default:
		return core.EnqueueResult{OK: false, Error: errcode.Unsupported}, nil
	}
}

func (d *Device) enqueue(job halcore.LineJob, tag string, prio bool) core.EnqueueResult {
	if !d.w.Submit(halcore.ReadReq{ID: d.id + "/" + tag, Job: job, Prio: prio}) {
		return core.EnqueueResult{OK: false, Error: errcode.Busy}
	}
	return core.EnqueueResult{OK: true}
}

func (d *Device) emitErr(code errcode.Code, ts int64) {
	d.pub.Emit(core.Event{Addr: d.addrTemp, Err: string(code), TSms: ts})
	d.pub.Emit(core.Event{Addr: d.addrHum, Err: string(code), TSms: ts})
}

var _ halcore.LineJob = (*readJob)(nil)
var _ halcore.LineJob = (*statsJob)(nil)

type readJob struct{ d *Device }

func (j *readJob) Run(ctx context.Context) {
	d := j.d
	if ctx.Err() != nil {
		return
	}

	// Each getter is its own read attempt; the driver's reuse window
	// collapses the second one onto the first.
	t := d.sensor.Temperature()
	h := d.sensor.Humidity()
	if math.IsNaN(t) || math.IsNaN(h) {
		d.emitErr(errcode.ReadFailed, timex.NowMs())
		return
	}

	decic := int16(mathx.Clamp(int(math.Round(t*10)), -32768, 32767))
	rhx100 := uint16(mathx.Clamp(int(math.Round(h*100)), 0, 10000))

	ts := timex.NowMs()
	d.pub.Emit(core.Event{
		Addr:    d.addrTemp,
		Payload: types.TemperatureValue{DeciC: decic},
		TSms:    ts,
	})
	d.pub.Emit(core.Event{
		Addr:    d.addrHum,
		Payload: types.HumidityValue{RHx100: rhx100},
		TSms:    ts,
	})
}

type statsJob struct{ d *Device }

func (j *statsJob) Run(ctx context.Context) {
	d := j.d
	st, ok := d.sensor.Stats()
	if !ok {
		return
	}
	var lastMs int64
	if !st.LastAttempt.IsZero() {
		lastMs = timex.MsOf(st.LastAttempt)
	}
	d.pub.Emit(core.Event{
		Addr: d.addrTemp,
		Payload: types.SensorStats{
			Reads:         st.Reads,
			Successes:     st.Successes,
			CacheHits:     st.CacheHits,
			SuccessMicros: st.SuccessMicros,
			LastAttemptMs: lastMs,
		},
		TSms:     timex.NowMs(),
		IsEvent:  true,
		EventTag: "stats",
	})
}
