// Package control runs the decision/actuation task: it turns the stable
// reading into outputs while the device is in AUTO and publishes state reports.
package control

import (
	"context"
	"sync"
	"time"

	"github.com/sweeney/env-controller/internal/command"
	"github.com/sweeney/env-controller/internal/logger"
	"github.com/sweeney/env-controller/internal/logic"
	"github.com/sweeney/env-controller/internal/mode"
	"github.com/sweeney/env-controller/internal/mqtt"
	"github.com/sweeney/env-controller/internal/status"
	"github.com/sweeney/env-controller/internal/telemetry"
)

// ReadingSource provides the smoothed reading.
type ReadingSource interface {
	Stable() logic.StableReading
}

// Outputs is the part of the actuator driver the controller drives directly.
type Outputs interface {
	SetFanLevel(level uint8) error
	SetLEDColor(r, g, b uint16) error
}

// AlertSetter is the part of the alert scheduler the controller needs.
type AlertSetter interface {
	SetLevel(logic.AlertLevel)
}

// Controller applies Decide while AUTO is active.
type Controller struct {
	src        ReadingSource
	out        Outputs
	alerts     AlertSetter
	arbiter    *mode.Arbiter
	state      *status.ControlState
	thresholds logic.Thresholds
	log        *logger.Logger

	pub    command.Publisher
	topics mqtt.Topics
	sink   telemetry.Sink
	now    func() time.Time

	// Guarded by the ControlState writer lock.
	lastAutoFan logic.FanState
	cold        bool
}

// Option configures a Controller.
type Option func(*Controller)

// WithPublisher enables state reports and reading publication.
func WithPublisher(pub command.Publisher, topics mqtt.Topics) Option {
	return func(c *Controller) {
		c.pub = pub
		c.topics = topics
	}
}

// WithTelemetry sets the telemetry sink.
func WithTelemetry(sink telemetry.Sink) Option {
	return func(c *Controller) {
		c.sink = sink
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(c *Controller) {
		c.now = now
	}
}

// New creates a Controller and registers its forced recompute with the arbiter.
func New(src ReadingSource, out Outputs, alerts AlertSetter, arbiter *mode.Arbiter, state *status.ControlState, t logic.Thresholds, log *logger.Logger, opts ...Option) *Controller {
	c := &Controller{
		src:        src,
		out:        out,
		alerts:     alerts,
		arbiter:    arbiter,
		state:      state,
		thresholds: t,
		log:        log,
		sink:       telemetry.Nop{},
		now:        time.Now,
		cold:       true,
	}
	for _, opt := range opts {
		opt(c)
	}
	arbiter.SetRecompute(func() { c.Evaluate() })
	return c
}

// Evaluate runs one decision cycle. It reports false when AUTO is not active.
func (c *Controller) Evaluate() (logic.Decision, bool) {
	var (
		d       logic.Decision
		applied bool
	)
	c.state.Write(func() {
		if !c.arbiter.AutoActive() {
			return
		}
		r := c.src.Stable()
		if c.cold {
			d = logic.DecideCold(r, c.thresholds)
			// Stay cold until a real reading has been decided on.
			c.cold = !r.Valid
		} else {
			d = logic.Decide(r, c.lastAutoFan, c.thresholds)
		}
		c.lastAutoFan = d.Fan
		c.apply(d)
		c.state.SetReading(r)
		c.state.Count(func(n *status.Counts) { n.Decisions++ })
		applied = true
	})
	return d, applied
}

// apply drives outputs that differ from the recorded state. Runs under the writer lock.
func (c *Controller) apply(d logic.Decision) {
	cur := c.state.Outputs()

	if d.Fan != cur.Fan {
		if err := c.out.SetFanLevel(d.Fan.Level()); err != nil {
			c.log.Errorw("fan write failed", "fan", d.Fan.String(), "err", err)
		} else {
			c.state.SetFan(d.Fan)
			c.log.Infow("fan changed", "from", cur.Fan.String(), "to", d.Fan.String())
		}
	}
	if d.Color != cur.Color {
		if err := c.out.SetLEDColor(d.Color.R, d.Color.G, d.Color.B); err != nil {
			c.log.Errorw("led write failed", "err", err)
		} else {
			c.state.SetColor(d.Color)
		}
	}
	// The scheduler ignores a repeated level, so this is always safe.
	c.alerts.SetLevel(d.Alert)
	if d.Alert != cur.Alert {
		c.state.SetAlert(d.Alert)
		c.log.Infow("alert changed", "from", cur.Alert.String(), "to", d.Alert.String())
	}
}

// Report publishes the stable reading and, while AUTO, one state report per actuator.
func (c *Controller) Report(ctx context.Context) {
	snap := c.state.Snapshot()
	r := c.src.Stable()
	now := c.now()

	if err := c.sink.Write(ctx, telemetry.Point{
		Time:    now,
		Room:    snap.Config.Room,
		Mode:    snap.ModeString(),
		Reading: r,
		Outputs: snap.Outputs,
	}); err != nil {
		c.log.Debugw("telemetry write skipped", "err", err)
	}

	if c.pub == nil {
		return
	}
	if payload, err := mqtt.FormatReading(r, now); err == nil {
		if err := c.pub.Publish(c.topics.Sensors(), payload, 0, false); err != nil {
			c.log.Warnw("reading publish failed", "err", err)
		}
	}

	if !snap.Initialized || snap.Mode != logic.ModeAuto {
		return
	}
	for _, target := range command.Targets {
		ack := command.StateOf(target, snap.Outputs).Ack()
		topic := mqtt.Reported(c.topics.Actuator(string(target)))
		if err := c.pub.Publish(topic, command.FormatAck(ack), 0, false); err != nil {
			c.log.Warnw("state report failed", "target", target, "err", err)
		}
	}
}

// Run evaluates on every ready signal and reports on every report tick until ctx is done.
// Reports run on their own goroutine so slow telemetry or publishes never delay a decision.
func (c *Controller) Run(ctx context.Context, ready <-chan struct{}, report <-chan time.Time) {
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		c.reportLoop(ctx, report)
	}()
	defer wg.Wait()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ready:
			c.Evaluate()
		}
	}
}

func (c *Controller) reportLoop(ctx context.Context, report <-chan time.Time) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-report:
			c.Report(ctx)
		}
	}
}
