package command

import (
	"errors"

	"github.com/sweeney/env-controller/internal/logger"
	"github.com/sweeney/env-controller/internal/logic"
	"github.com/sweeney/env-controller/internal/mode"
	"github.com/sweeney/env-controller/internal/mqtt"
	"github.com/sweeney/env-controller/internal/status"
)

// Outcome classifies how a dispatched message was handled.
type Outcome int

const (
	Applied       Outcome = iota // applied, ack sent
	Rejected                     // malformed or driver failure, failure ack sent
	Ignored                      // device is in AUTO, unchanged-state ack sent
	Uninitialized                // no mode command received yet
	Unrouted                     // topic is not a command channel
)

func (o Outcome) String() string {
	switch o {
	case Applied:
		return "applied"
	case Rejected:
		return "rejected"
	case Ignored:
		return "ignored"
	case Uninitialized:
		return "uninitialized"
	default:
		return "unrouted"
	}
}

// Publisher is the outbound side of the transport.
type Publisher interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
}

// Dispatcher maps inbound messages to the router or the mode arbiter,
// enforces mode gating and publishes acknowledgements.
type Dispatcher struct {
	topics  mqtt.Topics
	router  *Router
	arbiter *mode.Arbiter
	state   *status.ControlState
	pub     Publisher
	log     *logger.Logger
}

// NewDispatcher creates a Dispatcher. pub may be nil when no transport is attached.
func NewDispatcher(topics mqtt.Topics, router *Router, arbiter *mode.Arbiter, state *status.ControlState, pub Publisher, log *logger.Logger) *Dispatcher {
	return &Dispatcher{topics: topics, router: router, arbiter: arbiter, state: state, pub: pub, log: log}
}

// HandleMessage is the transport callback for command topics.
func (d *Dispatcher) HandleMessage(topic string, payload []byte) {
	d.Dispatch(topic, payload)
}

// Dispatch routes one message by topic.
func (d *Dispatcher) Dispatch(topic string, payload []byte) (Result, Outcome) {
	if topic == d.topics.Mode() {
		return d.Mode(payload)
	}
	name, ok := d.topics.ActuatorName(topic)
	if !ok {
		d.log.Debugw("message on unrouted topic", "topic", topic)
		return Result{}, Unrouted
	}
	target, err := ParseTarget(name)
	if err != nil {
		d.log.Warnw("command for unknown actuator", "topic", topic, "err", err)
		return Result{Err: err}, Unrouted
	}
	return d.Actuator(target, payload)
}

// Actuator handles a command for target. It is applied only in MANUAL mode.
func (d *Dispatcher) Actuator(target Target, payload []byte) (Result, Outcome) {
	var (
		res     Result
		outcome Outcome
	)

	d.state.Write(func() {
		if _, initialized := d.arbiter.Load(); !initialized {
			outcome = Uninitialized
			return
		}
		if !d.arbiter.AcceptsCommands() {
			res, outcome = d.router.Current(target), Ignored
			res.Success = false
			return
		}

		cmd, err := ParseCommand(target, payload)
		if err != nil {
			res, outcome = d.router.Reject(target, err), Rejected
			return
		}
		res = d.router.Route(cmd)
		outcome = Applied
		if !res.Success {
			outcome = Rejected
		}
	})

	d.count(outcome)
	topic := d.topics.Actuator(string(target))
	switch outcome {
	case Uninitialized:
		d.log.Infow("command dropped, mode not initialized", "target", target)
		return res, outcome
	case Ignored:
		d.log.Infow("command ignored in AUTO mode", "target", target)
	case Rejected:
		d.log.Warnw("command rejected", "target", target, "err", res.Err)
	default:
		d.log.Infow("command applied", "target", target, "state", res.State, "level", res.Level)
	}
	d.publishAck(topic, res.Ack())
	return res, outcome
}

// Mode handles a mode command. ON selects AUTO.
func (d *Dispatcher) Mode(payload []byte) (Result, Outcome) {
	auto, err := ParseMode(payload)
	if err != nil {
		m, initialized := d.arbiter.Load()
		res := Result{Device: "mode", State: stateString(initialized && m == logic.ModeAuto), Err: err}
		d.log.Warnw("mode command rejected", "err", err)
		d.publishAck(d.topics.Mode(), res.Ack())
		return res, Rejected
	}

	tr := d.arbiter.OnModeCommand(auto)
	res := Result{Device: "mode", State: stateString(auto), Success: true}
	d.log.Infow("mode command", "auto", auto, "changed", tr.Changed, "first", tr.First)
	d.publishAck(d.topics.Mode(), res.Ack())
	return res, Applied
}

func (d *Dispatcher) count(o Outcome) {
	d.state.Count(func(c *status.Counts) {
		switch o {
		case Applied:
			c.CommandsApplied++
		case Rejected:
			c.CommandsRejected++
		case Ignored, Uninitialized:
			c.CommandsIgnored++
		}
	})
}

func (d *Dispatcher) publishAck(topic string, ack Ack) {
	if d.pub == nil {
		return
	}
	if err := d.pub.Publish(mqtt.Reported(topic), FormatAck(ack), 1, false); err != nil {
		d.log.Warnw("ack publish failed", "topic", topic, "err", err)
	}
}

// IsMalformed reports whether err came from payload parsing.
func IsMalformed(err error) bool {
	return errors.Is(err, ErrMalformed)
}
