package command

import (
	"fmt"

	"github.com/sweeney/env-controller/internal/logger"
	"github.com/sweeney/env-controller/internal/logic"
	"github.com/sweeney/env-controller/internal/status"
)

// Outputs is the part of the actuator driver the router drives directly.
type Outputs interface {
	SetFanLevel(level uint8) error
	SetLEDColor(r, g, b uint16) error
}

// AlertSetter is the part of the alert scheduler the router needs.
type AlertSetter interface {
	SetLevel(logic.AlertLevel)
}

// Result is the state actually applied by a routed command.
type Result struct {
	Device  Target
	State   string
	Level   uint32
	Success bool
	Err     error
}

// Ack returns the wire acknowledgement for r.
func (r Result) Ack() Ack {
	return Ack{State: r.State, Level: r.Level, Success: r.Success}
}

// Router applies actuator commands and records them in ControlState.
// Callers must hold the ControlState writer lock.
type Router struct {
	out    Outputs
	alerts AlertSetter
	state  *status.ControlState
	log    *logger.Logger
}

// NewRouter creates a Router.
func NewRouter(out Outputs, alerts AlertSetter, state *status.ControlState, log *logger.Logger) *Router {
	return &Router{out: out, alerts: alerts, state: state, log: log}
}

// Route applies cmd in full or not at all.
func (r *Router) Route(cmd Command) Result {
	switch cmd.Target {
	case TargetFan:
		return r.routeFan(cmd)
	case TargetLED:
		return r.routeLED(cmd)
	case TargetBuzzer:
		return r.routeBuzzer(cmd)
	}
	return Result{Device: cmd.Target, State: StateOff, Err: fmt.Errorf("%w: %q", ErrUnknownTarget, cmd.Target)}
}

// Reject builds a failed result carrying the current, unchanged state of target.
func (r *Router) Reject(target Target, err error) Result {
	res := r.Current(target)
	res.Success = false
	res.Err = err
	return res
}

// Current reports the applied state of target.
func (r *Router) Current(target Target) Result {
	return StateOf(target, r.state.Outputs())
}

// StateOf describes the applied state of target within o.
func StateOf(target Target, o status.Outputs) Result {
	res := Result{Device: target, Success: true}
	switch target {
	case TargetFan:
		res.Level = uint32(o.Fan.Level())
	case TargetLED:
		if i := o.LEDIndex(); i >= 0 {
			res.Level = uint32(i)
		}
		res.State = stateString(!o.Color.IsOff())
		return res
	case TargetBuzzer:
		res.Level = uint32(o.Alert)
	}
	res.State = stateString(res.Level > 0)
	return res
}

func (r *Router) routeFan(cmd Command) Result {
	fan := logic.FanOff
	if cmd.On {
		fan = logic.FanFromLevel(cmd.Level)
	}
	if err := r.out.SetFanLevel(fan.Level()); err != nil {
		return r.Reject(TargetFan, fmt.Errorf("set fan: %w", err))
	}
	r.state.SetFan(fan)
	return Result{Device: TargetFan, State: stateString(fan != logic.FanOff), Level: uint32(fan.Level()), Success: true}
}

func (r *Router) routeLED(cmd Command) Result {
	color, index := logic.NoColor, uint8(0)
	if cmd.On {
		color, index = logic.ColorForLevel(cmd.Level)
	}
	if err := r.out.SetLEDColor(color.R, color.G, color.B); err != nil {
		return r.Reject(TargetLED, fmt.Errorf("set led: %w", err))
	}
	r.state.SetColor(color)
	return Result{Device: TargetLED, State: stateString(cmd.On), Level: uint32(index), Success: true}
}

func (r *Router) routeBuzzer(cmd Command) Result {
	level := logic.AlertOff
	if cmd.On {
		level = logic.AlertFromLevel(cmd.Level)
	}
	r.alerts.SetLevel(level)
	r.state.SetAlert(level)
	return Result{Device: TargetBuzzer, State: stateString(level != logic.AlertOff), Level: uint32(level), Success: true}
}
