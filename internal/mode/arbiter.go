// Package mode owns the AUTO/MANUAL control authority.
package mode

import (
	"sync"
	"sync/atomic"

	"github.com/sweeney/env-controller/internal/logger"
	"github.com/sweeney/env-controller/internal/logic"
	"github.com/sweeney/env-controller/internal/status"
)

// Bits of the packed mode word. Both fields change in one atomic store.
const (
	bitInitialized uint32 = 1 << iota
	bitManual
)

// AlertSetter is the part of the alert scheduler the arbiter needs.
type AlertSetter interface {
	SetLevel(logic.AlertLevel)
}

// Transition describes the effect of one mode command.
type Transition struct {
	From        logic.Mode
	To          logic.Mode
	First       bool // first mode command since start
	Changed     bool
	Recomputed  bool
	Initialized bool
}

// Arbiter holds the mode word. Until the first mode command neither the
// decision engine nor remote commands may drive outputs.
type Arbiter struct {
	word atomic.Uint32

	state  *status.ControlState
	alerts AlertSetter
	log    *logger.Logger

	hookMu    sync.RWMutex
	recompute func()
}

// New creates an uninitialized arbiter.
func New(state *status.ControlState, alerts AlertSetter, log *logger.Logger) *Arbiter {
	return &Arbiter{state: state, alerts: alerts, log: log}
}

// SetRecompute installs the hook run after every transition into AUTO.
func (a *Arbiter) SetRecompute(fn func()) {
	a.hookMu.Lock()
	a.recompute = fn
	a.hookMu.Unlock()
}

func decode(w uint32) (logic.Mode, bool) {
	m := logic.ModeAuto
	if w&bitManual != 0 {
		m = logic.ModeManual
	}
	return m, w&bitInitialized != 0
}

// Load returns the mode and whether a mode command has been received.
func (a *Arbiter) Load() (logic.Mode, bool) {
	return decode(a.word.Load())
}

// AcceptsCommands reports whether remote actuator commands may be applied.
func (a *Arbiter) AcceptsCommands() bool {
	w := a.word.Load()
	return w&bitInitialized != 0 && w&bitManual != 0
}

// AutoActive reports whether decision engine outputs may be applied.
func (a *Arbiter) AutoActive() bool {
	w := a.word.Load()
	return w&bitInitialized != 0 && w&bitManual == 0
}

// OnModeCommand applies a mode command: auto=true selects AUTO.
// Entering AUTO silences any manual buzzer pattern and forces one fresh
// decision once the state lock has been released.
func (a *Arbiter) OnModeCommand(auto bool) Transition {
	var tr Transition
	a.state.Write(func() {
		tr = a.transition(auto)
	})

	if tr.Changed && tr.To == logic.ModeAuto {
		a.hookMu.RLock()
		fn := a.recompute
		a.hookMu.RUnlock()
		if fn != nil {
			fn()
			tr.Recomputed = true
		}
	}
	return tr
}

// transition runs under the ControlState writer lock.
func (a *Arbiter) transition(auto bool) Transition {
	old := a.word.Load()
	from, wasInit := decode(old)

	next := bitInitialized
	if !auto {
		next |= bitManual
	}
	to, _ := decode(next)

	tr := Transition{From: from, To: to, First: !wasInit, Initialized: true}
	if wasInit && old == next {
		a.log.Debugw("mode unchanged", "mode", to.String())
		return tr
	}

	a.word.Store(next)
	tr.Changed = true
	a.state.SetMode(to, true)
	a.state.Count(func(c *status.Counts) { c.ModeChanges++ })

	if wasInit && to == logic.ModeAuto {
		a.alerts.SetLevel(logic.AlertOff)
		a.state.SetAlert(logic.AlertOff)
	}

	if tr.First {
		a.log.Infow("mode initialized", "mode", to.String())
	} else {
		a.log.Infow("mode changed", "from", from.String(), "to", to.String())
	}
	return tr
}
