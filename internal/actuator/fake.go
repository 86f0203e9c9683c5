package actuator

import (
	"fmt"
	"sync"
)

// Call records one driver invocation.
type Call struct {
	Method string
	Args   string
}

// Fake is a test double that records driver calls. Safe for concurrent use.
type Fake struct {
	mu sync.Mutex

	fanLevel uint8
	color    [3]uint16
	buzzerOn bool
	toggles  int
	calls    []Call
	closed   bool

	// Errors, if set, are returned by the matching setter without changing state.
	FanErr    error
	LEDErr    error
	BuzzerErr error
}

// NewFake creates a Fake with every output off.
func NewFake() *Fake {
	return &Fake{}
}

func (f *Fake) record(method, args string) {
	f.calls = append(f.calls, Call{Method: method, Args: args})
}

// SetFanLevel records the call.
func (f *Fake) SetFanLevel(level uint8) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("SetFanLevel", fmt.Sprint(level))
	if f.FanErr != nil {
		return f.FanErr
	}
	f.fanLevel = level
	return nil
}

// SetLEDColor records the call.
func (f *Fake) SetLEDColor(r, g, b uint16) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("SetLEDColor", fmt.Sprintf("%d,%d,%d", r, g, b))
	if f.LEDErr != nil {
		return f.LEDErr
	}
	f.color = [3]uint16{r, g, b}
	return nil
}

// SetBuzzer records the call.
func (f *Fake) SetBuzzer(on bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("SetBuzzer", fmt.Sprint(on))
	if f.BuzzerErr != nil {
		return f.BuzzerErr
	}
	if on != f.buzzerOn {
		f.toggles++
	}
	f.buzzerOn = on
	return nil
}

// Close marks the driver as closed and turns every output off.
func (f *Fake) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	f.fanLevel = 0
	f.color = [3]uint16{}
	f.buzzerOn = false
	return nil
}

// FanLevel returns the last applied fan level.
func (f *Fake) FanLevel() uint8 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.fanLevel
}

// Color returns the last applied LED color.
func (f *Fake) Color() (r, g, b uint16) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.color[0], f.color[1], f.color[2]
}

// BuzzerOn reports the current buzzer state.
func (f *Fake) BuzzerOn() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.buzzerOn
}

// Toggles returns how many times the buzzer changed state.
func (f *Fake) Toggles() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.toggles
}

// Calls returns a copy of all recorded calls.
func (f *Fake) Calls() []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Call, len(f.calls))
	copy(out, f.calls)
	return out
}

// CallCount returns the number of recorded calls to method.
func (f *Fake) CallCount(method string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if c.Method == method {
			n++
		}
	}
	return n
}

// Closed reports whether Close was called.
func (f *Fake) Closed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

// Reset clears recorded calls without changing output state.
func (f *Fake) Reset() {
	f.mu.Lock()
	f.calls = nil
	f.toggles = 0
	f.mu.Unlock()
}
