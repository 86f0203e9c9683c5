// Package status holds the shared control state of the env-controller daemon.
// Writers (the decision task and the command router) serialise through Write;
// HTTP handlers, metrics and telemetry read consistent snapshots.
package status

import (
	"sync"
	"time"

	"github.com/sweeney/env-controller/internal/logic"
)

// NetworkInfo contains network state. This is a local copy to avoid
// importing internal/mqtt from status.
type NetworkInfo struct {
	Type       string
	IP         string
	Status     string
	Gateway    string
	WifiStatus string
	SSID       string
}

// Config contains daemon configuration for display.
type Config struct {
	Room          string
	SampleMs      int64
	ReportMs      int64
	HeartbeatMs   int64
	Broker        string
	HTTPAddr      string
	Thresholds    logic.Thresholds
	InfluxEnabled bool
}

// Counts are monotonically increasing event counters.
type Counts struct {
	Decisions        int
	CommandsApplied  int
	CommandsRejected int
	CommandsIgnored  int
	ModeChanges      int
}

// Outputs is the actuator state last applied.
type Outputs struct {
	Fan   logic.FanState
	Color logic.Color
	Alert logic.AlertLevel
}

// LEDIndex returns the palette index of the LED color, or -1 when dark or off-palette.
func (o Outputs) LEDIndex() int {
	return logic.PaletteIndex(o.Color)
}

// Snapshot is a point-in-time view of control state.
// It is a value type, safe to use after the lock is released.
type Snapshot struct {
	Outputs
	Mode          logic.Mode
	Initialized   bool
	Reading       logic.StableReading
	Counts        Counts
	StartTime     time.Time
	Now           time.Time
	MQTTConnected bool
	Network       *NetworkInfo
	Config        Config
	// LastSample is when the last raw sample arrived; zero if none yet.
	LastSample time.Time
}

// SampleAge returns the time since the last raw sample, or 0 if none arrived.
func (s Snapshot) SampleAge() time.Duration {
	if s.LastSample.IsZero() {
		return 0
	}
	return s.Now.Sub(s.LastSample)
}

// Uptime returns the duration since the daemon started.
func (s Snapshot) Uptime() time.Duration {
	return s.Now.Sub(s.StartTime)
}

// ModeString returns AUTO, MANUAL, or UNINITIALIZED before the first mode command.
func (s Snapshot) ModeString() string {
	if !s.Initialized {
		return "UNINITIALIZED"
	}
	return s.Mode.String()
}

// ControlState holds mutable control state. Field access goes through an
// RWMutex so readers never see a torn value; multi-step updates that must not
// interleave (decide-and-apply, route-and-apply, mode flips) run inside Write.
type ControlState struct {
	writer sync.Mutex

	mu          sync.RWMutex
	snap        Snapshot
	sampleClock func() time.Time
}

// New creates a ControlState with every output off.
func New(startTime time.Time, cfg Config) *ControlState {
	return &ControlState{
		snap: Snapshot{
			StartTime: startTime,
			Config:    cfg,
		},
	}
}

// Write runs fn as the single writer. Calls must not nest.
func (c *ControlState) Write(fn func()) {
	c.writer.Lock()
	defer c.writer.Unlock()
	fn()
}

// Outputs returns the last applied actuator state.
func (c *ControlState) Outputs() Outputs {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.snap.Outputs
}

// SetFan records the applied fan tier.
func (c *ControlState) SetFan(f logic.FanState) {
	c.mu.Lock()
	c.snap.Fan = f
	c.mu.Unlock()
}

// SetColor records the applied LED color.
func (c *ControlState) SetColor(col logic.Color) {
	c.mu.Lock()
	c.snap.Color = col
	c.mu.Unlock()
}

// SetAlert records the requested alert level.
func (c *ControlState) SetAlert(a logic.AlertLevel) {
	c.mu.Lock()
	c.snap.Alert = a
	c.mu.Unlock()
}

// SetMode mirrors the arbiter's mode for readers.
func (c *ControlState) SetMode(m logic.Mode, initialized bool) {
	c.mu.Lock()
	c.snap.Mode = m
	c.snap.Initialized = initialized
	c.mu.Unlock()
}

// SetReading records the stable reading used by the last decision.
func (c *ControlState) SetReading(r logic.StableReading) {
	c.mu.Lock()
	c.snap.Reading = r
	c.mu.Unlock()
}

// Count applies fn to the counters.
func (c *ControlState) Count(fn func(*Counts)) {
	c.mu.Lock()
	fn(&c.snap.Counts)
	c.mu.Unlock()
}

// SetMQTTConnected sets the MQTT connection status.
func (c *ControlState) SetMQTTConnected(connected bool) {
	c.mu.Lock()
	c.snap.MQTTConnected = connected
	c.mu.Unlock()
}

// SetNetwork sets the network info.
func (c *ControlState) SetNetwork(info *NetworkInfo) {
	c.mu.Lock()
	c.snap.Network = info
	c.mu.Unlock()
}

// SetSampleClock sets the function reporting when the last raw sample arrived.
func (c *ControlState) SetSampleClock(fn func() time.Time) {
	c.mu.Lock()
	c.sampleClock = fn
	c.mu.Unlock()
}

// Snapshot returns a point-in-time copy of the control state.
// The Now field is set to the current time at the moment of the call.
func (c *ControlState) Snapshot() Snapshot {
	c.mu.RLock()
	s := c.snap
	clock := c.sampleClock
	c.mu.RUnlock()
	if clock != nil {
		s.LastSample = clock()
	}
	s.Now = time.Now()
	return s
}
