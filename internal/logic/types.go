// Package logic contains the pure decision engine for the environment controller.
// This package has NO external dependencies (no GPIO, MQTT, OS, clocks or goroutines).
// Every function is deterministic over its arguments.
package logic

import (
	"errors"
	"fmt"
)

// FanState is the discrete fan tier.
type FanState uint8

const (
	FanOff FanState = iota
	FanHalf
	FanFull
)

// MaxFanLevel is the highest fan tier as a numeric level.
const MaxFanLevel = uint8(FanFull)

func (f FanState) String() string {
	switch f {
	case FanOff:
		return "OFF"
	case FanHalf:
		return "HALF"
	case FanFull:
		return "FULL"
	default:
		return fmt.Sprintf("FanState(%d)", uint8(f))
	}
}

// Level returns the driver level (0, 1, 2) for the tier.
func (f FanState) Level() uint8 {
	return uint8(f)
}

// FanFromLevel clamps a numeric level into a fan tier.
func FanFromLevel(level uint32) FanState {
	if level > uint32(MaxFanLevel) {
		return FanFull
	}
	return FanState(level)
}

// AlertLevel is the ordered buzzer severity.
type AlertLevel uint8

const (
	AlertOff AlertLevel = iota
	AlertWarn
	AlertAlert
	AlertCritical
)

// MaxAlertLevel is the most severe alert level.
const MaxAlertLevel = AlertCritical

func (a AlertLevel) String() string {
	switch a {
	case AlertOff:
		return "OFF"
	case AlertWarn:
		return "WARN"
	case AlertAlert:
		return "ALERT"
	case AlertCritical:
		return "CRITICAL"
	default:
		return fmt.Sprintf("AlertLevel(%d)", uint8(a))
	}
}

// AlertFromLevel clamps a numeric level into an alert level.
func AlertFromLevel(level uint32) AlertLevel {
	if level > uint32(MaxAlertLevel) {
		return MaxAlertLevel
	}
	return AlertLevel(level)
}

// Air quality tiers reported by the sensor aggregator.
const (
	AirGood uint8 = iota
	AirFair
	AirModerate
	AirPoor
	AirVeryPoor
)

// MaxAirLevel is the worst air quality tier.
const MaxAirLevel = AirVeryPoor

// Channel names a sensor channel the alert rules can watch.
type Channel string

const (
	ChannelTemperature Channel = "temperature"
	ChannelHumidity    Channel = "humidity"
)

// StableReading is the smoothed input to Decide.
type StableReading struct {
	Temperature     float64
	Humidity        float64
	AirQualityLevel uint8 // 0 (Good) .. 4 (Very Poor)
	Valid           bool
}

// Value returns the reading for the given channel.
func (r StableReading) Value(ch Channel) float64 {
	if ch == ChannelHumidity {
		return r.Humidity
	}
	return r.Temperature
}

// Decision is the output tuple of Decide.
type Decision struct {
	Fan   FanState
	Color Color
	Alert AlertLevel
}

// Thresholds holds every numeric bound used by Decide.
// On thresholds are inclusive (>=), off thresholds are exclusive (<).
type Thresholds struct {
	FanHalfOn  float64 `mapstructure:"fan-half-on"`
	FanHalfOff float64 `mapstructure:"fan-half-off"`
	FanFullOn  float64 `mapstructure:"fan-full-on"`
	FanFullOff float64 `mapstructure:"fan-full-off"`

	// AlertChannel selects which reading the Warn/Critical bounds apply to.
	AlertChannel  Channel `mapstructure:"alert-channel"`
	CriticalAbove float64 `mapstructure:"critical-above"`
	WarnAbove     float64 `mapstructure:"warn-above"`

	// WarnAirLevel raises Warn when air quality reaches this tier. Zero disables it.
	WarnAirLevel uint8 `mapstructure:"warn-air-level"`
}

// DefaultThresholds returns the temperature-driven bounds.
func DefaultThresholds() Thresholds {
	return Thresholds{
		FanHalfOn:     25,
		FanHalfOff:    24,
		FanFullOn:     30,
		FanFullOff:    29,
		AlertChannel:  ChannelTemperature,
		CriticalAbove: 35,
		WarnAbove:     30,
		WarnAirLevel:  AirPoor,
	}
}

// HumidityAlertThresholds returns the defaults with humidity driving Warn/Critical.
func HumidityAlertThresholds() Thresholds {
	t := DefaultThresholds()
	t.AlertChannel = ChannelHumidity
	t.CriticalAbove = 80
	t.WarnAbove = 70
	return t
}

// Validate checks that the bands are ordered so hysteresis holds.
func (t Thresholds) Validate() error {
	var errs []error
	if t.FanHalfOff >= t.FanHalfOn {
		errs = append(errs, fmt.Errorf("fan-half-off (%v) must be below fan-half-on (%v)", t.FanHalfOff, t.FanHalfOn))
	}
	if t.FanFullOff >= t.FanFullOn {
		errs = append(errs, fmt.Errorf("fan-full-off (%v) must be below fan-full-on (%v)", t.FanFullOff, t.FanFullOn))
	}
	if t.FanFullOn <= t.FanHalfOn {
		errs = append(errs, fmt.Errorf("fan-full-on (%v) must be above fan-half-on (%v)", t.FanFullOn, t.FanHalfOn))
	}
	if t.FanFullOff <= t.FanHalfOff {
		errs = append(errs, fmt.Errorf("fan-full-off (%v) must be above fan-half-off (%v)", t.FanFullOff, t.FanHalfOff))
	}
	if t.WarnAbove >= t.CriticalAbove {
		errs = append(errs, fmt.Errorf("warn-above (%v) must be below critical-above (%v)", t.WarnAbove, t.CriticalAbove))
	}
	if t.AlertChannel != ChannelTemperature && t.AlertChannel != ChannelHumidity {
		errs = append(errs, fmt.Errorf("alert-channel %q must be %q or %q", t.AlertChannel, ChannelTemperature, ChannelHumidity))
	}
	if t.WarnAirLevel > MaxAirLevel {
		errs = append(errs, fmt.Errorf("warn-air-level %d exceeds %d", t.WarnAirLevel, MaxAirLevel))
	}
	return errors.Join(errs...)
}

// Mode is the control authority: the decision engine (Auto) or remote commands (Manual).
type Mode uint8

const (
	ModeAuto Mode = iota
	ModeManual
)

func (m Mode) String() string {
	if m == ModeManual {
		return "MANUAL"
	}
	return "AUTO"
}
