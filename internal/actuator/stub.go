//go:build !linux

package actuator

import "errors"

var errUnsupported = errors.New("actuator: gpio not supported on this platform (requires Linux)")

// RealDriver is not available on non-Linux platforms.
type RealDriver struct{}

// NewRealDriver returns an error on non-Linux platforms.
func NewRealDriver(pins Pins) (*RealDriver, error) {
	return nil, errUnsupported
}

func (d *RealDriver) SetFanLevel(level uint8) error    { return errUnsupported }
func (d *RealDriver) SetLEDColor(r, g, b uint16) error { return errUnsupported }
func (d *RealDriver) SetBuzzer(on bool) error          { return errUnsupported }
func (d *RealDriver) Close() error                     { return nil }
