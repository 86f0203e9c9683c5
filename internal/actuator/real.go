//go:build linux

package actuator

import (
	"errors"
	"fmt"

	"github.com/warthog618/go-gpiocdev"
)

// RealDriver drives actual hardware using the Linux GPIO character device.
type RealDriver struct {
	chip    *gpiocdev.Chip
	fanHalf *gpiocdev.Line
	fanFull *gpiocdev.Line
	red     *gpiocdev.Line
	green   *gpiocdev.Line
	blue    *gpiocdev.Line
	buzzer  *gpiocdev.Line
}

// NewRealDriver requests every output line, initially off.
func NewRealDriver(pins Pins) (*RealDriver, error) {
	chip, err := gpiocdev.NewChip(pins.Chip)
	if err != nil {
		return nil, fmt.Errorf("open gpio chip %s: %w", pins.Chip, err)
	}
	d := &RealDriver{chip: chip}

	request := func(name string, offset int, opts ...gpiocdev.LineReqOption) (*gpiocdev.Line, error) {
		opts = append(opts, gpiocdev.AsOutput(0), gpiocdev.WithConsumer("env-controller"))
		line, err := chip.RequestLine(offset, opts...)
		if err != nil {
			return nil, fmt.Errorf("request %s pin %d: %w", name, offset, err)
		}
		return line, nil
	}

	if d.fanHalf, err = request("fan-half", pins.FanHalf); err != nil {
		d.Close()
		return nil, err
	}
	if d.fanFull, err = request("fan-full", pins.FanFull); err != nil {
		d.Close()
		return nil, err
	}
	if d.red, err = request("led-r", pins.LEDRed); err != nil {
		d.Close()
		return nil, err
	}
	if d.green, err = request("led-g", pins.LEDGreen); err != nil {
		d.Close()
		return nil, err
	}
	if d.blue, err = request("led-b", pins.LEDBlue); err != nil {
		d.Close()
		return nil, err
	}
	// The buzzer module is wired active-low.
	if d.buzzer, err = request("buzzer", pins.Buzzer, gpiocdev.AsActiveLow); err != nil {
		d.Close()
		return nil, err
	}

	return d, nil
}

// SetFanLevel switches the two fan relays. The half relay is released before
// the full one is engaged so both are never on together.
func (d *RealDriver) SetFanLevel(level uint8) error {
	half, full := fanLevels(level)
	if half == 0 {
		if err := d.fanHalf.SetValue(0); err != nil {
			return fmt.Errorf("set fan-half: %w", err)
		}
	}
	if err := d.fanFull.SetValue(full); err != nil {
		return fmt.Errorf("set fan-full: %w", err)
	}
	if half == 1 {
		if err := d.fanHalf.SetValue(1); err != nil {
			return fmt.Errorf("set fan-half: %w", err)
		}
	}
	return nil
}

// SetLEDColor drives the RGB lines digitally.
func (d *RealDriver) SetLEDColor(r, g, b uint16) error {
	rv, gv, bv := ledLevels(r, g, b)
	if err := d.red.SetValue(rv); err != nil {
		return fmt.Errorf("set led-r: %w", err)
	}
	if err := d.green.SetValue(gv); err != nil {
		return fmt.Errorf("set led-g: %w", err)
	}
	if err := d.blue.SetValue(bv); err != nil {
		return fmt.Errorf("set led-b: %w", err)
	}
	return nil
}

// SetBuzzer switches the buzzer.
func (d *RealDriver) SetBuzzer(on bool) error {
	if err := d.buzzer.SetValue(onOff(on)); err != nil {
		return fmt.Errorf("set buzzer: %w", err)
	}
	return nil
}

// Close drives every output off, returns the lines to inputs and releases the chip.
func (d *RealDriver) Close() error {
	var errs []error
	for _, l := range []*gpiocdev.Line{d.fanHalf, d.fanFull, d.red, d.green, d.blue, d.buzzer} {
		if l == nil {
			continue
		}
		if err := l.SetValue(0); err != nil {
			errs = append(errs, fmt.Errorf("reset pin %d: %w", l.Offset(), err))
		}
		if err := l.Reconfigure(gpiocdev.AsInput); err != nil {
			errs = append(errs, fmt.Errorf("reconfigure pin %d: %w", l.Offset(), err))
		}
		if err := l.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close pin %d: %w", l.Offset(), err))
		}
	}
	if d.chip != nil {
		if err := d.chip.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close chip: %w", err))
		}
	}
	return errors.Join(errs...)
}
