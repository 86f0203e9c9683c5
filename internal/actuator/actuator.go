// Package actuator drives the fan, status LED and buzzer.
// The real implementation uses the Linux GPIO character device.
// The fake implementation allows testing without hardware.
package actuator

// Driver sets physical outputs. Calls are synchronous and must be quick.
type Driver interface {
	// SetFanLevel sets the fan tier: 0 off, 1 half, 2 full.
	SetFanLevel(level uint8) error

	// SetLEDColor sets the status LED. Channels are 10-bit duty values (0..1023).
	SetLEDColor(r, g, b uint16) error

	// SetBuzzer switches the buzzer on or off.
	SetBuzzer(on bool) error

	// Close releases hardware resources and leaves every output off.
	Close() error
}

// Pins holds the GPIO line offsets (BCM numbering).
type Pins struct {
	Chip     string `mapstructure:"chip"`
	FanHalf  int    `mapstructure:"fan-half"`
	FanFull  int    `mapstructure:"fan-full"`
	LEDRed   int    `mapstructure:"led-r"`
	LEDGreen int    `mapstructure:"led-g"`
	LEDBlue  int    `mapstructure:"led-b"`
	Buzzer   int    `mapstructure:"buzzer"`
}

// DefaultPins matches the reference board wiring.
func DefaultPins() Pins {
	return Pins{
		Chip:     "gpiochip0",
		FanHalf:  16,
		FanFull:  21,
		LEDRed:   25,
		LEDGreen: 26,
		LEDBlue:  27,
		Buzzer:   17,
	}
}

// ledThreshold is the duty value at and above which a digital LED line is driven on.
const ledThreshold = 512

// ledLevels converts 10-bit duty values into on/off line values.
func ledLevels(r, g, b uint16) (int, int, int) {
	return onOff(r >= ledThreshold), onOff(g >= ledThreshold), onOff(b >= ledThreshold)
}

// fanLevels converts a fan tier into (half relay, full relay) line values.
// Anything above 2 is treated as full.
func fanLevels(level uint8) (int, int) {
	switch level {
	case 0:
		return 0, 0
	case 1:
		return 1, 0
	default:
		return 0, 1
	}
}

func onOff(b bool) int {
	if b {
		return 1
	}
	return 0
}
