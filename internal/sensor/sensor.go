// Package sensor smooths periodic raw samples into stable readings.
//
// The aggregator is deliberately dumb: it keeps a fixed-size circular window per
// channel and averages it. Range checks happen in the Sampler before Record.
package sensor

import (
	"errors"
	"fmt"
	"math"
)

// Channel identifies one smoothed quantity.
type Channel int

const (
	Temperature Channel = iota
	Humidity
	AirQuality
	numChannels
)

func (c Channel) String() string {
	switch c {
	case Temperature:
		return "temperature"
	case Humidity:
		return "humidity"
	case AirQuality:
		return "air_quality"
	default:
		return fmt.Sprintf("Channel(%d)", int(c))
	}
}

// Physical limits of the supported sensors. Samples outside these are rejected.
const (
	MinTemperature = -40.0
	MaxTemperature = 125.0
	MinHumidity    = 0.0
	MaxHumidity    = 100.0
	MaxAirRaw      = 4095
)

// DefaultWindow is the number of samples averaged per channel.
const DefaultWindow = 10

// ErrOutOfRange is returned by Validate for a physically impossible sample.
var ErrOutOfRange = errors.New("sample out of range")

// Sample is one raw acquisition from the sensor hardware.
type Sample struct {
	Temperature   float64 `json:"temperature"`
	Humidity      float64 `json:"humidity"`
	AirQualityRaw int     `json:"air_quality_raw"`
	Valid         bool    `json:"-"`
}

// Validate checks the sample against the physical sensor range.
func (s Sample) Validate() error {
	if !s.Valid {
		return fmt.Errorf("%w: acquisition failed", ErrOutOfRange)
	}
	if math.IsNaN(s.Temperature) || s.Temperature < MinTemperature || s.Temperature > MaxTemperature {
		return fmt.Errorf("%w: temperature %.2f", ErrOutOfRange, s.Temperature)
	}
	if math.IsNaN(s.Humidity) || s.Humidity < MinHumidity || s.Humidity > MaxHumidity {
		return fmt.Errorf("%w: humidity %.2f", ErrOutOfRange, s.Humidity)
	}
	if s.AirQualityRaw < 0 || s.AirQualityRaw > MaxAirRaw {
		return fmt.Errorf("%w: air quality raw %d", ErrOutOfRange, s.AirQualityRaw)
	}
	return nil
}

// airBuckets are the upper raw ADC bounds of levels 0..3; anything above is level 4.
var airBuckets = [...]int{819, 1638, 2457, 3276}

// AirQualityLevel classifies a raw 12-bit ADC value into levels 0 (Good) .. 4 (Very Poor).
func AirQualityLevel(raw int) uint8 {
	for i, upper := range airBuckets {
		if raw <= upper {
			return uint8(i)
		}
	}
	return uint8(len(airBuckets))
}
