package sensor

import (
	"math"
	"sync"

	"github.com/sweeney/env-controller/internal/logic"
)

// Aggregator holds one Window per channel. Safe for concurrent use: the
// sampling task records while the decision task reads.
type Aggregator struct {
	mu          sync.RWMutex
	windows     [numChannels]*Window
	unavailable bool
}

// NewAggregator creates windows of the given capacity for every channel.
func NewAggregator(capacity int) *Aggregator {
	a := &Aggregator{}
	for i := range a.windows {
		a.windows[i] = NewWindow(capacity)
	}
	return a
}

// Record appends value to the channel's window. Unknown channels are ignored.
func (a *Aggregator) Record(ch Channel, value float64) {
	if ch < 0 || ch >= numChannels {
		return
	}
	a.mu.Lock()
	a.windows[ch].Push(value)
	a.mu.Unlock()
}

// Average returns the mean of the channel's window, or 0 if nothing was recorded.
func (a *Aggregator) Average(ch Channel) float64 {
	if ch < 0 || ch >= numChannels {
		return 0
	}
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.windows[ch].Mean()
}

// Count returns the number of samples held for the channel.
func (a *Aggregator) Count(ch Channel) int {
	if ch < 0 || ch >= numChannels {
		return 0
	}
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.windows[ch].Len()
}

// RecordSample records an already validated sample into all channels.
func (a *Aggregator) RecordSample(s Sample) {
	a.mu.Lock()
	a.windows[Temperature].Push(s.Temperature)
	a.windows[Humidity].Push(s.Humidity)
	a.windows[AirQuality].Push(float64(AirQualityLevel(s.AirQualityRaw)))
	a.unavailable = false
	a.mu.Unlock()
}

// SetUnavailable marks the upstream sensor as unavailable until the next recorded sample.
func (a *Aggregator) SetUnavailable() {
	a.mu.Lock()
	a.unavailable = true
	a.mu.Unlock()
}

// Stable returns the smoothed reading. It is valid only once every channel
// holds at least one sample and the sensor is not marked unavailable.
func (a *Aggregator) Stable() logic.StableReading {
	a.mu.RLock()
	defer a.mu.RUnlock()

	valid := !a.unavailable
	for _, w := range a.windows {
		if w.Len() == 0 {
			valid = false
		}
	}

	air := math.Trunc(a.windows[AirQuality].Mean())
	if air > float64(logic.MaxAirLevel) {
		air = float64(logic.MaxAirLevel)
	}
	if air < 0 {
		air = 0
	}

	return logic.StableReading{
		Temperature:     a.windows[Temperature].Mean(),
		Humidity:        a.windows[Humidity].Mean(),
		AirQualityLevel: uint8(air),
		Valid:           valid,
	}
}
