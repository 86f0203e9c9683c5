package logic

// NextFan applies one hysteresis step for temperature. It never moves more than one tier.
func NextFan(temp float64, prev FanState, t Thresholds) FanState {
	switch prev {
	case FanOff:
		if temp >= t.FanHalfOn {
			return FanHalf
		}
		return FanOff
	case FanHalf:
		if temp >= t.FanFullOn {
			return FanFull
		}
		if temp < t.FanHalfOff {
			return FanOff
		}
		return FanHalf
	case FanFull:
		if temp < t.FanFullOff {
			return FanHalf
		}
		return FanFull
	default:
		return FanOff
	}
}

// Decide computes the target outputs for one decision cycle.
// An invalid reading forces the fan off, the LED dark and the alert off.
func Decide(r StableReading, prev FanState, t Thresholds) Decision {
	if !r.Valid {
		return Decision{Fan: FanOff, Color: NoColor, Alert: AlertOff}
	}
	return Decision{
		Fan:   NextFan(r.Temperature, prev, t),
		Color: ColorFor(r.AirQualityLevel),
		Alert: AlertFor(r, t),
	}
}

// DecideCold is Decide without history: the fan settles to the tier repeated
// hysteresis steps from Off would reach for the same reading.
func DecideCold(r StableReading, t Thresholds) Decision {
	d := Decide(r, FanOff, t)
	for i := 0; i < int(MaxFanLevel); i++ {
		next := Decide(r, d.Fan, t)
		if next.Fan == d.Fan {
			break
		}
		d = next
	}
	return d
}

// ColorFor maps an air quality tier to its palette color.
func ColorFor(airLevel uint8) Color {
	c, _ := ColorForLevel(uint32(airLevel))
	return c
}

// AlertFor evaluates the alert rules top-down; the first match wins.
func AlertFor(r StableReading, t Thresholds) AlertLevel {
	v := r.Value(t.AlertChannel)
	switch {
	case v > t.CriticalAbove:
		return AlertCritical
	case r.AirQualityLevel >= MaxAirLevel:
		return AlertAlert
	case v > t.WarnAbove:
		return AlertWarn
	case t.WarnAirLevel > 0 && r.AirQualityLevel >= t.WarnAirLevel:
		return AlertWarn
	default:
		return AlertOff
	}
}
