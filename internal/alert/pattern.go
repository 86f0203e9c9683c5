package alert

import (
	"time"

	"github.com/sweeney/env-controller/internal/logic"
)

// Step is one segment of a buzzer waveform.
type Step struct {
	On       bool
	Duration time.Duration
}

// Pattern is a waveform that loops until preempted.
type Pattern []Step

// Period returns the total length of one loop of the pattern.
func (p Pattern) Period() time.Duration {
	var d time.Duration
	for _, s := range p {
		d += s.Duration
	}
	return d
}

// burst builds n×(on, off) followed by a trailing pause.
func burst(n int, on, off, pause time.Duration) Pattern {
	p := make(Pattern, 0, 2*n+1)
	for i := 0; i < n; i++ {
		p = append(p, Step{On: true, Duration: on}, Step{On: false, Duration: off})
	}
	return append(p, Step{On: false, Duration: pause})
}

// DefaultPatterns returns the waveforms for each audible level.
func DefaultPatterns() map[logic.AlertLevel]Pattern {
	ms := time.Millisecond
	return map[logic.AlertLevel]Pattern{
		logic.AlertWarn: {
			{On: true, Duration: 5000 * ms},
			{On: false, Duration: 2000 * ms},
		},
		logic.AlertAlert:    burst(5, 2000*ms, 500*ms, 2000*ms),
		logic.AlertCritical: burst(10, 1000*ms, 300*ms, 1000*ms),
	}
}

// Scale returns a copy of patterns with every duration divided by div.
// Used to run the real waveforms quickly in tests and demos.
func Scale(patterns map[logic.AlertLevel]Pattern, div int) map[logic.AlertLevel]Pattern {
	if div < 1 {
		div = 1
	}
	out := make(map[logic.AlertLevel]Pattern, len(patterns))
	for level, p := range patterns {
		scaled := make(Pattern, len(p))
		for i, s := range p {
			scaled[i] = Step{On: s.On, Duration: s.Duration / time.Duration(div)}
		}
		out[level] = scaled
	}
	return out
}
