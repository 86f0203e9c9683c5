package sensor

import (
	"context"
	"errors"
	"time"

	"github.com/sweeney/env-controller/internal/logger"
)

// Outcome describes what one sampling step did.
type Outcome int

const (
	Recorded Outcome = iota
	Rejected
	MarkedUnavailable
)

// Sampler is the periodic sampling task. It validates each sample, records
// accepted ones and raises a one-bit "new data ready" signal.
type Sampler struct {
	src        Source
	agg        *Aggregator
	staleAfter int
	log        *logger.Logger

	failures int
	ready    chan struct{}
}

// NewSampler creates a sampler. After staleAfter consecutive failed reads the
// aggregator is marked unavailable; zero or less disables that.
func NewSampler(src Source, agg *Aggregator, staleAfter int, log *logger.Logger) *Sampler {
	return &Sampler{
		src:        src,
		agg:        agg,
		staleAfter: staleAfter,
		log:        log,
		ready:      make(chan struct{}, 1),
	}
}

// Ready is signalled (coalesced) whenever the stable reading may have changed.
func (s *Sampler) Ready() <-chan struct{} {
	return s.ready
}

// Step performs one acquisition.
func (s *Sampler) Step() Outcome {
	sample, err := s.src.Read()
	if err == nil {
		err = sample.Validate()
	}
	if err != nil {
		s.failures++
		if !errors.Is(err, ErrNoSample) {
			s.log.Warnw("sample rejected", "err", err, "consecutive", s.failures)
		}
		if s.staleAfter > 0 && s.failures == s.staleAfter {
			s.log.Errorw("sensor unavailable", "consecutive_failures", s.failures)
			s.agg.SetUnavailable()
			s.signal()
			return MarkedUnavailable
		}
		return Rejected
	}

	if s.failures >= s.staleAfter && s.staleAfter > 0 {
		s.log.Infow("sensor recovered", "after_failures", s.failures)
	}
	s.failures = 0
	s.agg.RecordSample(sample)
	s.signal()
	return Recorded
}

func (s *Sampler) signal() {
	select {
	case s.ready <- struct{}{}:
	default:
	}
}

// Run steps on every tick until ctx is done.
func (s *Sampler) Run(ctx context.Context, tick <-chan time.Time) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-tick:
			s.Step()
		}
	}
}
