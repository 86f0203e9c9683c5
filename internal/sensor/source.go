package sensor

import (
	"errors"
	"sync"
	"time"
)

// ErrNoSample is returned by a Source when no new sample is available.
var ErrNoSample = errors.New("no new sample")

// Source delivers raw samples. Implementations must not block for long.
type Source interface {
	Read() (Sample, error)
}

// LatestSource holds the most recent sample pushed by a transport callback.
// Each sample is handed out at most once.
type LatestSource struct {
	mu     sync.Mutex
	sample Sample
	at     time.Time
	fresh  bool
}

// NewLatestSource creates an empty LatestSource.
func NewLatestSource() *LatestSource {
	return &LatestSource{}
}

// Push stores s as the latest sample.
func (l *LatestSource) Push(s Sample, at time.Time) {
	l.mu.Lock()
	l.sample = s
	l.at = at
	l.fresh = true
	l.mu.Unlock()
}

// Read returns the latest sample once, then ErrNoSample until the next Push.
func (l *LatestSource) Read() (Sample, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.fresh {
		return Sample{}, ErrNoSample
	}
	l.fresh = false
	return l.sample, nil
}

// LastAt returns the time of the last pushed sample.
func (l *LatestSource) LastAt() time.Time {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.at
}
