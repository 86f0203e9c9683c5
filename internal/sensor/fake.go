package sensor

import (
	"errors"
	"sync"
)

// FakeSource is a test double that returns scripted samples.
type FakeSource struct {
	mu sync.Mutex

	// Samples contains scripted samples. Each Read consumes the next one;
	// once exhausted the last sample repeats.
	Samples []Sample

	index int

	// ReadError, if set, is returned by Read.
	ReadError error
}

// NewFakeSource creates a FakeSource with the given samples.
func NewFakeSource(samples ...Sample) *FakeSource {
	return &FakeSource{Samples: samples}
}

// Read returns the next scripted sample.
func (f *FakeSource) Read() (Sample, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.ReadError != nil {
		return Sample{}, f.ReadError
	}
	if len(f.Samples) == 0 {
		return Sample{}, errors.New("no samples configured")
	}

	s := f.Samples[f.index]
	if f.index < len(f.Samples)-1 {
		f.index++
	}
	return s, nil
}

// SetError sets or clears the scripted read error.
func (f *FakeSource) SetError(err error) {
	f.mu.Lock()
	f.ReadError = err
	f.mu.Unlock()
}
