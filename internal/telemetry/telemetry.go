// Package telemetry ships stable readings and applied outputs to a time-series store.
package telemetry

import (
	"context"
	"sync"
	"time"

	"github.com/sweeney/env-controller/internal/logic"
	"github.com/sweeney/env-controller/internal/status"
)

// Point is one telemetry sample.
type Point struct {
	Time    time.Time
	Room    string
	Mode    string
	Reading logic.StableReading
	Outputs status.Outputs
}

// Sink accepts telemetry points. Write failures are reported but never fatal.
type Sink interface {
	Write(ctx context.Context, p Point) error
	Close()
}

// Nop discards every point. Used when no store is configured.
type Nop struct{}

func (Nop) Write(context.Context, Point) error { return nil }
func (Nop) Close()                             {}

// Fake records points for test assertions. Safe for concurrent use.
type Fake struct {
	mu     sync.Mutex
	points []Point
	closed bool

	// WriteError, if set, is returned by Write.
	WriteError error
}

// NewFake creates an empty Fake.
func NewFake() *Fake {
	return &Fake{}
}

// Write records p.
func (f *Fake) Write(_ context.Context, p Point) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.WriteError != nil {
		return f.WriteError
	}
	f.points = append(f.points, p)
	return nil
}

// Close marks the sink closed.
func (f *Fake) Close() {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
}

// Points returns a copy of the recorded points.
func (f *Fake) Points() []Point {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Point(nil), f.points...)
}
