// Package alert turns an alert level into a repeating buzzer waveform played
// by a single background task.
package alert

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sweeney/env-controller/internal/logger"
	"github.com/sweeney/env-controller/internal/logic"
)

// DefaultSlice bounds how long the task sleeps before re-checking the target level.
const DefaultSlice = 100 * time.Millisecond

// ErrClosed is returned by the spawn path once the scheduler has been closed.
var ErrClosed = errors.New("alert scheduler closed")

// Buzzer is the output the scheduler drives.
type Buzzer interface {
	SetBuzzer(on bool) error
}

// SpawnFunc starts fn asynchronously. It returns an error if no task could be started.
type SpawnFunc func(fn func()) error

func goSpawn(fn func()) error {
	go fn()
	return nil
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithSlice sets the preemption granularity.
func WithSlice(d time.Duration) Option {
	return func(s *Scheduler) {
		if d > 0 {
			s.slice = d
		}
	}
}

// WithPatterns replaces the waveforms. Levels missing from patterns keep the default.
func WithPatterns(patterns map[logic.AlertLevel]Pattern) Option {
	return func(s *Scheduler) {
		for level, p := range patterns {
			s.patterns[level] = p
		}
	}
}

// WithSpawn replaces the goroutine launcher.
func WithSpawn(fn SpawnFunc) Option {
	return func(s *Scheduler) {
		s.spawn = fn
	}
}

// Scheduler plays the waveform for the current target level. At most one
// task is alive at a time; level changes are picked up by the running task
// at its next sub-slice boundary.
type Scheduler struct {
	buzzer   Buzzer
	log      *logger.Logger
	slice    time.Duration
	patterns map[logic.AlertLevel]Pattern
	spawn    SpawnFunc

	// target packs an epoch above the level byte. The epoch advances on
	// every Off so an Off followed by the same level restarts the waveform.
	target  atomic.Uint64
	playing atomic.Uint32
	wake    chan struct{}

	// mu guards running, closed and every buzzer write.
	mu      sync.Mutex
	running bool
	closed  bool
	wg      sync.WaitGroup

	alive    atomic.Int32
	maxAlive atomic.Int32
	spawned  atomic.Uint64
	failed   atomic.Uint64
}

// NewScheduler creates an idle scheduler with the buzzer off.
func NewScheduler(buzzer Buzzer, log *logger.Logger, opts ...Option) *Scheduler {
	s := &Scheduler{
		buzzer:   buzzer,
		log:      log,
		slice:    DefaultSlice,
		patterns: DefaultPatterns(),
		spawn:    goSpawn,
		wake:     make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SetLevel changes the target level. It never waits for the waveform.
func (s *Scheduler) SetLevel(level logic.AlertLevel) {
	if level > logic.MaxAlertLevel {
		level = logic.MaxAlertLevel
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.storeLocked(level)

	if level == logic.AlertOff {
		s.setBuzzerLocked(false)
		s.kick()
		return
	}
	if s.running {
		s.kick()
		return
	}

	var err error
	if s.closed {
		err = ErrClosed
	} else {
		s.running = true
		s.wg.Add(1)
		err = s.spawn(s.run)
	}
	if err != nil {
		if s.running {
			s.running = false
			s.wg.Done()
		}
		s.failed.Add(1)
		s.storeLocked(logic.AlertOff)
		s.setBuzzerLocked(false)
		s.log.Errorw("buzzer task not started, staying silent", "level", level.String(), "err", err)
		return
	}
	s.spawned.Add(1)
	s.log.Debugw("buzzer task started", "level", level.String())
}

func (s *Scheduler) storeLocked(level logic.AlertLevel) {
	epoch := s.target.Load() >> 8
	if level == logic.AlertOff {
		epoch++
	}
	s.target.Store(epoch<<8 | uint64(level))
}

func levelOf(word uint64) logic.AlertLevel {
	return logic.AlertLevel(word & 0xff)
}

// Level returns the current target level.
func (s *Scheduler) Level() logic.AlertLevel {
	return levelOf(s.target.Load())
}

// Playing returns the level whose waveform the task is currently producing.
func (s *Scheduler) Playing() logic.AlertLevel {
	return logic.AlertLevel(s.playing.Load())
}

// Alive returns the number of live tasks (0 or 1).
func (s *Scheduler) Alive() int {
	return int(s.alive.Load())
}

// MaxAlive returns the highest number of tasks ever alive at once.
func (s *Scheduler) MaxAlive() int {
	return int(s.maxAlive.Load())
}

// Spawned returns how many tasks have been started.
func (s *Scheduler) Spawned() uint64 {
	return s.spawned.Load()
}

// SpawnFailures returns how many times a task could not be started.
func (s *Scheduler) SpawnFailures() uint64 {
	return s.failed.Load()
}

// Close silences the buzzer, stops the task and waits for it to exit.
func (s *Scheduler) Close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()

	s.SetLevel(logic.AlertOff)
	s.wg.Wait()
}

func (s *Scheduler) kick() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *Scheduler) setBuzzerLocked(on bool) {
	if err := s.buzzer.SetBuzzer(on); err != nil {
		s.log.Warnw("buzzer write failed", "on", on, "err", err)
	}
}

func (s *Scheduler) run() {
	defer s.wg.Done()

	n := s.alive.Add(1)
	for {
		m := s.maxAlive.Load()
		if n <= m || s.maxAlive.CompareAndSwap(m, n) {
			break
		}
	}

	for {
		word := s.target.Load()
		if levelOf(word) == logic.AlertOff {
			if s.tryExit() {
				return
			}
			continue
		}
		s.play(word)
	}
}

// tryExit ends the task if the target is still Off. A level set between the
// load and the lock is picked up by looping again instead.
func (s *Scheduler) tryExit() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Level() != logic.AlertOff {
		return false
	}
	s.setBuzzerLocked(false)
	s.playing.Store(uint32(logic.AlertOff))
	s.alive.Add(-1)
	s.running = false
	s.log.Debugw("buzzer task exited")
	return true
}

// play loops the waveform for the level in word until the target changes.
func (s *Scheduler) play(word uint64) {
	level := levelOf(word)
	p := s.patterns[level]
	if p.Period() <= 0 {
		p = Pattern{{On: true, Duration: s.slice}}
	}
	s.playing.Store(uint32(level))

	for {
		for _, step := range p {
			if !s.output(word, step.On) {
				return
			}
			if !s.wait(word, step.Duration) {
				return
			}
		}
	}
}

// output drives the buzzer only if word is still the target.
func (s *Scheduler) output(word uint64, on bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.target.Load() != word {
		return false
	}
	s.setBuzzerLocked(on)
	return true
}

// wait sleeps for d in slices, returning false as soon as word is no longer the target.
func (s *Scheduler) wait(word uint64, d time.Duration) bool {
	deadline := time.Now().Add(d)
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return s.target.Load() == word
		}
		if remaining > s.slice {
			remaining = s.slice
		}
		timer := time.NewTimer(remaining)
		select {
		case <-timer.C:
		case <-s.wake:
			timer.Stop()
		}
		if s.target.Load() != word {
			return false
		}
	}
}
