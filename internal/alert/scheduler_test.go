package alert

import (
	"errors"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/sweeney/env-controller/internal/actuator"
	"github.com/sweeney/env-controller/internal/logger"
	"github.com/sweeney/env-controller/internal/logic"
)

// waitFor polls cond until it holds or the timeout elapses.
func waitFor(t *testing.T, timeout time.Duration, cond func() bool) bool {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(2 * time.Millisecond)
	}
	return cond()
}

func TestDefaultPatterns(t *testing.T) {
	p := DefaultPatterns()

	tests := []struct {
		level  logic.AlertLevel
		steps  int
		period time.Duration
	}{
		{logic.AlertWarn, 2, 7000 * time.Millisecond},
		{logic.AlertAlert, 11, 5*2500*time.Millisecond + 2000*time.Millisecond},
		{logic.AlertCritical, 21, 10*1300*time.Millisecond + 1000*time.Millisecond},
	}
	for _, tt := range tests {
		got := p[tt.level]
		if len(got) != tt.steps {
			t.Errorf("%s: got %d steps, want %d", tt.level, len(got), tt.steps)
		}
		if got.Period() != tt.period {
			t.Errorf("%s: got period %v, want %v", tt.level, got.Period(), tt.period)
		}
		if !got[0].On {
			t.Errorf("%s: waveform should start with the buzzer on", tt.level)
		}
	}
	if _, ok := p[logic.AlertOff]; ok {
		t.Error("Off must have no waveform")
	}
}

func TestScale(t *testing.T) {
	p := Scale(DefaultPatterns(), 100)
	if p[logic.AlertWarn][0].Duration != 50*time.Millisecond {
		t.Errorf("got %v, want 50ms", p[logic.AlertWarn][0].Duration)
	}
}

func TestSetLevelStartsWaveform(t *testing.T) {
	buz := actuator.NewFake()
	s := NewScheduler(buz, logger.Nop(), WithSlice(5*time.Millisecond))
	defer s.Close()

	s.SetLevel(logic.AlertWarn)
	if !waitFor(t, time.Second, buz.BuzzerOn) {
		t.Fatal("expected buzzer on after SetLevel(Warn)")
	}
	if s.Alive() != 1 {
		t.Errorf("alive: got %d, want 1", s.Alive())
	}
	if s.Level() != logic.AlertWarn {
		t.Errorf("level: got %v, want Warn", s.Level())
	}
}

func TestOffSilencesImmediately(t *testing.T) {
	buz := actuator.NewFake()
	s := NewScheduler(buz, logger.Nop())
	defer s.Close()

	s.SetLevel(logic.AlertCritical)
	if !waitFor(t, time.Second, buz.BuzzerOn) {
		t.Fatal("expected buzzer on")
	}

	s.SetLevel(logic.AlertOff)
	if buz.BuzzerOn() {
		t.Error("buzzer must be off as soon as SetLevel(Off) returns")
	}
	if !waitFor(t, time.Second, func() bool { return s.Alive() == 0 }) {
		t.Fatal("task did not exit after Off")
	}
	if buz.BuzzerOn() {
		t.Error("buzzer turned back on after Off")
	}
}

func TestPreemptionWithinOneSlice(t *testing.T) {
	buz := actuator.NewFake()
	// Real waveforms: Warn holds the buzzer on for five seconds.
	s := NewScheduler(buz, logger.Nop(), WithSlice(DefaultSlice))
	defer s.Close()

	s.SetLevel(logic.AlertWarn)
	if !waitFor(t, time.Second, func() bool { return s.Playing() == logic.AlertWarn }) {
		t.Fatal("Warn never started")
	}

	start := time.Now()
	s.SetLevel(logic.AlertCritical)
	if !waitFor(t, 2*DefaultSlice, func() bool { return s.Playing() == logic.AlertCritical }) {
		t.Fatalf("Critical not playing %v after switch", time.Since(start))
	}
	if s.Spawned() != 1 {
		t.Errorf("switch must reuse the running task, spawned=%d", s.Spawned())
	}
}

func TestSameLevelIsIdempotent(t *testing.T) {
	buz := actuator.NewFake()
	s := NewScheduler(buz, logger.Nop())
	defer s.Close()

	s.SetLevel(logic.AlertAlert)
	s.SetLevel(logic.AlertAlert)
	s.SetLevel(logic.AlertAlert)
	if !waitFor(t, time.Second, buz.BuzzerOn) {
		t.Fatal("expected buzzer on")
	}
	// Still inside the first 2s "on" step: no restart toggles.
	if buz.Toggles() != 1 {
		t.Errorf("toggles: got %d, want 1", buz.Toggles())
	}
	if s.Spawned() != 1 {
		t.Errorf("spawned: got %d, want 1", s.Spawned())
	}
}

func TestWaveformLoops(t *testing.T) {
	buz := actuator.NewFake()
	s := NewScheduler(buz, logger.Nop(),
		WithSlice(time.Millisecond),
		WithPatterns(Scale(DefaultPatterns(), 1000)))
	defer s.Close()

	// Scaled Warn: on 5ms, off 2ms.
	s.SetLevel(logic.AlertWarn)
	if !waitFor(t, 2*time.Second, func() bool { return buz.Toggles() >= 6 }) {
		t.Errorf("expected the waveform to loop, toggles=%d", buz.Toggles())
	}
}

func TestSingleTaskUnderChurn(t *testing.T) {
	buz := actuator.NewFake()
	s := NewScheduler(buz, logger.Nop(),
		WithSlice(time.Millisecond),
		WithPatterns(Scale(DefaultPatterns(), 1000)))

	levels := []logic.AlertLevel{logic.AlertOff, logic.AlertWarn, logic.AlertAlert, logic.AlertCritical}
	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(seed int64) {
			defer wg.Done()
			r := rand.New(rand.NewSource(seed))
			for i := 0; i < 500; i++ {
				s.SetLevel(levels[r.Intn(len(levels))])
				if r.Intn(10) == 0 {
					time.Sleep(time.Duration(r.Intn(300)) * time.Microsecond)
				}
				if n := s.Alive(); n > 1 {
					t.Errorf("alive tasks: got %d, want <= 1", n)
					return
				}
			}
		}(int64(g))
	}
	wg.Wait()

	if s.MaxAlive() > 1 {
		t.Errorf("max alive: got %d, want <= 1", s.MaxAlive())
	}

	s.SetLevel(logic.AlertOff)
	if buz.BuzzerOn() {
		t.Error("buzzer on after final Off")
	}
	if !waitFor(t, time.Second, func() bool { return s.Alive() == 0 }) {
		t.Error("task still alive after final Off")
	}
	s.Close()
	if buz.BuzzerOn() {
		t.Error("buzzer on after Close")
	}
}

func TestOffThenSameLevelRestarts(t *testing.T) {
	buz := actuator.NewFake()
	s := NewScheduler(buz, logger.Nop())
	defer s.Close()

	s.SetLevel(logic.AlertWarn)
	if !waitFor(t, time.Second, buz.BuzzerOn) {
		t.Fatal("expected buzzer on")
	}
	s.SetLevel(logic.AlertOff)
	s.SetLevel(logic.AlertWarn)
	if !waitFor(t, time.Second, buz.BuzzerOn) {
		t.Error("Warn after Off should restart the waveform with the buzzer on")
	}
}

func TestSpawnFailureFallsBackToSilent(t *testing.T) {
	buz := actuator.NewFake()
	s := NewScheduler(buz, logger.Nop(), WithSpawn(func(func()) error {
		return errors.New("out of memory")
	}))

	s.SetLevel(logic.AlertCritical)

	if s.Level() != logic.AlertOff {
		t.Errorf("level: got %v, want Off", s.Level())
	}
	if buz.BuzzerOn() {
		t.Error("buzzer must stay off")
	}
	if s.SpawnFailures() != 1 {
		t.Errorf("spawn failures: got %d, want 1", s.SpawnFailures())
	}
	if s.Alive() != 0 {
		t.Errorf("alive: got %d, want 0", s.Alive())
	}
	s.Close()
}

func TestSetLevelDoesNotBlock(t *testing.T) {
	buz := actuator.NewFake()
	s := NewScheduler(buz, logger.Nop())
	defer s.Close()

	done := make(chan struct{})
	go func() {
		for _, l := range []logic.AlertLevel{logic.AlertCritical, logic.AlertWarn, logic.AlertAlert, logic.AlertOff} {
			s.SetLevel(l)
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(500 * time.Millisecond):
		t.Fatal("SetLevel blocked")
	}
}

func TestLevelClamped(t *testing.T) {
	buz := actuator.NewFake()
	s := NewScheduler(buz, logger.Nop())
	defer s.Close()

	s.SetLevel(logic.AlertLevel(9))
	if s.Level() != logic.AlertCritical {
		t.Errorf("got %v, want Critical", s.Level())
	}
}

func TestCloseRejectsNewTasks(t *testing.T) {
	buz := actuator.NewFake()
	s := NewScheduler(buz, logger.Nop())
	s.Close()

	s.SetLevel(logic.AlertWarn)
	if s.Alive() != 0 || s.Spawned() != 0 {
		t.Error("no task may start after Close")
	}
	if buz.BuzzerOn() {
		t.Error("buzzer must stay off after Close")
	}
}
