package daemon

import (
	"context"
	"log"
	"sync"
	"time"
)

// Scheduler drives the processor on a power-aware timer. The interval
// stretches as the device goes quiet and the timer stops entirely in
// deep sleep; Notify restarts it on the next recorded activity.
type Scheduler struct {
	processor *Processor
	signal    PowerSignal
	cfg       PowerConfig

	// OnSleep, when set, fires once on each transition into sleep or
	// deeper. Used to trigger a backup while the machine is quiet.
	OnSleep func()

	now func() time.Time

	mu           sync.Mutex
	timer        *time.Timer
	started      bool
	stopped      bool
	state        PowerState
	cycleRunning bool
	ctx          context.Context
	cancel       context.CancelFunc
}

// NewScheduler wires a scheduler over a processor and activity signal.
func NewScheduler(processor *Processor, signal PowerSignal, cfg PowerConfig) *Scheduler {
	return &Scheduler{
		processor: processor,
		signal:    signal,
		cfg:       cfg,
		now:       time.Now,
		state:     PowerActive,
	}
}

// Start arms the timer. Calling Start twice is a no-op.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return
	}
	s.started = true
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.armLocked(s.cfg.ActiveInterval)
	log.Printf("daemon: scheduler started (active interval %s)", s.cfg.ActiveInterval)
}

// Stop halts the timer and waits out nothing: an in-flight cycle keeps
// its context until Stop's cancel reaches it.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.started || s.stopped {
		return
	}
	s.stopped = true
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.cancel()
}

// State reports the classification applied on the most recent tick.
func (s *Scheduler) State() PowerState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Notify tells the scheduler activity just happened. If deep sleep had
// stopped the timer, it restarts at the active interval.
func (s *Scheduler) Notify() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.started || s.stopped {
		return
	}
	if s.timer == nil {
		s.state = PowerActive
		s.armLocked(s.cfg.ActiveInterval)
		log.Printf("daemon: scheduler woke from deep sleep")
	}
}

// armLocked schedules the next tick. Caller holds s.mu.
func (s *Scheduler) armLocked(d time.Duration) {
	if s.timer != nil {
		s.timer.Stop()
	}
	s.timer = time.AfterFunc(d, s.tick)
}

// Tick classifies power state, runs one cycle unless one is already
// running, and rearms the timer for the interval the state dictates.
// Exported through tick only; tests drive it via TickNow.
func (s *Scheduler) tick() {
	s.mu.Lock()
	if !s.started || s.stopped {
		s.mu.Unlock()
		return
	}

	prev := s.state
	state := StateFor(s.now().Sub(s.signal.LastActivity()), s.cfg)
	s.state = state

	fireSleep := s.OnSleep != nil &&
		(state == PowerSleep || state == PowerDeepSleep) &&
		prev != PowerSleep && prev != PowerDeepSleep

	interval, ok := s.cfg.Interval(state)
	if !ok {
		// Deep sleep: stop outright, Notify rearms.
		s.timer = nil
		s.mu.Unlock()
		if fireSleep {
			s.OnSleep()
		}
		log.Printf("daemon: entering deep sleep, timer stopped")
		return
	}
	s.armLocked(interval)

	run := !s.cycleRunning
	if run {
		s.cycleRunning = true
	}
	ctx := s.ctx
	s.mu.Unlock()

	if fireSleep {
		s.OnSleep()
	}
	if !run {
		return
	}
	defer func() {
		s.mu.Lock()
		s.cycleRunning = false
		s.mu.Unlock()
	}()
	s.processor.RunCycle(ctx)
}

// TickNow runs one tick synchronously. Intended for tests and the CLI's
// one-shot processing path.
func (s *Scheduler) TickNow() {
	s.tick()
}
