package daemon_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/HendryAvila/recall/internal/daemon"
	"github.com/HendryAvila/recall/internal/memory"
)

// stubSignal reports a fixed last-activity time, letting tests place the
// scheduler in any power state without waiting.
type stubSignal struct {
	mu   sync.Mutex
	last time.Time
}

func (f *stubSignal) LastActivity() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.last
}

func (f *stubSignal) set(t time.Time) {
	f.mu.Lock()
	f.last = t
	f.mu.Unlock()
}

func newScheduler(t *testing.T, s *memory.Store, signal daemon.PowerSignal) *daemon.Scheduler {
	t.Helper()
	p := newProcessor(t, s, nil)
	sched := daemon.NewScheduler(p, signal, daemon.DefaultPowerConfig())
	t.Cleanup(sched.Stop)
	return sched
}

func TestScheduler_ClassifiesOnTick(t *testing.T) {
	s := newStore(t, memory.Config{})
	signal := &stubSignal{last: time.Now()}
	sched := newScheduler(t, s, signal)
	sched.Start(context.Background())

	sched.TickNow()
	if got := sched.State(); got != daemon.PowerActive {
		t.Errorf("state = %s, want active", got)
	}

	signal.set(time.Now().Add(-10 * time.Minute))
	sched.TickNow()
	if got := sched.State(); got != daemon.PowerIdle {
		t.Errorf("state = %s, want idle", got)
	}
}

func TestScheduler_OnSleepFiresOncePerTransition(t *testing.T) {
	s := newStore(t, memory.Config{})
	signal := &stubSignal{last: time.Now().Add(-time.Hour)}
	sched := newScheduler(t, s, signal)

	var calls int
	sched.OnSleep = func() { calls++ }
	sched.Start(context.Background())

	sched.TickNow()
	sched.TickNow()
	if calls != 1 {
		t.Errorf("OnSleep fired %d times across two sleeping ticks, want 1", calls)
	}

	// Waking and sleeping again produces a second firing.
	signal.set(time.Now())
	sched.TickNow()
	signal.set(time.Now().Add(-time.Hour))
	sched.TickNow()
	if calls != 2 {
		t.Errorf("OnSleep fired %d times after a second transition, want 2", calls)
	}
}

func TestScheduler_DeepSleepStopsUntilNotify(t *testing.T) {
	s := newStore(t, memory.Config{})
	signal := &stubSignal{last: time.Now().Add(-3 * time.Hour)}
	sched := newScheduler(t, s, signal)
	sched.Start(context.Background())

	sched.TickNow()
	if got := sched.State(); got != daemon.PowerDeepSleep {
		t.Fatalf("state = %s, want deep_sleep", got)
	}

	// Activity restarts the timer at the active cadence.
	signal.set(time.Now())
	sched.Notify()
	if got := sched.State(); got != daemon.PowerActive {
		t.Errorf("state after Notify = %s, want active", got)
	}
}

func TestScheduler_TickBeforeStartIsNoOp(t *testing.T) {
	s := newStore(t, memory.Config{})
	sched := newScheduler(t, s, &stubSignal{last: time.Now()})

	sched.TickNow() // must not panic or run a cycle
	if got := sched.State(); got != daemon.PowerActive {
		t.Errorf("state = %s, want the initial active", got)
	}
}

func TestScheduler_StopPreventsFurtherTicks(t *testing.T) {
	s := newStore(t, memory.Config{})
	signal := &stubSignal{last: time.Now()}
	sched := newScheduler(t, s, signal)
	sched.Start(context.Background())
	sched.Stop()

	signal.set(time.Now().Add(-time.Hour))
	sched.TickNow()
	if got := sched.State(); got != daemon.PowerActive {
		t.Errorf("state changed after Stop: %s", got)
	}
	sched.Notify() // no-op after Stop, must not panic
}

func TestScheduler_TickDrivesProcessor(t *testing.T) {
	// A stuck batch recovered by the cycle proves the tick reached the
	// processor.
	s := newStore(t, memory.Config{StuckBatchAge: -time.Hour, StaleSessionAge: 12 * time.Hour})
	if _, err := s.CreateSession(memory.CreateSessionParams{
		ID: "sess-1", Agent: "claude-code", ProjectRoot: "/tmp/app",
	}); err != nil {
		t.Fatal(err)
	}
	batch, err := s.CreatePromptBatch("sess-1")
	if err != nil {
		t.Fatal(err)
	}

	sched := newScheduler(t, s, &stubSignal{last: time.Now()})
	sched.Start(context.Background())
	sched.TickNow()

	got, err := s.GetPromptBatch(batch)
	if err != nil {
		t.Fatal(err)
	}
	if got.EndedAtEpoch == nil {
		t.Error("tick should have recovered the stuck batch")
	}
}
