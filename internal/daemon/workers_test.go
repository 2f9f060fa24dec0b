package daemon_test

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/HendryAvila/recall/internal/daemon"
)

func TestPool_RunsSubmittedTasks(t *testing.T) {
	p := daemon.NewPool(context.Background(), 2, 4)
	defer p.Close()

	var ran atomic.Int32
	done := make(chan struct{})
	ok := p.Submit(func(ctx context.Context) {
		ran.Add(1)
		close(done)
	})
	if !ok {
		t.Fatal("submit should succeed on an empty queue")
	}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("task never ran")
	}
	if ran.Load() != 1 {
		t.Errorf("ran %d times, want 1", ran.Load())
	}
}

func TestPool_SubmitFailsWhenQueueFull(t *testing.T) {
	p := daemon.NewPool(context.Background(), 1, 1)
	defer p.Close()

	block := make(chan struct{})
	// Occupy the single worker, then fill the single queue slot.
	p.Submit(func(ctx context.Context) { <-block })
	for i := 0; i < 20; i++ {
		if !p.Submit(func(ctx context.Context) {}) {
			close(block)
			return
		}
	}
	close(block)
	t.Fatal("submit never reported a full queue")
}

func TestPool_RecoversFromPanic(t *testing.T) {
	p := daemon.NewPool(context.Background(), 1, 2)
	defer p.Close()

	p.Submit(func(ctx context.Context) { panic("summarizer blew up") })

	// The worker must survive and run the next task.
	done := make(chan struct{})
	p.Submit(func(ctx context.Context) { close(done) })
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not survive the panic")
	}
}

func TestPool_SubmitAfterClose(t *testing.T) {
	p := daemon.NewPool(context.Background(), 1, 1)
	p.Close()
	if p.Submit(func(ctx context.Context) {}) {
		t.Error("submit after close should fail")
	}
}

func TestPool_SubmitDuringCloseDoesNotPanic(t *testing.T) {
	p := daemon.NewPool(context.Background(), 1, 1)

	// Occupy the worker so Close blocks waiting for it, leaving the
	// window where the channel is closed but the pool is still draining.
	started := make(chan struct{})
	release := make(chan struct{})
	p.Submit(func(ctx context.Context) {
		close(started)
		<-release
	})
	<-started

	closeDone := make(chan struct{})
	go func() {
		p.Close()
		close(closeDone)
	}()

	// Give Close time to close the task channel before submitting.
	time.Sleep(50 * time.Millisecond)
	defer func() {
		if r := recover(); r != nil {
			t.Fatalf("Submit panicked during Close: %v", r)
		}
	}()
	if p.Submit(func(ctx context.Context) {}) {
		t.Error("submit during close should fail")
	}

	close(release)
	select {
	case <-closeDone:
	case <-time.After(2 * time.Second):
		t.Fatal("Close never finished")
	}
}

func TestPool_CloseWaitsForInflight(t *testing.T) {
	p := daemon.NewPool(context.Background(), 1, 1)

	var finished atomic.Bool
	p.Submit(func(ctx context.Context) {
		time.Sleep(50 * time.Millisecond)
		finished.Store(true)
	})
	p.Close()
	if !finished.Load() {
		t.Error("Close returned before the in-flight task finished")
	}
}
