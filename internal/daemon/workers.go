package daemon

import (
	"context"
	"log"
	"sync"
)

// Pool is a bounded worker pool for summarization dispatch. A slow
// network call runs on a pool worker, never on the scheduler tick.
type Pool struct {
	tasks  chan func(ctx context.Context)
	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc

	// mu guards closed, which must flip before the channel closes so a
	// racing Submit returns false instead of sending on a closed channel.
	mu     sync.Mutex
	closed bool
}

// NewPool starts workers goroutines consuming a queue of queueSize.
func NewPool(ctx context.Context, workers, queueSize int) *Pool {
	if workers < 1 {
		workers = 1
	}
	if queueSize < 1 {
		queueSize = workers
	}
	ctx, cancel := context.WithCancel(ctx)
	p := &Pool{
		tasks:  make(chan func(ctx context.Context), queueSize),
		ctx:    ctx,
		cancel: cancel,
	}
	for i := 0; i < workers; i++ {
		p.wg.Add(1)
		go p.run()
	}
	return p
}

func (p *Pool) run() {
	defer p.wg.Done()
	for task := range p.tasks {
		p.safeRun(task)
	}
}

func (p *Pool) safeRun(task func(ctx context.Context)) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("WARNING: daemon: worker task panicked: %v", r)
		}
	}()
	task(p.ctx)
}

// Submit enqueues a task without blocking. It returns false when the
// queue is full or the pool is shut down; the caller retries the work
// on a later cycle.
func (p *Pool) Submit(task func(ctx context.Context)) bool {
	select {
	case <-p.ctx.Done():
		return false
	default:
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return false
	}
	select {
	case p.tasks <- task:
		return true
	default:
		return false
	}
}

// Close stops accepting work and waits for in-flight tasks. Safe to
// call more than once and concurrently with Submit.
func (p *Pool) Close() {
	p.mu.Lock()
	if !p.closed {
		p.closed = true
		close(p.tasks)
	}
	p.mu.Unlock()
	p.wg.Wait()
	p.cancel()
}
