package worker

import (
	"errors"
	"log/slog"
	"sync"

	"github.com/dispatchly/backend/internal/metrics"
)

// ErrStopped is returned by Submit after Stop.
var ErrStopped = errors.New("worker pool stopped")

// ErrQueueFull is returned by TrySubmit when no queue slot is free.
var ErrQueueFull = errors.New("worker queue full")

const queueSize = 1024

type task func()

// Pool runs fire-and-forget jobs on a fixed number of goroutines.
type Pool struct {
	wg   sync.WaitGroup
	mu   sync.RWMutex
	done bool
	jobs chan task
	log  *slog.Logger
}

func NewPool(n int, log *slog.Logger) *Pool {
	if n <= 0 {
		n = 1
	}
	if log == nil {
		log = slog.Default()
	}
	p := &Pool{jobs: make(chan task, queueSize), log: log}
	for i := 0; i < n; i++ {
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			for job := range p.jobs {
				metrics.WorkerQueueDepth.Dec()
				p.run(job)
			}
		}()
	}
	return p
}

func (p *Pool) run(job task) {
	defer func() {
		if r := recover(); r != nil {
			p.log.Error("worker job panicked", "panic", r)
		}
	}()
	job()
}

// Submit queues f. It blocks while the queue is full.
func (p *Pool) Submit(f func()) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.done {
		return ErrStopped
	}
	metrics.WorkerQueueDepth.Inc()
	p.jobs <- f
	return nil
}

// TrySubmit queues f without waiting. It returns ErrQueueFull when the
// queue has no free slot.
func (p *Pool) TrySubmit(f func()) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.done {
		return ErrStopped
	}
	metrics.WorkerQueueDepth.Inc()
	select {
	case p.jobs <- f:
		return nil
	default:
		metrics.WorkerQueueDepth.Dec()
		metrics.WorkerJobsDropped.Inc()
		return ErrQueueFull
	}
}

// Stop rejects new jobs, drains the queue and waits for running jobs.
func (p *Pool) Stop() {
	p.mu.Lock()
	if p.done {
		p.mu.Unlock()
		return
	}
	p.done = true
	close(p.jobs)
	p.mu.Unlock()
	p.wg.Wait()
}
