// Package workerpool implements a bounded FIFO job queue serviced by a fixed
// set of worker goroutines, with cooperative shutdown and an explicit
// wait-for-drain primitive. The shape is grounded on the pre-warmed
// acquire/release pool lifecycle used elsewhere in this codebase's history,
// adapted here from a resource pool to a plain job queue.
package workerpool

import (
	"fmt"
	"runtime"
	"sync"
)

// Job is a short-lived unit of work: a trajectory to run starting at a given
// cell. The pool's Runner is invoked on a worker goroutine with the job by
// value.
type Job struct {
	CellIndex int
	StartX    int
	StartY    int
}

// Runner executes one job. Implementations must be safe to call concurrently
// from multiple worker goroutines (each call gets its own Job by value).
type Runner func(job Job)

// Pool is a bounded FIFO of jobs drained by N worker goroutines.
type Pool struct {
	mu       sync.Mutex
	nonEmpty *sync.Cond
	drained  *sync.Cond

	queue    []Job
	capacity int
	inFlight int
	stopped  bool

	run Runner
	wg  sync.WaitGroup
}

// New starts a pool with the given worker count and queue capacity, each
// worker invoking run for every popped job. workers and capacity must both be
// at least 1.
func New(workers, capacity int, run Runner) (*Pool, error) {
	if workers < 1 {
		return nil, fmt.Errorf("workerpool: workers must be >= 1, got %d", workers)
	}
	if capacity < 1 {
		return nil, fmt.Errorf("workerpool: capacity must be >= 1, got %d", capacity)
	}
	p := &Pool{
		queue:    make([]Job, 0, capacity),
		capacity: capacity,
		run:      run,
	}
	p.nonEmpty = sync.NewCond(&p.mu)
	p.drained = sync.NewCond(&p.mu)

	p.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go p.workerLoop()
	}
	return p, nil
}

// Submit enqueues a job, blocking (cooperative spin-yield, with the lock
// released while yielding) while the queue is full, until it either succeeds or the pool has been
// stopped. The simulation manager is the only submitter and is allowed to
// block here.
func (p *Pool) Submit(job Job) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	for {
		if p.stopped {
			return fmt.Errorf("workerpool: submit after stop")
		}
		if len(p.queue) < p.capacity {
			p.queue = append(p.queue, job)
			p.inFlight++
			p.nonEmpty.Signal()
			return nil
		}
		// Queue full: release the lock momentarily so a worker can drain it,
		// then retry.
		p.mu.Unlock()
		runtime.Gosched()
		p.mu.Lock()
	}
}

func (p *Pool) workerLoop() {
	defer p.wg.Done()
	for {
		p.mu.Lock()
		for !p.stopped && len(p.queue) == 0 {
			p.nonEmpty.Wait()
		}
		if p.stopped && len(p.queue) == 0 {
			p.mu.Unlock()
			return
		}
		job := p.queue[0]
		p.queue = p.queue[1:]
		p.mu.Unlock()

		p.run(job)

		p.mu.Lock()
		p.inFlight--
		if p.inFlight == 0 {
			p.drained.Broadcast()
		}
		p.mu.Unlock()
	}
}

// WaitAll blocks until every submitted job has completed (in-flight reaches
// zero).
func (p *Pool) WaitAll() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for p.inFlight != 0 {
		p.drained.Wait()
	}
}

// Stop requests cooperative shutdown: workers exit once the queue drains, no
// new jobs are accepted after this call.
func (p *Pool) Stop() {
	p.mu.Lock()
	p.stopped = true
	p.mu.Unlock()
	p.nonEmpty.Broadcast()
}

// Destroy stops the pool and joins every worker goroutine.
func (p *Pool) Destroy() {
	p.Stop()
	p.wg.Wait()
}
