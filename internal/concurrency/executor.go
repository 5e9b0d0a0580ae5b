// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Control-plane task executor: a small worker pool backed by
// github.com/eapache/queue, used for work that must never touch the packet
// hot path — in this module, runtime.Runtime's FLOW_REMOVED notification
// delivery. The hot path (RX/TX poll loops) never submits here.

package concurrency

import (
	"errors"
	"sync"

	"github.com/eapache/queue"
	"github.com/momentics/xdpcore/api"
)

// ErrExecutorClosed is returned by Submit after Close.
var ErrExecutorClosed = errors.New("executor: closed")

// TaskFunc is a unit of control-plane work, aliased to func() so Executor
// satisfies api.Executor directly.
type TaskFunc = func()

// Executor runs submitted tasks FIFO across a fixed pool of goroutines,
// each pinned (best-effort) to the requested NUMA node.
type Executor struct {
	mu      sync.Mutex
	cond    *sync.Cond
	q       *queue.Queue
	closed  bool
	workers int
	stop    chan struct{}
	wg      sync.WaitGroup
}

// NewExecutor starts numWorkers goroutines pinned toward numaNode.
func NewExecutor(numWorkers, numaNode int) *Executor {
	if numWorkers < 1 {
		numWorkers = 1
	}
	e := &Executor{
		q:       queue.New(),
		workers: numWorkers,
		stop:    make(chan struct{}),
	}
	e.cond = sync.NewCond(&e.mu)
	for i := 0; i < numWorkers; i++ {
		e.wg.Add(1)
		go e.run(numaNode)
	}
	return e
}

// stopSignal is pushed onto the queue by Resize to retire one worker
// goroutine without tearing down the whole pool.
type stopSignal struct{}

// NumWorkers reports the current worker count.
func (e *Executor) NumWorkers() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.workers
}

// Resize grows or shrinks the pool to newCount workers (minimum 1),
// satisfying api.Executor's runtime concurrency knob. Growing starts
// fresh unpinned goroutines immediately; shrinking retires the requested
// number of workers as they next go idle.
func (e *Executor) Resize(newCount int) {
	if newCount < 1 {
		newCount = 1
	}
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	delta := newCount - e.workers
	e.workers = newCount
	e.mu.Unlock()

	if delta > 0 {
		for i := 0; i < delta; i++ {
			e.wg.Add(1)
			go e.run(-1)
		}
		return
	}
	for i := 0; i < -delta; i++ {
		e.mu.Lock()
		e.q.Add(stopSignal{})
		e.mu.Unlock()
		e.cond.Signal()
	}
}

// Submit enqueues a task for asynchronous execution. Returns
// ErrExecutorClosed once Close has been called.
func (e *Executor) Submit(task TaskFunc) error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return ErrExecutorClosed
	}
	e.q.Add(task)
	e.mu.Unlock()
	e.cond.Signal()
	return nil
}

// Close stops accepting work and waits for in-flight tasks to drain.
func (e *Executor) Close() {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.closed = true
	e.mu.Unlock()
	close(e.stop)
	e.cond.Broadcast()
	e.wg.Wait()
}

func (e *Executor) run(numaNode int) {
	defer e.wg.Done()
	if numaNode >= 0 {
		_ = PinCurrentThread(numaNode, -1)
		defer UnpinCurrentThread()
	}

	for {
		e.mu.Lock()
		for e.q.Length() == 0 && !e.closed {
			e.cond.Wait()
		}
		if e.q.Length() == 0 && e.closed {
			e.mu.Unlock()
			return
		}
		item := e.q.Peek()
		e.q.Remove()
		e.mu.Unlock()

		if _, ok := item.(stopSignal); ok {
			return
		}
		if task, ok := item.(TaskFunc); ok {
			task()
		}
	}
}

var _ api.Executor = (*Executor)(nil)
