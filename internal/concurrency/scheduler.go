// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// High-precision timer scheduler implementing api.Scheduler. Backs the
// background timer that scans expiring flow entries and produces
// FLOW_REMOVED notifications (spec §5 "Cancellation / timeouts").

package concurrency

import (
	"container/heap"
	"sync"
	"time"

	"github.com/momentics/xdpcore/api"
)

type timerTask struct {
	deadline int64 // monotonic nanoseconds
	fn       func()
	index    int
	canceled bool
}

type taskHeap []*timerTask

func (h taskHeap) Len() int            { return len(h) }
func (h taskHeap) Less(i, j int) bool  { return h[i].deadline < h[j].deadline }
func (h taskHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index, h[j].index = i, j
}
func (h *taskHeap) Push(x any) {
	t := x.(*timerTask)
	t.index = len(*h)
	*h = append(*h, t)
}
func (h *taskHeap) Pop() any {
	old := *h
	n := len(old)
	t := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return t
}

// Scheduler is a mutex-protected timer heap. It is deliberately not on any
// packet hot path — callers are the background reconciliation/timeout
// goroutines only.
type Scheduler struct {
	mu      sync.Mutex
	timerQ  taskHeap
	notify  chan struct{}
	stop    chan struct{}
	start   time.Time
	wg      sync.WaitGroup
}

// NewScheduler builds and starts a Scheduler.
func NewScheduler() *Scheduler {
	s := &Scheduler{
		notify: make(chan struct{}, 1),
		stop:   make(chan struct{}),
		start:  time.Now(),
	}
	heap.Init(&s.timerQ)
	s.wg.Add(1)
	go s.run()
	return s
}

// Now returns monotonic nanoseconds since scheduler creation.
func (s *Scheduler) Now() int64 {
	return time.Since(s.start).Nanoseconds()
}

type cancelableTask struct {
	s    *Scheduler
	task *timerTask
	done chan struct{}
}

func (c *cancelableTask) Cancel() error {
	c.s.mu.Lock()
	if !c.task.canceled && c.task.index >= 0 && c.task.index < len(c.s.timerQ) && c.s.timerQ[c.task.index] == c.task {
		heap.Remove(&c.s.timerQ, c.task.index)
	}
	c.task.canceled = true
	c.s.mu.Unlock()
	select {
	case <-c.done:
	default:
		close(c.done)
	}
	return nil
}

func (c *cancelableTask) Done() <-chan struct{} { return c.done }
func (c *cancelableTask) Err() error             { return nil }

// Schedule runs fn after delayNanos, returning a Cancelable.
func (s *Scheduler) Schedule(delayNanos int64, fn func()) (api.Cancelable, error) {
	t := &timerTask{deadline: s.Now() + delayNanos}
	c := &cancelableTask{s: s, task: t, done: make(chan struct{})}
	t.fn = func() {
		defer close(c.done)
		fn()
	}

	s.mu.Lock()
	heap.Push(&s.timerQ, t)
	s.mu.Unlock()

	select {
	case s.notify <- struct{}{}:
	default:
	}
	return c, nil
}

// Cancel cancels a previously scheduled callback.
func (s *Scheduler) Cancel(c api.Cancelable) error {
	return c.Cancel()
}

// Close stops the scheduler's background goroutine.
func (s *Scheduler) Close() {
	close(s.stop)
	s.wg.Wait()
}

func (s *Scheduler) run() {
	defer s.wg.Done()
	timer := time.NewTimer(time.Hour)
	defer timer.Stop()

	for {
		s.mu.Lock()
		if s.timerQ.Len() == 0 {
			s.mu.Unlock()
			select {
			case <-s.notify:
				continue
			case <-s.stop:
				return
			}
		}

		next := s.timerQ[0]
		delay := time.Duration(next.deadline - s.Now())
		s.mu.Unlock()

		if delay <= 0 {
			s.fireDue()
			continue
		}

		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		timer.Reset(delay)

		select {
		case <-timer.C:
			s.fireDue()
		case <-s.notify:
		case <-s.stop:
			return
		}
	}
}

// fireDue pops and runs every task whose deadline has passed.
func (s *Scheduler) fireDue() {
	now := s.Now()
	for {
		s.mu.Lock()
		if s.timerQ.Len() == 0 || s.timerQ[0].deadline > now {
			s.mu.Unlock()
			return
		}
		t := heap.Pop(&s.timerQ).(*timerTask)
		s.mu.Unlock()
		if !t.canceled {
			t.fn()
		}
	}
}

var _ api.Scheduler = (*Scheduler)(nil)
