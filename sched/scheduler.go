// File: sched/scheduler.go
// Author: momentics <momentics@gmail.com>
//
// Scheduler implements the cores[CoreMax] table and ScheduleSelectPort /
// Detach operations from spec §4.4, built on the teacher's
// internal/concurrency affinity handles for NUMA-aware placement and an
// adaptive spin-wait backoff shape for the per-core poll loop.

package sched

import (
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/momentics/xdpcore/api"
	"github.com/momentics/xdpcore/internal/concurrency"
	"github.com/momentics/xdpcore/port"
)

// CoreMax bounds the fixed core table (spec §4.4 "cores[CORE_MAX]").
const CoreMax = 64

// MaxPortsPerCore is the typical per-core fan-out budget (spec §4.4
// "≤ MAX_PORTS_PER_CORE, typically 16-32").
const MaxPortsPerCore = 32

// Dispatcher is what a core's poll loop hands classified RX frames to --
// pipeline.Dispatcher in the full system, kept behind an interface here
// so sched never needs to import pipeline or openflow.
type Dispatcher interface {
	DispatchRx(p port.Port, frame port.RxFrame)
}

type coreSlot struct {
	id          int
	available   bool
	active      bool
	numaNode    int
	mu          sync.Mutex
	ports       []uint32
	runningHash atomic.Uint64
	stopCh      chan struct{}
	doneCh      chan struct{}
	affinity    api.Affinity
}

func (c *coreSlot) numRxPorts() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.ports)
}

// Scheduler owns the fixed core table and attach/detach bookkeeping.
type Scheduler struct {
	mu         sync.Mutex
	cores      [CoreMax]*coreSlot
	numCores   int
	globalHash atomic.Uint64
	strict     bool

	manager    *port.Manager
	dispatcher Dispatcher

	txBudget int
	rxBudget int

	barrierPoll    time.Duration
	barrierTimeout time.Duration
}

// NewScheduler builds a Scheduler with numCores available slots
// (numCores <= CoreMax), each pinned to the NUMA node
// concurrency.NUMANodeAuto reports for its index. strict rejects
// cross-socket port assignment instead of warning and proceeding.
func NewScheduler(manager *port.Manager, dispatcher Dispatcher, numCores int, strict bool) *Scheduler {
	if numCores > CoreMax {
		numCores = CoreMax
	}
	s := &Scheduler{
		numCores:       numCores,
		strict:         strict,
		manager:        manager,
		dispatcher:     dispatcher,
		txBudget:       64,
		rxBudget:       64,
		barrierPoll:    100 * time.Microsecond,
		barrierTimeout: 2 * time.Second,
	}
	for i := 0; i < numCores; i++ {
		s.cores[i] = &coreSlot{
			id:        i,
			available: true,
			numaNode:  concurrency.NUMANodeAuto(i % max(1, concurrency.NUMANodes())),
		}
	}
	return s
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}

// ScheduleSelectPort attaches portID (whose NIC lives on portNUMANode, or
// -1 if unknown) to the available core with the lowest RX-port count,
// breaking ties toward a same-socket core (spec §4.4 "Attach"). A
// cross-socket pick is allowed with the caller expected to log a
// warning, unless the scheduler runs in strict mode, in which case it is
// rejected.
func (s *Scheduler) ScheduleSelectPort(portID uint32, portNUMANode int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	best := -1
	bestSameSocket := false
	for i := 0; i < s.numCores; i++ {
		c := s.cores[i]
		if !c.available {
			continue
		}
		if c.numRxPorts() >= MaxPortsPerCore {
			continue
		}
		sameSocket := portNUMANode < 0 || concurrency.SameSocket(c.numaNode, portNUMANode)
		if best == -1 {
			best, bestSameSocket = i, sameSocket
			continue
		}
		bn := s.cores[best].numRxPorts()
		cn := c.numRxPorts()
		if cn < bn || (cn == bn && sameSocket && !bestSameSocket) {
			best, bestSameSocket = i, sameSocket
		}
	}

	if best == -1 {
		return -1, fmt.Errorf("sched: no available core for port %d", portID)
	}
	if s.strict && !bestSameSocket && portNUMANode >= 0 {
		return -1, fmt.Errorf("sched: strict mode rejects cross-socket assignment of port %d to core %d", portID, best)
	}

	c := s.cores[best]
	c.mu.Lock()
	c.ports = append(c.ports, portID)
	c.mu.Unlock()

	s.bumpHash()

	if !c.active {
		s.startCore(c)
	}
	return best, nil
}

// Detach removes portID from coreID's fan-out table, compacting the list
// (spec §4.4 "Detach"), stopping the core's loop if it becomes idle, and
// waiting for the hash barrier before returning so callers can safely
// reclaim port resources.
func (s *Scheduler) Detach(coreID int, portID uint32) error {
	if coreID < 0 || coreID >= s.numCores {
		return fmt.Errorf("sched: core %d out of range", coreID)
	}
	c := s.cores[coreID]

	c.mu.Lock()
	idx := -1
	for i, id := range c.ports {
		if id == portID {
			idx = i
			break
		}
	}
	if idx == -1 {
		c.mu.Unlock()
		return fmt.Errorf("sched: port %d not attached to core %d", portID, coreID)
	}
	c.ports = append(c.ports[:idx], c.ports[idx+1:]...)
	empty := len(c.ports) == 0
	c.mu.Unlock()

	s.bumpHash()

	if empty {
		s.stopCore(c)
	}

	return s.waitHashBarrier()
}

func (s *Scheduler) bumpHash() {
	s.globalHash.Add(1)
}

// waitHashBarrier blocks until every active core has published the
// current global hash (spec §4.4 "Hash barrier semantics"), or times out.
func (s *Scheduler) waitHashBarrier() error {
	target := s.globalHash.Load()
	deadline := time.Now().Add(s.barrierTimeout)
	for {
		settled := true
		for i := 0; i < s.numCores; i++ {
			c := s.cores[i]
			if !c.active {
				continue
			}
			if c.runningHash.Load() != target {
				settled = false
				break
			}
		}
		if settled {
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("sched: hash barrier timed out waiting for hash %d", target)
		}
		time.Sleep(s.barrierPoll)
	}
}

func (s *Scheduler) startCore(c *coreSlot) {
	c.active = true
	c.stopCh = make(chan struct{})
	c.doneCh = make(chan struct{})
	go s.pollLoop(c)
}

func (s *Scheduler) stopCore(c *coreSlot) {
	if !c.active {
		return
	}
	close(c.stopCh)
	<-c.doneCh
	c.active = false
}

// pollLoop is one core's long-lived worker (spec §4.4 "core poll loop":
// publish hash -> TX drain -> RX burst -> classify -> pipeline
// traversal), with adaptive spin-wait backoff grounded in the teacher's
// event-loop shape.
func (s *Scheduler) pollLoop(c *coreSlot) {
	defer close(c.doneCh)
	affinity := concurrency.NewThreadAffinityHandle()
	c.mu.Lock()
	c.affinity = affinity
	c.mu.Unlock()
	affinity.Pin(-1, c.numaNode)
	defer affinity.Unpin()

	backoff := time.Microsecond
	const maxBackoff = time.Millisecond

	for {
		select {
		case <-c.stopCh:
			return
		default:
		}

		c.runningHash.Store(s.globalHash.Load())

		c.mu.Lock()
		ports := append([]uint32(nil), c.ports...)
		c.mu.Unlock()

		did := false
		for _, id := range ports {
			p, ok := s.manager.Get(id)
			if !ok {
				continue
			}
			for q := 0; q < 1; q++ {
				if _, err := p.Write(q, s.txBudget); err == nil {
					did = true
				}
			}
			for i := 0; i < s.rxBudget; i++ {
				frame, ok := p.Read()
				if !ok {
					break
				}
				did = true
				if s.dispatcher != nil {
					s.dispatcher.DispatchRx(p, frame)
				}
			}
		}

		if did {
			backoff = time.Microsecond
		} else {
			time.Sleep(backoff)
			runtime.Gosched()
			if backoff < maxBackoff {
				backoff *= 2
			}
		}
	}
}

// NumCores reports how many core slots this scheduler manages.
func (s *Scheduler) NumCores() int { return s.numCores }

// CoreStats is a read-only snapshot of one core's fan-out state.
type CoreStats struct {
	ID         int
	Active     bool
	NumaNode   int
	NumRxPorts int
}

func (s *Scheduler) Stats() []CoreStats {
	out := make([]CoreStats, 0, s.numCores)
	for i := 0; i < s.numCores; i++ {
		c := s.cores[i]
		out = append(out, CoreStats{ID: c.id, Active: c.active, NumaNode: c.numaNode, NumRxPorts: c.numRxPorts()})
	}
	return out
}

// CoreAffinity reports coreID's current OS-thread binding, as seen from
// its own poll-loop goroutine. Returns ok=false before the core's first
// poll-loop iteration has run.
func (s *Scheduler) CoreAffinity(coreID int) (api.AffinityDescriptor, bool) {
	if coreID < 0 || coreID >= s.numCores {
		return api.AffinityDescriptor{}, false
	}
	c := s.cores[coreID]
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.affinity == nil {
		return api.AffinityDescriptor{}, false
	}
	return c.affinity.ImmutableDescriptor(), true
}
