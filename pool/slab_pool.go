// File: pool/slab_pool.go
// Package pool implements lock-free slab allocation with size-class support.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package pool

import (
	"sync"
	"sync/atomic"

	"github.com/momentics/xdpcore/api"
	"github.com/momentics/xdpcore/internal/concurrency"
)

const defaultPoolCapacity = 4096

// freeList is the narrow surface slabPool needs from the underlying
// lock-free queue; satisfied by concurrency.NewLockFreeQueue's return type.
type freeList interface {
	Enqueue(api.Buffer) bool
	Dequeue() (api.Buffer, bool)
}

// slabPool is a fixed buffer-size free list, one per size class per NUMA
// node (see nodePool). Get/Put never block and never touch a shared lock
// on the fast path; only the NUMA counters take a mutex, and only on
// allocation, not reuse.
type slabPool struct {
	size int
	// overflow is the lock-free free list backing Get/Put reuse.
	overflow freeList

	totalAlloc atomic.Int64
	totalFree  atomic.Int64
	numaStats  numaCounters
}

// numaCounters tracks per-node allocation counts; allocation is rare
// enough relative to packet rate that a mutex here is not a hot-path
// concern -- reuse (the hot path) never touches it.
type numaCounters struct {
	mu     sync.Mutex
	counts map[int]int64
}

func (c *numaCounters) record(node int) {
	c.mu.Lock()
	if c.counts == nil {
		c.counts = make(map[int]int64)
	}
	c.counts[node]++
	c.mu.Unlock()
}

func (c *numaCounters) snapshot() map[int]int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[int]int64, len(c.counts))
	for k, v := range c.counts {
		out[k] = v
	}
	return out
}

func newSlabPool(size int) *slabPool {
	return &slabPool{
		size:     size,
		overflow: concurrency.NewLockFreeQueue[api.Buffer](defaultPoolCapacity),
	}
}

// Get returns a free buffer of this slab's size class, allocating fresh
// backing storage when the free list is empty. The returned Buffer's Pool
// field points back at this slabPool so Release() recycles it correctly.
func (sp *slabPool) Get(numaNode int) api.Buffer {
	if buf, ok := sp.overflow.Dequeue(); ok {
		return buf
	}

	buf := api.Buffer{
		Data:  make([]byte, sp.size),
		NUMA:  numaNode,
		Pool:  sp,
		Class: sp.size,
	}
	sp.totalAlloc.Add(1)
	sp.numaStats.record(numaNode)
	return buf
}

// Put satisfies api.Releaser so a Buffer.Release() call recycles into this
// slab's free list. Discards silently once the overflow queue is full --
// the buffer is simply left for GC, which preserves the conservation
// invariant (never double-handed-out) at the cost of a future allocation.
func (sp *slabPool) Put(buf api.Buffer) {
	full := buf
	full.Data = full.Data[:cap(full.Data)]
	if sp.overflow.Enqueue(full) {
		sp.totalFree.Add(1)
	}
}

func (sp *slabPool) Stats() api.BufferPoolStats {
	totalAlloc := sp.totalAlloc.Load()
	totalFree := sp.totalFree.Load()

	return api.BufferPoolStats{
		TotalAlloc: totalAlloc,
		TotalFree:  totalFree,
		InUse:      totalAlloc - totalFree,
		NUMAStats:  sp.numaStats.snapshot(),
	}
}

var _ api.Releaser = (*slabPool)(nil)
