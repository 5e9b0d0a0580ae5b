// File: pool/nodepool.go
// Author: momentics <momentics@gmail.com>
//
// nodePool fans a single NUMA node's allocation traffic out across
// size-classed slab pools (see slab_pool.go), so callers never pay for a
// size class they don't use.

package pool

import (
	"sync"

	"github.com/momentics/xdpcore/api"
)

const minSizeClass = 64

// nodePool implements api.BufferPool for one NUMA node.
type nodePool struct {
	numaNode int
	mu       sync.Mutex
	classes  map[int]*slabPool
}

func newNodePool(numaNode int) *nodePool {
	return &nodePool{
		numaNode: numaNode,
		classes:  make(map[int]*slabPool),
	}
}

func (p *nodePool) classFor(class int) *slabPool {
	p.mu.Lock()
	sp, ok := p.classes[class]
	if !ok {
		sp = newSlabPool(class)
		p.classes[class] = sp
	}
	p.mu.Unlock()
	return sp
}

func (p *nodePool) Get(size, numaPreferred int) api.Buffer {
	class := sizeClass(size)
	buf := p.classFor(class).Get(p.numaNode)
	return buf.Slice(0, size)
}

func (p *nodePool) Put(b api.Buffer) {
	class := sizeClass(b.Class)
	if class == 0 {
		class = sizeClass(cap(b.Data))
	}
	p.classFor(class).Put(b)
}

func (p *nodePool) Stats() api.BufferPoolStats {
	p.mu.Lock()
	classes := make([]*slabPool, 0, len(p.classes))
	for _, sp := range p.classes {
		classes = append(classes, sp)
	}
	p.mu.Unlock()

	agg := api.BufferPoolStats{NUMAStats: map[int]int64{}}
	for _, sp := range classes {
		s := sp.Stats()
		agg.TotalAlloc += s.TotalAlloc
		agg.TotalFree += s.TotalFree
		agg.InUse += s.InUse
		for node, n := range s.NUMAStats {
			agg.NUMAStats[node] += n
		}
	}
	return agg
}

var _ api.BufferPool = (*nodePool)(nil)

// sizeClass rounds n up to the next power of two, floored at minSizeClass.
func sizeClass(n int) int {
	if n <= minSizeClass {
		return minSizeClass
	}
	c := minSizeClass
	for c < n {
		c <<= 1
	}
	return c
}
