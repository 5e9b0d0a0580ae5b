// File: fake/buffer.go
// Author: momentics <momentics@gmail.com>
//
// BufferPool is a trivial stub implementation of api.BufferPool,
// adapted from the teacher's fake.BufferPool -- grown into unbounded
// plain-heap Get/Put rather than the teacher's NUMA-aware slab
// allocator, since tests here only need a working pool, not one that
// exercises NUMA placement.

package fake

import (
	"sync"
	"sync/atomic"

	"github.com/momentics/xdpcore/api"
)

// BufferPool is a BufferPool that always allocates fresh and counts
// Get/Put calls so a test can assert on leak-free release discipline.
type BufferPool struct {
	mu       sync.Mutex
	inUse    int64
	allocs   int64
	frees    int64
	numaHits map[int]int64
}

// NewBufferPool returns an empty, ready-to-use fake pool.
func NewBufferPool() *BufferPool {
	return &BufferPool{numaHits: make(map[int]int64)}
}

func (p *BufferPool) Get(size int, numaPreferred int) api.Buffer {
	p.mu.Lock()
	p.allocs++
	p.numaHits[numaPreferred]++
	p.mu.Unlock()
	atomic.AddInt64(&p.inUse, 1)
	return api.Buffer{Data: make([]byte, size), NUMA: numaPreferred, Pool: p}
}

func (p *BufferPool) Put(b api.Buffer) {
	p.mu.Lock()
	p.frees++
	p.mu.Unlock()
	atomic.AddInt64(&p.inUse, -1)
}

func (p *BufferPool) Stats() api.BufferPoolStats {
	p.mu.Lock()
	defer p.mu.Unlock()
	numaStats := make(map[int]int64, len(p.numaHits))
	for k, v := range p.numaHits {
		numaStats[k] = v
	}
	return api.BufferPoolStats{
		TotalAlloc: p.allocs,
		TotalFree:  p.frees,
		InUse:      atomic.LoadInt64(&p.inUse),
		NUMAStats:  numaStats,
	}
}

var _ api.BufferPool = (*BufferPool)(nil)
