// File: pool/bufferpool.go
// Author: momentics <momentics@gmail.com>
//
// Cross-platform NUMA-segmented BufferPool manager. The manager hands out
// one nodePool per NUMA node; each nodePool fans out to size-classed slab
// pools so a 128-byte PACKET_IN copy and a 9000-byte jumbo frame never
// share a free list. Platform-specific NUMA node resolution lives in
// numa_linux.go / numa_stub.go.

package pool

import (
	"sync"

	"github.com/momentics/xdpcore/api"
)

// BufferPoolManager provides NUMA-segmented pools for each NUMA node.
type BufferPoolManager struct {
	mu    sync.RWMutex
	pools map[int]api.BufferPool // key: resolved NUMA node
}

// NewBufferPoolManager creates and initializes a new manager.
func NewBufferPoolManager() *BufferPoolManager {
	return &BufferPoolManager{
		pools: make(map[int]api.BufferPool),
	}
}

// GetPool obtains or creates the BufferPool for numaNode. numaNode is
// normalized through resolveNUMANode so -1 ("no preference") and
// out-of-range values converge on a real topology node.
func (m *BufferPoolManager) GetPool(numaNode int) api.BufferPool {
	node := resolveNUMANode(numaNode)

	m.mu.RLock()
	p, ok := m.pools[node]
	m.mu.RUnlock()
	if ok {
		return p
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if p, ok := m.pools[node]; ok {
		return p
	}
	p = newNodePool(node)
	m.pools[node] = p
	return p
}
