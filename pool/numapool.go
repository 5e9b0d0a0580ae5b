// File: pool/numapool.go
// Author: momentics <momentics@gmail.com>
//
// NUMAPool is a raw []byte scratch-buffer pool, NUMA-tagged through
// resolveNUMANode, for short-lived scratch allocations that never leave
// the process -- anything that needs a reusable []byte but doesn't want
// to go through the api.Buffer / BufferPoolManager conservation-tracked
// path. No package in this module currently uses it.

package pool

import "sync"

// NUMAPool provides NUMA-tagged allocation for scratch []byte buffers.
type NUMAPool struct {
	size int
	node int
	pool sync.Pool
}

// NewNUMAPool creates a pool of size-byte scratch buffers tagged for the
// given preferred NUMA node.
func NewNUMAPool(node int, size int) *NUMAPool {
	p := &NUMAPool{size: size, node: resolveNUMANode(node)}
	p.pool.New = func() any {
		return make([]byte, size)
	}
	return p
}

// NUMANode reports the node this pool's buffers are tagged with.
func (p *NUMAPool) NUMANode() int { return p.node }

// Get returns a scratch buffer of this pool's configured size.
func (p *NUMAPool) Get() []byte {
	return p.pool.Get().([]byte)
}

// Put returns a scratch buffer for reuse.
func (p *NUMAPool) Put(buf []byte) {
	if cap(buf) < p.size {
		return
	}
	p.pool.Put(buf[:p.size])
}
