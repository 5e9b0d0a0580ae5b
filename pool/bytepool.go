// Author: momentics <momentics@gmail.com>
// SPDX-License-Identifier: MIT

package pool

import "github.com/momentics/xdpcore/api"

// SimpleBytePool is a channel-backed api.BytePool for components that only
// need raw []byte scratch space (e.g. encode/decode staging) rather than
// the full NUMA-segmented, conservation-tracked BufferPoolManager path.
type SimpleBytePool struct {
	bufs chan []byte
	size int
}

// NewSimpleBytePool creates a new pool with the given capacity and buffer size.
func NewSimpleBytePool(capacity, size int) *SimpleBytePool {
	bp := &SimpleBytePool{
		bufs: make(chan []byte, capacity),
		size: size,
	}
	for i := 0; i < capacity; i++ {
		bp.bufs <- make([]byte, size)
	}
	return bp
}

// Acquire returns a slice of at least n bytes.
func (bp *SimpleBytePool) Acquire(n int) []byte {
	select {
	case b := <-bp.bufs:
		if cap(b) < n {
			return make([]byte, n)
		}
		return b[:n]
	default:
		if n < bp.size {
			n = bp.size
		}
		return make([]byte, n)
	}
}

// Release returns a buffer to the pool.
func (bp *SimpleBytePool) Release(b []byte) {
	if cap(b) < bp.size {
		return
	}
	select {
	case bp.bufs <- b[:bp.size]:
	default:
		// Discard if pool is full.
	}
}

var _ api.BytePool = (*SimpleBytePool)(nil)
