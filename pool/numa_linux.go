//go:build linux
// +build linux

// File: pool/numa_linux.go
// Author: momentics <momentics@gmail.com>
//
// Linux NUMA node resolution for buffer allocation. Go's allocator gives
// us no way to bind a []byte to a physical NUMA node without cgo+libnuma;
// what we can do purely in Go is make sure the node tag handed back
// matches real sysfs topology, so pool segmentation lines up with the
// CPU pinning done in internal/concurrency.

package pool

import "github.com/momentics/xdpcore/internal/concurrency"

func resolveNUMANode(preferred int) int {
	return concurrency.NUMANodeAuto(preferred)
}
