//go:build !linux
// +build !linux

// File: pool/numa_stub.go
// Author: momentics <momentics@gmail.com>
//
// The kernel-ring NIC boundary (AF_PACKET) is Linux-only, so off-Linux
// platforms never see a meaningful NUMA topology. Collapse everything
// onto node 0.

package pool

func resolveNUMANode(preferred int) int {
	if preferred < 0 {
		return 0
	}
	return 0
}
