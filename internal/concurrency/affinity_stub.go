//go:build !linux
// +build !linux

// File: internal/concurrency/affinity_stub.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// The kernel-ring NIC boundary (§6.3) is AF_PACKET/Linux-only. On any other
// platform CPU/NUMA pinning is a no-op and the topology is reported flat.

package concurrency

import "runtime"

func platformNUMANodes() int             { return 1 }
func platformCurrentNUMANodeID() int     { return -1 }
func platformPreferredCPUID(int) int     { return 0 }
func platformPinCurrentThread(int, int) error {
	runtime.LockOSThread()
	return nil
}
func platformUnpinCurrentThread() error {
	runtime.UnlockOSThread()
	return nil
}
