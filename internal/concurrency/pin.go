// File: internal/concurrency/pin.go
// Author: momentics <momentics@gmail.com>
//
// Public CPU/NUMA pinning surface used by the processing scheduler's core
// poll loop (§4.4) to bind one worker goroutine per core. Delegates to the
// platform* functions defined in affinity_linux.go / affinity_stub.go.

package concurrency

// PinCurrentThread pins the current OS thread to a CPU on the given NUMA
// node. cpuID < 0 lets the platform layer pick a representative CPU for
// that node. Errors are non-fatal — callers in this module ignore the
// returned error and keep running, per §7 (port_io-class failures never
// abort the data plane).
func PinCurrentThread(numaNode int, cpuID int) error {
	return platformPinCurrentThread(numaNode, cpuID)
}

// UnpinCurrentThread releases any CPU restriction on the calling thread.
func UnpinCurrentThread() error {
	return platformUnpinCurrentThread()
}
