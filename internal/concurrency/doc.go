// File: internal/concurrency/doc.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Package concurrency provides the lock-free primitives shared by the
// processing scheduler and the port I/O drivers: a ring buffer safe for
// cross-thread transfer, a lock-free single-producer/single-consumer queue,
// CPU/NUMA affinity pinning, and an executor used only off the packet hot
// path (control-plane work: FLOW_REMOVED delivery after timer expiry).
package concurrency
