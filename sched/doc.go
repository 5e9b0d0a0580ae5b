// Package sched
// Author: momentics <momentics@gmail.com>
//
// The processing scheduler (spec §4.4): a fixed cores[CoreMax] table,
// NUMA-aware port attach/detach, and a hash-barrier synchronization
// primitive that lets attach/detach safely reclaim resources without any
// lock on the hot RX/TX poll path. Built directly on the teacher's
// internal/concurrency affinity handles and the adaptive spin-wait
// backoff shape its RingBuffer-backed event loop used.
package sched
