// File: internal/concurrency/affinity_handle.go
// Author: momentics <momentics@gmail.com>
//
// ThreadAffinityHandle adapts the package-level PinCurrentThread /
// UnpinCurrentThread functions to api.Affinity, giving a poll-loop
// goroutine an inspectable, per-core binding descriptor instead of a
// fire-and-forget pin call.

package concurrency

import (
	"sync"

	"github.com/momentics/xdpcore/api"
)

// ThreadAffinityHandle implements api.Affinity over the calling OS
// thread. Not safe for concurrent Pin/Unpin from multiple goroutines --
// each poll-loop goroutine owns its own handle.
type ThreadAffinityHandle struct {
	mu     sync.Mutex
	cpuID  int
	numaID int
	pinned bool
}

// NewThreadAffinityHandle returns an unpinned handle.
func NewThreadAffinityHandle() *ThreadAffinityHandle {
	return &ThreadAffinityHandle{cpuID: -1, numaID: -1}
}

func (h *ThreadAffinityHandle) Pin(cpuID, numaID int) error {
	if err := platformPinCurrentThread(numaID, cpuID); err != nil {
		return err
	}
	h.mu.Lock()
	h.cpuID, h.numaID, h.pinned = cpuID, numaID, true
	h.mu.Unlock()
	return nil
}

func (h *ThreadAffinityHandle) Unpin() error {
	err := platformUnpinCurrentThread()
	h.mu.Lock()
	h.pinned = false
	h.mu.Unlock()
	return err
}

func (h *ThreadAffinityHandle) Get() (cpuID, numaID int, err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.cpuID, h.numaID, nil
}

func (h *ThreadAffinityHandle) Scope() api.AffinityScope { return api.ScopeThread }

func (h *ThreadAffinityHandle) ImmutableDescriptor() api.AffinityDescriptor {
	h.mu.Lock()
	defer h.mu.Unlock()
	return api.AffinityDescriptor{CPUID: h.cpuID, NUMAID: h.numaID, Scope: api.ScopeThread, Pinned: h.pinned}
}

var _ api.Affinity = (*ThreadAffinityHandle)(nil)
