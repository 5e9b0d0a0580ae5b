// File: port/pollmode.go
// Author: momentics <momentics@gmail.com>
//
// PollModePort is a poll-mode user-space NIC driver stand-in (spec §1:
// "a poll-mode user-space NIC driver"): no ring mmap, no socket, just an
// in-process frame queue a test harness or DPDK-class backend can drive.
// Grounded in the teacher's fake.Transport idiom -- a mutex-guarded slice
// buffer with predictable, controllable behavior -- adapted here to the
// Port contract instead of api.Transport.

package port

import (
	"fmt"
	"sync"
	"time"

	"github.com/momentics/xdpcore/api"
)

// PollModePort is an in-memory Port: RX frames are injected by whatever
// owns the real NIC binding (a DPDK PMD, a test), TX frames wait in a
// per-queue outbound buffer that a caller can inspect with TakeSent until
// Write drains them.
type PollModePort struct {
	*SwitchPort

	mu       sync.Mutex
	rxQueue  []RxFrame
	txQueues map[int][]TxFrame
	closed   bool
}

// NewPollModePort builds an empty poll-mode port with a randomly
// generated locally-administered MAC.
func NewPollModePort(id uint32, name string) (*PollModePort, error) {
	mac, err := randomLocalMAC()
	if err != nil {
		return nil, err
	}
	return &PollModePort{
		SwitchPort: NewSwitchPort(id, name, KindPollMode, mac),
		txQueues:   make(map[int][]TxFrame),
	}, nil
}

// Inject hands data to the port's RX queue as if it had just arrived from
// the wire, for test harnesses.
func (p *PollModePort) Inject(buf api.Buffer) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.rxQueue = append(p.rxQueue, RxFrame{Buffer: buf, PortIn: p.ID(), PhyPortIn: p.ID(), RxTime: time.Now()})
}

func (p *PollModePort) Up() error {
	p.adminUp.Store(true)
	p.linkUp.Store(true)
	return nil
}

func (p *PollModePort) Down() error {
	p.adminUp.Store(false)
	p.linkUp.Store(false)
	return nil
}

func (p *PollModePort) Read() (RxFrame, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.rxQueue) == 0 {
		return RxFrame{}, false
	}
	f := p.rxQueue[0]
	p.rxQueue = p.rxQueue[1:]
	p.recordRx(1)
	return f, true
}

func (p *PollModePort) Enqueue(frame TxFrame, queueID int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		frame.Buffer.Release()
		return fmt.Errorf("port: poll-mode port %s closed", p.Name())
	}
	p.txQueues[queueID] = append(p.txQueues[queueID], frame)
	return nil
}

// Write drains up to maxPackets queued frames for queueID, counting them
// as transmitted and discarding them; a poll-mode driver's real TX
// syscall would happen here. Drained frames are no longer visible to
// TakeSent.
func (p *PollModePort) Write(queueID int, maxPackets int) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	q := p.txQueues[queueID]
	n := len(q)
	if n > maxPackets {
		n = maxPackets
	}
	p.recordTx(n)
	p.txQueues[queueID] = q[n:]
	return maxPackets - n, nil
}

// TakeSent returns and clears every frame still queued on queueID
// (enqueued but not yet drained by Write), letting a test assert on
// output contents without a real socket.
func (p *PollModePort) TakeSent(queueID int) []TxFrame {
	p.mu.Lock()
	defer p.mu.Unlock()
	sent := p.txQueues[queueID]
	p.txQueues[queueID] = nil
	return sent
}

func (p *PollModePort) Close() error {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
	return p.Down()
}

var _ Port = (*PollModePort)(nil)
