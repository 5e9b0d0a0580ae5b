// File: port/virtuallink.go
// Author: momentics <momentics@gmail.com>
//
// VirtualLinkPort is a pair of ports cross-connected in software (spec
// §4.2 "Virtual-link port"): TX from one end reinjects straight into the
// peer's RX ring, no wire involved. Its RX ring and output queues are
// pool.BufferRing ring buffers; the scheduler's poll loop drives it through
// the same Port interface as every other port kind.

package port

import (
	"crypto/rand"
	"fmt"
	"net"
	"time"

	"github.com/momentics/xdpcore/pool"
)

const virtualLinkQueueCapacity = 1024

// VirtualLinkPort implements Port by handing TX frames directly to a
// paired peer's RX ring.
type VirtualLinkPort struct {
	*SwitchPort

	peer *VirtualLinkPort
	rx   *pool.BufferRing[RxFrame]
	tx   map[int]*pool.BufferRing[TxFrame]
}

// NewVirtualLinkPair builds two cross-connected virtual ports. Peers are
// immutable once paired (spec §4.2).
func NewVirtualLinkPair(idA uint32, nameA string, idB uint32, nameB string) (*VirtualLinkPort, *VirtualLinkPort, error) {
	macA, err := randomLocalMAC()
	if err != nil {
		return nil, nil, err
	}
	macB, err := randomLocalMAC()
	if err != nil {
		return nil, nil, err
	}

	a := &VirtualLinkPort{
		SwitchPort: NewSwitchPort(idA, nameA, KindVirtualLink, macA),
		rx:         pool.NewRingBuffer[RxFrame](virtualLinkQueueCapacity),
		tx:         make(map[int]*pool.BufferRing[TxFrame]),
	}
	b := &VirtualLinkPort{
		SwitchPort: NewSwitchPort(idB, nameB, KindVirtualLink, macB),
		rx:         pool.NewRingBuffer[RxFrame](virtualLinkQueueCapacity),
		tx:         make(map[int]*pool.BufferRing[TxFrame]),
	}
	a.peer = b
	b.peer = a
	return a, b, nil
}

func randomLocalMAC() (net.HardwareAddr, error) {
	mac := make(net.HardwareAddr, 6)
	if _, err := rand.Read(mac); err != nil {
		return nil, fmt.Errorf("port: generate virtual-link MAC: %w", err)
	}
	mac[0] = (mac[0] &^ 0x01) | 0x02 // locally administered, unicast
	return mac, nil
}

func (v *VirtualLinkPort) Up() error {
	v.adminUp.Store(true)
	v.linkUp.Store(true)
	if v.peer != nil {
		v.peer.linkUp.Store(true)
	}
	return nil
}

func (v *VirtualLinkPort) Down() error {
	v.adminUp.Store(false)
	v.linkUp.Store(false)
	if v.peer != nil {
		v.peer.linkUp.Store(false)
	}
	return nil
}

func (v *VirtualLinkPort) Read() (RxFrame, bool) {
	return v.rx.Dequeue()
}

func (v *VirtualLinkPort) queueFor(queueID int) *pool.BufferRing[TxFrame] {
	q, ok := v.tx[queueID]
	if !ok {
		q = pool.NewRingBuffer[TxFrame](virtualLinkQueueCapacity)
		v.tx[queueID] = q
	}
	return q
}

// Enqueue stages a frame on this port's output queue, to be handed to the
// peer's RX ring on the next Write call.
func (v *VirtualLinkPort) Enqueue(frame TxFrame, queueID int) error {
	if !v.queueFor(queueID).Enqueue(frame) {
		frame.Buffer.Release()
		v.recordTxDrop()
		v.recordOverrun()
		return fmt.Errorf("port: virtual-link queue %d full on %s", queueID, v.Name())
	}
	return nil
}

// Write drains up to maxPackets frames from queueID directly into the
// peer's RX ring -- no framing, no syscall, per spec's "reinject into the
// peer's pipeline instead of framing for the wire".
func (v *VirtualLinkPort) Write(queueID int, maxPackets int) (int, error) {
	if v.peer == nil || !v.peer.IsLinkUp() {
		return maxPackets, nil
	}
	q := v.queueFor(queueID)
	budget := maxPackets
	for budget > 0 {
		frame, ok := q.Dequeue()
		if !ok {
			break
		}
		rf := RxFrame{
			Buffer:    frame.Buffer,
			PortIn:    v.peer.ID(),
			PhyPortIn: v.peer.ID(),
			RxTime:    time.Now(),
		}
		if !v.peer.rx.Enqueue(rf) {
			frame.Buffer.Release()
			v.recordTxDrop()
			continue
		}
		v.recordTx(1)
		budget--
	}
	return budget, nil
}

func (v *VirtualLinkPort) Close() error {
	v.Down()
	return nil
}

var _ Port = (*VirtualLinkPort)(nil)
