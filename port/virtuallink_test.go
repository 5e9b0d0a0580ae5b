package port

import (
	"testing"

	"github.com/momentics/xdpcore/pool"
)

func TestVirtualLinkPairForwardsAcross(t *testing.T) {
	a, b, err := NewVirtualLinkPair(1, "veth-a", 2, "veth-b")
	if err != nil {
		t.Fatalf("NewVirtualLinkPair: %v", err)
	}
	if err := a.Up(); err != nil {
		t.Fatalf("a.Up: %v", err)
	}
	if !b.IsLinkUp() {
		t.Fatalf("peer link should come up when the other end goes up")
	}

	buf := pool.DefaultManager().GetPool(0).Get(64, 0)
	if err := a.Enqueue(TxFrame{Buffer: buf, QueueID: 0}, 0); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	if _, err := a.Write(0, 8); err != nil {
		t.Fatalf("Write: %v", err)
	}

	frame, ok := b.Read()
	if !ok {
		t.Fatalf("expected a frame to have crossed to the peer")
	}
	if frame.PortIn != b.ID() {
		t.Fatalf("expected PortIn %d, got %d", b.ID(), frame.PortIn)
	}
}

func TestVirtualLinkDownStopsForwarding(t *testing.T) {
	a, b, err := NewVirtualLinkPair(1, "veth-a", 2, "veth-b")
	if err != nil {
		t.Fatalf("NewVirtualLinkPair: %v", err)
	}
	a.Up()
	b.Down()

	buf := pool.DefaultManager().GetPool(0).Get(64, 0)
	a.Enqueue(TxFrame{Buffer: buf, QueueID: 0}, 0)
	a.Write(0, 8)

	if _, ok := b.Read(); ok {
		t.Fatalf("peer down should drop forwarded frames")
	}
}
