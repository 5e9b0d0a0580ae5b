package port

import (
	"testing"

	"github.com/momentics/xdpcore/pool"
)

func TestPollModePortInjectAndRead(t *testing.T) {
	p, err := NewPollModePort(1, "poll0")
	if err != nil {
		t.Fatalf("NewPollModePort: %v", err)
	}
	p.Up()

	buf := pool.DefaultManager().GetPool(0).Get(42, 0)
	p.Inject(buf)

	frame, ok := p.Read()
	if !ok {
		t.Fatalf("expected injected frame to be readable")
	}
	if frame.PortIn != p.ID() {
		t.Fatalf("expected PortIn %d, got %d", p.ID(), frame.PortIn)
	}
	if _, ok := p.Read(); ok {
		t.Fatalf("expected queue to be drained")
	}
}

func TestPollModePortWriteDrainsAndTakeSentReturnsFrames(t *testing.T) {
	p, _ := NewPollModePort(1, "poll0")
	p.Up()

	for i := 0; i < 3; i++ {
		buf := pool.DefaultManager().GetPool(0).Get(10, 0)
		if err := p.Enqueue(TxFrame{Buffer: buf, QueueID: 0}, 0); err != nil {
			t.Fatalf("Enqueue: %v", err)
		}
	}

	remaining, err := p.Write(0, 2)
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
	if remaining != 0 {
		t.Fatalf("expected full budget consumed, got remaining=%d", remaining)
	}

	sent := p.TakeSent(0)
	if len(sent) != 1 {
		t.Fatalf("expected 1 frame still queued after Write drained 2, got %d", len(sent))
	}
}

func TestPollModePortCloseRejectsEnqueue(t *testing.T) {
	p, _ := NewPollModePort(1, "poll0")
	p.Close()

	buf := pool.DefaultManager().GetPool(0).Get(10, 0)
	if err := p.Enqueue(TxFrame{Buffer: buf, QueueID: 0}, 0); err == nil {
		t.Fatalf("expected enqueue on closed port to fail")
	}
}
