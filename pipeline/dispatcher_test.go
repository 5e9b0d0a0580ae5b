package pipeline

import (
	"net"
	"sync"
	"testing"
	"time"

	"github.com/momentics/xdpcore/openflow"
	"github.com/momentics/xdpcore/pirl"
	"github.com/momentics/xdpcore/port"
)

func macs(s string) net.HardwareAddr {
	m, _ := net.ParseMAC(s)
	return m
}

func newTestSwitch(dpid uint64) *openflow.Switch {
	return openflow.NewSwitch(dpid, "sw0", 4, 4)
}

func TestDispatchRxTableMissSendsPacketIn(t *testing.T) {
	mgr := port.NewManager(nil, nil, time.Hour)
	p1, _ := port.NewPollModePort(1, "p1")
	mgr.Admit(p1)
	p1.Attach(1)

	engine := openflow.NewLinearEngine()
	sw := newTestSwitch(1)
	engine.RegisterSwitch(sw)

	pool := newTestPool().GetPool(0)
	d := NewDispatcher(engine, mgr, &recordingNotifier{}, pool, pirl.DisabledRate, 0)
	d.RegisterSwitch(sw)

	frameBytes := buildUDPFrame(t, macs("aa:bb:cc:dd:ee:01"), macs("aa:bb:cc:dd:ee:02"),
		net.IPv4(10, 0, 0, 1), net.IPv4(10, 0, 0, 2), 1000, 2000, []byte("hello"))
	buf := pool.Get(len(frameBytes), 0)
	copy(buf.Data, frameBytes)

	d.DispatchRx(p1, port.RxFrame{Buffer: buf, PortIn: 1, PhyPortIn: 1, RxTime: time.Now()})

	rec := d.notifier.(*recordingNotifier)
	events := rec.events()
	if len(events) != 1 {
		t.Fatalf("expected exactly one packet-in, got %d", len(events))
	}
	if events[0].DPID != 1 || events[0].Reason != openflow.PacketInNoMatch {
		t.Fatalf("unexpected packet-in event: %+v", events[0])
	}
	if d.buffers.Len() != 1 {
		t.Fatalf("expected the packet to be staged in the buffer store, got %d entries", d.buffers.Len())
	}
}

func TestDispatchRxPIRLDropsOverRate(t *testing.T) {
	mgr := port.NewManager(nil, nil, time.Hour)
	p1, _ := port.NewPollModePort(1, "p1")
	mgr.Admit(p1)
	p1.Attach(1)

	engine := openflow.NewLinearEngine()
	sw := newTestSwitch(1)
	engine.RegisterSwitch(sw)

	pool := newTestPool().GetPool(0)
	rec := &recordingNotifier{}
	d := NewDispatcher(engine, mgr, rec, pool, 1, 1) // burst of exactly one token
	d.RegisterSwitch(sw)

	send := func() {
		frameBytes := buildUDPFrame(t, macs("aa:bb:cc:dd:ee:01"), macs("aa:bb:cc:dd:ee:02"),
			net.IPv4(10, 0, 0, 1), net.IPv4(10, 0, 0, 2), 1000, 2000, []byte("x"))
		buf := pool.Get(len(frameBytes), 0)
		copy(buf.Data, frameBytes)
		d.DispatchRx(p1, port.RxFrame{Buffer: buf, PortIn: 1, PhyPortIn: 1, RxTime: time.Now()})
	}

	send()
	send()
	send()

	if got := len(rec.events()); got != 1 {
		t.Fatalf("expected PIRL to admit exactly the first packet-in of a burst, got %d", got)
	}
}

func TestProcessPacketOutRejectsEmptyActions(t *testing.T) {
	mgr := port.NewManager(nil, nil, time.Hour)
	engine := openflow.NewLinearEngine()
	sw := newTestSwitch(1)
	engine.RegisterSwitch(sw)

	pool := newTestPool().GetPool(0)
	d := NewDispatcher(engine, mgr, &recordingNotifier{}, pool, pirl.DisabledRate, 0)
	d.RegisterSwitch(sw)

	if err := d.ProcessPacketOut(1, 0, 1, nil, []byte("x")); err == nil {
		t.Fatalf("expected an empty action list to be rejected")
	}
}

func TestProcessPacketOutRetrievesBufferedPacket(t *testing.T) {
	mgr := port.NewManager(nil, nil, time.Hour)
	p1, _ := port.NewPollModePort(1, "p1")
	p2, _ := port.NewPollModePort(2, "p2")
	mgr.Admit(p1)
	mgr.Admit(p2)
	p1.Attach(1)
	p2.Attach(1)
	p2.Up()

	engine := openflow.NewLinearEngine()
	sw := newTestSwitch(1)
	sw.AttachPort(1)
	sw.AttachPort(2)
	engine.RegisterSwitch(sw)

	pool := newTestPool().GetPool(0)
	d := NewDispatcher(engine, mgr, &recordingNotifier{}, pool, pirl.DisabledRate, 0)
	d.RegisterSwitch(sw)

	frameBytes := buildUDPFrame(t, macs("aa:bb:cc:dd:ee:01"), macs("aa:bb:cc:dd:ee:02"),
		net.IPv4(10, 0, 0, 1), net.IPv4(10, 0, 0, 2), 1000, 2000, []byte("buffered"))
	buf := pool.Get(len(frameBytes), 0)
	copy(buf.Data, frameBytes)
	d.DispatchRx(p1, port.RxFrame{Buffer: buf, PortIn: 1, PhyPortIn: 1, RxTime: time.Now()})

	rec := d.notifier.(*recordingNotifier)
	events := rec.events()
	if len(events) != 1 {
		t.Fatalf("setup: expected one packet-in, got %d", len(events))
	}
	bufferID := events[0].Pkt.BufferID

	actions := []openflow.Action{{Type: openflow.ActionOutput, Port: 2}}
	if err := d.ProcessPacketOut(1, bufferID, 1, actions, nil); err != nil {
		t.Fatalf("ProcessPacketOut: %v", err)
	}

	sent := p2.TakeSent(0)
	if len(sent) != 1 {
		t.Fatalf("expected the buffered packet to be forwarded to port 2, got %d frames", len(sent))
	}
}

type recordingNotifier struct {
	mu  sync.Mutex
	all []PacketInEvent
}

func (r *recordingNotifier) events() []PacketInEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]PacketInEvent(nil), r.all...)
}

func (r *recordingNotifier) NotifyPacketIn(dpid uint64, pkt *openflow.Packet, reason openflow.PacketInReason) {
	r.mu.Lock()
	r.all = append(r.all, PacketInEvent{DPID: dpid, Pkt: pkt, Reason: reason})
	r.mu.Unlock()
}

func (r *recordingNotifier) NotifyFlowRemoved(dpid uint64, entry *openflow.FlowEntry, reason openflow.FlowRemovedReason) {
}
func (r *recordingNotifier) NotifyPortStatusChanged(dpid uint64, portID uint32, up bool) {}
func (r *recordingNotifier) NotifyPortAdd(dpid uint64, portID uint32)                    {}
func (r *recordingNotifier) NotifyPortDelete(dpid uint64, portID uint32)                 {}

var _ openflow.Notifier = (*recordingNotifier)(nil)
