package pipeline

import (
	"net"
	"testing"
	"time"

	"github.com/momentics/xdpcore/openflow"
	"github.com/momentics/xdpcore/pirl"
	"github.com/momentics/xdpcore/port"
)

func TestLoopbackChannelFlowAddThenMatchSkipsController(t *testing.T) {
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

	bufPool := newTestPool().GetPool(0)
	d := NewDispatcher(engine, mgr, nil, bufPool, pirl.DisabledRate, 0)
	d.RegisterSwitch(sw)
	lb := NewLoopbackChannel(engine, d)
	d.notifier = lb

	instr := openflow.NewInstructionSet()
	instr.HasApplyActions = true
	instr.ApplyActions = []openflow.Action{{Type: openflow.ActionOutput, Port: 2}}
	entry := &openflow.FlowEntry{Priority: 1, Instructions: instr}
	if err := lb.AddFlowEntry(1, 0, entry); err != nil {
		t.Fatalf("AddFlowEntry: %v", err)
	}

	frameBytes := buildUDPFrame(t, macs("aa:bb:cc:dd:ee:01"), macs("aa:bb:cc:dd:ee:02"),
		net.IPv4(10, 0, 0, 1), net.IPv4(10, 0, 0, 2), 1000, 2000, []byte("installed"))
	buf := bufPool.Get(len(frameBytes), 0)
	copy(buf.Data, frameBytes)
	d.DispatchRx(p1, port.RxFrame{Buffer: buf, PortIn: 1, PhyPortIn: 1, RxTime: time.Now()})

	if len(lb.PacketIns()) != 0 {
		t.Fatalf("an installed flow entry must not trigger a packet-in")
	}
	if len(p2.TakeSent(0)) != 1 {
		t.Fatalf("expected the matched flow's output action to reach port 2")
	}
}
