package pipeline

import (
	"net"
	"testing"
	"time"

	"github.com/momentics/xdpcore/datapacket"
	"github.com/momentics/xdpcore/openflow"
	"github.com/momentics/xdpcore/port"
)

func TestActionExecutorFloodExcludesInPort(t *testing.T) {
	mgr := port.NewManager(nil, nil, time.Hour)
	p1, _ := port.NewPollModePort(1, "p1")
	p2, _ := port.NewPollModePort(2, "p2")
	p3, _ := port.NewPollModePort(3, "p3")
	for _, p := range []*port.PollModePort{p1, p2, p3} {
		mgr.Admit(p)
		p.Up()
	}

	sw := newTestSwitch(1)
	sw.AttachPort(1)
	sw.AttachPort(2)
	sw.AttachPort(3)

	bufPool := newTestPool().GetPool(0)
	tr := datapacket.NewTranslator()
	frameBytes := buildUDPFrame(t, macs("aa:bb:cc:dd:ee:01"), macs("aa:bb:cc:dd:ee:02"),
		net.IPv4(10, 0, 0, 1), net.IPv4(10, 0, 0, 2), 1000, 2000, []byte("flood"))
	buf := bufPool.Get(len(frameBytes), 0)
	copy(buf.Data, frameBytes)
	cls, match, err := tr.Classify(buf.Data, 1, 1)
	if err != nil {
		t.Fatalf("classify: %v", err)
	}
	pkt := &openflow.Packet{Buffer: buf, Classifier: cls, Match: match, InBufferPool: true, Switch: sw}

	ex := NewActionExecutor(bufPool)
	instr := openflow.NewInstructionSet()
	instr.HasApplyActions = true
	instr.ApplyActions = []openflow.Action{{Type: openflow.ActionOutput, Port: openflow.PortFlood}}

	ex.Execute(tr, pkt, instr, sw, mgr)

	if len(p1.TakeSent(0)) != 0 {
		t.Fatalf("flood must not loop back to the ingress port")
	}
	if len(p2.TakeSent(0)) != 1 || len(p3.TakeSent(0)) != 1 {
		t.Fatalf("flood must reach every other attached port exactly once")
	}
}

func TestActionExecutorSetFieldRewritesAndReserializes(t *testing.T) {
	mgr := port.NewManager(nil, nil, time.Hour)
	p2, _ := port.NewPollModePort(2, "p2")
	mgr.Admit(p2)
	p2.Up()

	sw := newTestSwitch(1)
	sw.AttachPort(2)

	bufPool := newTestPool().GetPool(0)
	tr := datapacket.NewTranslator()
	frameBytes := buildUDPFrame(t, macs("aa:bb:cc:dd:ee:01"), macs("aa:bb:cc:dd:ee:02"),
		net.IPv4(10, 0, 0, 1), net.IPv4(10, 0, 0, 2), 1000, 2000, []byte("setfield"))
	buf := bufPool.Get(len(frameBytes), 0)
	copy(buf.Data, frameBytes)
	cls, match, err := tr.Classify(buf.Data, 1, 1)
	if err != nil {
		t.Fatalf("classify: %v", err)
	}
	pkt := &openflow.Packet{Buffer: buf, Classifier: cls, Match: match, InBufferPool: true, Switch: sw}

	newDst := net.IPv4(192, 168, 1, 1).To4()
	ex := NewActionExecutor(bufPool)
	instr := openflow.NewInstructionSet()
	instr.HasApplyActions = true
	instr.ApplyActions = []openflow.Action{
		{Type: openflow.ActionSetField, Field: openflow.FieldValue{Field: openflow.FieldIPv4Dst, Value: newDst}},
		{Type: openflow.ActionOutput, Port: 2},
	}

	ex.Execute(tr, pkt, instr, sw, mgr)

	sent := p2.TakeSent(0)
	if len(sent) != 1 {
		t.Fatalf("expected one frame sent to port 2, got %d", len(sent))
	}
	tr2 := datapacket.NewTranslator()
	rcls, _, err := tr2.Classify(sent[0].Buffer.Bytes(), 1, 1)
	if err != nil {
		t.Fatalf("reclassify rewritten frame: %v", err)
	}
	if rcls.Type&datapacket.HasIPv4 == 0 {
		t.Fatalf("rewritten frame lost its IPv4 layer")
	}
}

func TestActionExecutorGroupSelectPicksLiveBucket(t *testing.T) {
	mgr := port.NewManager(nil, nil, time.Hour)
	p2, _ := port.NewPollModePort(2, "p2")
	mgr.Admit(p2)
	p2.Up()

	sw := newTestSwitch(1)
	sw.AttachPort(2)
	if err := sw.Groups().Add(&openflow.Group{
		ID:   1,
		Type: openflow.GroupIndirect,
		Buckets: []openflow.Bucket{
			{Actions: []openflow.Action{{Type: openflow.ActionOutput, Port: 2}}},
		},
	}); err != nil {
		t.Fatalf("group add: %v", err)
	}

	bufPool := newTestPool().GetPool(0)
	tr := datapacket.NewTranslator()
	frameBytes := buildUDPFrame(t, macs("aa:bb:cc:dd:ee:01"), macs("aa:bb:cc:dd:ee:02"),
		net.IPv4(10, 0, 0, 1), net.IPv4(10, 0, 0, 2), 1000, 2000, []byte("group"))
	buf := bufPool.Get(len(frameBytes), 0)
	copy(buf.Data, frameBytes)
	cls, match, err := tr.Classify(buf.Data, 1, 1)
	if err != nil {
		t.Fatalf("classify: %v", err)
	}
	pkt := &openflow.Packet{Buffer: buf, Classifier: cls, Match: match, InBufferPool: true, Switch: sw}

	ex := NewActionExecutor(bufPool)
	instr := openflow.NewInstructionSet()
	instr.HasApplyActions = true
	instr.ApplyActions = []openflow.Action{{Type: openflow.ActionGroup, GroupID: 1}}

	ex.Execute(tr, pkt, instr, sw, mgr)

	if len(p2.TakeSent(0)) != 1 {
		t.Fatalf("expected the indirect group's bucket to forward to port 2")
	}
}
