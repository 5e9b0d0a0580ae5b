// File: pipeline/executor.go
// Author: momentics <momentics@gmail.com>
//
// ActionExecutor runs the action list a table lookup (or a PACKET_OUT)
// handed back: output (including FLOOD/ALL/CONTROLLER/IN_PORT meta-ports
// and group resolution), header rewrite via datapacket.Translator, and
// TTL manipulation (spec §4.6).

package pipeline

import (
	"hash/fnv"

	"github.com/momentics/xdpcore/api"
	"github.com/momentics/xdpcore/datapacket"
	"github.com/momentics/xdpcore/openflow"
	"github.com/momentics/xdpcore/port"
)

// maxGroupDepth bounds GROUP-action recursion; the group table itself
// already rejects cyclic references at GroupAdd/Modify time, this is
// just a second line of defense against a future engine that skips that
// check.
const maxGroupDepth = 16

// ActionExecutor turns an openflow.InstructionSet's action lists into
// real port I/O and header mutation against a live Packet.
type ActionExecutor struct {
	pool api.BufferPool

	// NotifyController is called instead of a real port send for
	// ActionOutput with port == openflow.PortController. Dispatcher wires
	// this to its own packet-in path so an explicit SEND_TO_CONTROLLER
	// action and a table-miss share the same buffer-store/PIRL gating.
	NotifyController func(dpid uint64, pkt openflow.Packet)
}

// NewActionExecutor returns an executor that clones from pool for any
// output beyond the first.
func NewActionExecutor(pool api.BufferPool) *ActionExecutor {
	return &ActionExecutor{pool: pool}
}

// Execute runs instr's APPLY_ACTIONS followed by its WRITE_ACTIONS
// (already accumulated across table hops by the engine, spec §4.5
// canonical order) against pkt. Execute always takes ownership of pkt:
// when nothing consumed it (an action list with no terminal output), it
// is released here.
func (x *ActionExecutor) Execute(tr *datapacket.Translator, pkt *openflow.Packet, instr openflow.InstructionSet, sw *openflow.Switch, manager *port.Manager) {
	actions := append([]openflow.Action(nil), instr.ApplyActions...)
	if instr.HasWriteActions {
		actions = append(actions, instr.WriteActions...)
	}

	consumed := false
	x.executeActions(tr, pkt, actions, sw, manager, 0, &consumed)
	if !consumed {
		pkt.Release()
	}
}

func (x *ActionExecutor) executeActions(tr *datapacket.Translator, pkt *openflow.Packet, actions []openflow.Action, sw *openflow.Switch, manager *port.Manager, depth int, consumed *bool) {
	for _, a := range actions {
		switch a.Type {
		case openflow.ActionOutput:
			x.output(tr, pkt, a.Port, int(a.Queue), sw, manager, consumed)

		case openflow.ActionGroup:
			if depth >= maxGroupDepth {
				continue
			}
			x.executeGroup(tr, pkt, a.GroupID, sw, manager, depth+1, consumed)

		case openflow.ActionSetField:
			if err := tr.ApplySetField(&pkt.Classifier, a.Field); err == nil {
				x.reserialize(tr, pkt)
			}

		case openflow.ActionSetQueue:
			pkt.QueueID = int(a.Queue)

		case openflow.ActionPushVLAN:
			if tr.PushVLAN(&pkt.Classifier, a.EtherType) == nil {
				x.reserialize(tr, pkt)
			}
		case openflow.ActionPopVLAN:
			if tr.PopVLAN(&pkt.Classifier) == nil {
				x.reserialize(tr, pkt)
			}
		case openflow.ActionPushMPLS:
			if tr.PushMPLS(&pkt.Classifier, a.EtherType) == nil {
				x.reserialize(tr, pkt)
			}
		case openflow.ActionPopMPLS:
			if tr.PopMPLS(&pkt.Classifier, a.EtherType) == nil {
				x.reserialize(tr, pkt)
			}

		case openflow.ActionCopyTTLIn:
			tr.CopyTTLIn(&pkt.Classifier)
			x.reserialize(tr, pkt)
		case openflow.ActionCopyTTLOut:
			tr.CopyTTLOut(&pkt.Classifier)
			x.reserialize(tr, pkt)
		case openflow.ActionDecNwTTL, openflow.ActionDecMPLSTTL:
			if _, err := tr.DecTTL(&pkt.Classifier); err == nil {
				x.reserialize(tr, pkt)
			}
		case openflow.ActionSetNwTTL, openflow.ActionSetMPLSTTL:
			if tr.SetTTL(&pkt.Classifier, a.TTL) == nil {
				x.reserialize(tr, pkt)
			}
		}
	}
}

// reserialize rebuilds pkt.Buffer from the translator's mutated layer
// stack and swaps it in, releasing the previous buffer. Failures are
// left as a no-op -- the packet keeps flowing with its pre-mutation
// bytes rather than being silently dropped mid action-list.
func (x *ActionExecutor) reserialize(tr *datapacket.Translator, pkt *openflow.Packet) {
	nb, err := tr.Serialize(x.pool, pkt.Buffer.NUMANode())
	if err != nil {
		return
	}
	old := pkt.Buffer
	pkt.Buffer = nb
	pkt.InBufferPool = true
	if old.Pool != nil {
		old.Release()
	}
}

// output resolves outPort (a real port id or one of the reserved
// meta-ports) and enqueues pkt's buffer to each resulting port, cloning
// for every use past the first so a FLOOD/ALL fan-out doesn't hand the
// same backing array to two queues at once.
func (x *ActionExecutor) output(tr *datapacket.Translator, pkt *openflow.Packet, outPort uint32, queueID int, sw *openflow.Switch, manager *port.Manager, consumed *bool) {
	if outPort == openflow.PortController {
		if x.NotifyController == nil {
			return
		}
		x.sendToSink(pkt, consumed, func(p openflow.Packet) {
			x.NotifyController(sw.DPID, p)
		})
		return
	}

	for _, pid := range x.resolvePorts(outPort, pkt, sw, manager) {
		p, ok := manager.Get(pid)
		if !ok {
			continue
		}
		if cf, ok := p.(interface{ CanForward() bool }); ok && !cf.CanForward() {
			continue
		}
		x.sendToSink(pkt, consumed, func(dst openflow.Packet) {
			if err := p.Enqueue(port.TxFrame{Buffer: dst.Buffer, QueueID: queueID}, queueID); err != nil {
				dst.Release()
			}
		})
	}
}

// sendToSink hands pkt's current buffer to sink on the first call,
// cloning on every subsequent call so earlier sinks keep their own
// backing storage.
func (x *ActionExecutor) sendToSink(pkt *openflow.Packet, consumed *bool, sink func(openflow.Packet)) {
	if !*consumed {
		sink(*pkt)
		*consumed = true
		return
	}
	sink(pkt.Clone(x.pool))
}

// resolvePorts expands a real port id or reserved meta-port into the set
// of concrete ports to send to (spec §3 reserved ids). FLOOD and ALL both
// exclude the ingress port and any port with no_flood set (spec §4.6
// "Output-to-FLOOD": "{attached ports | up, forward, no_flood=false,
// port_num != in_port}").
func (x *ActionExecutor) resolvePorts(outPort uint32, pkt *openflow.Packet, sw *openflow.Switch, manager *port.Manager) []uint32 {
	switch outPort {
	case openflow.PortInPort:
		return []uint32{pkt.Classifier.PortIn}
	case openflow.PortFlood, openflow.PortAll:
		var out []uint32
		for _, pid := range sw.PortIDs() {
			if pid == pkt.Classifier.PortIn {
				continue
			}
			p, ok := manager.Get(pid)
			if !ok {
				continue
			}
			if cf, ok := p.(interface{ CanFlood() bool }); ok && !cf.CanFlood() {
				continue
			}
			out = append(out, pid)
		}
		return out
	default:
		return []uint32{outPort}
	}
}

// executeGroup resolves group's live buckets (spec §4.7 ALL/SELECT/
// INDIRECT/FAST_FAILOVER semantics) and runs each selected bucket's
// actions as its own sub action-list.
func (x *ActionExecutor) executeGroup(tr *datapacket.Translator, pkt *openflow.Packet, groupID uint32, sw *openflow.Switch, manager *port.Manager, depth int, consumed *bool) {
	g, ok := sw.Groups().Get(groupID)
	if !ok {
		return
	}

	portUp := func(id uint32) bool {
		p, ok := manager.Get(id)
		return ok && p.IsUp()
	}
	groupUp := func(id uint32) bool {
		_, ok := sw.Groups().Get(id)
		return ok
	}

	buckets := g.Select(hashPacket(pkt), portUp, groupUp)
	for _, b := range buckets {
		x.executeActions(tr, pkt, b.Actions, sw, manager, depth, consumed)
	}
}

// hashPacket derives a deterministic load-balancing key for SELECT groups
// from whatever address fields the classifier populated, so the same flow
// always lands on the same bucket.
func hashPacket(pkt *openflow.Packet) uint32 {
	h := fnv.New32a()
	if fv, ok := pkt.Match.Get(openflow.FieldEthSrc); ok {
		h.Write(fv.Value)
	}
	if fv, ok := pkt.Match.Get(openflow.FieldEthDst); ok {
		h.Write(fv.Value)
	}
	if fv, ok := pkt.Match.Get(openflow.FieldIPv4Src); ok {
		h.Write(fv.Value)
	}
	if fv, ok := pkt.Match.Get(openflow.FieldIPv4Dst); ok {
		h.Write(fv.Value)
	}
	return h.Sum32()
}
