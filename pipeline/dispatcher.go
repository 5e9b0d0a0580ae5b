// File: pipeline/dispatcher.go
// Author: momentics <momentics@gmail.com>
//
// Dispatcher implements sched.Dispatcher: it classifies an RX frame into
// an openflow.Packet, runs it through table lookup, and either executes
// the resulting action list or routes a table-miss through PIRL gating
// to the controller notifier (spec §4.5/§4.9). It also owns the
// PACKET_OUT re-entry path (spec §4.5 buffer-id retrieval).

package pipeline

import (
	"encoding/binary"
	"fmt"
	"sync"
	"time"

	"github.com/momentics/xdpcore/api"
	"github.com/momentics/xdpcore/datapacket"
	"github.com/momentics/xdpcore/openflow"
	"github.com/momentics/xdpcore/pirl"
	"github.com/momentics/xdpcore/port"
)

// dpidAttacher is satisfied by every concrete port.Port via its embedded
// port.SwitchPort -- the Port interface itself stays DPID-agnostic (spec
// §4.2 note: port package never imports openflow).
type dpidAttacher interface {
	AttachedDPID() (uint64, bool)
}

// Dispatcher wires a table engine, a port manager, and a controller
// notifier together. One Dispatcher serves every core in a sched.Scheduler
// concurrently; the only per-call mutable state is a pooled
// datapacket.Translator, so there is no lock on the hot classify/lookup
// path.
type Dispatcher struct {
	engine   openflow.TableEngine
	manager  *port.Manager
	notifier openflow.Notifier
	pool     api.BufferPool
	executor *ActionExecutor
	buffers  *BufferStore

	translators sync.Pool

	switchesMu sync.RWMutex
	switches   map[uint64]*openflow.Switch

	limitersMu   sync.Mutex
	limiters     map[uint64]*pirl.Limiter
	defaultRate  int64
	defaultBurst int64
}

// NewDispatcher builds a Dispatcher. defaultRate/defaultBurst seed a new
// per-DPID pirl.Limiter the first time that switch emits a packet-in;
// defaultRate == pirl.DisabledRate disables limiting.
func NewDispatcher(engine openflow.TableEngine, manager *port.Manager, notifier openflow.Notifier, pool api.BufferPool, defaultRate, defaultBurst int64) *Dispatcher {
	d := &Dispatcher{
		engine:       engine,
		manager:      manager,
		notifier:     notifier,
		pool:         pool,
		buffers:      NewBufferStore(30 * time.Second),
		switches:     make(map[uint64]*openflow.Switch),
		limiters:     make(map[uint64]*pirl.Limiter),
		defaultRate:  defaultRate,
		defaultBurst: defaultBurst,
	}
	d.translators.New = func() any { return datapacket.NewTranslator() }
	d.executor = NewActionExecutor(pool)
	d.executor.NotifyController = d.emitPacketIn
	return d
}

// RegisterSwitch makes sw reachable by DPID for packet construction and
// PACKET_OUT re-entry. Mirrors openflow.LinearEngine.RegisterSwitch --
// Dispatcher needs its own copy since TableEngine's interface
// deliberately hides the *Switch registry from callers.
func (d *Dispatcher) RegisterSwitch(sw *openflow.Switch) {
	d.switchesMu.Lock()
	d.switches[sw.DPID] = sw
	d.switchesMu.Unlock()
}

func (d *Dispatcher) switchFor(dpid uint64) (*openflow.Switch, bool) {
	d.switchesMu.RLock()
	defer d.switchesMu.RUnlock()
	sw, ok := d.switches[dpid]
	return sw, ok
}

func (d *Dispatcher) limiterFor(dpid uint64) *pirl.Limiter {
	d.limitersMu.Lock()
	defer d.limitersMu.Unlock()
	l, ok := d.limiters[dpid]
	if !ok {
		l = pirl.NewLimiter(d.defaultRate, d.defaultBurst)
		d.limiters[dpid] = l
	}
	return l
}

// SetLimiter installs an explicit rate/burst for dpid, overriding the
// default the next packet-in would otherwise create (spec §4.9
// per-switch packet-in rate configuration).
func (d *Dispatcher) SetLimiter(dpid uint64, maxRate, capacity int64) {
	d.limitersMu.Lock()
	defer d.limitersMu.Unlock()
	d.limiters[dpid] = pirl.NewLimiter(maxRate, capacity)
}

// Buffers exposes the packet-out buffer store, mainly for tests and for
// a sweep goroutine in the runtime facade.
func (d *Dispatcher) Buffers() *BufferStore { return d.buffers }

// DispatchRx implements sched.Dispatcher. It is called from every core's
// poll loop concurrently.
func (d *Dispatcher) DispatchRx(p port.Port, frame port.RxFrame) {
	attacher, ok := p.(dpidAttacher)
	if !ok {
		frame.Buffer.Release()
		return
	}
	dpid, attached := attacher.AttachedDPID()
	if !attached {
		frame.Buffer.Release()
		return
	}
	if dr, ok := p.(interface{ DropReceived() bool }); ok && dr.DropReceived() {
		frame.Buffer.Release()
		return
	}
	sw, ok := d.switchFor(dpid)
	if !ok {
		frame.Buffer.Release()
		return
	}

	tr := d.translators.Get().(*datapacket.Translator)
	defer d.translators.Put(tr)

	cls, match, err := tr.Classify(frame.Buffer.Bytes(), frame.PortIn, frame.PhyPortIn)
	if err != nil {
		frame.Buffer.Release()
		return
	}

	pkt := &openflow.Packet{
		Buffer:       frame.Buffer,
		Classifier:   cls,
		Match:        match,
		InBufferPool: true,
		Switch:       sw,
		RxTime:       frame.RxTime,
	}

	result, err := d.engine.ProcessPacketPipeline(pkt)
	if err != nil {
		pkt.Release()
		return
	}

	if result.TableMiss {
		switch result.MissBehavior {
		case openflow.MissController:
			d.emitPacketIn(dpid, *pkt)
		default:
			pkt.Release()
		}
		return
	}

	d.executor.Execute(tr, pkt, result.Instructions, sw, d.manager)
}

// emitPacketIn applies the ingress port's of_generate_packet_in gate (spec
// §3) and PIRL gating (spec §4.9) and, if admitted, stashes pkt in the
// buffer store and notifies the controller. It takes ownership of pkt: on
// denial it is released, on admission it is handed to the buffer store.
func (d *Dispatcher) emitPacketIn(dpid uint64, pkt openflow.Packet) {
	if !d.canGeneratePacketIn(pkt) {
		pkt.Release()
		return
	}
	if !d.limiterFor(dpid).Allow() {
		pkt.Release()
		return
	}
	pkt.BufferID = d.buffers.Store(pkt)
	d.notifier.NotifyPacketIn(dpid, &pkt, openflow.PacketInNoMatch)
}

// canGeneratePacketIn resolves pkt's ingress port from its match and
// consults its of_generate_packet_in flag (spec §3). A packet whose ingress
// port can't be resolved (e.g. a re-entrant PACKET_OUT re-classification)
// is allowed through rather than silently dropped.
func (d *Dispatcher) canGeneratePacketIn(pkt openflow.Packet) bool {
	fv, ok := pkt.Match.Get(openflow.FieldInPort)
	if !ok || len(fv.Value) < 4 {
		return true
	}
	p, ok := d.manager.Get(binary.BigEndian.Uint32(fv.Value))
	if !ok {
		return true
	}
	gp, ok := p.(interface{ GeneratePacketIn() bool })
	if !ok {
		return true
	}
	return gp.GeneratePacketIn()
}

// ProcessPacketOut implements the downward half of
// openflow.ControllerChannel (spec §4.5 packet-out): resolve bufferID or
// decode an inline buffer, reject an action list with no terminal
// output, and re-enter the action executor directly -- no table lookup,
// since PACKET_OUT actions are the controller's explicit instruction.
func (d *Dispatcher) ProcessPacketOut(dpid uint64, bufferID uint64, inPort uint32, actions []openflow.Action, buffer []byte) error {
	if !hasTerminalAction(actions) {
		if bufferID != 0 {
			if stored, found := d.buffers.Retrieve(bufferID); found {
				stored.Release()
			}
		}
		return fmt.Errorf("pipeline: packet-out with no OUTPUT/GROUP action is rejected (spec §4.5 avoid buffer leaks)")
	}

	sw, ok := d.switchFor(dpid)
	if !ok {
		return fmt.Errorf("pipeline: packet-out for unknown dpid %d", dpid)
	}

	var pkt openflow.Packet
	tr := d.translators.Get().(*datapacket.Translator)
	defer d.translators.Put(tr)

	if bufferID != 0 {
		stored, found := d.buffers.Retrieve(bufferID)
		if !found {
			return fmt.Errorf("pipeline: unknown or expired buffer id %d", bufferID)
		}
		pkt = stored
		cls, match, err := tr.Classify(pkt.Buffer.Bytes(), inPort, inPort)
		if err != nil {
			pkt.Release()
			return fmt.Errorf("pipeline: reclassify buffered packet: %w", err)
		}
		pkt.Classifier, pkt.Match = cls, match
	} else {
		if len(buffer) == 0 {
			return fmt.Errorf("pipeline: packet-out with no buffer_id and no inline data")
		}
		buf := d.pool.Get(len(buffer), 0)
		copy(buf.Data, buffer)
		cls, match, err := tr.Classify(buf.Data, inPort, inPort)
		if err != nil {
			buf.Release()
			return fmt.Errorf("pipeline: classify packet-out payload: %w", err)
		}
		pkt = openflow.Packet{Buffer: buf, Classifier: cls, Match: match, InBufferPool: true, Switch: sw}
	}

	pkt.Switch = sw
	instr := openflow.NewInstructionSet()
	instr.HasApplyActions = true
	instr.ApplyActions = actions

	d.executor.Execute(tr, &pkt, instr, sw, d.manager)
	return nil
}

// SetPortConfigFlag toggles a single port config flag (spec §6.1
// "set_port_{drop_received,no_flood,forward,generate_packet_in}_config").
func (d *Dispatcher) SetPortConfigFlag(portID uint32, flag port.ConfigFlags, value bool) error {
	p, ok := d.manager.Get(portID)
	if !ok {
		return fmt.Errorf("pipeline: unknown port %d", portID)
	}
	setter, ok := p.(interface{ SetConfigFlag(port.ConfigFlags, bool) })
	if !ok {
		return fmt.Errorf("pipeline: port %d does not support config flags", portID)
	}
	setter.SetConfigFlag(flag, value)
	return nil
}

// SetPortAdvertiseConfig applies a controller's advertised-features update
// (spec §6.1 "set_port_advertise_config").
func (d *Dispatcher) SetPortAdvertiseConfig(portID uint32, advertised uint32) error {
	p, ok := d.manager.Get(portID)
	if !ok {
		return fmt.Errorf("pipeline: unknown port %d", portID)
	}
	setter, ok := p.(interface{ SetAdvertised(uint32) })
	if !ok {
		return fmt.Errorf("pipeline: port %d does not support advertise config", portID)
	}
	setter.SetAdvertised(advertised)
	return nil
}

// SetPipelineConfig applies a controller's capabilities/miss_send_len
// update to dpid (spec §6.1 "set_pipeline_config").
func (d *Dispatcher) SetPipelineConfig(dpid uint64, capabilities openflow.Capabilities, missSendLen uint16) error {
	sw, ok := d.switchFor(dpid)
	if !ok {
		return fmt.Errorf("pipeline: unknown dpid %d", dpid)
	}
	sw.SetPipelineConfig(capabilities, missSendLen)
	return nil
}

// SetTableConfig applies a controller's per-table miss-behavior update
// (spec §6.1 "set_table_config(table_id, miss_config)").
func (d *Dispatcher) SetTableConfig(dpid uint64, tableID uint8, missBehavior openflow.MissBehavior) error {
	sw, ok := d.switchFor(dpid)
	if !ok {
		return fmt.Errorf("pipeline: unknown dpid %d", dpid)
	}
	t := sw.Table(tableID)
	if t == nil {
		return fmt.Errorf("pipeline: dpid %d has no table %d", dpid, tableID)
	}
	t.SetMissBehavior(missBehavior)
	return nil
}

// hasTerminalAction reports whether actions contains at least one OUTPUT or
// GROUP action -- the terminal step spec §4.5 requires of every
// packet-out, so a stored buffer is never silently consumed by a
// SET_FIELD-only action list.
func hasTerminalAction(actions []openflow.Action) bool {
	for _, a := range actions {
		if a.Type == openflow.ActionOutput || a.Type == openflow.ActionGroup {
			return true
		}
	}
	return false
}

var _ interface {
	DispatchRx(p port.Port, frame port.RxFrame)
} = (*Dispatcher)(nil)
