// File: pipeline/loopback.go
// Author: momentics <momentics@gmail.com>
//
// LoopbackChannel is a test/development double standing in for a real
// OpenFlow wire controller: it drives openflow.TableEngine and
// pipeline.Dispatcher directly, with no wire codec, and records every
// upward notification so a test can assert on them. Grounded in the
// teacher's fake.Transport/fake.FakeReactor idiom of a predictable,
// inspectable stand-in for a real I/O boundary.

package pipeline

import (
	"sync"

	"github.com/momentics/xdpcore/openflow"
	"github.com/momentics/xdpcore/port"
)

// PacketInEvent is one recorded NotifyPacketIn call.
type PacketInEvent struct {
	DPID   uint64
	Pkt    *openflow.Packet
	Reason openflow.PacketInReason
}

// FlowRemovedEvent is one recorded NotifyFlowRemoved call.
type FlowRemovedEvent struct {
	DPID   uint64
	Entry  *openflow.FlowEntry
	Reason openflow.FlowRemovedReason
}

// PortEvent is one recorded port add/delete/status-change call.
type PortEvent struct {
	DPID   uint64
	PortID uint32
	Up     bool
	Kind   string // "add" | "delete" | "status"
}

// LoopbackChannel implements both openflow.ControllerChannel (downward)
// and openflow.Notifier (upward) against one in-process engine +
// dispatcher pair.
type LoopbackChannel struct {
	engine     openflow.TableEngine
	dispatcher *Dispatcher

	mu           sync.Mutex
	packetIns    []PacketInEvent
	flowRemovals []FlowRemovedEvent
	portEvents   []PortEvent
}

// NewLoopbackChannel returns a channel driving engine for flow/group
// administration and dispatcher for packet-out re-entry.
func NewLoopbackChannel(engine openflow.TableEngine, dispatcher *Dispatcher) *LoopbackChannel {
	return &LoopbackChannel{engine: engine, dispatcher: dispatcher}
}

var _ openflow.ControllerChannel = (*LoopbackChannel)(nil)
var _ openflow.Notifier = (*LoopbackChannel)(nil)

// --- openflow.ControllerChannel ---

func (l *LoopbackChannel) AddFlowEntry(dpid uint64, tableID uint8, entry *openflow.FlowEntry) error {
	return l.engine.AddFlowEntryTable(dpid, tableID, entry)
}

func (l *LoopbackChannel) ModifyFlowEntry(dpid uint64, tableID uint8, criteria openflow.Match, priority uint16, strict bool, instr openflow.InstructionSet, resetCounts bool) (int, error) {
	return l.engine.ModifyFlowEntryTable(dpid, tableID, criteria, priority, strict, instr, resetCounts)
}

func (l *LoopbackChannel) RemoveFlowEntry(dpid uint64, tableID uint8, criteria openflow.Match, priority uint16, strict bool, outPort, outGroup uint32, hasOutPort, hasOutGroup bool) error {
	_, err := l.engine.RemoveFlowEntryTable(dpid, tableID, criteria, priority, strict, outPort, outGroup, hasOutPort, hasOutGroup)
	return err
}

func (l *LoopbackChannel) ProcessPacketOut(dpid uint64, bufferID uint64, inPort uint32, actions []openflow.Action, buffer []byte) error {
	return l.dispatcher.ProcessPacketOut(dpid, bufferID, inPort, actions, buffer)
}

func (l *LoopbackChannel) SetPortDropReceivedConfig(dpid uint64, portNum uint32, value bool) error {
	return l.dispatcher.SetPortConfigFlag(portNum, port.FlagDropReceived, value)
}

func (l *LoopbackChannel) SetPortNoFloodConfig(dpid uint64, portNum uint32, value bool) error {
	return l.dispatcher.SetPortConfigFlag(portNum, port.FlagNoFlood, value)
}

func (l *LoopbackChannel) SetPortForwardConfig(dpid uint64, portNum uint32, value bool) error {
	return l.dispatcher.SetPortConfigFlag(portNum, port.FlagForwardPackets, value)
}

func (l *LoopbackChannel) SetPortGeneratePacketInConfig(dpid uint64, portNum uint32, value bool) error {
	return l.dispatcher.SetPortConfigFlag(portNum, port.FlagGeneratePacketIn, value)
}

func (l *LoopbackChannel) SetPortAdvertiseConfig(dpid uint64, portNum uint32, advertised uint32) error {
	return l.dispatcher.SetPortAdvertiseConfig(portNum, advertised)
}

func (l *LoopbackChannel) SetPipelineConfig(dpid uint64, capabilities openflow.Capabilities, missSendLen uint16) error {
	return l.dispatcher.SetPipelineConfig(dpid, capabilities, missSendLen)
}

func (l *LoopbackChannel) SetTableConfig(dpid uint64, tableID uint8, missBehavior openflow.MissBehavior) error {
	return l.dispatcher.SetTableConfig(dpid, tableID, missBehavior)
}

func (l *LoopbackChannel) GroupAdd(dpid uint64, g *openflow.Group) error {
	return l.engine.GroupAdd(dpid, g)
}

func (l *LoopbackChannel) GroupModify(dpid uint64, id uint32, groupType openflow.GroupType, buckets []openflow.Bucket) error {
	return l.engine.GroupModify(dpid, id, groupType, buckets)
}

func (l *LoopbackChannel) GroupDelete(dpid uint64, id uint32) error {
	_, err := l.engine.GroupDelete(dpid, id)
	return err
}

func (l *LoopbackChannel) GetFlowStats(dpid uint64, tableID uint8) ([]openflow.FlowStats, error) {
	return l.engine.GetFlowStats(dpid, tableID)
}

func (l *LoopbackChannel) GetFlowAggregateStats(dpid uint64, tableID uint8) (openflow.AggregateStats, error) {
	return l.engine.GetAggregateStats(dpid, tableID)
}

func (l *LoopbackChannel) GetGroupStats(dpid uint64, id uint32) (openflow.GroupStats, error) {
	return l.engine.GetGroupStats(dpid, id)
}

func (l *LoopbackChannel) GetGroupDescStats(dpid uint64) ([]openflow.GroupDescStats, error) {
	return l.engine.GetGroupDescStats(dpid)
}

// --- openflow.Notifier ---

func (l *LoopbackChannel) NotifyPacketIn(dpid uint64, pkt *openflow.Packet, reason openflow.PacketInReason) {
	l.mu.Lock()
	l.packetIns = append(l.packetIns, PacketInEvent{DPID: dpid, Pkt: pkt, Reason: reason})
	l.mu.Unlock()
}

func (l *LoopbackChannel) NotifyFlowRemoved(dpid uint64, entry *openflow.FlowEntry, reason openflow.FlowRemovedReason) {
	l.mu.Lock()
	l.flowRemovals = append(l.flowRemovals, FlowRemovedEvent{DPID: dpid, Entry: entry, Reason: reason})
	l.mu.Unlock()
}

func (l *LoopbackChannel) NotifyPortStatusChanged(dpid uint64, portID uint32, up bool) {
	l.mu.Lock()
	l.portEvents = append(l.portEvents, PortEvent{DPID: dpid, PortID: portID, Up: up, Kind: "status"})
	l.mu.Unlock()
}

func (l *LoopbackChannel) NotifyPortAdd(dpid uint64, portID uint32) {
	l.mu.Lock()
	l.portEvents = append(l.portEvents, PortEvent{DPID: dpid, PortID: portID, Kind: "add"})
	l.mu.Unlock()
}

func (l *LoopbackChannel) NotifyPortDelete(dpid uint64, portID uint32) {
	l.mu.Lock()
	l.portEvents = append(l.portEvents, PortEvent{DPID: dpid, PortID: portID, Kind: "delete"})
	l.mu.Unlock()
}

// PacketIns returns a snapshot of every recorded packet-in, for test
// assertions.
func (l *LoopbackChannel) PacketIns() []PacketInEvent {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]PacketInEvent(nil), l.packetIns...)
}

// FlowRemovals returns a snapshot of every recorded flow-removed event.
func (l *LoopbackChannel) FlowRemovals() []FlowRemovedEvent {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]FlowRemovedEvent(nil), l.flowRemovals...)
}

// PortEvents returns a snapshot of every recorded port add/delete/status
// event.
func (l *LoopbackChannel) PortEvents() []PortEvent {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]PortEvent(nil), l.portEvents...)
}
