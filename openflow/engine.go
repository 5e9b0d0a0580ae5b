// File: openflow/engine.go
// Author: momentics <momentics@gmail.com>
//
// Boundary interfaces (spec §6): TableEngine is the pipeline/matching
// engine contract, ControllerChannel the downward control-plane API,
// Notifier the upward event callbacks. This package also ships one
// concrete TableEngine -- LinearEngine, a priority-sorted linear scan --
// since spec §6.2 calls for exactly one concrete implementation alongside
// the interface.

package openflow

// TableEngine is the pipeline / matching engine contract (spec §6.2).
type TableEngine interface {
	AddFlowEntryTable(dpid uint64, tableID uint8, entry *FlowEntry) error
	ModifyFlowEntryTable(dpid uint64, tableID uint8, criteria Match, priority uint16, strict bool, instr InstructionSet, resetCounts bool) (int, error)
	RemoveFlowEntryTable(dpid uint64, tableID uint8, criteria Match, priority uint16, strict bool, outPort, outGroup uint32, hasOutPort, hasOutGroup bool) ([]*FlowEntry, error)

	ProcessPacketPipeline(pkt *Packet) (PipelineResult, error)
	ProcessPacketOutPipeline(pkt *Packet) (PipelineResult, error)

	GroupAdd(dpid uint64, g *Group) error
	GroupModify(dpid uint64, id uint32, groupType GroupType, buckets []Bucket) error
	GroupDelete(dpid uint64, id uint32) ([]uint32, error)

	GetFlowStats(dpid uint64, tableID uint8) ([]FlowStats, error)
	GetAggregateStats(dpid uint64, tableID uint8) (AggregateStats, error)
	GetGroupStats(dpid uint64, id uint32) (GroupStats, error)
	GetGroupDescStats(dpid uint64) ([]GroupDescStats, error)
}

// PipelineResult is what table traversal decided for a packet (spec §4.5
// terminal actions hand off to the action executor; this result carries
// enough for the caller -- pipeline.Dispatcher -- to do that handoff).
type PipelineResult struct {
	Matched      bool
	TableMiss    bool
	MissBehavior MissBehavior
	Instructions InstructionSet
	MatchedEntry *FlowEntry
}

// ControllerChannel is the downward control-plane surface a controller (or
// a test double) drives (spec §6.1).
type ControllerChannel interface {
	AddFlowEntry(dpid uint64, tableID uint8, entry *FlowEntry) error
	ModifyFlowEntry(dpid uint64, tableID uint8, criteria Match, priority uint16, strict bool, instr InstructionSet, resetCounts bool) (int, error)
	RemoveFlowEntry(dpid uint64, tableID uint8, criteria Match, priority uint16, strict bool, outPort, outGroup uint32, hasOutPort, hasOutGroup bool) error
	ProcessPacketOut(dpid uint64, bufferID uint64, inPort uint32, actions []Action, buffer []byte) error

	// Per-port configuration (spec §6.1 "set_port_{drop_received,no_flood,
	// forward,generate_packet_in,advertise}_config").
	SetPortDropReceivedConfig(dpid uint64, portNum uint32, value bool) error
	SetPortNoFloodConfig(dpid uint64, portNum uint32, value bool) error
	SetPortForwardConfig(dpid uint64, portNum uint32, value bool) error
	SetPortGeneratePacketInConfig(dpid uint64, portNum uint32, value bool) error
	SetPortAdvertiseConfig(dpid uint64, portNum uint32, advertised uint32) error

	// Pipeline/table configuration (spec §6.1 "set_pipeline_config" /
	// "set_table_config").
	SetPipelineConfig(dpid uint64, capabilities Capabilities, missSendLen uint16) error
	SetTableConfig(dpid uint64, tableID uint8, missBehavior MissBehavior) error

	GroupAdd(dpid uint64, g *Group) error
	GroupModify(dpid uint64, id uint32, groupType GroupType, buckets []Bucket) error
	GroupDelete(dpid uint64, id uint32) error

	GetFlowStats(dpid uint64, tableID uint8) ([]FlowStats, error)
	GetFlowAggregateStats(dpid uint64, tableID uint8) (AggregateStats, error)
	GetGroupStats(dpid uint64, id uint32) (GroupStats, error)
	GetGroupDescStats(dpid uint64) ([]GroupDescStats, error)
}

// Notifier is the upward event surface the dispatcher calls into (spec
// §6.1).
type Notifier interface {
	NotifyPacketIn(dpid uint64, pkt *Packet, reason PacketInReason)
	NotifyFlowRemoved(dpid uint64, entry *FlowEntry, reason FlowRemovedReason)
	NotifyPortStatusChanged(dpid uint64, portID uint32, up bool)
	NotifyPortAdd(dpid uint64, portID uint32)
	NotifyPortDelete(dpid uint64, portID uint32)
}

// PacketInReason (spec §4.5 table-miss / explicit SEND_TO_CONTROLLER).
type PacketInReason int

const (
	PacketInNoMatch PacketInReason = iota
	PacketInAction
)

// FlowStats is one flow entry's statistics snapshot (spec §4.7).
type FlowStats struct {
	TableID      uint8
	Priority     uint16
	Cookie       uint64
	Match        Match
	PacketCount  uint64
	ByteCount    uint64
	DurationSec  int64
	Instructions InstructionSet
}

// AggregateStats summarizes every matching entry in one table (spec
// §4.7).
type AggregateStats struct {
	PacketCount uint64
	ByteCount   uint64
	FlowCount   uint32
}

// GroupStats is one group's statistics snapshot.
type GroupStats struct {
	GroupID     uint32
	PacketCount uint64
	ByteCount   uint64
	BucketCount int
}

// GroupDescStats describes a group's static configuration (spec §4.7
// get_group_desc_stats).
type GroupDescStats struct {
	GroupID uint32
	Type    GroupType
	Buckets []Bucket
}
