// File: openflow/engine_linear.go
// Author: momentics <momentics@gmail.com>
//
// LinearEngine is the one concrete TableEngine this core ships (spec
// §6.2): a priority-sorted linear scan per table, good enough for the
// rule counts a software switch deals with, with GOTO_TABLE hops
// resolved in a loop rather than recursion so there is one stack frame
// per packet regardless of pipeline depth.

package openflow

import (
	"sync"
	"time"
)

// LinearEngine implements TableEngine over a registry of Switch values.
type LinearEngine struct {
	mu       sync.RWMutex
	switches map[uint64]*Switch
}

// NewLinearEngine returns a TableEngine backed by plain priority-sorted
// table scans.
func NewLinearEngine() *LinearEngine {
	return &LinearEngine{switches: make(map[uint64]*Switch)}
}

var _ TableEngine = (*LinearEngine)(nil)

// RegisterSwitch makes sw reachable by its DPID. Not part of the
// TableEngine interface -- callers hold the concrete *LinearEngine to
// populate the registry before handing the interface value off.
func (e *LinearEngine) RegisterSwitch(sw *Switch) {
	e.mu.Lock()
	e.switches[sw.DPID] = sw
	e.mu.Unlock()
}

func (e *LinearEngine) lookupSwitch(dpid uint64) (*Switch, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	sw, ok := e.switches[dpid]
	return sw, ok
}

func (e *LinearEngine) AddFlowEntryTable(dpid uint64, tableID uint8, entry *FlowEntry) error {
	sw, ok := e.lookupSwitch(dpid)
	if !ok {
		return NewError(ErrCodeFlowModBadTable, "unknown dpid")
	}
	t := sw.Table(tableID)
	if t == nil {
		return NewError(ErrCodeFlowModBadTable, "table id out of range").WithContext("table_id", tableID)
	}
	return t.Add(entry)
}

func (e *LinearEngine) ModifyFlowEntryTable(dpid uint64, tableID uint8, criteria Match, priority uint16, strict bool, instr InstructionSet, resetCounts bool) (int, error) {
	sw, ok := e.lookupSwitch(dpid)
	if !ok {
		return 0, NewError(ErrCodeFlowModBadTable, "unknown dpid")
	}
	t := sw.Table(tableID)
	if t == nil {
		return 0, NewError(ErrCodeFlowModBadTable, "table id out of range").WithContext("table_id", tableID)
	}
	return t.Modify(criteria, priority, strict, instr, resetCounts), nil
}

func (e *LinearEngine) RemoveFlowEntryTable(dpid uint64, tableID uint8, criteria Match, priority uint16, strict bool, outPort, outGroup uint32, hasOutPort, hasOutGroup bool) ([]*FlowEntry, error) {
	sw, ok := e.lookupSwitch(dpid)
	if !ok {
		return nil, NewError(ErrCodeFlowModBadTable, "unknown dpid")
	}
	if tableID == TableAll {
		var all []*FlowEntry
		for _, t := range sw.Tables() {
			all = append(all, t.Delete(criteria, priority, strict, outPort, outGroup, hasOutPort, hasOutGroup)...)
		}
		return all, nil
	}
	t := sw.Table(tableID)
	if t == nil {
		return nil, NewError(ErrCodeFlowModBadTable, "table id out of range").WithContext("table_id", tableID)
	}
	return t.Delete(criteria, priority, strict, outPort, outGroup, hasOutPort, hasOutGroup), nil
}

// runPipeline is the shared core of ProcessPacketPipeline and
// ProcessPacketOutPipeline (spec §4.5 / §4.5 packet-out re-entry): walk
// tables from startTable, applying canonical instruction order and
// following GOTO_TABLE until a terminal decision is reached.
func (e *LinearEngine) runPipeline(pkt *Packet, startTable uint8) (PipelineResult, error) {
	sw := pkt.Switch
	if sw == nil {
		return PipelineResult{}, NewError(ErrCodeFlowModBadTable, "packet has no owning switch")
	}

	merged := NewInstructionSet()
	tableID := startTable

	for {
		t := sw.Table(tableID)
		if t == nil {
			return PipelineResult{}, NewError(ErrCodeFlowModBadTable, "pipeline reached invalid table id").WithContext("table_id", tableID)
		}

		entry := t.Lookup(pkt.Match)
		if entry == nil {
			switch t.MissBehavior() {
			case MissContinue:
				tableID++
				if int(tableID) >= sw.NumTables() {
					return PipelineResult{Matched: false, TableMiss: true, MissBehavior: MissDrop, Instructions: merged}, nil
				}
				continue
			default:
				return PipelineResult{Matched: false, TableMiss: true, MissBehavior: t.MissBehavior(), Instructions: merged}, nil
			}
		}

		entry.recordHit(time.Now().UnixNano(), len(pkt.Buffer.Data))
		instr := entry.Instructions

		if instr.HasApplyActions {
			merged.HasApplyActions = true
			merged.ApplyActions = append(merged.ApplyActions, instr.ApplyActions...)
		}
		if instr.HasClearActions {
			pkt.WriteActions = nil
		}
		if instr.HasWriteActions {
			pkt.WriteActions = mergeWriteActions(pkt.WriteActions, instr.WriteActions)
		}
		if instr.HasWriteMetadata {
			pkt.Metadata = (pkt.Metadata &^ instr.MetadataMask) | (instr.Metadata & instr.MetadataMask)
		}
		if instr.HasGotoTable {
			tableID = uint8(instr.GotoTableID)
			continue
		}

		merged.HasWriteActions = len(pkt.WriteActions) > 0
		merged.WriteActions = pkt.WriteActions
		merged.HasWriteMetadata = true
		merged.Metadata = pkt.Metadata
		merged.MetadataMask = ^uint64(0)
		return PipelineResult{Matched: true, MatchedEntry: entry, Instructions: merged}, nil
	}
}

// mergeWriteActions applies WRITE_ACTIONS semantics: at most one action
// per action type survives, the most recent write for that type wins.
func mergeWriteActions(existing []Action, writes []Action) []Action {
	out := append([]Action(nil), existing...)
	for _, w := range writes {
		replaced := false
		for i, e := range out {
			if e.Type == w.Type {
				out[i] = w
				replaced = true
				break
			}
		}
		if !replaced {
			out = append(out, w)
		}
	}
	return out
}

func (e *LinearEngine) ProcessPacketPipeline(pkt *Packet) (PipelineResult, error) {
	return e.runPipeline(pkt, FirstTableID)
}

func (e *LinearEngine) ProcessPacketOutPipeline(pkt *Packet) (PipelineResult, error) {
	return e.runPipeline(pkt, FirstTableID)
}

func (e *LinearEngine) GroupAdd(dpid uint64, g *Group) error {
	sw, ok := e.lookupSwitch(dpid)
	if !ok {
		return NewError(ErrCodeUnknownGroup, "unknown dpid")
	}
	return sw.Groups().Add(g)
}

func (e *LinearEngine) GroupModify(dpid uint64, id uint32, groupType GroupType, buckets []Bucket) error {
	sw, ok := e.lookupSwitch(dpid)
	if !ok {
		return NewError(ErrCodeUnknownGroup, "unknown dpid")
	}
	return sw.Groups().Modify(id, groupType, buckets)
}

func (e *LinearEngine) GroupDelete(dpid uint64, id uint32) ([]uint32, error) {
	sw, ok := e.lookupSwitch(dpid)
	if !ok {
		return nil, NewError(ErrCodeUnknownGroup, "unknown dpid")
	}
	return sw.Groups().Delete(id), nil
}

func (e *LinearEngine) GetFlowStats(dpid uint64, tableID uint8) ([]FlowStats, error) {
	sw, ok := e.lookupSwitch(dpid)
	if !ok {
		return nil, NewError(ErrCodeFlowModBadTable, "unknown dpid")
	}
	t := sw.Table(tableID)
	if t == nil {
		return nil, NewError(ErrCodeFlowModBadTable, "table id out of range")
	}
	entries := t.Entries()
	out := make([]FlowStats, 0, len(entries))
	for _, en := range entries {
		pkts, bytes := en.stats()
		out = append(out, FlowStats{
			TableID:      tableID,
			Priority:     en.Priority,
			Cookie:       en.Cookie,
			Match:        en.Match,
			PacketCount:  pkts,
			ByteCount:    bytes,
			DurationSec:  int64(time.Since(en.InstalledAt).Seconds()),
			Instructions: en.Instructions,
		})
	}
	return out, nil
}

func (e *LinearEngine) GetAggregateStats(dpid uint64, tableID uint8) (AggregateStats, error) {
	stats, err := e.GetFlowStats(dpid, tableID)
	if err != nil {
		return AggregateStats{}, err
	}
	var agg AggregateStats
	for _, s := range stats {
		agg.PacketCount += s.PacketCount
		agg.ByteCount += s.ByteCount
		agg.FlowCount++
	}
	return agg, nil
}

func (e *LinearEngine) GetGroupStats(dpid uint64, id uint32) (GroupStats, error) {
	sw, ok := e.lookupSwitch(dpid)
	if !ok {
		return GroupStats{}, NewError(ErrCodeUnknownGroup, "unknown dpid")
	}
	g, ok := sw.Groups().Get(id)
	if !ok {
		return GroupStats{}, NewError(ErrCodeUnknownGroup, "group not found").WithContext("group_id", id)
	}
	pkts, bytes := g.stats()
	return GroupStats{GroupID: id, PacketCount: pkts, ByteCount: bytes, BucketCount: len(g.Buckets)}, nil
}

func (e *LinearEngine) GetGroupDescStats(dpid uint64) ([]GroupDescStats, error) {
	sw, ok := e.lookupSwitch(dpid)
	if !ok {
		return nil, NewError(ErrCodeUnknownGroup, "unknown dpid")
	}
	groups := sw.Groups().All()
	out := make([]GroupDescStats, 0, len(groups))
	for _, g := range groups {
		out = append(out, GroupDescStats{GroupID: g.ID, Type: g.Type, Buckets: g.Buckets})
	}
	return out, nil
}
