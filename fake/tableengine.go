// File: fake/tableengine.go
// Author: momentics <momentics@gmail.com>
//
// TableEngine is a scripted openflow.TableEngine double: tests preload
// the PipelineResult a call to ProcessPacketPipeline should return and
// then assert on what was recorded, instead of exercising
// openflow.LinearEngine's real table-lookup logic. Grounded in the
// teacher's FakeReactor -- a minimal double that records calls and
// returns whatever the test configured.

package fake

import (
	"sync"

	"github.com/momentics/xdpcore/openflow"
)

// TableEngine records every call made against it and returns
// test-configured results for the lookup/mutation paths a
// pipeline.Dispatcher test cares about.
type TableEngine struct {
	mu sync.Mutex

	// NextResult/NextErr are returned by the next ProcessPacketPipeline
	// or ProcessPacketOutPipeline call.
	NextResult openflow.PipelineResult
	NextErr    error

	FlowAdds    []FlowAddCall
	GroupAdds   []*openflow.Group
	PipelineHits int
}

// FlowAddCall records one AddFlowEntryTable invocation.
type FlowAddCall struct {
	DPID    uint64
	TableID uint8
	Entry   *openflow.FlowEntry
}

// NewTableEngine returns an engine that reports a table-miss with
// MissController until a test configures NextResult.
func NewTableEngine() *TableEngine {
	return &TableEngine{
		NextResult: openflow.PipelineResult{
			TableMiss:    true,
			MissBehavior: openflow.MissController,
		},
	}
}

func (e *TableEngine) AddFlowEntryTable(dpid uint64, tableID uint8, entry *openflow.FlowEntry) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.FlowAdds = append(e.FlowAdds, FlowAddCall{DPID: dpid, TableID: tableID, Entry: entry})
	return nil
}

func (e *TableEngine) ModifyFlowEntryTable(dpid uint64, tableID uint8, criteria openflow.Match, priority uint16, strict bool, instr openflow.InstructionSet, resetCounts bool) (int, error) {
	return 0, nil
}

func (e *TableEngine) RemoveFlowEntryTable(dpid uint64, tableID uint8, criteria openflow.Match, priority uint16, strict bool, outPort, outGroup uint32, hasOutPort, hasOutGroup bool) ([]*openflow.FlowEntry, error) {
	return nil, nil
}

func (e *TableEngine) ProcessPacketPipeline(pkt *openflow.Packet) (openflow.PipelineResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.PipelineHits++
	return e.NextResult, e.NextErr
}

func (e *TableEngine) ProcessPacketOutPipeline(pkt *openflow.Packet) (openflow.PipelineResult, error) {
	return e.ProcessPacketPipeline(pkt)
}

func (e *TableEngine) GroupAdd(dpid uint64, g *openflow.Group) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.GroupAdds = append(e.GroupAdds, g)
	return nil
}

func (e *TableEngine) GroupModify(dpid uint64, id uint32, groupType openflow.GroupType, buckets []openflow.Bucket) error {
	return nil
}

func (e *TableEngine) GroupDelete(dpid uint64, id uint32) ([]uint32, error) { return nil, nil }

func (e *TableEngine) GetFlowStats(dpid uint64, tableID uint8) ([]openflow.FlowStats, error) {
	return nil, nil
}

func (e *TableEngine) GetAggregateStats(dpid uint64, tableID uint8) (openflow.AggregateStats, error) {
	return openflow.AggregateStats{}, nil
}

func (e *TableEngine) GetGroupStats(dpid uint64, id uint32) (openflow.GroupStats, error) {
	return openflow.GroupStats{}, nil
}

func (e *TableEngine) GetGroupDescStats(dpid uint64) ([]openflow.GroupDescStats, error) {
	return nil, nil
}

var _ openflow.TableEngine = (*TableEngine)(nil)
