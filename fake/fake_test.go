package fake

import (
	"testing"

	"github.com/momentics/xdpcore/openflow"
)

func TestBufferPoolTracksInUse(t *testing.T) {
	p := NewBufferPool()
	b := p.Get(64, 1)
	if len(b.Data) != 64 {
		t.Fatalf("expected a 64-byte buffer, got %d", len(b.Data))
	}
	if stats := p.Stats(); stats.InUse != 1 {
		t.Fatalf("expected one buffer in use, got %d", stats.InUse)
	}
	b.Release()
	if stats := p.Stats(); stats.InUse != 0 || stats.TotalFree != 1 {
		t.Fatalf("expected Release to return the buffer to the pool: %+v", stats)
	}
}

func TestTableEngineDefaultsToControllerMiss(t *testing.T) {
	e := NewTableEngine()
	result, err := e.ProcessPacketPipeline(&openflow.Packet{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.TableMiss || result.MissBehavior != openflow.MissController {
		t.Fatalf("expected a default controller-bound table-miss, got %+v", result)
	}
	if e.PipelineHits != 1 {
		t.Fatalf("expected the call to be recorded")
	}
}

func TestTableEngineReturnsConfiguredResult(t *testing.T) {
	e := NewTableEngine()
	instr := openflow.NewInstructionSet()
	instr.HasApplyActions = true
	instr.ApplyActions = []openflow.Action{{Type: openflow.ActionOutput, Port: 3}}
	e.NextResult = openflow.PipelineResult{Matched: true, Instructions: instr}

	result, err := e.ProcessPacketPipeline(&openflow.Packet{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.Matched || len(result.Instructions.ApplyActions) != 1 {
		t.Fatalf("expected the scripted result to be returned verbatim: %+v", result)
	}
}

func TestTableEngineRecordsFlowAdds(t *testing.T) {
	e := NewTableEngine()
	entry := &openflow.FlowEntry{Priority: 5}
	if err := e.AddFlowEntryTable(1, 0, entry); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(e.FlowAdds) != 1 || e.FlowAdds[0].DPID != 1 || e.FlowAdds[0].Entry != entry {
		t.Fatalf("expected the flow-add call to be recorded verbatim: %+v", e.FlowAdds)
	}
}
