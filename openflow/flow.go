// File: openflow/flow.go
// Author: momentics <momentics@gmail.com>
//
// Flow entry and flow table (spec §3 "Flow entry", §4.7 flow-mod
// administration).

package openflow

import (
	"sync"
	"sync/atomic"
	"time"
)

// FlowModFlags (spec §3).
type FlowModFlags uint16

const (
	FlagSendFlowRem FlowModFlags = 1 << iota
	FlagCheckOverlap
	FlagResetCounts
	FlagNoPktCounts
	FlagNoBytCounts
)

// FlowRemovedReason (spec §5 "Idle/hard timeouts... produce FLOW_REMOVED").
type FlowRemovedReason int

const (
	ReasonIdleTimeout FlowRemovedReason = iota
	ReasonHardTimeout
	ReasonDelete
	ReasonGroupDelete
)

// FlowEntry is one row of a flow table (spec §3).
type FlowEntry struct {
	Priority     uint16
	Cookie       uint64
	CookieMask   uint64
	IdleTimeout  uint16
	HardTimeout  uint16
	Flags        FlowModFlags
	Match        Match
	Instructions InstructionSet

	InstalledAt time.Time

	mu           sync.Mutex
	packetCount  uint64
	byteCount    uint64
	lastHitMonoN int64
}

// stats reads the counters under lock (spec §4.7 "never interleaving
// partial updates").
func (e *FlowEntry) stats() (pkts, bytes uint64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.packetCount, e.byteCount
}

// recordHit increments counters on a successful match and refreshes the
// idle-timeout clock. nowMono is the caller's clock reading in Unix
// nanoseconds (time.Now().UnixNano()), the same scale as InstalledAt;
// it is passed in rather than read here so callers stay testable without
// wall time.
func (e *FlowEntry) recordHit(nowMono int64, length int) {
	e.mu.Lock()
	e.packetCount++
	e.byteCount += uint64(length)
	e.lastHitMonoN = nowMono
	e.mu.Unlock()
}

// expired reports whether e should be removed given the current time in
// Unix nanoseconds, per its idle/hard timeout configuration.
func (e *FlowEntry) expired(nowMono int64) (bool, FlowRemovedReason) {
	if e.HardTimeout > 0 {
		installedNs := e.InstalledAt.UnixNano()
		if nowMono-installedNs >= int64(e.HardTimeout)*int64(time.Second) {
			return true, ReasonHardTimeout
		}
	}
	if e.IdleTimeout > 0 {
		e.mu.Lock()
		last := e.lastHitMonoN
		if last == 0 {
			last = e.InstalledAt.UnixNano()
		}
		e.mu.Unlock()
		if nowMono-last >= int64(e.IdleTimeout)*int64(time.Second) {
			return true, ReasonIdleTimeout
		}
	}
	return false, 0
}

// resetCounts zeroes the counters (FlagResetCounts on MODIFY).
func (e *FlowEntry) resetCounts() {
	e.mu.Lock()
	e.packetCount = 0
	e.byteCount = 0
	e.mu.Unlock()
}

// Table is a single flow table within a Switch's pipeline (spec §4.7).
// Concurrency: entries are published behind a pointer swap on mutation so
// a traversal in progress observes either the pre- or post-mutation slice
// (spec §5 "pipeline atomicity"), never a torn read. MissBehavior is an
// atomic.Int32 for the same reason: set_table_config (spec §6.1) can
// change it concurrently with a hot-path lookup.
type Table struct {
	ID uint8

	missBehavior atomic.Int32

	mu      sync.RWMutex
	entries []*FlowEntry // priority-descending
}

// MissBehavior controls table-miss handling (spec §4.5).
type MissBehavior int

const (
	MissController MissBehavior = iota
	MissContinue
	MissDrop
)

// NewTable creates an empty table with the given id.
func NewTable(id uint8) *Table {
	t := &Table{ID: id}
	t.missBehavior.Store(int32(MissController))
	return t
}

// MissBehavior reports the table's current miss behavior.
func (t *Table) MissBehavior() MissBehavior {
	return MissBehavior(t.missBehavior.Load())
}

// SetMissBehavior applies a controller's set_table_config update (spec
// §6.1 "set_table_config(table_id, miss_config)").
func (t *Table) SetMissBehavior(b MissBehavior) {
	t.missBehavior.Store(int32(b))
}

// Lookup returns the highest-priority entry matching fields, or nil on a
// miss. Snapshotting entries under RLock gives traversal atomicity with
// respect to concurrent Add/Modify/Delete.
func (t *Table) Lookup(fields Match) *FlowEntry {
	t.mu.RLock()
	entries := t.entries
	t.mu.RUnlock()

	for _, e := range entries {
		if e.Match.Subset(fields) {
			return e
		}
	}
	return nil
}

// Add inserts entry, failing with an ErrCodeFlowModOverlap error if FlagCheckOverlap is
// set and an existing same-priority entry overlaps (spec §4.7).
func (t *Table) Add(entry *FlowEntry) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if entry.Flags&FlagCheckOverlap != 0 {
		for _, e := range t.entries {
			if e.Priority == entry.Priority && e.Match.Overlaps(entry.Match) {
				return NewError(ErrCodeFlowModOverlap, "overlapping entry at same priority")
			}
		}
	}

	entry.InstalledAt = time.Now()
	t.entries = insertByPriority(t.entries, entry)
	return nil
}

func insertByPriority(entries []*FlowEntry, e *FlowEntry) []*FlowEntry {
	i := 0
	for ; i < len(entries); i++ {
		if entries[i].Priority < e.Priority {
			break
		}
	}
	out := make([]*FlowEntry, 0, len(entries)+1)
	out = append(out, entries[:i]...)
	out = append(out, e)
	out = append(out, entries[i:]...)
	return out
}

// Modify updates matching entries' instructions (spec §4.7 strict /
// non-strict semantics). strict requires {match, priority} equality;
// non-strict matches any entry whose match is a superset of criteria.
func (t *Table) Modify(criteria Match, priority uint16, strict bool, newInstr InstructionSet, resetCounts bool) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	n := 0
	for _, e := range t.entries {
		if strict {
			if e.Priority != priority || !e.Match.Equal(criteria) {
				continue
			}
		} else if !criteria.Subset(e.Match) {
			continue
		}
		e.Instructions = newInstr
		if resetCounts {
			e.resetCounts()
		}
		n++
	}
	return n
}

// Delete removes matching entries, optionally restricted to out_port/
// out_group references (spec §4.7). Returns the removed entries so
// callers can produce FLOW_REMOVED notifications and cascade group
// reference cleanup.
func (t *Table) Delete(criteria Match, priority uint16, strict bool, outPort uint32, outGroup uint32, hasOutPort, hasOutGroup bool) []*FlowEntry {
	t.mu.Lock()
	defer t.mu.Unlock()

	var kept, removed []*FlowEntry
	for _, e := range t.entries {
		match := false
		if strict {
			match = e.Priority == priority && e.Match.Equal(criteria)
		} else {
			match = criteria.Subset(e.Match)
		}
		if match && hasOutPort && !entryReferencesPort(e, outPort) {
			match = false
		}
		if match && hasOutGroup && !entryReferencesGroup(e, outGroup) {
			match = false
		}
		if match {
			removed = append(removed, e)
		} else {
			kept = append(kept, e)
		}
	}
	t.entries = kept
	return removed
}

// Entries returns a snapshot of all entries, for stats collection.
func (t *Table) Entries() []*FlowEntry {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]*FlowEntry, len(t.entries))
	copy(out, t.entries)
	return out
}

// ExpireEntries scans for idle/hard timeout expiry at nowMono (Unix
// nanoseconds) and removes
// them, returning the expired entries with their removal reason (spec §5
// "background timer... produces FLOW_REMOVED notifications").
func (t *Table) ExpireEntries(nowMono int64) []ExpiredEntry {
	t.mu.Lock()
	defer t.mu.Unlock()

	var expired []ExpiredEntry
	kept := t.entries[:0:0]
	for _, e := range t.entries {
		if ok, reason := e.expired(nowMono); ok {
			expired = append(expired, ExpiredEntry{Entry: e, Reason: reason})
			continue
		}
		kept = append(kept, e)
	}
	t.entries = kept
	return expired
}

// ExpiredEntry pairs a removed entry with why it was removed.
type ExpiredEntry struct {
	Entry  *FlowEntry
	Reason FlowRemovedReason
}

func entryReferencesPort(e *FlowEntry, port uint32) bool {
	for _, a := range e.Instructions.ApplyActions {
		if a.Type == ActionOutput && a.Port == port {
			return true
		}
	}
	for _, a := range e.Instructions.WriteActions {
		if a.Type == ActionOutput && a.Port == port {
			return true
		}
	}
	return false
}

func entryReferencesGroup(e *FlowEntry, group uint32) bool {
	for _, a := range e.Instructions.ApplyActions {
		if a.Type == ActionGroup && a.GroupID == group {
			return true
		}
	}
	for _, a := range e.Instructions.WriteActions {
		if a.Type == ActionGroup && a.GroupID == group {
			return true
		}
	}
	return false
}

// TableAll is the 0xFF sentinel meaning "all tables" (spec §4.7).
const TableAll uint8 = 0xFF
