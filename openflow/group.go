// File: openflow/group.go
// Author: momentics <momentics@gmail.com>
//
// Group table administration (spec §4.7): ALL/SELECT/INDIRECT/
// FAST_FAILOVER semantics, loop detection, and cascading cleanup of
// dangling flow-entry references on delete.

package openflow

import "sync"

// GroupType (spec §3).
type GroupType int

const (
	GroupAll GroupType = iota
	GroupSelect
	GroupIndirect
	GroupFastFailover
)

// Bucket is one action list within a group (spec §3). WatchPort/WatchGroup
// are only meaningful for FAST_FAILOVER groups.
type Bucket struct {
	Weight     uint16
	WatchPort  uint32
	WatchGroup uint32
	Actions    []Action
}

// liveFastFailover reports whether the bucket's watched port/group is
// live, per portUp/groupUp lookups supplied by the caller.
func (b Bucket) liveFastFailover(portUp func(uint32) bool, groupUp func(uint32) bool) bool {
	if b.WatchPort != 0 && b.WatchPort != PortAny {
		return portUp(b.WatchPort)
	}
	if b.WatchGroup != 0 && b.WatchGroup != GroupAny {
		return groupUp(b.WatchGroup)
	}
	return true
}

// Sentinels for "no watch" (spec §3).
const (
	PortAny  uint32 = 0xFFFFFFFF
	GroupAny uint32 = 0xFFFFFFFF
)

// Group is one group-table entry.
type Group struct {
	ID      uint32
	Type    GroupType
	Buckets []Bucket

	mu          sync.Mutex
	packetCount uint64
	byteCount   uint64
}

func (g *Group) recordHit(length int) {
	g.mu.Lock()
	g.packetCount++
	g.byteCount += uint64(length)
	g.mu.Unlock()
}

func (g *Group) stats() (pkts, bytes uint64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.packetCount, g.byteCount
}

// Select picks the bucket(s) a packet should be sent through, given the
// group's Type and a hash already computed by the caller for SELECT
// load-balancing (spec §4.6: "select groups load-balance by a hash of
// caller-chosen fields, not by group-table internals").
//
// ALL returns every bucket (fan-out); SELECT returns one bucket chosen by
// selectHash; INDIRECT returns its single bucket; FAST_FAILOVER returns
// the first live bucket in order.
func (g *Group) Select(selectHash uint32, portUp func(uint32) bool, groupUp func(uint32) bool) []Bucket {
	switch g.Type {
	case GroupAll:
		return g.Buckets
	case GroupIndirect:
		if len(g.Buckets) == 0 {
			return nil
		}
		return g.Buckets[:1]
	case GroupSelect:
		if len(g.Buckets) == 0 {
			return nil
		}
		return g.Buckets[selectHash%uint32(len(g.Buckets)) : selectHash%uint32(len(g.Buckets))+1]
	case GroupFastFailover:
		for _, b := range g.Buckets {
			if b.liveFastFailover(portUp, groupUp) {
				return []Bucket{b}
			}
		}
		return nil
	default:
		return nil
	}
}

// GroupTable holds a switch's groups (spec §4.7).
type GroupTable struct {
	mu     sync.RWMutex
	groups map[uint32]*Group
}

// NewGroupTable returns an empty group table.
func NewGroupTable() *GroupTable {
	return &GroupTable{groups: make(map[uint32]*Group)}
}

// Add installs a new group, failing if id already exists or a bucket
// references id itself (direct loop) or the group's type/bucket shape is
// invalid.
func (t *GroupTable) Add(g *Group) error {
	if err := validateGroup(g); err != nil {
		return err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if _, exists := t.groups[g.ID]; exists {
		return NewError(ErrCodeGroupExists, "group already exists").WithContext("group_id", g.ID)
	}
	if err := t.detectLoopLocked(g); err != nil {
		return err
	}
	t.groups[g.ID] = g
	return nil
}

// Modify replaces an existing group's type/buckets in place.
func (t *GroupTable) Modify(id uint32, newType GroupType, buckets []Bucket) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	g, ok := t.groups[id]
	if !ok {
		return NewError(ErrCodeUnknownGroup, "group does not exist").WithContext("group_id", id)
	}
	candidate := &Group{ID: id, Type: newType, Buckets: buckets}
	if err := validateGroup(candidate); err != nil {
		return err
	}
	if err := t.detectLoopLocked(candidate); err != nil {
		return err
	}
	g.Type = newType
	g.Buckets = buckets
	return nil
}

// Delete removes a group (or, with id == GroupAny, every group), returning
// the ids actually removed so the caller can cascade flow-entry cleanup.
func (t *GroupTable) Delete(id uint32) []uint32 {
	t.mu.Lock()
	defer t.mu.Unlock()

	var removed []uint32
	if id == GroupAny {
		for gid := range t.groups {
			removed = append(removed, gid)
		}
		t.groups = make(map[uint32]*Group)
		return removed
	}
	if _, ok := t.groups[id]; ok {
		delete(t.groups, id)
		removed = append(removed, id)
	}
	return removed
}

// Get returns the group with the given id.
func (t *GroupTable) Get(id uint32) (*Group, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	g, ok := t.groups[id]
	return g, ok
}

// All returns a snapshot of every group, for stats collection.
func (t *GroupTable) All() []*Group {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]*Group, 0, len(t.groups))
	for _, g := range t.groups {
		out = append(out, g)
	}
	return out
}

// detectLoopLocked walks candidate's GROUP actions transitively and fails
// if the walk revisits candidate.ID (spec §4.7 "group chains must not
// cycle"). Caller holds t.mu.
func (t *GroupTable) detectLoopLocked(candidate *Group) error {
	visited := map[uint32]bool{candidate.ID: true}
	var walk func(g *Group) error
	walk = func(g *Group) error {
		for _, b := range g.Buckets {
			for _, a := range b.Actions {
				if a.Type != ActionGroup {
					continue
				}
				if visited[a.GroupID] {
					return NewError(ErrCodeGroupLoop, "group reference cycle detected").WithContext("group_id", a.GroupID)
				}
				next, ok := t.groups[a.GroupID]
				if !ok {
					continue
				}
				visited[a.GroupID] = true
				if err := walk(next); err != nil {
					return err
				}
			}
		}
		return nil
	}
	return walk(candidate)
}

func validateGroup(g *Group) error {
	switch g.Type {
	case GroupAll, GroupSelect, GroupFastFailover:
		// zero buckets is legal (drops everything)
	case GroupIndirect:
		if len(g.Buckets) != 1 {
			return NewError(ErrCodeInvalidBucket, "indirect group requires exactly one bucket").WithContext("group_id", g.ID)
		}
	default:
		return NewError(ErrCodeInvalidGroupType, "unknown group type").WithContext("group_id", g.ID)
	}
	if g.Type == GroupFastFailover {
		for _, b := range g.Buckets {
			if b.WatchPort == 0 && b.WatchGroup == 0 {
				return NewError(ErrCodeInvalidBucket, "fast-failover bucket requires a watch_port or watch_group").WithContext("group_id", g.ID)
			}
		}
	}
	return nil
}
