// File: openflow/switch.go
// Author: momentics <momentics@gmail.com>
//
// Switch is the logical OpenFlow switch (spec §3, §4.5): a table
// pipeline, a group table, and the attached-port set a ControllerChannel
// reasons about. It deliberately holds only port identifiers, not
// port.Port values -- the port package never imports openflow, so
// attachment is tracked here as plain uint32 port numbers and resolved
// against the real port.Manager one layer up, in pipeline.

package openflow

import (
	"sync"
)

// Capabilities (spec §3, subset relevant to this core).
type Capabilities uint32

const (
	CapFlowStats Capabilities = 1 << iota
	CapTableStats
	CapPortStats
	CapGroupStats
	CapQueueStats
)

// Switch owns the full admin-plane state for one datapath.
type Switch struct {
	DPID    uint64
	Name    string
	Version uint8 // OpenFlow wire version this switch advertises

	Capabilities Capabilities
	MissSendLen  uint16

	tables     []*Table
	groupTable *GroupTable

	mu    sync.RWMutex
	ports map[uint32]bool
}

// NewSwitch creates a switch with n flow tables (ids 0..n-1), each
// defaulting to MissController, and an empty group table.
func NewSwitch(dpid uint64, name string, version uint8, numTables int) *Switch {
	tables := make([]*Table, numTables)
	for i := range tables {
		tables[i] = NewTable(uint8(i))
	}
	return &Switch{
		DPID:        dpid,
		Name:        name,
		Version:     version,
		MissSendLen: 128,
		tables:      tables,
		groupTable:  NewGroupTable(),
		ports:       make(map[uint32]bool),
	}
}

// Table returns the table with the given id, or nil if out of range.
func (s *Switch) Table(id uint8) *Table {
	if int(id) >= len(s.tables) {
		return nil
	}
	return s.tables[id]
}

// Tables returns every table in id order.
func (s *Switch) Tables() []*Table {
	return s.tables
}

// NumTables reports the size of the table pipeline.
func (s *Switch) NumTables() int {
	return len(s.tables)
}

// Groups returns the switch's group table.
func (s *Switch) Groups() *GroupTable {
	return s.groupTable
}

// AttachPort marks a port number as belonging to this switch (spec §4.2
// port admission).
func (s *Switch) AttachPort(portID uint32) {
	s.mu.Lock()
	s.ports[portID] = true
	s.mu.Unlock()
}

// DetachPort removes a port from this switch, e.g. on link-down
// withdrawal or NUMA-aware re-homing elsewhere.
func (s *Switch) DetachPort(portID uint32) {
	s.mu.Lock()
	delete(s.ports, portID)
	s.mu.Unlock()
}

// HasPort reports whether portID is currently attached.
func (s *Switch) HasPort(portID uint32) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ports[portID]
}

// PortIDs returns a snapshot of attached port numbers.
func (s *Switch) PortIDs() []uint32 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]uint32, 0, len(s.ports))
	for p := range s.ports {
		out = append(out, p)
	}
	return out
}

// FirstTableID is always 0 (spec §4.5 pipeline processing starts at
// table 0).
const FirstTableID uint8 = 0

// SetPipelineConfig applies a controller's capabilities/miss_send_len
// update (spec §6.1 "set_pipeline_config").
func (s *Switch) SetPipelineConfig(capabilities Capabilities, missSendLen uint16) {
	s.mu.Lock()
	s.Capabilities = capabilities
	s.MissSendLen = missSendLen
	s.mu.Unlock()
}

// PipelineConfig returns the current capabilities/miss_send_len pair.
func (s *Switch) PipelineConfig() (Capabilities, uint16) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.Capabilities, s.MissSendLen
}
