// File: openflow/packet.go
// Author: momentics <momentics@gmail.com>
//
// Packet descriptor (spec §3 "Packet descriptor" / "Classifier state").
// One Packet is owned by exactly one component at a time -- a queue, a
// processing thread, or the pool it was acquired from (the conservation
// invariant pool.BufferPoolManager enforces at the byte-storage layer).

package openflow

import (
	"time"

	"github.com/momentics/xdpcore/api"
)

// Classifier holds the parsed offsets and protocol-stack identifier a
// datapacket.Translator fills in during classification (spec §3).
type Classifier struct {
	// Type is a bitmask identifying which header layers were recognized
	// (Ethernet, VLAN, MPLS, IPv4/6, TCP/UDP/SCTP, ICMP, ARP).
	Type uint32

	Base int // offset of the first classified header
	Len  int // total classified length

	PortIn    uint32
	PhyPortIn uint32

	// ChecksumsInSW is a bitmask of header layers (see ChecksumXxx
	// constants) whose checksum must be recomputed in software on TX.
	ChecksumsInSW uint32
}

// Checksum-in-software bits (spec §4.6 set-field / §4.8 translation).
const (
	ChecksumIPv4 uint32 = 1 << iota
	ChecksumTCP
	ChecksumUDP
	ChecksumSCTP
	ChecksumICMPv4
)

// Packet is the packet descriptor: raw bytes plus everything the pipeline
// needs to traverse tables and execute actions against it.
type Packet struct {
	Buffer     api.Buffer
	Classifier Classifier

	// Match is the OXM field view a datapacket.Translator derives from
	// Classifier plus the raw bytes, consumed by table lookup.
	Match Match

	QueueID int

	// InBufferPool is true when Buffer was acquired from a pool (so
	// Release() must be called exactly once); false when the frame
	// storage is externally owned (e.g. a still-mmap'd ring slot).
	InBufferPool bool

	IsReplica bool

	// Switch is a back-pointer to the owning logical switch.
	Switch *Switch

	// WriteActions accumulates WRITE_ACTIONS instructions across table
	// traversal (spec §4.5); executed after CLEAR_ACTIONS/APPLY_ACTIONS
	// at the terminal table.
	WriteActions []Action

	// Metadata carries OXM metadata across GOTO_TABLE hops.
	Metadata uint64

	// BufferID identifies this packet in the pipeline's buffer store
	// when staged for a later PACKET_OUT (spec §4.5/§4.7); zero means
	// "not stored".
	BufferID uint64

	RxTime time.Time
}

// Release returns the packet's buffer to its pool, if it owns one. A
// Packet must never be touched again after Release.
func (p *Packet) Release() {
	if p.InBufferPool {
		p.Buffer.Release()
	}
}

// Clone produces an independent copy suitable for FLOOD/ALL fan-out or
// group ALL replication (spec §4.6): a fresh buffer with copied bytes, so
// the original can be destroyed without affecting replicas.
func (p *Packet) Clone(pool api.BufferPool) Packet {
	data := p.Buffer.Copy()
	nb := pool.Get(len(data), p.Buffer.NUMANode())
	copy(nb.Data, data)

	clone := *p
	clone.Buffer = nb
	clone.InBufferPool = true
	clone.IsReplica = true
	clone.WriteActions = append([]Action(nil), p.WriteActions...)
	return clone
}
