// File: port/port.go
// Author: momentics <momentics@gmail.com>
//
// Port is the per-interface I/O contract (spec §4.2): {up, down, read,
// write, enqueue}. SwitchPort carries the admin/link/capability state
// spec §3 "Switch port" lists; PortKind tags which concrete driver backs
// it, following the teacher's tagged-enum-over-interface idiom used for
// transport backends.

package port

import (
	"net"
	"sync/atomic"
	"time"

	"github.com/momentics/xdpcore/api"
)

// PortKind tags the concrete I/O backend a Port uses.
type PortKind int

const (
	KindKernelRing PortKind = iota
	KindVirtualLink
	KindPollMode
)

func (k PortKind) String() string {
	switch k {
	case KindKernelRing:
		return "kernel_ring"
	case KindVirtualLink:
		return "virtual_link"
	case KindPollMode:
		return "poll_mode"
	default:
		return "unknown"
	}
}

// ConfigFlags (spec §3 "configuration flags").
type ConfigFlags uint32

const (
	FlagDropReceived ConfigFlags = 1 << iota
	FlagNoFlood
	FlagForwardPackets
	FlagGeneratePacketIn
)

// Reserved meta port numbers a Manager never assigns to a real port (spec
// §3 "reserved id FLOOD/ALL/CONTROLLER/IN_PORT").
const (
	MetaPortFlood      uint32 = 0xFFFFFFFB
	MetaPortAll        uint32 = 0xFFFFFFFC
	MetaPortController uint32 = 0xFFFFFFFD
	MetaPortInPort     uint32 = 0xFFFFFFF8
)

// RxFrame is what Read returns: raw bytes plus origin metadata. VLANTag
// is non-nil only when the ring presented VLAN metadata out-of-band that
// still needs materializing into the frame (spec §4.2(d)).
type RxFrame struct {
	Buffer    api.Buffer
	PortIn    uint32
	PhyPortIn uint32
	RxTime    time.Time
	VLANTag   *VLANMeta
}

// VLANMeta carries out-of-band VLAN metadata from a ring slot (tp_vlan_tci
// / tp_vlan_tpid).
type VLANMeta struct {
	TCI  uint16
	TPID uint16
}

// TxFrame is one frame staged for transmission via Enqueue/Write.
type TxFrame struct {
	Buffer  api.Buffer
	QueueID int
}

// Stats is a port's cumulative I/O counters.
type Stats struct {
	RxPackets  uint64
	RxDropped  uint64
	TxPackets  uint64
	TxDropped  uint64
	Overruns   uint64
}

// Port is the contract every concrete I/O backend satisfies (spec §4.2).
type Port interface {
	ID() uint32
	Name() string
	Kind() PortKind

	Up() error
	Down() error
	IsUp() bool

	// Read returns the next ready frame, or ok=false if none is pending
	// (spec "read() -> pkt|NONE").
	Read() (frame RxFrame, ok bool)

	// Write drains up to maxPackets queued frames into ring/socket slots
	// for queueID and returns the unused remainder of the budget (spec
	// "write(queue_id, max_packets) -> remaining_budget").
	Write(queueID int, maxPackets int) (remainingBudget int, err error)

	// Enqueue stages frame on queueID's output queue. Non-blocking: on a
	// full queue the caller's buffer is released and Stats().Overruns is
	// incremented (spec §4.6 "enqueue back-pressure").
	Enqueue(frame TxFrame, queueID int) error

	Stats() Stats
	Close() error
}

// SwitchPort holds the admin-plane state common to every Port
// implementation (spec §3 "Switch port"): identity, capability bitmaps,
// configuration flags, and attachment. Concrete drivers embed this for
// the bookkeeping and implement the I/O-specific methods themselves.
type SwitchPort struct {
	id   uint32
	name string
	kind PortKind
	mac  net.HardwareAddr

	Capabilities ConfigFlags
	Supported    uint32
	PeerFeatures uint32
	Speed        uint64

	config     atomic.Uint32 // ConfigFlags, read on the hot RX/TX path
	advertised atomic.Uint32

	adminUp atomic.Bool
	linkUp  atomic.Bool

	attachedDPID atomic.Uint64 // 0 == unattached

	rxPackets atomic.Uint64
	rxDropped atomic.Uint64
	txPackets atomic.Uint64
	txDropped atomic.Uint64
	overruns  atomic.Uint64
}

// NewSwitchPort constructs the shared admin-plane state for a port.
// Default config flags (spec §3): forward_packets and
// of_generate_packet_in start enabled, drop_received and no_flood start
// disabled -- a freshly admitted port behaves like a plain switch port
// until a controller restricts it.
func NewSwitchPort(id uint32, name string, kind PortKind, mac net.HardwareAddr) *SwitchPort {
	p := &SwitchPort{id: id, name: name, kind: kind, mac: mac}
	p.config.Store(uint32(FlagForwardPackets | FlagGeneratePacketIn))
	return p
}

// SetConfigFlag sets or clears a single config flag (spec §6.1
// "set_port_{drop_received,no_flood,forward,generate_packet_in}_config"),
// leaving every other flag untouched.
func (p *SwitchPort) SetConfigFlag(flag ConfigFlags, value bool) {
	for {
		old := ConfigFlags(p.config.Load())
		next := old
		if value {
			next |= flag
		} else {
			next &^= flag
		}
		if p.config.CompareAndSwap(uint32(old), uint32(next)) {
			return
		}
	}
}

func (p *SwitchPort) ID() uint32      { return p.id }
func (p *SwitchPort) Name() string    { return p.name }
func (p *SwitchPort) Kind() PortKind  { return p.kind }
func (p *SwitchPort) MAC() net.HardwareAddr { return p.mac }

func (p *SwitchPort) IsUp() bool { return p.adminUp.Load() }

func (p *SwitchPort) IsLinkUp() bool { return p.linkUp.Load() }

func (p *SwitchPort) SetLinkUp(up bool) { p.linkUp.Store(up) }

func (p *SwitchPort) SetConfig(flags ConfigFlags) { p.config.Store(uint32(flags)) }

func (p *SwitchPort) ConfigFlags() ConfigFlags { return ConfigFlags(p.config.Load()) }

// CanForward reports the output precondition from spec §3: "forward_packets
// AND up is the precondition for any emission".
func (p *SwitchPort) CanForward() bool {
	return p.IsUp() && p.ConfigFlags()&FlagForwardPackets != 0
}

// CanFlood reports whether this port may receive a copy of a FLOOD/ALL
// output (spec §4.6 "{attached ports | up, forward, no_flood=false,
// port_num != in_port}") -- CanForward plus no_flood unset.
func (p *SwitchPort) CanFlood() bool {
	return p.CanForward() && p.ConfigFlags()&FlagNoFlood == 0
}

// DropReceived reports whether this port's drop_received flag is set
// (spec §3 "drop_received"): every frame it receives is discarded before
// reaching the pipeline.
func (p *SwitchPort) DropReceived() bool {
	return p.ConfigFlags()&FlagDropReceived != 0
}

// GeneratePacketIn reports whether a table-miss or explicit
// SEND_TO_CONTROLLER on this port's ingress may produce a packet-in
// (spec §3 "of_generate_packet_in").
func (p *SwitchPort) GeneratePacketIn() bool {
	return p.ConfigFlags()&FlagGeneratePacketIn != 0
}

// Advertised returns the port's advertised-features bitmap.
func (p *SwitchPort) Advertised() uint32 { return p.advertised.Load() }

// SetAdvertised applies a controller's set_port_advertise_config update
// (spec §6.1).
func (p *SwitchPort) SetAdvertised(v uint32) { p.advertised.Store(v) }

func (p *SwitchPort) AttachedDPID() (uint64, bool) {
	v := p.attachedDPID.Load()
	return v, v != 0
}

func (p *SwitchPort) Attach(dpid uint64) bool {
	return p.attachedDPID.CompareAndSwap(0, dpid)
}

func (p *SwitchPort) Detach() {
	p.attachedDPID.Store(0)
}

func (p *SwitchPort) recordRx(n int) {
	p.rxPackets.Add(uint64(n))
}

func (p *SwitchPort) recordRxDrop() {
	p.rxDropped.Add(1)
}

func (p *SwitchPort) recordTx(n int) {
	p.txPackets.Add(uint64(n))
}

func (p *SwitchPort) recordTxDrop() {
	p.txDropped.Add(1)
}

func (p *SwitchPort) recordOverrun() {
	p.overruns.Add(1)
}

func (p *SwitchPort) Stats() Stats {
	return Stats{
		RxPackets: p.rxPackets.Load(),
		RxDropped: p.rxDropped.Load(),
		TxPackets: p.txPackets.Load(),
		TxDropped: p.txDropped.Load(),
		Overruns:  p.overruns.Load(),
	}
}
