// File: openflow/match.go
// Author: momentics <momentics@gmail.com>
//
// Match field vocabulary (spec §3 "flow entry", §4.8 OXM translation).
// Field identifiers follow the OpenFlow 1.3 OXM basic class naming used
// throughout the retrieval pack's ofp13 sources.

package openflow

// OXMField enumerates the OpenFlow-basic OXM match fields this core
// understands. Only the basic class is defined: this package has no
// extension-family fields (PPPoE/GTP/CAPWAP/WLAN/GRE) and no build tag
// that adds them.
type OXMField uint8

const (
	FieldInPort OXMField = iota
	FieldInPhyPort
	FieldMetadata
	FieldEthDst
	FieldEthSrc
	FieldEthType
	FieldVlanVID
	FieldVlanPCP
	FieldIPDSCP
	FieldIPECN
	FieldIPProto
	FieldIPv4Src
	FieldIPv4Dst
	FieldTCPSrc
	FieldTCPDst
	FieldUDPSrc
	FieldUDPDst
	FieldSCTPSrc
	FieldSCTPDst
	FieldICMPv4Type
	FieldICMPv4Code
	FieldARPOp
	FieldARPSPA
	FieldARPTPA
	FieldARPSHA
	FieldARPTHA
	FieldIPv6Src
	FieldIPv6Dst
	FieldIPv6FLabel
	FieldICMPv6Type
	FieldICMPv6Code
	FieldMPLSLabel
	FieldMPLSTC
	FieldMPLSBOS
)

func (f OXMField) String() string {
	switch f {
	case FieldInPort:
		return "in_port"
	case FieldInPhyPort:
		return "in_phy_port"
	case FieldMetadata:
		return "metadata"
	case FieldEthDst:
		return "eth_dst"
	case FieldEthSrc:
		return "eth_src"
	case FieldEthType:
		return "eth_type"
	case FieldVlanVID:
		return "vlan_vid"
	case FieldVlanPCP:
		return "vlan_pcp"
	case FieldIPDSCP:
		return "ip_dscp"
	case FieldIPECN:
		return "ip_ecn"
	case FieldIPProto:
		return "ip_proto"
	case FieldIPv4Src:
		return "ipv4_src"
	case FieldIPv4Dst:
		return "ipv4_dst"
	case FieldTCPSrc:
		return "tcp_src"
	case FieldTCPDst:
		return "tcp_dst"
	case FieldUDPSrc:
		return "udp_src"
	case FieldUDPDst:
		return "udp_dst"
	case FieldSCTPSrc:
		return "sctp_src"
	case FieldSCTPDst:
		return "sctp_dst"
	case FieldICMPv4Type:
		return "icmpv4_type"
	case FieldICMPv4Code:
		return "icmpv4_code"
	case FieldARPOp:
		return "arp_op"
	case FieldARPSPA:
		return "arp_spa"
	case FieldARPTPA:
		return "arp_tpa"
	case FieldARPSHA:
		return "arp_sha"
	case FieldARPTHA:
		return "arp_tha"
	case FieldIPv6Src:
		return "ipv6_src"
	case FieldIPv6Dst:
		return "ipv6_dst"
	case FieldIPv6FLabel:
		return "ipv6_flabel"
	case FieldICMPv6Type:
		return "icmpv6_type"
	case FieldICMPv6Code:
		return "icmpv6_code"
	case FieldMPLSLabel:
		return "mpls_label"
	case FieldMPLSTC:
		return "mpls_tc"
	case FieldMPLSBOS:
		return "mpls_bos"
	default:
		return "unknown"
	}
}

// VlanVID special-presence sentinels (spec §4.8).
const (
	VIDNone    uint16 = 0x0000
	VIDPresent uint16 = 0x1000
	VIDMask    uint16 = 0x1000
)

// FieldValue is one OXM TLV: a typed match field with an optional ternary
// mask. HasMask=false means an exact match. The mask is preserved
// byte-for-byte as specified, never normalized or reinterpreted here.
type FieldValue struct {
	Field   OXMField
	Value   []byte
	Mask    []byte
	HasMask bool
}

// IsFullyWildcardMask reports whether mask represents "match anything" --
// every bit is zero. Preserved verbatim per Design Notes: a broadcast
// (all-ones) *value* mask is a distinct, also-common case this helper
// does not detect; it only names the all-zero wildcard check. Nothing in
// this module calls it (there is no wire encoder here).
func IsFullyWildcardMask(mask []byte) bool {
	for _, b := range mask {
		if b != 0 {
			return false
		}
	}
	return true
}

// Match is an ordered list of match fields (spec §3: "an ordered OXM field
// list"). Order matters for deterministic overlap/equality comparison.
type Match struct {
	Fields []FieldValue
}

// Get returns the field value for f, if present.
func (m Match) Get(f OXMField) (FieldValue, bool) {
	for _, fv := range m.Fields {
		if fv.Field == f {
			return fv, true
		}
	}
	return FieldValue{}, false
}

// Overlaps reports whether m and other could both match some common
// packet -- true unless some shared field has disjoint concrete (masked)
// values. A conservative over-approximation: fields present in only one
// match are treated as wildcards on the other side.
func (m Match) Overlaps(other Match) bool {
	for _, a := range m.Fields {
		b, ok := other.Get(a.Field)
		if !ok {
			continue
		}
		if !valuesOverlap(a, b) {
			return false
		}
	}
	return true
}

func valuesOverlap(a, b FieldValue) bool {
	n := len(a.Value)
	if len(b.Value) != n {
		return true // incomparable widths: don't block on it
	}
	for i := 0; i < n; i++ {
		am := byte(0xFF)
		bm := byte(0xFF)
		if a.HasMask && i < len(a.Mask) {
			am = a.Mask[i]
		}
		if b.HasMask && i < len(b.Mask) {
			bm = b.Mask[i]
		}
		common := am & bm
		if (a.Value[i] & common) != (b.Value[i] & common) {
			return false
		}
	}
	return true
}

// Equal reports strict-mode match equality (spec §4.7 MODIFY strict match
// by {match + priority}).
func (m Match) Equal(other Match) bool {
	if len(m.Fields) != len(other.Fields) {
		return false
	}
	for _, a := range m.Fields {
		b, ok := other.Get(a.Field)
		if !ok || a.HasMask != b.HasMask || string(a.Value) != string(b.Value) || string(a.Mask) != string(b.Mask) {
			return false
		}
	}
	return true
}

// Subset reports whether every field in m is also present (with an
// overlapping value) in superset -- non-strict MODIFY/DELETE matching.
func (m Match) Subset(superset Match) bool {
	for _, a := range m.Fields {
		b, ok := superset.Get(a.Field)
		if !ok || !valuesOverlap(a, b) {
			return false
		}
	}
	return true
}
