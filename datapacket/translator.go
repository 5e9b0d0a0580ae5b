// File: datapacket/translator.go
// Author: momentics <momentics@gmail.com>
//
// Translator classifies raw Ethernet frames into an openflow.Classifier
// plus an openflow.Match OXM view (spec §4.8), and recomputes checksums
// flagged for software calculation on the way back out.

package datapacket

import (
	"encoding/binary"
	"fmt"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"

	"github.com/momentics/xdpcore/openflow"
)

// Classifier-bitmask header-family bits (spec §4.8 "Type is a bitmask of
// recognized layers").
const (
	HasEthernet uint32 = 1 << iota
	HasVLAN
	HasARP
	HasIPv4
	HasIPv6
	HasTCP
	HasUDP
	HasSCTP
	HasICMPv4
	HasICMPv6
	HasMPLS
)

// Translator decodes frames with a fixed, reusable gopacket decoding
// layer set -- cheaper than gopacket.NewPacket's generic dispatch for the
// handful of layers this core understands.
type Translator struct {
	eth     layers.Ethernet
	dot1q   layers.Dot1Q
	arp     layers.ARP
	ip4     layers.IPv4
	ip6     layers.IPv6
	tcp     layers.TCP
	udp     layers.UDP
	sctp    layers.SCTP
	icmpv4  layers.ICMPv4
	icmpv6  layers.ICMPv6
	mpls    layers.MPLS
	payload gopacket.Payload

	parser  *gopacket.DecodingLayerParser
	decoded []gopacket.LayerType
}

// NewTranslator builds a Translator with its decoding layer parser wired
// for Ethernet/VLAN/ARP/IPv4/IPv6/TCP/UDP/SCTP/ICMP/MPLS.
func NewTranslator() *Translator {
	t := &Translator{}
	t.parser = gopacket.NewDecodingLayerParser(
		layers.LayerTypeEthernet,
		&t.eth, &t.dot1q, &t.arp, &t.ip4, &t.ip6,
		&t.tcp, &t.udp, &t.sctp, &t.icmpv4, &t.icmpv6, &t.mpls, &t.payload,
	)
	// An unrecognized next-layer type ends decoding without an error, so
	// everything decoded up to it is still classified. A layer that fails
	// to decode (a truncated header) still makes Classify return an error.
	t.parser.IgnoreUnsupported = true
	return t
}

// Classify parses data and returns the classifier bitmask/offsets plus an
// OXM Match view, with portIn/phyPortIn stamped in as FieldInPort/
// FieldInPhyPort (spec §4.8).
func (t *Translator) Classify(data []byte, portIn, phyPortIn uint32) (openflow.Classifier, openflow.Match, error) {
	t.decoded = t.decoded[:0]
	if err := t.parser.DecodeLayers(data, &t.decoded); err != nil {
		return openflow.Classifier{}, openflow.Match{}, fmt.Errorf("datapacket: decode: %w", err)
	}

	var cls openflow.Classifier
	cls.Base = 0
	cls.Len = len(data)
	cls.PortIn = portIn
	cls.PhyPortIn = phyPortIn

	fields := make([]openflow.FieldValue, 0, 8)
	fields = append(fields, exactU32(openflow.FieldInPort, portIn))
	fields = append(fields, exactU32(openflow.FieldInPhyPort, phyPortIn))

	for _, lt := range t.decoded {
		switch lt {
		case layers.LayerTypeEthernet:
			cls.Type |= HasEthernet
			fields = append(fields,
				exactBytes(openflow.FieldEthDst, t.eth.DstMAC),
				exactBytes(openflow.FieldEthSrc, t.eth.SrcMAC),
				exactU16(openflow.FieldEthType, uint16(t.eth.EthernetType)),
			)
		case layers.LayerTypeDot1Q:
			cls.Type |= HasVLAN
			vid := (t.dot1q.VLANIdentifier & 0x0FFF) | openflow.VIDPresent
			fields = append(fields,
				exactU16(openflow.FieldVlanVID, vid),
				exactU8(openflow.FieldVlanPCP, t.dot1q.Priority),
			)
		case layers.LayerTypeARP:
			cls.Type |= HasARP
			fields = append(fields,
				exactU16(openflow.FieldARPOp, uint16(t.arp.Operation)),
				exactBytes(openflow.FieldARPSPA, t.arp.SourceProtAddress),
				exactBytes(openflow.FieldARPTPA, t.arp.DstProtAddress),
				exactBytes(openflow.FieldARPSHA, t.arp.SourceHwAddress),
				exactBytes(openflow.FieldARPTHA, t.arp.DstHwAddress),
			)
		case layers.LayerTypeIPv4:
			cls.Type |= HasIPv4
			fields = append(fields,
				exactBytes(openflow.FieldIPv4Src, t.ip4.SrcIP.To4()),
				exactBytes(openflow.FieldIPv4Dst, t.ip4.DstIP.To4()),
				exactU8(openflow.FieldIPProto, uint8(t.ip4.Protocol)),
				exactU8(openflow.FieldIPDSCP, t.ip4.TOS>>2),
				exactU8(openflow.FieldIPECN, t.ip4.TOS&0x03),
			)
		case layers.LayerTypeIPv6:
			cls.Type |= HasIPv6
			fields = append(fields,
				exactBytes(openflow.FieldIPv6Src, t.ip6.SrcIP),
				exactBytes(openflow.FieldIPv6Dst, t.ip6.DstIP),
				exactU8(openflow.FieldIPProto, uint8(t.ip6.NextHeader)),
				exactU32(openflow.FieldIPv6FLabel, t.ip6.FlowLabel),
			)
		case layers.LayerTypeTCP:
			cls.Type |= HasTCP
			fields = append(fields,
				exactU16(openflow.FieldTCPSrc, uint16(t.tcp.SrcPort)),
				exactU16(openflow.FieldTCPDst, uint16(t.tcp.DstPort)),
			)
		case layers.LayerTypeUDP:
			cls.Type |= HasUDP
			fields = append(fields,
				exactU16(openflow.FieldUDPSrc, uint16(t.udp.SrcPort)),
				exactU16(openflow.FieldUDPDst, uint16(t.udp.DstPort)),
			)
		case layers.LayerTypeSCTP:
			cls.Type |= HasSCTP
			fields = append(fields,
				exactU16(openflow.FieldSCTPSrc, uint16(t.sctp.SrcPort)),
				exactU16(openflow.FieldSCTPDst, uint16(t.sctp.DstPort)),
			)
		case layers.LayerTypeICMPv4:
			cls.Type |= HasICMPv4
			fields = append(fields,
				exactU8(openflow.FieldICMPv4Type, t.icmpv4.TypeCode.Type()),
				exactU8(openflow.FieldICMPv4Code, t.icmpv4.TypeCode.Code()),
			)
		case layers.LayerTypeICMPv6:
			cls.Type |= HasICMPv6
			fields = append(fields,
				exactU8(openflow.FieldICMPv6Type, t.icmpv6.TypeCode.Type()),
				exactU8(openflow.FieldICMPv6Code, t.icmpv6.TypeCode.Code()),
			)
		case layers.LayerTypeMPLS:
			cls.Type |= HasMPLS
			fields = append(fields,
				exactU32(openflow.FieldMPLSLabel, t.mpls.Label),
				exactU8(openflow.FieldMPLSTC, t.mpls.TrafficClass),
				exactBool(openflow.FieldMPLSBOS, t.mpls.StackBottom),
			)
		}
	}

	return cls, openflow.Match{Fields: fields}, nil
}

func exactU8(f openflow.OXMField, v uint8) openflow.FieldValue {
	return openflow.FieldValue{Field: f, Value: []byte{v}}
}

func exactBool(f openflow.OXMField, v bool) openflow.FieldValue {
	b := byte(0)
	if v {
		b = 1
	}
	return openflow.FieldValue{Field: f, Value: []byte{b}}
}

func exactU16(f openflow.OXMField, v uint16) openflow.FieldValue {
	buf := make([]byte, 2)
	binary.BigEndian.PutUint16(buf, v)
	return openflow.FieldValue{Field: f, Value: buf}
}

func exactU32(f openflow.OXMField, v uint32) openflow.FieldValue {
	buf := make([]byte, 4)
	binary.BigEndian.PutUint32(buf, v)
	return openflow.FieldValue{Field: f, Value: buf}
}

func exactBytes(f openflow.OXMField, v []byte) openflow.FieldValue {
	cp := make([]byte, len(v))
	copy(cp, v)
	return openflow.FieldValue{Field: f, Value: cp}
}
