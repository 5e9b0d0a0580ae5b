// File: datapacket/actions.go
// Author: momentics <momentics@gmail.com>
//
// Header-mutation side of the translator: set-field, VLAN/MPLS push-pop,
// and TTL manipulation (spec §4.6 action executor), plus Serialize to
// turn the mutated in-memory layer stack back into wire bytes. Kept here
// rather than in pipeline so gopacket stays confined to this package.

package datapacket

import (
	"encoding/binary"
	"fmt"
	"net"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"

	"github.com/momentics/xdpcore/api"
	"github.com/momentics/xdpcore/openflow"
)

// ApplySetField mutates the decoded layer state for one OXM field (spec
// §4.6 "set-field"), flagging the classifier's ChecksumsInSW bits for any
// header whose checksum the field touches.
func (t *Translator) ApplySetField(cls *openflow.Classifier, fv openflow.FieldValue) error {
	switch fv.Field {
	case openflow.FieldEthDst:
		copy(t.eth.DstMAC, fv.Value)
	case openflow.FieldEthSrc:
		copy(t.eth.SrcMAC, fv.Value)
	case openflow.FieldEthType:
		t.eth.EthernetType = layers.EthernetType(binary.BigEndian.Uint16(fv.Value))

	case openflow.FieldVlanVID:
		if cls.Type&HasVLAN == 0 {
			return fmt.Errorf("datapacket: set-field vlan_vid on a frame with no VLAN tag")
		}
		t.dot1q.VLANIdentifier = binary.BigEndian.Uint16(fv.Value) & 0x0FFF
	case openflow.FieldVlanPCP:
		if cls.Type&HasVLAN == 0 {
			return fmt.Errorf("datapacket: set-field vlan_pcp on a frame with no VLAN tag")
		}
		t.dot1q.Priority = fv.Value[0]

	case openflow.FieldIPDSCP:
		t.ip4.TOS = (t.ip4.TOS & 0x03) | (fv.Value[0] << 2)
		cls.ChecksumsInSW |= openflow.ChecksumIPv4
	case openflow.FieldIPECN:
		t.ip4.TOS = (t.ip4.TOS &^ 0x03) | (fv.Value[0] & 0x03)
		cls.ChecksumsInSW |= openflow.ChecksumIPv4
	case openflow.FieldIPProto:
		t.ip4.Protocol = layers.IPProtocol(fv.Value[0])
		cls.ChecksumsInSW |= openflow.ChecksumIPv4
	case openflow.FieldIPv4Src:
		t.ip4.SrcIP = net.IP(append([]byte(nil), fv.Value...))
		cls.ChecksumsInSW |= checksumBitsFor(cls)
	case openflow.FieldIPv4Dst:
		t.ip4.DstIP = net.IP(append([]byte(nil), fv.Value...))
		cls.ChecksumsInSW |= checksumBitsFor(cls)

	case openflow.FieldIPv6Src:
		t.ip6.SrcIP = net.IP(append([]byte(nil), fv.Value...))
	case openflow.FieldIPv6Dst:
		t.ip6.DstIP = net.IP(append([]byte(nil), fv.Value...))
	case openflow.FieldIPv6FLabel:
		t.ip6.FlowLabel = binary.BigEndian.Uint32(fv.Value)

	case openflow.FieldTCPSrc:
		t.tcp.SrcPort = layers.TCPPort(binary.BigEndian.Uint16(fv.Value))
		cls.ChecksumsInSW |= openflow.ChecksumTCP
	case openflow.FieldTCPDst:
		t.tcp.DstPort = layers.TCPPort(binary.BigEndian.Uint16(fv.Value))
		cls.ChecksumsInSW |= openflow.ChecksumTCP
	case openflow.FieldUDPSrc:
		t.udp.SrcPort = layers.UDPPort(binary.BigEndian.Uint16(fv.Value))
		cls.ChecksumsInSW |= openflow.ChecksumUDP
	case openflow.FieldUDPDst:
		t.udp.DstPort = layers.UDPPort(binary.BigEndian.Uint16(fv.Value))
		cls.ChecksumsInSW |= openflow.ChecksumUDP
	case openflow.FieldSCTPSrc:
		t.sctp.SrcPort = layers.SCTPPort(binary.BigEndian.Uint16(fv.Value))
		cls.ChecksumsInSW |= openflow.ChecksumSCTP
	case openflow.FieldSCTPDst:
		t.sctp.DstPort = layers.SCTPPort(binary.BigEndian.Uint16(fv.Value))
		cls.ChecksumsInSW |= openflow.ChecksumSCTP

	case openflow.FieldICMPv4Type:
		t.icmpv4.TypeCode = layers.CreateICMPv4TypeCode(fv.Value[0], t.icmpv4.TypeCode.Code())
		cls.ChecksumsInSW |= openflow.ChecksumICMPv4
	case openflow.FieldICMPv4Code:
		t.icmpv4.TypeCode = layers.CreateICMPv4TypeCode(t.icmpv4.TypeCode.Type(), fv.Value[0])
		cls.ChecksumsInSW |= openflow.ChecksumICMPv4

	case openflow.FieldMPLSLabel:
		t.mpls.Label = binary.BigEndian.Uint32(fv.Value)
	case openflow.FieldMPLSTC:
		t.mpls.TrafficClass = fv.Value[0]
	case openflow.FieldMPLSBOS:
		t.mpls.StackBottom = fv.Value[0] != 0

	case openflow.FieldARPOp:
		t.arp.Operation = binary.BigEndian.Uint16(fv.Value)
	case openflow.FieldARPSPA:
		t.arp.SourceProtAddress = append([]byte(nil), fv.Value...)
	case openflow.FieldARPTPA:
		t.arp.DstProtAddress = append([]byte(nil), fv.Value...)
	case openflow.FieldARPSHA:
		t.arp.SourceHwAddress = append([]byte(nil), fv.Value...)
	case openflow.FieldARPTHA:
		t.arp.DstHwAddress = append([]byte(nil), fv.Value...)

	default:
		return fmt.Errorf("datapacket: set-field unsupported for %s", fv.Field)
	}
	return nil
}

// checksumBitsFor reports which transport checksums an IPv4 address
// rewrite invalidates, based on which transport layer is present.
func checksumBitsFor(cls *openflow.Classifier) uint32 {
	bits := openflow.ChecksumIPv4
	switch {
	case cls.Type&HasTCP != 0:
		bits |= openflow.ChecksumTCP
	case cls.Type&HasUDP != 0:
		bits |= openflow.ChecksumUDP
	case cls.Type&HasSCTP != 0:
		bits |= openflow.ChecksumSCTP
	}
	return bits
}

func (t *Translator) hasLayer(lt gopacket.LayerType) bool {
	for _, d := range t.decoded {
		if d == lt {
			return true
		}
	}
	return false
}

func (t *Translator) insertAfter(after, lt gopacket.LayerType) {
	for i, d := range t.decoded {
		if d == after {
			t.decoded = append(t.decoded[:i+1], append([]gopacket.LayerType{lt}, t.decoded[i+1:]...)...)
			return
		}
	}
	t.decoded = append([]gopacket.LayerType{lt}, t.decoded...)
}

func (t *Translator) removeLayer(lt gopacket.LayerType) {
	for i, d := range t.decoded {
		if d == lt {
			t.decoded = append(t.decoded[:i], t.decoded[i+1:]...)
			return
		}
	}
}

// PushVLAN inserts an 802.1Q tag between the Ethernet header and whatever
// follows it (spec §4.6 "push-VLAN"). etherType is the tag protocol id
// (0x8100/0x88a8); the original EtherType becomes the tag's inner Type.
func (t *Translator) PushVLAN(cls *openflow.Classifier, etherType uint16) error {
	if t.hasLayer(layers.LayerTypeDot1Q) {
		return fmt.Errorf("datapacket: push-vlan on an already-tagged frame")
	}
	t.dot1q.Type = t.eth.EthernetType
	t.dot1q.VLANIdentifier = 0
	t.dot1q.Priority = 0
	t.eth.EthernetType = layers.EthernetType(etherType)
	t.insertAfter(layers.LayerTypeEthernet, layers.LayerTypeDot1Q)
	cls.Type |= HasVLAN
	return nil
}

// PopVLAN removes the 802.1Q tag, restoring the original EtherType onto
// the Ethernet header (spec §4.6 "pop-VLAN").
func (t *Translator) PopVLAN(cls *openflow.Classifier) error {
	if !t.hasLayer(layers.LayerTypeDot1Q) {
		return fmt.Errorf("datapacket: pop-vlan on an untagged frame")
	}
	t.eth.EthernetType = t.dot1q.Type
	t.removeLayer(layers.LayerTypeDot1Q)
	cls.Type &^= HasVLAN
	return nil
}

// PushMPLS inserts an MPLS shim header directly beneath Ethernet/VLAN
// (spec §4.6 "push-MPLS").
func (t *Translator) PushMPLS(cls *openflow.Classifier, etherType uint16) error {
	if t.hasLayer(layers.LayerTypeMPLS) {
		return fmt.Errorf("datapacket: push-mpls on a frame already carrying an MPLS label")
	}
	after := layers.LayerTypeEthernet
	if t.hasLayer(layers.LayerTypeDot1Q) {
		after = layers.LayerTypeDot1Q
	}
	t.eth.EthernetType = layers.EthernetType(etherType)
	t.mpls.Label = 0
	t.mpls.TrafficClass = 0
	t.mpls.StackBottom = true
	t.mpls.TTL = 64
	t.insertAfter(after, layers.LayerTypeMPLS)
	cls.Type |= HasMPLS
	return nil
}

// PopMPLS removes the MPLS shim header, restoring etherType onto
// Ethernet (spec §4.6 "pop-MPLS").
func (t *Translator) PopMPLS(cls *openflow.Classifier, etherType uint16) error {
	if !t.hasLayer(layers.LayerTypeMPLS) {
		return fmt.Errorf("datapacket: pop-mpls on a frame with no MPLS label")
	}
	t.eth.EthernetType = layers.EthernetType(etherType)
	t.removeLayer(layers.LayerTypeMPLS)
	cls.Type &^= HasMPLS
	return nil
}

// DecTTL decrements whichever outermost TTL-bearing header is present
// (MPLS, else IPv4, else IPv6), returning the post-decrement value (spec
// §4.6 "dec-nw-ttl"/"dec-mpls-ttl").
func (t *Translator) DecTTL(cls *openflow.Classifier) (uint8, error) {
	switch {
	case cls.Type&HasMPLS != 0:
		if t.mpls.TTL > 0 {
			t.mpls.TTL--
		}
		return t.mpls.TTL, nil
	case cls.Type&HasIPv4 != 0:
		if t.ip4.TTL > 0 {
			t.ip4.TTL--
		}
		cls.ChecksumsInSW |= openflow.ChecksumIPv4
		return t.ip4.TTL, nil
	case cls.Type&HasIPv6 != 0:
		if t.ip6.HopLimit > 0 {
			t.ip6.HopLimit--
		}
		return t.ip6.HopLimit, nil
	default:
		return 0, fmt.Errorf("datapacket: dec-ttl with no TTL-bearing header present")
	}
}

// SetTTL overwrites the outermost TTL-bearing header's TTL/hop-limit.
func (t *Translator) SetTTL(cls *openflow.Classifier, ttl uint8) error {
	switch {
	case cls.Type&HasMPLS != 0:
		t.mpls.TTL = ttl
	case cls.Type&HasIPv4 != 0:
		t.ip4.TTL = ttl
		cls.ChecksumsInSW |= openflow.ChecksumIPv4
	case cls.Type&HasIPv6 != 0:
		t.ip6.HopLimit = ttl
	default:
		return fmt.Errorf("datapacket: set-ttl with no TTL-bearing header present")
	}
	return nil
}

// CopyTTLOut copies an outer MPLS label's TTL down into the IP header it
// encapsulates (spec §4.6 "copy-ttl-out", used right before popping the
// label).
func (t *Translator) CopyTTLOut(cls *openflow.Classifier) {
	if cls.Type&HasMPLS == 0 {
		return
	}
	switch {
	case cls.Type&HasIPv4 != 0:
		t.ip4.TTL = t.mpls.TTL
		cls.ChecksumsInSW |= openflow.ChecksumIPv4
	case cls.Type&HasIPv6 != 0:
		t.ip6.HopLimit = t.mpls.TTL
	}
}

// CopyTTLIn copies the encapsulated IP header's TTL up into a newly
// pushed MPLS label (spec §4.6 "copy-ttl-in").
func (t *Translator) CopyTTLIn(cls *openflow.Classifier) {
	if cls.Type&HasMPLS == 0 {
		return
	}
	switch {
	case cls.Type&HasIPv4 != 0:
		t.mpls.TTL = t.ip4.TTL
	case cls.Type&HasIPv6 != 0:
		t.mpls.TTL = t.ip6.HopLimit
	}
}

// Serialize rebuilds wire bytes from the current mutated layer stack
// (spec §4.6: every header push/pop/set-field ultimately needs a
// re-encode), recomputing checksums for any transport layer present.
func (t *Translator) Serialize(bufPool api.BufferPool, numaPreferred int) (api.Buffer, error) {
	var sls []gopacket.SerializableLayer
	var network gopacket.NetworkLayer

	for _, lt := range t.decoded {
		switch lt {
		case layers.LayerTypeEthernet:
			sls = append(sls, &t.eth)
		case layers.LayerTypeDot1Q:
			sls = append(sls, &t.dot1q)
		case layers.LayerTypeARP:
			sls = append(sls, &t.arp)
		case layers.LayerTypeMPLS:
			sls = append(sls, &t.mpls)
		case layers.LayerTypeIPv4:
			sls = append(sls, &t.ip4)
			network = &t.ip4
		case layers.LayerTypeIPv6:
			sls = append(sls, &t.ip6)
			network = &t.ip6
		case layers.LayerTypeTCP:
			if network != nil {
				t.tcp.SetNetworkLayerForChecksum(network)
			}
			sls = append(sls, &t.tcp)
		case layers.LayerTypeUDP:
			if network != nil {
				t.udp.SetNetworkLayerForChecksum(network)
			}
			sls = append(sls, &t.udp)
		case layers.LayerTypeSCTP:
			if network != nil {
				t.sctp.SetNetworkLayerForChecksum(network)
			}
			sls = append(sls, &t.sctp)
		case layers.LayerTypeICMPv4:
			sls = append(sls, &t.icmpv4)
		case layers.LayerTypeICMPv6:
			sls = append(sls, &t.icmpv6)
		}
	}
	sls = append(sls, t.payload)

	buf := gopacket.NewSerializeBuffer()
	if err := gopacket.SerializeLayers(buf, gopacket.SerializeOptions{ComputeChecksums: true, FixLengths: true}, sls...); err != nil {
		return api.Buffer{}, fmt.Errorf("datapacket: serialize: %w", err)
	}

	out := bufPool.Get(len(buf.Bytes()), numaPreferred)
	copy(out.Data, buf.Bytes())
	return out, nil
}
