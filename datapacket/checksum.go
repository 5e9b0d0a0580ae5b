// File: datapacket/checksum.go
// Author: momentics <momentics@gmail.com>
//
// RecomputeChecksums redoes the transport-layer checksums a set-field
// action invalidated (spec §4.6 "calculate_checksums_in_sw"), using
// gopacket's checksum-aware serialization instead of hand-rolled
// one's-complement arithmetic.

package datapacket

import (
	"fmt"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"

	"github.com/momentics/xdpcore/openflow"
)

// RecomputeChecksums rewrites pkt.Buffer.Data in place, recalculating any
// checksum flagged in pkt.Classifier.ChecksumsInSW. A no-op if the bitmap
// is empty -- the common case, since most set-field actions touch fields
// outside the checksummed span.
func (t *Translator) RecomputeChecksums(pkt *openflow.Packet) error {
	mask := pkt.Classifier.ChecksumsInSW
	if mask == 0 {
		return nil
	}

	packet := gopacket.NewPacket(pkt.Buffer.Data, layers.LayerTypeEthernet, gopacket.DecodeOptions{Lazy: false, NoCopy: true})
	if err := packet.ErrorLayer(); err != nil {
		return fmt.Errorf("datapacket: checksum decode: %w", err.Error())
	}

	var network gopacket.NetworkLayer
	if l := packet.Layer(layers.LayerTypeIPv4); l != nil {
		network = l.(*layers.IPv4)
	} else if l := packet.Layer(layers.LayerTypeIPv6); l != nil {
		network = l.(*layers.IPv6)
	}

	sls := make([]gopacket.SerializableLayer, 0, len(packet.Layers()))
	for _, l := range packet.Layers() {
		if tcp, ok := l.(*layers.TCP); ok && mask&openflow.ChecksumTCP != 0 && network != nil {
			if err := tcp.SetNetworkLayerForChecksum(network); err != nil {
				return fmt.Errorf("datapacket: tcp checksum: %w", err)
			}
		}
		if udp, ok := l.(*layers.UDP); ok && mask&openflow.ChecksumUDP != 0 && network != nil {
			if err := udp.SetNetworkLayerForChecksum(network); err != nil {
				return fmt.Errorf("datapacket: udp checksum: %w", err)
			}
		}
		if sctp, ok := l.(*layers.SCTP); ok && mask&openflow.ChecksumSCTP != 0 && network != nil {
			if err := sctp.SetNetworkLayerForChecksum(network); err != nil {
				return fmt.Errorf("datapacket: sctp checksum: %w", err)
			}
		}
		if sl, ok := l.(gopacket.SerializableLayer); ok {
			sls = append(sls, sl)
		}
	}

	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{ComputeChecksums: true, FixLengths: true}
	if err := gopacket.SerializeLayers(buf, opts, sls...); err != nil {
		return fmt.Errorf("datapacket: serialize: %w", err)
	}

	out := buf.Bytes()
	if len(out) > cap(pkt.Buffer.Data) {
		return fmt.Errorf("datapacket: recomputed frame grew past buffer capacity (%d > %d)", len(out), cap(pkt.Buffer.Data))
	}
	pkt.Buffer.Data = append(pkt.Buffer.Data[:0], out...)
	return nil
}
