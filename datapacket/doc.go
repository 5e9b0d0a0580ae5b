// Package datapacket
// Author: momentics <momentics@gmail.com>
//
// Translates raw frame bytes into the OXM match view and classifier
// metadata openflow.Packet needs for table lookup (spec §4.8), using
// gopacket/gopacket-layers for header decoding the way the retrieval
// pack's snf.RingReceiver adapts captured frames to gopacket consumers.
package datapacket
