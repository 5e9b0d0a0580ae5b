// Package port
// Author: momentics <momentics@gmail.com>
//
// Per-port ring-based I/O (spec §4.2/§4.3): RX/TX framing, zero-copy
// buffer handling, and port admission/reconciliation. Deliberately
// decoupled from openflow -- a Port hands back raw frame bytes and
// origin metadata, never a classified openflow.Packet; classification is
// datapacket's job, one layer up in pipeline.
package port
