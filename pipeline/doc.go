// Package pipeline
// Author: momentics <momentics@gmail.com>
//
// The RX/packet-out dispatcher and action executor (spec §4.5/§4.6): the
// layer that sits between sched's per-core poll loops and the
// openflow.TableEngine/openflow.Notifier boundary, turning a raw RxFrame
// into a classified openflow.Packet, handing it through table traversal,
// and executing whatever instruction set comes back -- output, group
// resolution, header rewrite, TTL manipulation.
package pipeline
