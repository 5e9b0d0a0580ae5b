// File: api/types.go
// Author: momentics <momentics@gmail.com>
//
// Shared API-level type declarations, DTOs, and constants.

package api

import "time"

// LinkState enumerates the physical-link detection state of a port.
type LinkState int

const (
	LinkUnknown LinkState = iota
	LinkDown
	LinkUp
)

func (s LinkState) String() string {
	switch s {
	case LinkDown:
		return "down"
	case LinkUp:
		return "up"
	default:
		return "unknown"
	}
}

// DatapathMetrics provides a standard layout for datapath health/statistics
// reporting, surfaced through control.MetricsRegistry.
type DatapathMetrics struct {
	RxPackets        uint64
	TxPackets        uint64
	RxDropped        uint64
	TxDropped        uint64
	Overrun          uint64
	PacketInDropped  uint64
	RunningHash      uint64
	StartedAt        time.Time
}

// ServiceInfo exposes descriptive build- and runtime info for external tools.
type ServiceInfo struct {
	Name      string
	Version   string
	Build     string
	StartedAt time.Time
}
