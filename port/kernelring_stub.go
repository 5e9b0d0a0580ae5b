// File: port/kernelring_stub.go
//go:build !linux
// +build !linux

// Author: momentics <momentics@gmail.com>
//
// Non-Linux build stand-in: TPACKET_V2 rings are a Linux-only facility.
// Other platforms can still exercise the rest of the switch via
// PollModePort and VirtualLinkPort.

package port

import (
	"fmt"

	"github.com/momentics/xdpcore/api"
)

// KernelRingPort is unavailable outside Linux.
type KernelRingPort struct {
	*SwitchPort
}

func NewKernelRingPort(id uint32, ifname string, bufPool api.BufferPool) (*KernelRingPort, error) {
	return nil, fmt.Errorf("port: kernel ring port unsupported on this platform")
}

func (p *KernelRingPort) Up() error                                  { return fmt.Errorf("port: unsupported") }
func (p *KernelRingPort) Down() error                                { return fmt.Errorf("port: unsupported") }
func (p *KernelRingPort) Read() (RxFrame, bool)                      { return RxFrame{}, false }
func (p *KernelRingPort) Write(queueID, maxPackets int) (int, error) { return maxPackets, nil }
func (p *KernelRingPort) Enqueue(frame TxFrame, queueID int) error   { return fmt.Errorf("port: unsupported") }
func (p *KernelRingPort) Close() error                               { return nil }

var _ Port = (*KernelRingPort)(nil)
