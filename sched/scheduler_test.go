package sched

import (
	"testing"
	"time"

	"github.com/momentics/xdpcore/port"
)

type noopDispatcher struct{}

func (noopDispatcher) DispatchRx(p port.Port, frame port.RxFrame) {}

func TestScheduleSelectPortPicksLowestLoadedCore(t *testing.T) {
	mgr := port.NewManager(nil, nil, time.Hour)
	s := NewScheduler(mgr, noopDispatcher{}, 2, false)

	p1, _ := port.NewPollModePort(1, "p1")
	mgr.Admit(p1)
	core1, err := s.ScheduleSelectPort(1, -1)
	if err != nil {
		t.Fatalf("ScheduleSelectPort: %v", err)
	}

	p2, _ := port.NewPollModePort(2, "p2")
	mgr.Admit(p2)
	core2, err := s.ScheduleSelectPort(2, -1)
	if err != nil {
		t.Fatalf("ScheduleSelectPort: %v", err)
	}

	if core1 == core2 {
		t.Fatalf("expected second port on a different, less-loaded core; both picked %d", core1)
	}

	stats := s.Stats()
	if stats[core1].NumRxPorts != 1 || stats[core2].NumRxPorts != 1 {
		t.Fatalf("expected one port per core, got %+v", stats)
	}
}

func TestDetachCompactsAndWaitsBarrier(t *testing.T) {
	mgr := port.NewManager(nil, nil, time.Hour)
	s := NewScheduler(mgr, noopDispatcher{}, 1, false)

	p1, _ := port.NewPollModePort(1, "p1")
	mgr.Admit(p1)
	core, err := s.ScheduleSelectPort(1, -1)
	if err != nil {
		t.Fatalf("ScheduleSelectPort: %v", err)
	}

	if err := s.Detach(core, 1); err != nil {
		t.Fatalf("Detach: %v", err)
	}

	stats := s.Stats()
	if stats[core].NumRxPorts != 0 {
		t.Fatalf("expected port list to be empty after detach, got %+v", stats)
	}
	if stats[core].Active {
		t.Fatalf("expected core to stop once its last port detaches")
	}
}

func TestScheduleSelectPortStrictRejectsCrossSocket(t *testing.T) {
	mgr := port.NewManager(nil, nil, time.Hour)
	s := NewScheduler(mgr, noopDispatcher{}, 1, true)
	s.cores[0].numaNode = 0

	p1, _ := port.NewPollModePort(1, "p1")
	mgr.Admit(p1)
	if _, err := s.ScheduleSelectPort(1, 1); err == nil {
		t.Fatalf("expected strict mode to reject a cross-socket assignment")
	}
}
