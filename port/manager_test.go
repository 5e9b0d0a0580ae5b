package port

import (
	"net"
	"testing"
	"time"
)

type recordingNotifier struct {
	added, deleted []uint32
	statusChanges  int
}

func (r *recordingNotifier) NotifyPortAdd(id uint32, name string)          { r.added = append(r.added, id) }
func (r *recordingNotifier) NotifyPortDelete(id uint32)                   { r.deleted = append(r.deleted, id) }
func (r *recordingNotifier) NotifyPortStatusChanged(id uint32, up bool) { r.statusChanges++ }

func TestManagerAdmitAndRetireExplicit(t *testing.T) {
	notifier := &recordingNotifier{}
	m := NewManager(nil, notifier, time.Hour)

	p, _ := NewPollModePort(1, "poll0")
	if err := m.Admit(p); err != nil {
		t.Fatalf("Admit: %v", err)
	}
	if _, ok := m.Get(1); !ok {
		t.Fatalf("expected port 1 to be admitted")
	}

	m.Retire(1)
	if _, ok := m.Get(1); ok {
		t.Fatalf("expected port 1 to be retired")
	}
	if len(notifier.deleted) != 1 || notifier.deleted[0] != 1 {
		t.Fatalf("expected retire to notify delete for port 1, got %v", notifier.deleted)
	}
}

func TestManagerAdmitDuplicateIDFails(t *testing.T) {
	m := NewManager(nil, nil, time.Hour)
	p1, _ := NewPollModePort(5, "a")
	p2, _ := NewPollModePort(5, "b")

	if err := m.Admit(p1); err != nil {
		t.Fatalf("Admit p1: %v", err)
	}
	if err := m.Admit(p2); err == nil {
		t.Fatalf("expected duplicate id admit to fail")
	}
}

func TestManagerReconcileFourStepAlgorithm(t *testing.T) {
	notifier := &recordingNotifier{}
	m := NewManager(nil, notifier, time.Hour)

	gone := net.Interface{Name: "gone0", Flags: net.FlagUp}
	m.enumerate = func() ([]net.Interface, error) {
		return []net.Interface{gone}, nil
	}

	// Seed a pipeline-registered port that is about to "disappear" from
	// the next enumeration (step 2 of spec §4.3's reconciliation).
	stale, _ := NewPollModePort(9, "stale0")
	m.Admit(stale)

	m.enumerate = func() ([]net.Interface, error) {
		return nil, nil // loopback-excluded system now reports nothing
	}

	if err := m.Reconcile(); err != nil {
		t.Fatalf("Reconcile: %v", err)
	}

	if _, ok := m.Get(9); ok {
		t.Fatalf("expected stale port to be retired during reconciliation")
	}
	if len(notifier.deleted) != 1 {
		t.Fatalf("expected exactly one delete notification, got %d", len(notifier.deleted))
	}
}

func TestManagerReconcileSkipsLoopback(t *testing.T) {
	m := NewManager(nil, nil, time.Hour)
	m.enumerate = func() ([]net.Interface, error) {
		return []net.Interface{{Name: "lo", Flags: net.FlagLoopback | net.FlagUp}}, nil
	}

	if err := m.Reconcile(); err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	if _, ok := m.GetByName("lo"); ok {
		t.Fatalf("loopback must never be admitted")
	}
}
