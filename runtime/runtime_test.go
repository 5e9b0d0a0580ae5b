package runtime

import (
	"testing"
	"time"

	"github.com/momentics/xdpcore/openflow"
	"github.com/momentics/xdpcore/pipeline"
)

func TestNewWiresCollaboratorsAndAddsSwitches(t *testing.T) {
	engine := openflow.NewLinearEngine()
	lb := pipeline.NewLoopbackChannel(engine, nil)
	cfg := DefaultConfig()
	cfg.DefaultPIRLRate = 0 // disabled, avoid flakiness in tests

	r := New(cfg, lb)
	defer r.Stop()
	sw := r.AddSwitch(1, "sw0", 4, 4)
	if sw == nil {
		t.Fatalf("expected AddSwitch to return a non-nil switch")
	}
	if got, ok := r.Switch(1); !ok || got != sw {
		t.Fatalf("expected Switch(1) to return the switch just added")
	}
	if _, ok := r.Switch(2); ok {
		t.Fatalf("expected Switch(2) to be absent")
	}
}

func TestAttachPortRejectsUnknownDPIDOrPort(t *testing.T) {
	engine := openflow.NewLinearEngine()
	lb := pipeline.NewLoopbackChannel(engine, nil)
	r := New(DefaultConfig(), lb)
	defer r.Stop()

	if err := r.AttachPort(99, 1, 0); err == nil {
		t.Fatalf("expected AttachPort to reject an unknown dpid")
	}

	r.AddSwitch(1, "sw0", 4, 4)
	if err := r.AttachPort(1, 7, 0); err == nil {
		t.Fatalf("expected AttachPort to reject an unregistered port")
	}
}

func TestStartStopIsIdempotent(t *testing.T) {
	engine := openflow.NewLinearEngine()
	lb := pipeline.NewLoopbackChannel(engine, nil)
	cfg := DefaultConfig()
	cfg.ReconcileInterval = time.Hour
	r := New(cfg, lb)

	r.Start()
	r.Start()
	r.Stop()
	r.Stop()
}

func TestQuarantineSwitchForgetsIt(t *testing.T) {
	engine := openflow.NewLinearEngine()
	lb := pipeline.NewLoopbackChannel(engine, nil)
	r := New(DefaultConfig(), lb)
	defer r.Stop()
	r.AddSwitch(1, "sw0", 4, 4)

	r.QuarantineSwitch(1)
	if _, ok := r.Switch(1); ok {
		t.Fatalf("expected the switch to be forgotten after quarantine")
	}
	// quarantining an unknown dpid is a no-op, not an error
	r.QuarantineSwitch(42)
}

func TestFatalPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatalf("expected Fatal to panic")
		}
	}()
	Fatal("unrecoverable datapath inconsistency")
}
