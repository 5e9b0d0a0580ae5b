package pipeline

import (
	"testing"
	"time"

	"github.com/momentics/xdpcore/openflow"
)

func TestBufferStoreRoundTrip(t *testing.T) {
	s := NewBufferStore(time.Minute)
	id := s.Store(openflow.Packet{Metadata: 42})

	got, ok := s.Retrieve(id)
	if !ok {
		t.Fatalf("expected to retrieve what was just stored")
	}
	if got.Metadata != 42 {
		t.Fatalf("retrieved packet does not match stored one: %+v", got)
	}
	if _, ok := s.Retrieve(id); ok {
		t.Fatalf("retrieve must consume the entry")
	}
}

func TestBufferStoreSweepReclaimsExpired(t *testing.T) {
	s := NewBufferStore(-time.Second) // already-expired window
	s.Store(openflow.Packet{})
	s.Store(openflow.Packet{})

	if n := s.Sweep(); n != 2 {
		t.Fatalf("expected sweep to reclaim both entries, got %d", n)
	}
	if s.Len() != 0 {
		t.Fatalf("expected the store to be empty after sweep")
	}
}
