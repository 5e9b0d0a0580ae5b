// File: pipeline/bufferstore.go
// Author: momentics <momentics@gmail.com>
//
// BufferStore holds packets staged for a later PACKET_OUT after a
// table-miss or explicit SEND_TO_CONTROLLER (spec §4.5/§4.7 buffer-id
// retrieval semantics). Buffer ids come from rs/xid rather than a
// counter: xid.New() is lock-free and globally unique across restarts,
// which matters once this runs on more than one core concurrently
// stuffing the same store. The store key is the id's trailing 8 bytes
// (machine id, pid, counter), so ids minted within one second still get
// distinct keys.

package pipeline

import (
	"encoding/binary"
	"sync"
	"time"

	"github.com/rs/xid"

	"github.com/momentics/xdpcore/openflow"
)

type bufferEntry struct {
	pkt      openflow.Packet
	storedAt time.Time
}

// BufferStore is a time-bounded map from buffer id to a stashed packet.
// Entries not retrieved within ttl are reclaimed by Sweep so a
// disconnected controller can't leak buffers forever.
type BufferStore struct {
	mu      sync.Mutex
	entries map[uint64]*bufferEntry
	ttl     time.Duration
}

// NewBufferStore returns an empty store with the given retention window.
func NewBufferStore(ttl time.Duration) *BufferStore {
	return &BufferStore{entries: make(map[uint64]*bufferEntry), ttl: ttl}
}

// Store stashes pkt and returns the buffer id a controller must present
// to PACKET_OUT to retrieve it. Ownership of pkt.Buffer transfers to the
// store until Retrieve or Sweep releases it.
func (s *BufferStore) Store(pkt openflow.Packet) uint64 {
	id := xid.New()
	key := binary.BigEndian.Uint64(id.Bytes()[4:])

	s.mu.Lock()
	defer s.mu.Unlock()
	for {
		if _, exists := s.entries[key]; !exists {
			break
		}
		id = xid.New()
		key = binary.BigEndian.Uint64(id.Bytes()[4:])
	}
	s.entries[key] = &bufferEntry{pkt: pkt, storedAt: time.Now()}
	return key
}

// Retrieve removes and returns the packet staged under bufferID.
func (s *BufferStore) Retrieve(bufferID uint64) (openflow.Packet, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[bufferID]
	if !ok {
		return openflow.Packet{}, false
	}
	delete(s.entries, bufferID)
	return e.pkt, true
}

// Sweep releases every entry older than the store's ttl and reports how
// many were reclaimed.
func (s *BufferStore) Sweep() int {
	cutoff := time.Now().Add(-s.ttl)
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for id, e := range s.entries {
		if e.storedAt.Before(cutoff) {
			e.pkt.Release()
			delete(s.entries, id)
			n++
		}
	}
	return n
}

// Len reports the number of packets currently staged.
func (s *BufferStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}
