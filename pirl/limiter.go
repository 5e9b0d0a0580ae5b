// Package pirl
// Author: momentics <momentics@gmail.com>
//
// Packet-in rate limiter (spec §4.9): a token bucket governing upcalls to
// the control channel, scoped per logical switch. Deliberately
// standalone -- no dependency on openflow, pool, or any other package in
// this module -- so pipeline can hold a Limiter per dpid without
// entangling the rest of the datapath in its lock-free accounting.
package pirl

import (
	"sync/atomic"
	"time"
)

// DisabledRate disables rate limiting entirely: Allow always returns true.
const DisabledRate = 0

// Limiter is a token-bucket packet-in governor. Allow is not a single
// atomic update: it refills with a CAS on lastRefill and a CAS loop on
// tokens, then spends one token with a second CAS loop. It takes no mutex
// and stays correct under concurrent callers from multiple worker threads
// through those CAS retries.
type Limiter struct {
	maxRate atomic.Int64 // tokens refilled per second; DisabledRate == unlimited

	capacity   int64
	lastRefill atomic.Int64 // wall-clock nanoseconds from time.Now().UnixNano()
	tokens     atomic.Int64

	dropped atomic.Uint64
}

// NewLimiter returns a Limiter allowing maxRate packet-in events per
// second, bursting up to capacity tokens. maxRate == DisabledRate turns
// off limiting.
func NewLimiter(maxRate int64, capacity int64) *Limiter {
	l := &Limiter{capacity: capacity}
	l.maxRate.Store(maxRate)
	l.tokens.Store(capacity)
	l.lastRefill.Store(time.Now().UnixNano())
	return l
}

// Allow reports whether a packet-in event may proceed, consuming one
// token if so. On false, callers must release the candidate packet and
// increment their own per-switch packet_in_dropped counter (spec §4.9);
// Dropped() tracks the same count here for convenience.
func (l *Limiter) Allow() bool {
	rate := l.maxRate.Load()
	if rate == DisabledRate {
		return true
	}
	l.refill(rate)
	for {
		cur := l.tokens.Load()
		if cur <= 0 {
			l.dropped.Add(1)
			return false
		}
		if l.tokens.CompareAndSwap(cur, cur-1) {
			return true
		}
	}
}

// refill adds tokens for elapsed time since the last refill, capped at
// capacity. A CAS loop on lastRefill ensures only one goroutine performs
// the refill arithmetic for a given elapsed window.
func (l *Limiter) refill(rate int64) {
	now := time.Now().UnixNano()
	last := l.lastRefill.Load()
	elapsed := now - last
	if elapsed <= 0 {
		return
	}
	if !l.lastRefill.CompareAndSwap(last, now) {
		return // another goroutine is refilling concurrently
	}

	added := elapsed * rate / int64(time.Second)
	if added <= 0 {
		return
	}
	for {
		cur := l.tokens.Load()
		next := cur + added
		if next > l.capacity {
			next = l.capacity
		}
		if l.tokens.CompareAndSwap(cur, next) {
			return
		}
	}
}

// Dropped returns the cumulative count of packet-in candidates this
// Limiter has rejected.
func (l *Limiter) Dropped() uint64 {
	return l.dropped.Load()
}

// SetRate adjusts max_rate at runtime (spec §6.4 hot-reload), without
// disturbing accumulated tokens.
func (l *Limiter) SetRate(maxRate int64) {
	l.maxRate.Store(maxRate)
}
