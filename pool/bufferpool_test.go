package pool_test

import (
	"testing"

	"github.com/momentics/xdpcore/pool"
)

func TestBufferPoolReuse(t *testing.T) {
	mgr := pool.NewBufferPoolManager()
	bp := mgr.GetPool(-1)

	b1 := bp.Get(128, -1)
	b1.Release()

	b2 := bp.Get(100, -1)
	if b2.Capacity() < 128 {
		t.Fatalf("expected reused slab capacity >= 128, got %d", b2.Capacity())
	}
}

func TestBufferPoolSizeClassSeparation(t *testing.T) {
	mgr := pool.NewBufferPoolManager()
	bp := mgr.GetPool(-1)

	small := bp.Get(32, -1)
	big := bp.Get(4096, -1)
	if small.Capacity() == big.Capacity() {
		t.Fatalf("expected distinct size classes, got equal capacity %d", small.Capacity())
	}
}

func TestBufferPoolStatsTracksAllocations(t *testing.T) {
	mgr := pool.NewBufferPoolManager()
	bp := mgr.GetPool(-1)

	b := bp.Get(128, -1)
	stats := bp.Stats()
	if stats.TotalAlloc < 1 {
		t.Fatalf("expected at least one allocation recorded, got %d", stats.TotalAlloc)
	}
	b.Release()
	stats = bp.Stats()
	if stats.TotalFree < 1 {
		t.Fatalf("expected at least one free recorded, got %d", stats.TotalFree)
	}
}

func TestBufferBatchAppendAndSplit(t *testing.T) {
	mgr := pool.NewBufferPoolManager()
	bp := mgr.GetPool(-1)

	batch := pool.NewBufferBatch(4)
	for i := 0; i < 4; i++ {
		batch.Append(bp.Get(64, -1))
	}
	if batch.Len() != 4 {
		t.Fatalf("expected batch len 4, got %d", batch.Len())
	}

	first, second := batch.Split(2)
	if first.Len() != 2 || second.Len() != 2 {
		t.Fatalf("expected 2/2 split, got %d/%d", first.Len(), second.Len())
	}
}

func TestDefaultPoolReturnsUsableBuffer(t *testing.T) {
	b := pool.DefaultPool(256, -1)
	if b.Capacity() < 256 {
		t.Fatalf("expected capacity >= 256, got %d", b.Capacity())
	}
	b.Release()
}
