package pirl

import "testing"

func TestLimiterDisabledAlwaysAllows(t *testing.T) {
	l := NewLimiter(DisabledRate, 0)
	for i := 0; i < 100; i++ {
		if !l.Allow() {
			t.Fatalf("disabled limiter rejected call %d", i)
		}
	}
}

func TestLimiterBurstThenDrop(t *testing.T) {
	l := NewLimiter(1, 5)
	for i := 0; i < 5; i++ {
		if !l.Allow() {
			t.Fatalf("expected burst capacity to allow call %d", i)
		}
	}
	if l.Allow() {
		t.Fatal("expected bucket to be exhausted after burst")
	}
	if l.Dropped() != 1 {
		t.Fatalf("dropped = %d, want 1", l.Dropped())
	}
}

func TestLimiterSetRateTakesEffect(t *testing.T) {
	l := NewLimiter(10, 1)
	if !l.Allow() {
		t.Fatal("expected first call to be allowed")
	}
	l.SetRate(DisabledRate)
	for i := 0; i < 10; i++ {
		if !l.Allow() {
			t.Fatalf("expected disabled limiter to allow call %d after SetRate", i)
		}
	}
}
