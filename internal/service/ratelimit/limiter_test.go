package ratelimit

import (
	"testing"
	"time"
)

func TestAllowBurstThenRefill(t *testing.T) {
	now := time.Date(2024, 10, 10, 10, 0, 0, 0, time.UTC)
	l := NewWithClock(func() time.Time { return now })

	for i := 0; i < 3; i++ {
		if !l.Allow("k", 3, 1) {
			t.Fatalf("token %d denied within burst", i)
		}
	}
	if l.Allow("k", 3, 1) {
		t.Fatalf("expected deny after burst")
	}
	now = now.Add(time.Second)
	if !l.Allow("k", 3, 1) {
		t.Fatalf("expected refill after 1s")
	}
}

func TestKeysAreIndependent(t *testing.T) {
	l := New()
	if !l.Allow("a", 1, 0) || l.Allow("a", 1, 0) {
		t.Fatalf("unexpected result for a")
	}
	if !l.Allow("b", 1, 0) {
		t.Fatalf("b throttled by a")
	}
	l.Forget("a")
	if !l.Allow("a", 1, 0) {
		t.Fatalf("forget did not reset bucket")
	}
}
