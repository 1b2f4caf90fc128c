package idgen

import "testing"

func TestAllocatorNextIncrements(t *testing.T) {
	a := New()
	first := a.Next()
	second := a.Next()

	fi, ok := first.(int64)
	if !ok {
		t.Fatalf("expected int64 id before the switchover, got %T", first)
	}
	si, ok := second.(int64)
	if !ok {
		t.Fatalf("expected int64 id before the switchover, got %T", second)
	}
	if si <= fi {
		t.Errorf("expected a strictly increasing counter, got %d then %d", fi, si)
	}
}

func TestAllocatorSwitchesToRandomNearSafeLimit(t *testing.T) {
	a := &Allocator{counter: SafeLimit - switchoverMargin}
	id := a.Next()
	if _, ok := id.(string); !ok {
		t.Fatalf("expected a random string id once within the switchover margin, got %T", id)
	}
}

func TestRandomTagIsHexAndVaries(t *testing.T) {
	a, err := RandomTag()
	if err != nil {
		t.Fatalf("RandomTag: %v", err)
	}
	b, err := RandomTag()
	if err != nil {
		t.Fatalf("RandomTag: %v", err)
	}
	if a == b {
		t.Errorf("expected two independent calls to produce different tags")
	}
	if len(a) != 32 {
		t.Errorf("expected a 16-byte tag rendered as 32 hex chars, got length %d", len(a))
	}
}
