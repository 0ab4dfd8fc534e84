package watermark

import "testing"

func TestUpdateAdvancesToMinimumAcrossOrigins(t *testing.T) {
	p := New([]uint64{1, 2})

	if got := p.Update(10, 0, 1); got != 0 {
		t.Fatalf("Update origin 1 = %d, want 0 (origin 2 has not produced yet)", got)
	}
	if got := p.Update(20, 0, 2); got != 10 {
		t.Fatalf("Update origin 2 = %d, want 10", got)
	}
}

func TestUpdateIsMonotonicNonDecreasing(t *testing.T) {
	p := New([]uint64{1})
	p.Update(50, 0, 1)
	if got := p.Update(5, 1, 1); got != 50 {
		t.Fatalf("Global after a lower timestamp = %d, want 50 (must not regress)", got)
	}
}

func TestUpdateHoldsBackOnOutOfOrderSequence(t *testing.T) {
	p := New([]uint64{1})
	if got := p.Update(30, 2, 1); got != 0 {
		t.Fatalf("Update with a gap at seq 2 = %d, want 0 (seq 0,1 missing)", got)
	}
	if got := p.OriginWatermark(1); got != 0 {
		t.Fatalf("OriginWatermark = %d, want 0 before the gap closes", got)
	}
}

func TestRegisterOriginIsIdempotent(t *testing.T) {
	p := New([]uint64{1})
	p.RegisterOrigin(1)
	p.RegisterOrigin(2)
	if got := p.OriginWatermark(2); got != 0 {
		t.Fatalf("OriginWatermark for a freshly registered origin = %d, want 0", got)
	}
}

func TestOriginWatermarkUnregisteredOriginReturnsZero(t *testing.T) {
	p := New([]uint64{1})
	if got := p.OriginWatermark(99); got != 0 {
		t.Fatalf("OriginWatermark for unregistered origin = %d, want 0", got)
	}
}

func TestUpdateAutoRegistersUnknownOrigin(t *testing.T) {
	p := New([]uint64{1})
	got := p.Update(5, 0, 42)
	if got != 0 {
		t.Fatalf("Update for auto-registered origin 42 = %d, want 0 (origin 1 has not produced)", got)
	}
	if w := p.OriginWatermark(42); w != 5 {
		t.Fatalf("OriginWatermark(42) = %d, want 5", w)
	}
}
