package join

import "testing"

func TestStoreBuildLocatesSingleInterval(t *testing.T) {
	s := NewStore(1000, 16)
	s.Build(LeftSide, 100, Tuple("l1"))
	s.Build(RightSide, 200, Tuple("r1"))
	s.Build(LeftSide, 900, Tuple("l2"))

	if got := s.Len(); got != 1 {
		t.Fatalf("Len() = %d, want 1 interval", got)
	}
}

func TestStoreAdvanceWatermarkReadyProbe(t *testing.T) {
	s := NewStore(1000, 16)
	s.Build(LeftSide, 100, Tuple("l1"))
	s.Build(RightSide, 200, Tuple("r1"))

	ready := s.AdvanceWatermark(999)
	if len(ready) != 0 {
		t.Fatalf("AdvanceWatermark(999) = %v, want no ready intervals yet", ready)
	}

	ready = s.AdvanceWatermark(1000)
	if len(ready) != 1 {
		t.Fatalf("AdvanceWatermark(1000) = %v, want exactly one ready interval", ready)
	}
	if ready[0].State != EmittedToProbe {
		t.Errorf("ready interval state = %v, want EMITTED_TO_PROBE", ready[0].State)
	}
}

func TestStoreAdvanceWatermarkTombstonesEmptySide(t *testing.T) {
	s := NewStore(1000, 16)
	s.Build(LeftSide, 100, Tuple("l1")) // right side never gets a tuple

	ready := s.AdvanceWatermark(1000)
	if len(ready) != 0 {
		t.Fatalf("AdvanceWatermark(1000) = %v, want no ready interval (empty right side)", ready)
	}
	if s.Len() != 1 {
		t.Fatalf("Len() = %d, want the tombstoned interval to remain until Release", s.Len())
	}
}

func TestStoreLateBuildDropped(t *testing.T) {
	s := NewStore(1000, 16)
	s.Build(LeftSide, 100, Tuple("l1"))
	s.Build(RightSide, 200, Tuple("r1"))
	s.AdvanceWatermark(1000)

	// The interval has already left LEFT_FILLED; this late tuple must be
	// silently dropped rather than reopening it for a second probe.
	iv, _ := s.Resolve(0)
	before := iv.Side(LeftSide).Len()
	s.Build(LeftSide, 500, Tuple("late"))
	if after := iv.Side(LeftSide).Len(); after != before {
		t.Errorf("late build mutated the paged vector: before=%d after=%d", before, after)
	}
}

func TestStoreTwoPassTermination(t *testing.T) {
	s := NewStore(1000, 16)
	s.Build(LeftSide, 100, Tuple("l1"))
	s.Build(RightSide, 200, Tuple("r1"))

	s.BeginTerminationPass()
	iv, _ := s.Resolve(0)
	if iv.State != OnceSeenDuringTermination {
		t.Fatalf("state after pass one = %v, want ONCE_SEEN_DURING_TERMINATION", iv.State)
	}

	ready := s.FinishTerminationPass()
	if len(ready) != 1 || ready[0].State != EmittedToProbe {
		t.Fatalf("FinishTerminationPass() = %v, want one EMITTED_TO_PROBE interval", ready)
	}
}

func TestStoreResolveAndRelease(t *testing.T) {
	s := NewStore(1000, 16)
	s.Build(LeftSide, 100, Tuple("l1"))
	s.Build(RightSide, 200, Tuple("r1"))
	ready := s.AdvanceWatermark(1000)
	iv := ready[0]

	if _, ok := s.Resolve(iv.ID); !ok {
		t.Fatal("Resolve() failed to find a ready interval by id")
	}
	s.Release(iv)
	if _, ok := s.Resolve(iv.ID); ok {
		t.Error("Resolve() found an interval after Release()")
	}
	if s.Len() != 0 {
		t.Errorf("Len() = %d after Release, want 0", s.Len())
	}
}
