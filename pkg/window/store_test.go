package window

import "testing"

func resultFor(results []Result, start int64) (Result, bool) {
	for _, r := range results {
		if r.Start == start {
			return r, true
		}
	}
	return Result{}, false
}

func TestStoreTumblingCount(t *testing.T) {
	s := NewTumblingStore(1000, CountAggregator{})

	s.Add(Record{Timestamp: 100})
	s.Add(Record{Timestamp: 200})
	s.Add(Record{Timestamp: 900})
	s.Add(Record{Timestamp: 1500}) // belongs to the next window

	results := s.AdvanceWatermark(999)
	if len(results) != 0 {
		t.Fatalf("AdvanceWatermark(999) = %v, want no completed windows yet", results)
	}

	results = s.AdvanceWatermark(1000)
	if len(results) != 1 {
		t.Fatalf("AdvanceWatermark(1000) = %v, want exactly one completed window", results)
	}
	if results[0].Start != 0 || results[0].End != 1000 || results[0].Value != 3 {
		t.Errorf("window [0,1000) = %+v, want {Start:0 End:1000 Value:3}", results[0])
	}

	results = s.AdvanceWatermark(2000)
	if len(results) != 1 || results[0].Start != 1000 || results[0].Value != 1 {
		t.Fatalf("window [1000,2000) = %v, want one window with Value 1", results)
	}
}

func TestStoreTumblingLateRecordDropped(t *testing.T) {
	s := NewTumblingStore(1000, CountAggregator{})
	s.Add(Record{Timestamp: 100})
	s.AdvanceWatermark(1000)

	// This record's event time is before the watermark; it must be dropped
	// rather than reopening an already-emitted window.
	s.Add(Record{Timestamp: 500})
	results := s.AdvanceWatermark(2000)
	if len(results) != 0 {
		t.Fatalf("late record resurrected a window: %v", results)
	}
}

// TestStoreSlidingSum exercises spec.md §8 scenario 2 literally: size 1000,
// slide 500, keyed sum, inputs (id=1,v=10,ts=100), (1,20,600), (2,5,700),
// (1,30,1100). Window [1000,2000)'s second composing slice [1500,2000)
// never receives a record — it must still fire once the watermark passes
// its end, with only the data its one populated slice contributed.
func TestStoreSlidingSum(t *testing.T) {
	s := NewSlidingStore(1000, 500, SumAggregator{})

	s.Add(Record{Key: "1", Timestamp: 100, Value: 10})
	s.Add(Record{Key: "1", Timestamp: 600, Value: 20})
	s.Add(Record{Key: "2", Timestamp: 700, Value: 5})
	s.Add(Record{Key: "1", Timestamp: 1100, Value: 30})

	results := s.AdvanceWatermark(2000)

	byWindow := map[int64]map[string]float64{}
	for _, r := range results {
		if byWindow[r.Start] == nil {
			byWindow[r.Start] = map[string]float64{}
		}
		byWindow[r.Start][r.Key] = r.Value
	}

	w0, ok := resultFor(results, 0)
	if !ok || w0.End != 1000 {
		t.Fatalf("window [0,1000) missing from results: %v", results)
	}
	if got := byWindow[0]; got["1"] != 30 || got["2"] != 5 {
		t.Errorf("window [0,1000) = %v, want k=1 sum=30, k=2 sum=5", got)
	}

	w500, ok := resultFor(results, 500)
	if !ok || w500.End != 1500 {
		t.Fatalf("window [500,1500) missing from results: %v", results)
	}
	if got := byWindow[500]; got["1"] != 50 || got["2"] != 5 {
		t.Errorf("window [500,1500) = %v, want k=1 sum=50, k=2 sum=5", got)
	}

	w1000, ok := resultFor(results, 1000)
	if !ok || w1000.End != 2000 {
		t.Fatalf("window [1000,2000) missing from results: %v", results)
	}
	got := byWindow[1000]
	if got["1"] != 30 {
		t.Errorf("window [1000,2000) k=1 = %v, want sum=30", got["1"])
	}
	if _, hasKey2 := got["2"]; hasKey2 {
		t.Errorf("window [1000,2000) = %v, want no k=2 (its slice [1500,2000) never saw a record)", got)
	}

	for _, r := range results {
		if r.Start < 0 {
			t.Errorf("emitted a negative-start boundary window %+v, want only fully-covered windows", r)
		}
	}
}

func TestStoreKeyedAggregation(t *testing.T) {
	s := NewTumblingStore(1000, SumAggregator{})
	s.Add(Record{Key: "a", Timestamp: 10, Value: 1})
	s.Add(Record{Key: "b", Timestamp: 20, Value: 2})
	s.Add(Record{Key: "a", Timestamp: 30, Value: 3})

	results := s.AdvanceWatermark(1000)
	if len(results) != 2 {
		t.Fatalf("AdvanceWatermark = %v, want two keyed results", results)
	}

	byKey := map[string]float64{}
	for _, r := range results {
		byKey[r.Key] = r.Value
	}
	if byKey["a"] != 4 || byKey["b"] != 2 {
		t.Errorf("byKey = %v, want a=4 b=2", byKey)
	}
}

func TestStoreOpenSlicesBounded(t *testing.T) {
	s := NewTumblingStore(1000, CountAggregator{})
	for i := int64(0); i < 10; i++ {
		s.Add(Record{Timestamp: i * 1000})
		s.AdvanceWatermark((i + 1) * 1000)
	}
	if n := s.OpenSlices(); n != 0 {
		t.Errorf("OpenSlices() = %d, want 0 after every window has fully drained", n)
	}
}
