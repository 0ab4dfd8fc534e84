package join

import "testing"

func TestPagedVectorAppendAcrossPages(t *testing.T) {
	v := NewPagedVector(2)
	for i := 0; i < 5; i++ {
		v.Append(Tuple{byte(i)})
	}
	if v.Len() != 5 {
		t.Fatalf("Len() = %d, want 5", v.Len())
	}
	if v.IsEmpty() {
		t.Fatal("IsEmpty() = true, want false")
	}

	var seen []byte
	v.ForEach(func(tup Tuple) bool {
		seen = append(seen, tup[0])
		return true
	})
	want := []byte{0, 1, 2, 3, 4}
	if len(seen) != len(want) {
		t.Fatalf("ForEach visited %v, want %v", seen, want)
	}
	for i := range want {
		if seen[i] != want[i] {
			t.Errorf("position %d = %d, want %d", i, seen[i], want[i])
		}
	}
}

func TestPagedVectorForEachEarlyExit(t *testing.T) {
	v := NewPagedVector(4)
	for i := 0; i < 10; i++ {
		v.Append(Tuple{byte(i)})
	}
	count := 0
	v.ForEach(func(Tuple) bool {
		count++
		return count < 3
	})
	if count != 3 {
		t.Errorf("ForEach stopped after %d visits, want 3", count)
	}
}

func TestPagedVectorEmpty(t *testing.T) {
	v := NewPagedVector(4)
	if !v.IsEmpty() {
		t.Error("IsEmpty() = false on a fresh vector, want true")
	}
	if v.Len() != 0 {
		t.Errorf("Len() = %d, want 0", v.Len())
	}
}
