package handle

import "testing"

func TestSlotTableInsertGet(t *testing.T) {
	tbl := NewSlotTable[string]()
	a := tbl.Insert("a")
	b := tbl.Insert("b")

	if v, ok := tbl.Get(a); !ok || v != "a" {
		t.Errorf("Get(a) = %q, %v", v, ok)
	}
	if v, ok := tbl.Get(b); !ok || v != "b" {
		t.Errorf("Get(b) = %q, %v", v, ok)
	}
	if tbl.Len() != 2 {
		t.Errorf("Len = %d, want 2", tbl.Len())
	}
	if _, ok := tbl.Get(Invalid); ok {
		t.Error("Get(Invalid) succeeded")
	}
}

func TestSlotTableStaleHandle(t *testing.T) {
	tbl := NewSlotTable[int]()
	h := tbl.Insert(1)
	if !tbl.Remove(h) {
		t.Fatal("Remove returned false")
	}
	if tbl.Remove(h) {
		t.Error("second Remove returned true")
	}

	// The slot is reused but the old handle stays dead.
	h2 := tbl.Insert(2)
	if h2.Index() != h.Index() {
		t.Fatalf("slot not reused: %v vs %v", h2, h)
	}
	if _, ok := tbl.Get(h); ok {
		t.Error("stale handle resolved after slot reuse")
	}
	if p := tbl.Ptr(h2); p == nil || *p != 2 {
		t.Errorf("Ptr(h2) = %v", p)
	}
}

func TestSlotTableEach(t *testing.T) {
	tbl := NewSlotTable[int]()
	hs := []Handle{tbl.Insert(10), tbl.Insert(20), tbl.Insert(30)}
	tbl.Remove(hs[1])

	sum := 0
	tbl.Each(func(_ Handle, v int) { sum += v })
	if sum != 40 {
		t.Errorf("sum over live values = %d, want 40", sum)
	}
}
